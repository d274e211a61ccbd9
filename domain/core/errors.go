package core

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors - centralized error definitions
var (
	// Model errors: fatal for the whole build
	ErrCyclicGraph   = errors.New("cyclic activity graph")
	ErrUnknownMethod = errors.New("unknown impact method")
	ErrInvalidModel  = errors.New("invalid model")

	// Usage errors: fatal for the specific call
	ErrUnboundParameter    = errors.New("unbound parameter")
	ErrInvalidParameter    = errors.New("invalid parameter")
	ErrInsufficientSamples = errors.New("insufficient samples")
	ErrTooManyDimensions   = errors.New("too many sequence dimensions")

	// Analysis errors: isolated to one (parameter, method) pair
	ErrZeroVariance = errors.New("zero output variance")
)

// CyclicGraphError reports the activity path that closes a cycle.
type CyclicGraphError struct {
	Path []string
}

func (e *CyclicGraphError) Error() string {
	return fmt.Sprintf("%v: %s", ErrCyclicGraph, strings.Join(e.Path, " -> "))
}

func (e *CyclicGraphError) Is(target error) bool { return target == ErrCyclicGraph }

// UnknownMethodError is returned when a background leaf has no score for a method.
type UnknownMethodError struct {
	Activity string
	Method   MethodKey
}

func (e *UnknownMethodError) Error() string {
	return fmt.Sprintf("%v: activity %q has no score for %q", ErrUnknownMethod, e.Activity, e.Method)
}

func (e *UnknownMethodError) Is(target error) bool { return target == ErrUnknownMethod }

// UnboundParameterError is returned when an expression references a parameter
// that is neither declared nor bound in the evaluated rows.
type UnboundParameterError struct {
	Name string
}

func (e *UnboundParameterError) Error() string {
	return fmt.Sprintf("%v: %s", ErrUnboundParameter, e.Name)
}

func (e *UnboundParameterError) Is(target error) bool { return target == ErrUnboundParameter }

// InsufficientSamplesError is returned when the requested sample count is below the floor.
type InsufficientSamplesError struct {
	N   int
	Min int
}

func (e *InsufficientSamplesError) Error() string {
	return fmt.Sprintf("%v: n=%d, need at least %d", ErrInsufficientSamples, e.N, e.Min)
}

func (e *InsufficientSamplesError) Is(target error) bool { return target == ErrInsufficientSamples }

// ZeroVarianceError is returned when the model output does not vary across samples.
type ZeroVarianceError struct {
	Method   MethodKey
	Variance float64
}

func (e *ZeroVarianceError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("%v (variance=%g)", ErrZeroVariance, e.Variance)
	}
	return fmt.Sprintf("%v for method %q (variance=%g)", ErrZeroVariance, e.Method, e.Variance)
}

func (e *ZeroVarianceError) Is(target error) bool { return target == ErrZeroVariance }

// Error constructors with context
func NewInvalidModelError(reason string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidModel, fmt.Sprintf(reason, args...))
}

func NewInvalidParameterError(name string, reason string) error {
	return fmt.Errorf("%w %s: %s", ErrInvalidParameter, name, reason)
}

// IsModelError reports errors that make an expression unbuildable.
func IsModelError(err error) bool {
	return errors.Is(err, ErrCyclicGraph) ||
		errors.Is(err, ErrUnknownMethod) ||
		errors.Is(err, ErrInvalidModel)
}

// IsUsageError reports errors caused by the arguments of a single call.
func IsUsageError(err error) bool {
	return errors.Is(err, ErrUnboundParameter) ||
		errors.Is(err, ErrInvalidParameter) ||
		errors.Is(err, ErrInsufficientSamples) ||
		errors.Is(err, ErrTooManyDimensions)
}
