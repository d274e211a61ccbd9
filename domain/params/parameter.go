// Package params declares model parameters: their kind, distribution, bounds
// and default. A Parameter is immutable once constructed and is shared by
// reference between the expression builder, the evaluator and the sampler.
package params

import (
	"fmt"
	"go/token"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/mijafro/fork-lca-algebraic/domain/core"
)

// Kind distinguishes continuous parameters from discrete choices.
type Kind int

const (
	Continuous Kind = iota
	Choice
)

func (k Kind) String() string {
	switch k {
	case Continuous:
		return "float"
	case Choice:
		return "choice"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Distribution names the law a parameter is drawn from.
type Distribution string

const (
	Fixed     Distribution = "fixed"
	Uniform   Distribution = "uniform"
	Triangle  Distribution = "triangle"
	Normal    Distribution = "normal"
	LogNormal Distribution = "lognormal"
	Beta      Distribution = "beta"
	Weighted  Distribution = "weighted"
)

// quantileEps keeps unbounded inverse CDFs finite at u=0 and u=1.
const quantileEps = 1e-12

// FloatSpec describes a continuous parameter.
//
// Uniform, Triangle and Beta need Min < Max. Triangle uses Default as its
// mode. Normal uses Default as mean and Std as sigma; LogNormal uses Default
// as median and Std as sigma of the underlying normal. Normal and LogNormal
// are truncated to [Min, Max] when Min < Max.
type FloatSpec struct {
	Distribution Distribution
	Default      float64
	Min          float64
	Max          float64
	Std          float64
	Alpha        float64
	Beta         float64
	Unit         string
	Description  string
}

// ChoiceSpec describes a discrete-choice parameter. Empty Weights means all
// choices are equally likely; empty Default means the first choice.
type ChoiceSpec struct {
	Choices     []string
	Weights     []float64
	Default     string
	Description string
}

// Parameter is an immutable parameter definition.
type Parameter struct {
	name        string
	kind        Kind
	distrib     Distribution
	def         float64
	min, max    float64
	std         float64
	alpha, beta float64
	unit        string
	description string

	choices    []string
	cumWeights []float64
	defChoice  int
}

// NewFloat validates spec and returns a continuous parameter.
func NewFloat(name string, spec FloatSpec) (*Parameter, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if spec.Distribution == "" {
		spec.Distribution = Fixed
	}
	p := &Parameter{
		name:        name,
		kind:        Continuous,
		distrib:     spec.Distribution,
		def:         spec.Default,
		min:         spec.Min,
		max:         spec.Max,
		std:         spec.Std,
		alpha:       spec.Alpha,
		beta:        spec.Beta,
		unit:        spec.Unit,
		description: spec.Description,
	}
	if math.IsNaN(p.def) || math.IsInf(p.def, 0) {
		return nil, core.NewInvalidParameterError(name, "default must be finite")
	}

	switch p.distrib {
	case Fixed:
	case Uniform, Triangle, Beta:
		if !(p.min < p.max) {
			return nil, core.NewInvalidParameterError(name, fmt.Sprintf("%s needs min < max, got [%g, %g]", p.distrib, p.min, p.max))
		}
		if p.distrib == Beta && (p.alpha <= 0 || p.beta <= 0) {
			return nil, core.NewInvalidParameterError(name, "beta needs alpha > 0 and beta > 0")
		}
	case Normal:
		if p.std <= 0 {
			return nil, core.NewInvalidParameterError(name, "normal needs std > 0")
		}
	case LogNormal:
		if p.std <= 0 || p.def <= 0 {
			return nil, core.NewInvalidParameterError(name, "lognormal needs std > 0 and default > 0")
		}
	default:
		return nil, core.NewInvalidParameterError(name, fmt.Sprintf("unsupported distribution %q", p.distrib))
	}

	if p.Bounded() && (p.def < p.min || p.def > p.max) {
		return nil, core.NewInvalidParameterError(name, fmt.Sprintf("default %g outside [%g, %g]", p.def, p.min, p.max))
	}
	return p, nil
}

// NewChoice validates spec and returns a discrete-choice parameter.
func NewChoice(name string, spec ChoiceSpec) (*Parameter, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if len(spec.Choices) == 0 {
		return nil, core.NewInvalidParameterError(name, "choice parameter needs at least one choice")
	}
	if len(spec.Weights) != 0 && len(spec.Weights) != len(spec.Choices) {
		return nil, core.NewInvalidParameterError(name, fmt.Sprintf("%d weights for %d choices", len(spec.Weights), len(spec.Choices)))
	}

	seen := make(map[string]bool, len(spec.Choices))
	for _, c := range spec.Choices {
		if c == "" || seen[c] {
			return nil, core.NewInvalidParameterError(name, fmt.Sprintf("empty or duplicate choice %q", c))
		}
		seen[c] = true
	}

	total := 0.0
	weights := make([]float64, len(spec.Choices))
	for i := range weights {
		w := 1.0
		if len(spec.Weights) != 0 {
			w = spec.Weights[i]
		}
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, core.NewInvalidParameterError(name, fmt.Sprintf("invalid weight %g", w))
		}
		weights[i] = w
		total += w
	}
	if total <= 0 {
		return nil, core.NewInvalidParameterError(name, "weights sum to zero")
	}

	cum := make([]float64, len(weights))
	acc := 0.0
	for i, w := range weights {
		acc += w / total
		cum[i] = acc
	}
	cum[len(cum)-1] = 1

	p := &Parameter{
		name:        name,
		kind:        Choice,
		distrib:     Weighted,
		description: spec.Description,
		choices:     append([]string(nil), spec.Choices...),
		cumWeights:  cum,
	}
	if spec.Default != "" {
		idx, ok := p.ChoiceIndex(spec.Default)
		if !ok {
			return nil, core.NewInvalidParameterError(name, fmt.Sprintf("default %q is not a choice", spec.Default))
		}
		p.defChoice = idx
	}
	p.def = float64(p.defChoice)
	p.min, p.max = 0, float64(len(p.choices)-1)
	return p, nil
}

// MustFloat is NewFloat for statically known definitions.
func MustFloat(name string, spec FloatSpec) *Parameter {
	p, err := NewFloat(name, spec)
	if err != nil {
		panic(err)
	}
	return p
}

// MustChoice is NewChoice for statically known definitions.
func MustChoice(name string, spec ChoiceSpec) *Parameter {
	p, err := NewChoice(name, spec)
	if err != nil {
		panic(err)
	}
	return p
}

func validateName(name string) error {
	if !token.IsIdentifier(name) {
		return core.NewInvalidParameterError(fmt.Sprintf("%q", name), "name must be an identifier")
	}
	return nil
}

func (p *Parameter) Name() string { return p.name }
func (p *Parameter) Kind() Kind { return p.kind }
func (p *Parameter) Distribution() Distribution { return p.distrib }
func (p *Parameter) Unit() string { return p.unit }
func (p *Parameter) Description() string { return p.description }
func (p *Parameter) Min() float64 { return p.min }
func (p *Parameter) Max() float64 { return p.max }
func (p *Parameter) IsFixed() bool { return p.distrib == Fixed }
func (p *Parameter) Bounded() bool { return p.min < p.max }
func (p *Parameter) Choices() []string { return append([]string(nil), p.choices...) }
func (p *Parameter) DefaultChoice() string {
	if p.kind != Choice {
		return ""
	}
	return p.choices[p.defChoice]
}

// Default returns the default row value: the default itself for continuous
// parameters, the index of the default choice for discrete ones.
func (p *Parameter) Default() float64 { return p.def }

// ChoiceIndex returns the row value encoding choice.
func (p *Parameter) ChoiceIndex(choice string) (int, bool) {
	for i, c := range p.choices {
		if c == choice {
			return i, true
		}
	}
	return -1, false
}

// Contains reports whether v lies in the declared support.
func (p *Parameter) Contains(v float64) bool {
	if math.IsNaN(v) {
		return false
	}
	switch {
	case p.kind == Choice:
		return v == math.Trunc(v) && v >= 0 && int(v) < len(p.choices)
	case p.IsFixed():
		return v == p.def
	case p.Bounded():
		return v >= p.min && v <= p.max
	case p.distrib == LogNormal:
		return v > 0 && !math.IsInf(v, 0)
	default:
		return !math.IsInf(v, 0)
	}
}

// Quantile maps u in [0,1) to a value of the parameter's support: the
// inverse CDF for continuous parameters, the weighted discretization for
// choices.
func (p *Parameter) Quantile(u float64) float64 {
	if p.kind == Choice {
		for i, c := range p.cumWeights {
			if u < c {
				return float64(i)
			}
		}
		return float64(len(p.cumWeights) - 1)
	}

	var v float64
	switch p.distrib {
	case Fixed:
		return p.def
	case Uniform:
		v = distuv.Uniform{Min: p.min, Max: p.max}.Quantile(u)
	case Triangle:
		v = distuv.NewTriangle(p.min, p.max, p.def, nil).Quantile(u)
	case Beta:
		v = p.min + (p.max-p.min)*distuv.Beta{Alpha: p.alpha, Beta: p.beta}.Quantile(u)
	case Normal:
		v = p.truncated(distuv.Normal{Mu: p.def, Sigma: p.std}, u)
	case LogNormal:
		v = p.truncated(distuv.LogNormal{Mu: math.Log(p.def), Sigma: p.std}, u)
	}
	if p.Bounded() {
		v = math.Max(p.min, math.Min(p.max, v))
	}
	return v
}

// Range returns n values spanning the support, used by one-at-a-time
// analysis: evenly spaced over [Min, Max] for bounded parameters, evenly
// spaced quantiles otherwise, and every choice index for discrete ones.
func (p *Parameter) Range(n int) []float64 {
	switch {
	case p.kind == Choice:
		out := make([]float64, len(p.choices))
		for i := range out {
			out[i] = float64(i)
		}
		return out
	case p.IsFixed() || n <= 1:
		return []float64{p.def}
	case p.Bounded():
		out := make([]float64, n)
		step := (p.max - p.min) / float64(n-1)
		for i := range out {
			out[i] = p.min + float64(i)*step
		}
		out[n-1] = p.max
		return out
	default:
		out := make([]float64, n)
		for i := range out {
			out[i] = p.Quantile((float64(i) + 0.5) / float64(n))
		}
		return out
	}
}

// Describe renders the definition; it feeds the registry fingerprint.
func (p *Parameter) Describe() string {
	switch {
	case p.kind == Choice:
		return fmt.Sprintf("choice%v cum=%v default=%s", p.choices, p.cumWeights, p.DefaultChoice())
	case p.IsFixed():
		return fmt.Sprintf("fixed(%g)", p.def)
	default:
		return fmt.Sprintf("%s(default=%g,min=%g,max=%g,std=%g,alpha=%g,beta=%g)",
			p.distrib, p.def, p.min, p.max, p.std, p.alpha, p.beta)
	}
}

func (p *Parameter) String() string {
	return p.name + ":" + p.Describe()
}

type cdfQuantiler interface {
	CDF(x float64) float64
	Quantile(p float64) float64
}

// truncated is the inverse CDF of d restricted to [Min, Max] when the
// parameter is bounded: u is mapped onto [F(Min), F(Max)] first, so no
// probability mass collects on the bounds.
func (p *Parameter) truncated(d cdfQuantiler, u float64) float64 {
	if !p.Bounded() {
		return d.Quantile(clampUnit(u))
	}
	lo, hi := 0.0, d.CDF(p.max)
	if p.distrib != LogNormal || p.min > 0 {
		lo = d.CDF(p.min)
	}
	return d.Quantile(clampUnit(lo + u*(hi-lo)))
}

func clampUnit(u float64) float64 {
	return math.Max(quantileEps, math.Min(1-quantileEps, u))
}
