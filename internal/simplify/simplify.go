// Package simplify reduces an impact expression to the parameters that
// drive its variance and measures what the reduction costs.
package simplify

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/mijafro/fork-lca-algebraic/domain/core"
	"github.com/mijafro/fork-lca-algebraic/domain/expr"
	"github.com/mijafro/fork-lca-algebraic/domain/params"
	"github.com/mijafro/fork-lca-algebraic/internal"
	"github.com/mijafro/fork-lca-algebraic/internal/builder"
	"github.com/mijafro/fork-lca-algebraic/internal/sensitivity"
)

// Options selects the retained parameters. A positive KeepFraction keeps
// the ceil(KeepFraction*p) parameters with the largest total index;
// otherwise every parameter with ST >= IndexThreshold is kept.
type Options struct {
	N              int
	KeepFraction   float64
	IndexThreshold float64
	ValidationN    int // 0 skips validation
}

func (o Options) validate() error {
	if o.KeepFraction < 0 || o.KeepFraction > 1 {
		return core.NewInvalidParameterError("keep_fraction", fmt.Sprintf("%g not in [0, 1]", o.KeepFraction))
	}
	if o.IndexThreshold < 0 || o.IndexThreshold > 1 {
		return core.NewInvalidParameterError("index_threshold", fmt.Sprintf("%g not in [0, 1]", o.IndexThreshold))
	}
	if o.ValidationN < 0 {
		return core.NewInvalidParameterError("validation_n", "must not be negative")
	}
	return nil
}

// SimplifiedModel is the reduced tree of one method. Error is the relative
// RMS difference against the full tree over the validation rows (the plain
// RMSE when the full tree is zero on all of them); it is NaN when
// validation was skipped. Err flags a method whose output does not vary:
// its tree is returned unreduced.
type SimplifiedModel struct {
	Method        core.MethodKey
	Tree          expr.Expr
	Original      expr.Expr
	Retained      []string
	Fixed         []string
	Indices       []sensitivity.Index
	Error         float64
	Validated     bool
	OriginalNodes int
	Nodes         int
	Err           error
}

// Simplifier ties the builder to an analyzer.
type Simplifier struct {
	builder  *builder.Builder
	analyzer *sensitivity.Analyzer
	logger   *internal.Logger
}

// New creates a simplifier. A nil logger discards output.
func New(b *builder.Builder, a *sensitivity.Analyzer, logger *internal.Logger) *Simplifier {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &Simplifier{builder: b, analyzer: a, logger: logger.WithComponent("Simplifier")}
}

// Simplify analyzes root for method, keeps the influential parameters,
// and rebuilds the tree with every other parameter at its default.
func (s *Simplifier) Simplify(ctx context.Context, root core.ActivityID, method core.MethodKey, opts Options) (*SimplifiedModel, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	registry := s.builder.Registry()

	original, err := s.builder.Build(root, method)
	if err != nil {
		return nil, err
	}
	ps, err := registry.Select(expr.Params(original))
	if err != nil {
		return nil, err
	}

	m := &SimplifiedModel{
		Method:        method,
		Tree:          original,
		Original:      original,
		Error:         math.NaN(),
		OriginalNodes: expr.NodeCount(original),
		Nodes:         expr.NodeCount(original),
	}
	if len(ps) == 0 {
		m.Error, m.Validated = 0, true
		s.logger.Info("%q: no free parameters, nothing to simplify", method)
		return m, nil
	}

	res, err := s.analyzer.Analyze(ctx, original, registry, ps, opts.N)
	if sensitivity.IsZeroVariance(err) {
		m.Err, m.Error = err, 0
		m.Retained = names(ps)
		s.logger.Warn("%q: %v, keeping the full tree", method, err)
		return m, nil
	}
	if err != nil {
		return nil, err
	}
	m.Indices = res.Indices

	keep := Select(res, opts)
	for _, p := range ps {
		if keep[p.Name()] {
			m.Retained = append(m.Retained, p.Name())
		} else {
			m.Fixed = append(m.Fixed, p.Name())
		}
	}

	m.Tree, err = s.builder.Build(root, method, m.Fixed...)
	if err != nil {
		return nil, err
	}
	m.Nodes = expr.NodeCount(m.Tree)

	if opts.ValidationN > 0 {
		m.Error, err = s.validate(ctx, original, m.Tree, registry, ps, opts.ValidationN, opts.N)
		if err != nil {
			return nil, err
		}
		m.Validated = true
	}
	s.logger.Info("%q: kept %d/%d params, nodes %d -> %d, error %.3g",
		method, len(m.Retained), len(ps), m.OriginalNodes, m.Nodes, m.Error)
	return m, nil
}

func names(ps []*params.Parameter) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Name()
	}
	return out
}

// SimplifyMethods runs Simplify for each method in order. A method with
// zero output variance is flagged on its own model and the others
// complete; any other error aborts the batch.
func (s *Simplifier) SimplifyMethods(ctx context.Context, root core.ActivityID, methods []core.MethodKey, opts Options) ([]*SimplifiedModel, error) {
	out := make([]*SimplifiedModel, 0, len(methods))
	for _, method := range methods {
		m, err := s.Simplify(ctx, root, method, opts)
		if err != nil {
			return nil, fmt.Errorf("simplify %q: %w", method, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// Select returns the names of the parameters opts retains from res. Ties
// on ST keep declaration order.
func Select(res *sensitivity.Result, opts Options) map[string]bool {
	ranked := res.Ranked()
	keep := make(map[string]bool, len(ranked))
	if opts.KeepFraction > 0 {
		k := int(math.Ceil(opts.KeepFraction * float64(len(ranked))))
		for _, ix := range ranked[:min(k, len(ranked))] {
			keep[ix.Param] = true
		}
		return keep
	}
	for _, ix := range ranked {
		if ix.ST >= opts.IndexThreshold {
			keep[ix.Param] = true
		}
	}
	return keep
}

// validate evaluates both trees on rows drawn right after the n points the
// analysis consumed.
func (s *Simplifier) validate(ctx context.Context, full, reduced expr.Expr, registry *params.Registry,
	ps []*params.Parameter, validationN, n int) (float64, error) {

	rows, err := s.analyzer.Sampler().Draw(ps, validationN, n)
	if err != nil {
		return 0, err
	}
	ev := s.analyzer.Evaluator()
	f, err := ev.Evaluate(ctx, full, registry, rows)
	if err != nil {
		return 0, err
	}
	g, err := ev.Evaluate(ctx, reduced, registry, rows)
	if err != nil {
		return 0, err
	}
	return RelativeError(f, g), nil
}

// RelativeError is sqrt(sum((f-g)^2) / sum(f^2)), or the RMSE of g against
// f when f is all zeros.
func RelativeError(f, g []float64) float64 {
	if len(f) == 0 {
		return 0
	}
	d := floats.Distance(f, g, 2)
	norm := floats.Norm(f, 2)
	if norm == 0 {
		return d / math.Sqrt(float64(len(f)))
	}
	return d / norm
}
