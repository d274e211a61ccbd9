// Package sensitivity computes variance-based (Sobol) sensitivity indices
// of expression trees, plus one-at-a-time variations and summaries of the
// output distribution.
package sensitivity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/mijafro/fork-lca-algebraic/domain/core"
	"github.com/mijafro/fork-lca-algebraic/domain/expr"
	"github.com/mijafro/fork-lca-algebraic/domain/params"
	"github.com/mijafro/fork-lca-algebraic/internal"
	"github.com/mijafro/fork-lca-algebraic/internal/eval"
	"github.com/mijafro/fork-lca-algebraic/internal/sampler"
)

// zeroVarianceTol is the variance, relative to the squared output scale,
// below which the output is considered constant.
const zeroVarianceTol = 1e-20

// Index holds the Sobol indices of one parameter for one method. S1 and ST
// are clipped to [0, 1]; the raw estimates are kept for diagnostics.
type Index struct {
	Param   string
	S1      float64
	ST      float64
	S1Raw   float64
	STRaw   float64
	Clipped bool
}

// Result is the analysis of one method. When the output does not vary, Err
// holds a ZeroVarianceError and Indices is empty.
type Result struct {
	Method   core.MethodKey
	N        int
	Params   []string
	Indices  []Index
	Mean     float64
	Variance float64
	Outputs  []float64 // f(A) followed by f(B)
	Err      error
}

// Index looks up the indices of a parameter.
func (r *Result) Index(param string) (Index, bool) {
	for _, ix := range r.Indices {
		if ix.Param == param {
			return ix, true
		}
	}
	return Index{}, false
}

// Ranked returns the indices by decreasing ST. Equal values keep
// declaration order.
func (r *Result) Ranked() []Index {
	out := append([]Index(nil), r.Indices...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ST > out[j].ST })
	return out
}

// Analyzer runs Sobol analyses. It owns no per-run state and may be shared.
type Analyzer struct {
	sampler   *sampler.Sampler
	evaluator *eval.Evaluator
	logger    *internal.Logger
}

// NewAnalyzer creates an analyzer. A nil logger discards output.
func NewAnalyzer(s *sampler.Sampler, ev *eval.Evaluator, logger *internal.Logger) *Analyzer {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &Analyzer{sampler: s, evaluator: ev, logger: logger.WithComponent("Analyzer")}
}

func (a *Analyzer) Sampler() *sampler.Sampler { return a.sampler }
func (a *Analyzer) Evaluator() *eval.Evaluator { return a.evaluator }

// Analyze computes the indices of every parameter in ps for a single tree.
// A constant output fails with ZeroVarianceError.
func (a *Analyzer) Analyze(ctx context.Context, tree expr.Expr, registry *params.Registry, ps []*params.Parameter, n int) (*Result, error) {
	results, err := a.AnalyzeMethods(ctx, map[core.MethodKey]expr.Expr{"": tree}, []core.MethodKey{""}, registry, ps, n)
	if err != nil {
		return nil, err
	}
	if results[0].Err != nil {
		return nil, results[0].Err
	}
	return results[0], nil
}

// AnalyzeMethods analyzes several methods on one shared sample set. Model
// and usage errors abort the batch; a method with zero output variance is
// flagged on its own Result and the others complete.
func (a *Analyzer) AnalyzeMethods(ctx context.Context, trees map[core.MethodKey]expr.Expr, methods []core.MethodKey,
	registry *params.Registry, ps []*params.Parameter, n int) ([]*Result, error) {

	am, bm, err := a.sampler.Sample(ps, n)
	if err != nil {
		return nil, err
	}
	batches := make([]eval.Rows, 0, 2+len(ps))
	batches = append(batches, am, bm)
	for i := range ps {
		batches = append(batches, am.WithColumnFrom(i, bm))
	}

	names := am.ColumnNames()
	results := make([]*Result, 0, len(methods))
	for _, m := range methods {
		tree, ok := trees[m]
		if !ok {
			return nil, &core.UnknownMethodError{Activity: "<analysis>", Method: m}
		}
		prog, err := eval.Compile(BindOthers(tree, registry, ps), registry, names)
		if err != nil {
			return nil, fmt.Errorf("method %q: %w", m, err)
		}
		outputs, err := a.evaluator.RunBatch(ctx, prog, batches)
		if err != nil {
			return nil, err
		}

		res := estimate(m, names, outputs, n)
		if res.Err != nil {
			a.logger.Warn("method %q: %v", m, res.Err)
		} else {
			a.logger.Info("method %q: mean=%g var=%g over %d params, n=%d", m, res.Mean, res.Variance, len(ps), n)
		}
		results = append(results, res)
	}
	return results, nil
}

// estimate applies the Saltelli (2010) first-order and Jansen (1999)
// total-effect estimators to outputs = [f(A), f(B), f(C_1), ...]:
//
//	S_i  = mean(f(B) * (f(C_i) - f(A))) / V
//	ST_i = mean((f(A) - f(C_i))^2) / (2V)
//
// with V the population variance of f(A) and f(B) together. Outputs are
// centered on their mean first, which changes neither in expectation.
func estimate(method core.MethodKey, names []string, outputs [][]float64, n int) *Result {
	all := make([]float64, 0, 2*n)
	all = append(all, outputs[0]...)
	all = append(all, outputs[1]...)
	mean, variance := stat.PopMeanVariance(all, nil)

	res := &Result{
		Method:   method,
		N:        n,
		Params:   names,
		Mean:     mean,
		Variance: variance,
		Outputs:  all,
	}
	if math.IsNaN(variance) || variance <= zeroVarianceTol*scale(all, mean) {
		res.Err = &core.ZeroVarianceError{Method: method, Variance: variance}
		return res
	}

	fA := centered(outputs[0], mean)
	fB := centered(outputs[1], mean)
	diff := make([]float64, n)
	res.Indices = make([]Index, len(names))
	for i, name := range names {
		fC := centered(outputs[2+i], mean)

		floats.SubTo(diff, fC, fA)
		s1 := floats.Dot(fB, diff) / float64(n) / variance

		d := floats.Distance(fA, fC, 2)
		st := d * d / float64(n) / (2 * variance)

		res.Indices[i] = clip(name, s1, st)
	}
	return res
}

// scale is max(mean^2, max f^2). It is 0 only when every output is 0, so
// the zero-variance test is exact in that case and relative otherwise.
func scale(x []float64, mean float64) float64 {
	m := mean * mean
	for _, v := range x {
		m = math.Max(m, v*v)
	}
	return m
}

func centered(x []float64, mean float64) []float64 {
	out := append([]float64(nil), x...)
	floats.AddConst(-mean, out)
	return out
}

func clip(name string, s1, st float64) Index {
	ix := Index{Param: name, S1Raw: s1, STRaw: st}
	ix.S1 = math.Max(0, math.Min(1, s1))
	ix.ST = math.Max(0, math.Min(1, st))
	ix.Clipped = ix.S1 != s1 || ix.ST != st
	return ix
}

// BindOthers fixes, at their defaults, the parameters tree references that
// are not being analyzed. Names the registry does not know are left alone
// and surface later as UnboundParameterError.
func BindOthers(tree expr.Expr, registry *params.Registry, ps []*params.Parameter) expr.Expr {
	analyzed := make(map[string]bool, len(ps))
	for _, p := range ps {
		analyzed[p.Name()] = true
	}
	b := expr.Bindings{Values: map[string]float64{}, Choices: map[string]string{}}
	for _, name := range expr.Params(tree) {
		if analyzed[name] {
			continue
		}
		p, ok := registry.Get(name)
		if !ok {
			continue
		}
		b.Values[name] = p.Default()
		if p.Kind() == params.Choice {
			b.Choices[name] = p.DefaultChoice()
		}
	}
	return expr.Fold(expr.Substitute(tree, b))
}

// IsZeroVariance reports whether err flags a degenerate method.
func IsZeroVariance(err error) bool {
	return errors.Is(err, core.ErrZeroVariance)
}
