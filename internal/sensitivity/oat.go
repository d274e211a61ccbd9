package sensitivity

import (
	"context"
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"

	"github.com/mijafro/fork-lca-algebraic/domain/core"
	"github.com/mijafro/fork-lca-algebraic/domain/expr"
	"github.com/mijafro/fork-lca-algebraic/domain/params"
	"github.com/mijafro/fork-lca-algebraic/domain/table"
	"github.com/mijafro/fork-lca-algebraic/internal/eval"
)

// OATResult is a one-at-a-time variation: Change[i][k] is the spread of
// method k when parameter i sweeps its range and every other parameter
// stays at its default, as (max - min) / |median| in percent.
type OATResult struct {
	Params  []string
	Methods []core.MethodKey
	Change  [][]float64
}

// OAT sweeps each parameter of ps over n points of its range (every choice
// for discrete parameters).
func (a *Analyzer) OAT(ctx context.Context, trees map[core.MethodKey]expr.Expr, methods []core.MethodKey,
	registry *params.Registry, ps []*params.Parameter, n int) (*OATResult, error) {

	if len(ps) == 0 {
		return nil, core.NewInvalidParameterError("", "no parameters to vary")
	}

	names := make([]string, len(ps))
	defaults := make([]float64, len(ps))
	for j, p := range ps {
		names[j] = p.Name()
		defaults[j] = p.Default()
	}

	progs := make([]*eval.Program, len(methods))
	for k, m := range methods {
		tree, ok := trees[m]
		if !ok {
			return nil, &core.UnknownMethodError{Activity: "<oat>", Method: m}
		}
		prog, err := eval.Compile(BindOthers(tree, registry, ps), registry, names)
		if err != nil {
			return nil, fmt.Errorf("method %q: %w", m, err)
		}
		progs[k] = prog
	}

	res := &OATResult{Params: names, Methods: append([]core.MethodKey(nil), methods...)}
	for i, p := range ps {
		sweep := table.New("oat "+p.Name(), "", names...)
		for _, v := range p.Range(n) {
			row := append([]float64(nil), defaults...)
			row[i] = v
			if err := sweep.AddRow("", row...); err != nil {
				return nil, err
			}
		}

		change := make([]float64, len(methods))
		for k, prog := range progs {
			out, err := a.evaluator.Run(ctx, prog, sweep)
			if err != nil {
				return nil, err
			}
			change[k] = spread(out)
		}
		res.Change = append(res.Change, change)
	}
	a.logger.Info("one-at-a-time: %d params x %d methods", len(ps), len(methods))
	return res, nil
}

func spread(out []float64) float64 {
	median, err := stats.Median(out)
	if err != nil || median == 0 {
		return math.NaN()
	}
	return (floats.Max(out) - floats.Min(out)) / math.Abs(median) * 100
}

// Table renders the result with one row per parameter and one column per
// method.
func (r *OATResult) Table() *table.Table {
	cols := make([]string, len(r.Methods))
	for k, m := range r.Methods {
		cols[k] = string(m)
	}
	t := table.New("One-at-a-time change (%)", "param", cols...)
	for i, name := range r.Params {
		_ = t.AddRow(name, r.Change[i]...)
	}
	return t
}
