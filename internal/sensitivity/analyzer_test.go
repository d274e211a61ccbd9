package sensitivity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mijafro/fork-lca-algebraic/domain/core"
	"github.com/mijafro/fork-lca-algebraic/domain/expr"
	"github.com/mijafro/fork-lca-algebraic/domain/params"
	"github.com/mijafro/fork-lca-algebraic/internal/eval"
	"github.com/mijafro/fork-lca-algebraic/internal/sampler"
)

func unit(name string) *params.Parameter {
	return params.MustFloat(name, params.FloatSpec{Distribution: params.Uniform, Default: 0.5, Min: 0, Max: 1})
}

func newAnalyzer(workers int) *Analyzer {
	return NewAnalyzer(sampler.New(0), eval.NewEvaluator(workers, 256, nil), nil)
}

func TestAnalyze_SingleInfluentialParameter(t *testing.T) {
	reg := params.MustRegistry(unit("x"), unit("y"), unit("z"))
	tree := expr.Add(expr.Mul(expr.Const(3), expr.Param("x")), expr.Const(1))

	res, err := newAnalyzer(4).Analyze(context.Background(), tree, reg, reg.All(), 1024)
	require.NoError(t, err)
	require.Len(t, res.Indices, 3)

	x, _ := res.Index("x")
	assert.InDelta(t, 1, x.ST, 0.02)
	assert.InDelta(t, 1, x.S1, 0.02)
	for _, name := range []string{"y", "z"} {
		ix, ok := res.Index(name)
		require.True(t, ok)
		assert.Equal(t, 0.0, ix.S1)
		assert.Equal(t, 0.0, ix.ST)
	}
	assert.Equal(t, "x", res.Ranked()[0].Param)
}

func TestAnalyze_SmallScores(t *testing.T) {
	reg := params.MustRegistry(unit("x"), unit("y"))
	ctx := context.Background()

	// ozone-depletion sized output, varying over its whole range
	res, err := newAnalyzer(2).Analyze(ctx, expr.Mul(expr.Const(1e-11), expr.Param("x")), reg, reg.All(), 256)
	require.NoError(t, err)
	x, _ := res.Index("x")
	assert.InDelta(t, 1, x.ST, 0.05)
	assert.Greater(t, res.Variance, 0.0)

	for name, tree := range map[string]expr.Expr{
		"tiny constant": expr.Add(expr.Const(1e-11), expr.Mul(expr.Const(0), expr.Param("x"))),
		"all zero":      expr.Mul(expr.Const(0), expr.Param("x")),
	} {
		_, err := newAnalyzer(2).Analyze(ctx, tree, reg, reg.All(), 256)
		assert.ErrorIs(t, err, core.ErrZeroVariance, name)
	}
}

func TestAnalyze_LinearModel(t *testing.T) {
	reg := params.MustRegistry(unit("a"), unit("b"), unit("c"))
	tree := expr.Add(
		expr.Param("a"),
		expr.Mul(expr.Const(2), expr.Param("b")),
		expr.Mul(expr.Const(3), expr.Param("c")),
	)

	res, err := newAnalyzer(2).Analyze(context.Background(), tree, reg, reg.All(), 4096)
	require.NoError(t, err)

	want := map[string]float64{"a": 1.0 / 14, "b": 4.0 / 14, "c": 9.0 / 14}
	sum := 0.0
	for name, v := range want {
		ix, _ := res.Index(name)
		assert.InDelta(t, v, ix.S1, 0.03, "S1 %s", name)
		assert.InDelta(t, v, ix.ST, 0.03, "ST %s", name)
		sum += ix.S1
	}
	assert.LessOrEqual(t, sum, 1.03)

	ranked := res.Ranked()
	assert.Equal(t, []string{"c", "b", "a"}, []string{ranked[0].Param, ranked[1].Param, ranked[2].Param})
}

func TestAnalyze_BoundsWithInteractions(t *testing.T) {
	reg := params.MustRegistry(
		params.MustFloat("x", params.FloatSpec{Distribution: params.Uniform, Default: 1, Min: 0, Max: 2}),
		params.MustFloat("y", params.FloatSpec{Distribution: params.Triangle, Default: 1, Min: 0.5, Max: 3}),
		params.MustChoice("tech", params.ChoiceSpec{Choices: []string{"a", "b"}, Weights: []float64{1, 3}}),
	)
	tree := expr.Add(
		expr.Mul(expr.Param("x"), expr.Param("y")),
		expr.NewSwitch("tech", expr.When("a", expr.Const(0.5)), expr.When("b", expr.Param("x"))),
	)

	res, err := newAnalyzer(4).Analyze(context.Background(), tree, reg, reg.All(), 2048)
	require.NoError(t, err)
	for _, ix := range res.Indices {
		assert.GreaterOrEqual(t, ix.S1, 0.0)
		assert.LessOrEqual(t, ix.ST, 1.0)
		assert.LessOrEqual(t, ix.S1, ix.ST+0.02, "%s", ix.Param)
		if !ix.Clipped {
			assert.Equal(t, ix.S1Raw, ix.S1)
			assert.Equal(t, ix.STRaw, ix.ST)
		}
	}
	y, _ := res.Index("y")
	assert.Greater(t, y.ST-y.S1, 0.0, "x*y has an interaction term")
}

func TestAnalyze_WorkerCountDoesNotChangeResults(t *testing.T) {
	reg := params.MustRegistry(unit("x"), unit("y"))
	tree := expr.Add(expr.Mul(expr.Param("x"), expr.Param("y")), expr.Mul(expr.Const(0.3), expr.Param("y")))

	one, err := newAnalyzer(1).Analyze(context.Background(), tree, reg, reg.All(), 512)
	require.NoError(t, err)
	many, err := newAnalyzer(8).Analyze(context.Background(), tree, reg, reg.All(), 512)
	require.NoError(t, err)
	assert.Equal(t, one.Indices, many.Indices)
	assert.Equal(t, one.Outputs, many.Outputs)
}

func TestAnalyze_Errors(t *testing.T) {
	reg := params.MustRegistry(unit("x"))
	ctx := context.Background()

	t.Run("zero variance", func(t *testing.T) {
		_, err := newAnalyzer(2).Analyze(ctx, expr.Const(4), reg, reg.All(), 64)
		require.ErrorIs(t, err, core.ErrZeroVariance)
		assert.True(t, IsZeroVariance(err))
	})

	t.Run("insufficient samples", func(t *testing.T) {
		_, err := newAnalyzer(2).Analyze(ctx, expr.Param("x"), reg, reg.All(), 8)
		assert.ErrorIs(t, err, core.ErrInsufficientSamples)
	})

	t.Run("unbound parameter", func(t *testing.T) {
		_, err := newAnalyzer(2).Analyze(ctx, expr.Param("ghost"), reg, reg.All(), 64)
		assert.ErrorIs(t, err, core.ErrUnboundParameter)
	})
}

func TestAnalyzeMethods_IsolatesZeroVariance(t *testing.T) {
	reg := params.MustRegistry(unit("x"), unit("y"))
	trees := map[core.MethodKey]expr.Expr{
		"flat":    expr.Const(2),
		"climate": expr.Add(expr.Param("x"), expr.Param("y")),
	}

	results, err := newAnalyzer(4).AnalyzeMethods(context.Background(), trees, []core.MethodKey{"flat", "climate"}, reg, reg.All(), 128)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.ErrorIs(t, results[0].Err, core.ErrZeroVariance)
	assert.Empty(t, results[0].Indices)
	require.NoError(t, results[1].Err)
	assert.Len(t, results[1].Indices, 2)

	tbl := IndicesTable(results)
	r, c := tbl.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 4, c)
	assert.NotEmpty(t, tbl.Notes)

	_, err = newAnalyzer(4).AnalyzeMethods(context.Background(), trees, []core.MethodKey{"water"}, reg, reg.All(), 128)
	assert.ErrorIs(t, err, core.ErrUnknownMethod)
}

func TestAnalyze_FixesUnanalyzedParameters(t *testing.T) {
	reg := params.MustRegistry(unit("x"), unit("y"))
	x, _ := reg.Get("x")
	tree := expr.Mul(expr.Param("x"), expr.Param("y"))

	res, err := newAnalyzer(2).Analyze(context.Background(), tree, reg, []*params.Parameter{x}, 256)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, res.Params)
	assert.InDelta(t, 0.25, res.Mean, 0.01, "y held at its default 0.5")
}

func TestSummarize(t *testing.T) {
	reg := params.MustRegistry(unit("x"), unit("y"))
	tree := expr.Add(expr.Param("x"), expr.Const(1))

	res, err := newAnalyzer(2).Analyze(context.Background(), tree, reg, reg.All(), 1024)
	require.NoError(t, err)

	s, err := Summarize(res)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, s.Mean, 0.01)
	assert.InDelta(t, 1.5, s.Median, 0.01)
	assert.InDelta(t, 1.05, s.P5, 0.01)
	assert.InDelta(t, 1.95, s.P95, 0.01)
	assert.InDelta(t, 1/12.0/2.25*100, s.RelVar, 0.2)
	require.Len(t, s.Deviation, 2)
	assert.Greater(t, s.Deviation[0], 0.0)
	assert.Equal(t, 0.0, s.Deviation[1])

	tbl := SummaryTable([]*Result{res})
	r, _ := tbl.Dims()
	assert.Equal(t, 1, r)
}

func TestOAT(t *testing.T) {
	reg := params.MustRegistry(
		params.MustFloat("x", params.FloatSpec{Distribution: params.Uniform, Default: 1, Min: 0, Max: 2}),
		params.MustFloat("y", params.FloatSpec{Distribution: params.Uniform, Default: 0.5, Min: 0, Max: 1}),
		params.MustChoice("tech", params.ChoiceSpec{Choices: []string{"a", "b"}}),
	)
	trees := map[core.MethodKey]expr.Expr{
		"climate": expr.Add(expr.Mul(expr.Const(2), expr.Param("x")), expr.Param("y")),
		"water":   expr.NewSwitch("tech", expr.When("a", expr.Const(1)), expr.When("b", expr.Const(3))),
	}
	methods := []core.MethodKey{"climate", "water"}

	res, err := newAnalyzer(2).OAT(context.Background(), trees, methods, reg, reg.All(), 5)
	require.NoError(t, err)
	require.Len(t, res.Change, 3)

	assert.InDelta(t, 160, res.Change[0][0], 1e-9) // x: outputs 0.5..4.5, median 2.5
	assert.InDelta(t, 40, res.Change[1][0], 1e-9)  // y: outputs 2..3, median 2.5
	assert.InDelta(t, 0, res.Change[2][0], 1e-9)
	assert.InDelta(t, 100, res.Change[2][1], 1e-9) // tech: 1 or 3, median 2
	assert.InDelta(t, 0, res.Change[0][1], 1e-9)

	tbl := res.Table()
	assert.Equal(t, []string{"climate", "water"}, tbl.Columns)
	assert.Equal(t, []string{"x", "y", "tech"}, tbl.Labels)
}
