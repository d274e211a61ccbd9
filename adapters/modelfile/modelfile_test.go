package modelfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mijafro/fork-lca-algebraic/domain/core"
	"github.com/mijafro/fork-lca-algebraic/domain/expr"
	"github.com/mijafro/fork-lca-algebraic/domain/params"
	"github.com/mijafro/fork-lca-algebraic/internal/builder"
	apperrors "github.com/mijafro/fork-lca-algebraic/internal/errors"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		src  string
		want expr.Expr
	}{
		{"2", expr.Const(2)},
		{"1e-3", expr.Const(0.001)},
		{"(1 + 2) * 4", expr.Const(12)},
		{"mass", expr.Param("mass")},
		{"-mass", expr.Mul(expr.Const(-1), expr.Param("mass"))},
		{"+mass", expr.Param("mass")},
		{"mass / 4", expr.Mul(expr.Param("mass"), expr.Const(0.25))},
		{"clip(eff, 0, 1)", expr.Clip(expr.Param("eff"), 0, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got, err := ParseAmount(tt.src)
			require.NoError(t, err)
			assert.True(t, expr.Equal(expr.Fold(tt.want), got), "got %s", got)
		})
	}
}

func TestParseAmount_Errors(t *testing.T) {
	for _, src := range []string{
		"mass / eff",
		"1 / 0",
		"pow(mass, 2)",
		"clip(eff, 0)",
		"clip(eff, hi, 1)",
		"clip(eff, 2, 1)",
		`"text"`,
		"mass % 2",
		"a.b",
		"1 +",
	} {
		_, err := ParseAmount(src)
		assert.Error(t, err, src)
	}
}

func TestLoad_Bike(t *testing.T) {
	m, err := Load("testdata/bike.yaml")
	require.NoError(t, err)

	assert.Equal(t, "bike", m.RootName())
	assert.Equal(t, []core.MethodKey{"climate", "water"}, m.Methods)
	assert.Equal(t, 4, m.Registry.Len())

	tech, ok := m.Registry.Get("tech")
	require.True(t, ok)
	assert.Equal(t, params.Choice, tech.Kind())
	assert.Equal(t, "solar", tech.DefaultChoice())

	loss, _ := m.Registry.Get("loss")
	assert.True(t, loss.IsFixed())

	b := builder.New(m.Graph, m.Registry, nil)
	tree, err := b.Build(m.Root, "climate", "mass", "eff", "tech")
	require.NoError(t, err)
	c, ok := tree.(*expr.Constant)
	require.True(t, ok, "got %s", tree)

	// frame = 2*mass + 3*mass*1.1*clip(eff/10); bike = 1.05*frame + 0.5*frame
	frame := 2*2.0 + 3*2.0*1.1*(0.8*0.1)
	assert.InDelta(t, 1.55*frame, c.Value, 1e-12)

	free, err := b.Build(m.Root, "water")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"mass", "tech"}, expr.Params(free))
}

func TestParse_Errors(t *testing.T) {
	tests := map[string]string{
		"bad yaml":         "parameters: [",
		"no root":          "activities: [{name: a, type: background, scores: {m: 1}}]",
		"unknown root":     "activities: [{name: a}]\nroot: b",
		"undeclared param": "activities: [{name: a, exchanges: [{activity: b, amount: x}]}, {name: b, type: background, scores: {m: 1}}]\nroot: a",
		"undefined child":  "activities: [{name: a, exchanges: [{activity: nope}]}]\nroot: a",
		"duplicate":        "activities: [{name: a}, {name: a}]\nroot: a",
		"unknown type":     "activities: [{name: a, type: process}]\nroot: a",
		"cyclic switches": `parameters: [{name: p, type: choice, choices: [x]}]
activities:
  - {name: s1, type: switch, param: p, cases: [{choice: x, activity: s2}]}
  - {name: s2, type: switch, param: p, cases: [{choice: x, activity: s1}]}
root: s1`,
		"exchanges on background": "activities: [{name: a, type: background, scores: {m: 1}, exchanges: [{activity: a}]}]\nroot: a",
		"bad parameter":           "parameters: [{name: p, distribution: uniform, min: 2, max: 1}]",
		"list amount":             "activities: [{name: a, type: background, scores: {m: [1]}}]\nroot: a",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("testdata/missing.yaml")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeModelInvalid, apperrors.GetCode(err))
}

func TestParse_DefaultMethods(t *testing.T) {
	doc := `
activities:
  - {name: a, exchanges: [{activity: b}, {activity: c}]}
  - {name: b, type: background, scores: {water: 1}}
  - {name: c, type: background, scores: {climate: 1}}
root: a`
	m, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, []core.MethodKey{"climate", "water"}, m.Methods)
}
