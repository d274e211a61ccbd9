package params

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mijafro/fork-lca-algebraic/domain/core"
)

func TestNewFloat_Validation(t *testing.T) {
	tests := []struct {
		name    string
		pname   string
		spec    FloatSpec
		wantErr bool
	}{
		{"uniform ok", "mass", FloatSpec{Distribution: Uniform, Default: 1, Min: 0, Max: 2}, false},
		{"default outside support", "mass", FloatSpec{Distribution: Uniform, Default: 3, Min: 0, Max: 2}, true},
		{"uniform without bounds", "mass", FloatSpec{Distribution: Uniform, Default: 1}, true},
		{"triangle ok", "load", FloatSpec{Distribution: Triangle, Default: 0.2, Min: 0, Max: 1}, false},
		{"normal needs std", "eff", FloatSpec{Distribution: Normal, Default: 0.5}, true},
		{"normal unbounded", "eff", FloatSpec{Distribution: Normal, Default: 0.5, Std: 0.1}, false},
		{"lognormal needs positive default", "life", FloatSpec{Distribution: LogNormal, Default: 0, Std: 0.2}, true},
		{"beta needs shapes", "share", FloatSpec{Distribution: Beta, Default: 0.5, Min: 0, Max: 1}, true},
		{"beta ok", "share", FloatSpec{Distribution: Beta, Default: 0.5, Min: 0, Max: 1, Alpha: 2, Beta: 2}, false},
		{"fixed defaults", "density", FloatSpec{Default: 7.8}, false},
		{"bad name", "has space", FloatSpec{Default: 1}, true},
		{"unknown distribution", "mass", FloatSpec{Distribution: "poisson", Default: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewFloat(tt.pname, tt.spec)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, core.ErrInvalidParameter))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, Continuous, p.Kind())
			assert.True(t, p.Contains(p.Default()))
		})
	}
}

func TestQuantile_StaysInSupport(t *testing.T) {
	ps := []*Parameter{
		MustFloat("u", FloatSpec{Distribution: Uniform, Default: 1, Min: 0, Max: 2}),
		MustFloat("t", FloatSpec{Distribution: Triangle, Default: 0.3, Min: 0, Max: 1}),
		MustFloat("n", FloatSpec{Distribution: Normal, Default: 10, Std: 2, Min: 5, Max: 15}),
		MustFloat("ln", FloatSpec{Distribution: LogNormal, Default: 3, Std: 0.5}),
		MustFloat("b", FloatSpec{Distribution: Beta, Default: 5, Min: 2, Max: 8, Alpha: 2, Beta: 5}),
	}

	for _, p := range ps {
		prev := math.Inf(-1)
		for i := 0; i < 100; i++ {
			u := float64(i) / 100
			v := p.Quantile(u)
			assert.Falsef(t, math.IsNaN(v) || math.IsInf(v, 0), "%s: quantile(%g) not finite", p.Name(), u)
			assert.Truef(t, p.Contains(v), "%s: quantile(%g)=%g outside support", p.Name(), u, v)
			assert.GreaterOrEqualf(t, v, prev, "%s: quantile not monotone at %g", p.Name(), u)
			prev = v
		}
	}
}

func TestQuantile_TruncatedHasNoMassOnBounds(t *testing.T) {
	ps := []*Parameter{
		MustFloat("n", FloatSpec{Distribution: Normal, Default: 0, Std: 1, Min: -0.5, Max: 0.5}),
		MustFloat("ln", FloatSpec{Distribution: LogNormal, Default: 3, Std: 0.5, Min: 2, Max: 4}),
	}
	const n = 1000
	for _, p := range ps {
		for i := 0; i < n; i++ {
			v := p.Quantile((float64(i) + 0.5) / n)
			assert.Greaterf(t, v, p.Min(), "%s: sample on the lower bound", p.Name())
			assert.Lessf(t, v, p.Max(), "%s: sample on the upper bound", p.Name())
		}
	}

	// truncated standard normal: P(|x| < 0.25 | |x| < 0.5) = 0.5157
	inner := 0
	for i := 0; i < n; i++ {
		if math.Abs(ps[0].Quantile((float64(i)+0.5)/n)) < 0.25 {
			inner++
		}
	}
	assert.InDelta(t, 0.5157, float64(inner)/n, 0.01)
	assert.InDelta(t, 0, ps[0].Quantile(0.5), 1e-9)
}

func TestQuantile_UniformIsLinear(t *testing.T) {
	p := MustFloat("u", FloatSpec{Distribution: Uniform, Default: 1, Min: 0, Max: 2})
	assert.InDelta(t, 0.5, p.Quantile(0.25), 1e-12)
	assert.InDelta(t, 1.5, p.Quantile(0.75), 1e-12)
}

func TestChoice_WeightedDiscretization(t *testing.T) {
	p := MustChoice("tech", ChoiceSpec{
		Choices: []string{"coal", "gas", "solar"},
		Weights: []float64{1, 1, 2},
		Default: "gas",
	})

	assert.Equal(t, Choice, p.Kind())
	assert.Equal(t, 1.0, p.Default())
	assert.Equal(t, "gas", p.DefaultChoice())

	assert.Equal(t, 0.0, p.Quantile(0.0))
	assert.Equal(t, 0.0, p.Quantile(0.24))
	assert.Equal(t, 1.0, p.Quantile(0.25))
	assert.Equal(t, 1.0, p.Quantile(0.49))
	assert.Equal(t, 2.0, p.Quantile(0.5))
	assert.Equal(t, 2.0, p.Quantile(0.999))

	assert.Equal(t, []float64{0, 1, 2}, p.Range(10))
	assert.False(t, p.Contains(1.5))
	assert.False(t, p.Contains(3))
}

func TestNewChoice_Validation(t *testing.T) {
	_, err := NewChoice("tech", ChoiceSpec{})
	assert.Error(t, err)

	_, err = NewChoice("tech", ChoiceSpec{Choices: []string{"a", "a"}})
	assert.Error(t, err)

	_, err = NewChoice("tech", ChoiceSpec{Choices: []string{"a", "b"}, Weights: []float64{1}})
	assert.Error(t, err)

	_, err = NewChoice("tech", ChoiceSpec{Choices: []string{"a", "b"}, Default: "c"})
	assert.Error(t, err)

	_, err = NewChoice("tech", ChoiceSpec{Choices: []string{"a", "b"}, Weights: []float64{0, 0}})
	assert.Error(t, err)
}

func TestRange_Bounded(t *testing.T) {
	p := MustFloat("u", FloatSpec{Distribution: Uniform, Default: 1, Min: 0, Max: 2})
	assert.Equal(t, []float64{0, 0.5, 1, 1.5, 2}, p.Range(5))

	fixed := MustFloat("k", FloatSpec{Default: 4})
	assert.Equal(t, []float64{4}, fixed.Range(5))
}
