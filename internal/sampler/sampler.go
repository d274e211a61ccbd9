// Package sampler draws Sobol sample matrices over a parameter space.
package sampler

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/mijafro/fork-lca-algebraic/domain/core"
	"github.com/mijafro/fork-lca-algebraic/domain/params"
)

// MinSamples is the smallest n accepted by Sample. Below it the variance
// estimates of the Sobol indices are not usable.
const MinSamples = 16

// MaxParameters is the number of parameters Sample can handle: each point
// carries the A and B coordinates of every parameter.
const MaxParameters = MaxDimensions / 2

// Matrix is a sample matrix: one row per sample, one column per parameter,
// in the order given to the sampler. It satisfies eval.Rows.
type Matrix struct {
	*mat.Dense
	columns []string
}

// NewMatrix wraps a dense matrix whose columns are named by columns.
func NewMatrix(d *mat.Dense, columns []string) *Matrix {
	return &Matrix{Dense: d, columns: columns}
}

// ColumnNames returns the parameter name of each column.
func (m *Matrix) ColumnNames() []string { return m.columns }

// WithColumnFrom returns a copy of m whose column j is taken from other.
// This is how the Sobol C_i matrices are formed from A and B.
func (m *Matrix) WithColumnFrom(j int, other *Matrix) *Matrix {
	var c mat.Dense
	c.CloneFrom(m.Dense)
	c.SetCol(j, mat.Col(nil, j, other.Dense))
	return &Matrix{Dense: &c, columns: m.columns}
}

// Sampler maps Sobol points through each parameter's quantile function.
// It holds no state between calls: the same (parameters, n, seed) always
// give the same matrices.
type Sampler struct {
	seed uint64
}

func New(seed uint64) *Sampler { return &Sampler{seed: seed} }

func (s *Sampler) Seed() uint64 { return s.seed }

// Sample returns the base matrix A and the resample matrix B, each n x
// len(ps). Row k of A and B are the two halves of the k-th point of a
// 2*len(ps)-dimensional sequence, so growing n keeps earlier rows.
func (s *Sampler) Sample(ps []*params.Parameter, n int) (a, b *Matrix, err error) {
	if n < MinSamples {
		return nil, nil, &core.InsufficientSamplesError{N: n, Min: MinSamples}
	}
	a, b, err = s.draw(ps, n, 0)
	return a, b, err
}

// Draw returns n rows from the A half of the sequence, starting after the
// first offset points. Sample consumes points [0, n), so Draw(ps, m, n)
// yields fresh rows for validation.
func (s *Sampler) Draw(ps []*params.Parameter, n, offset int) (*Matrix, error) {
	if n < 1 {
		return nil, &core.InsufficientSamplesError{N: n, Min: 1}
	}
	if offset < 0 {
		return nil, fmt.Errorf("negative offset %d", offset)
	}
	a, _, err := s.draw(ps, n, offset)
	return a, err
}

func (s *Sampler) draw(ps []*params.Parameter, n, offset int) (*Matrix, *Matrix, error) {
	d := len(ps)
	if d == 0 {
		return nil, nil, core.NewInvalidParameterError("", "no parameters to sample")
	}
	if d > MaxParameters {
		return nil, nil, fmt.Errorf("%w: %d parameters, at most %d", core.ErrTooManyDimensions, d, MaxParameters)
	}

	seq, err := NewSobol(2*d, s.seed)
	if err != nil {
		return nil, nil, err
	}
	seq.Skip(offset)

	columns := make([]string, d)
	for j, p := range ps {
		columns[j] = p.Name()
	}

	dataA := make([]float64, n*d)
	dataB := make([]float64, n*d)
	point := make([]float64, 2*d)
	for i := 0; i < n; i++ {
		seq.Next(point)
		for j, p := range ps {
			dataA[i*d+j] = p.Quantile(point[j])
			dataB[i*d+j] = p.Quantile(point[d+j])
		}
	}
	return NewMatrix(mat.NewDense(n, d, dataA), columns), NewMatrix(mat.NewDense(n, d, dataB), columns), nil
}
