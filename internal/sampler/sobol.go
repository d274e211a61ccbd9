package sampler

import (
	"fmt"
	"math/bits"
	"math/rand/v2"

	"github.com/mijafro/fork-lca-algebraic/domain/core"
)

// MaxDimensions is the number of dimensions with direction numbers.
const MaxDimensions = 40

const sobolBits = 32

// Joe-Kuo direction numbers (new-joe-kuo-6.21201) for dimensions 2..40:
// degree s of the primitive polynomial, its coefficient bits a, and the
// initial direction numbers m.
var directions = []struct {
	s, a int
	m    []uint32
}{
	{1, 0, []uint32{1}},
	{2, 1, []uint32{1, 3}},
	{3, 1, []uint32{1, 3, 1}},
	{3, 2, []uint32{1, 1, 1}},
	{4, 1, []uint32{1, 1, 3, 3}},
	{4, 4, []uint32{1, 3, 5, 13}},
	{5, 2, []uint32{1, 1, 5, 5, 17}},
	{5, 4, []uint32{1, 1, 5, 5, 5}},
	{5, 7, []uint32{1, 1, 7, 11, 19}},
	{5, 11, []uint32{1, 1, 5, 1, 1}},
	{5, 13, []uint32{1, 1, 1, 3, 11}},
	{5, 14, []uint32{1, 3, 5, 5, 31}},
	{6, 1, []uint32{1, 3, 3, 9, 7, 49}},
	{6, 13, []uint32{1, 1, 1, 15, 21, 21}},
	{6, 16, []uint32{1, 3, 1, 13, 27, 49}},
	{6, 19, []uint32{1, 1, 1, 15, 7, 5}},
	{6, 22, []uint32{1, 3, 1, 15, 13, 25}},
	{6, 25, []uint32{1, 1, 5, 5, 19, 61}},
	{7, 1, []uint32{1, 3, 7, 11, 23, 15, 103}},
	{7, 4, []uint32{1, 3, 7, 13, 13, 15, 69}},
	{7, 7, []uint32{1, 1, 3, 13, 7, 35, 63}},
	{7, 8, []uint32{1, 3, 5, 9, 1, 25, 53}},
	{7, 14, []uint32{1, 3, 1, 13, 9, 35, 107}},
	{7, 19, []uint32{1, 3, 1, 5, 27, 61, 31}},
	{7, 21, []uint32{1, 1, 5, 11, 19, 41, 61}},
	{7, 28, []uint32{1, 3, 5, 3, 3, 13, 69}},
	{7, 31, []uint32{1, 1, 7, 13, 1, 19, 1}},
	{7, 32, []uint32{1, 3, 7, 5, 13, 19, 59}},
	{7, 37, []uint32{1, 1, 3, 9, 25, 29, 41}},
	{7, 41, []uint32{1, 3, 5, 13, 23, 1, 55}},
	{7, 42, []uint32{1, 3, 7, 3, 13, 59, 17}},
	{7, 50, []uint32{1, 3, 1, 3, 17, 27, 27}},
	{7, 55, []uint32{1, 1, 5, 7, 25, 61, 81}},
	{7, 56, []uint32{1, 3, 3, 7, 19, 13, 17}},
	{7, 59, []uint32{1, 1, 7, 3, 29, 29, 101}},
	{7, 62, []uint32{1, 3, 7, 5, 19, 1, 59}},
	{8, 14, []uint32{1, 1, 5, 1, 1, 31, 121, 227}},
	{8, 21, []uint32{1, 3, 1, 5, 27, 3, 85, 91}},
	{8, 22, []uint32{1, 3, 7, 13, 21, 29, 65, 243}},
}

// Sobol generates the Sobol low-discrepancy sequence in Gray-code order.
// The origin is never returned. A non-zero seed XORs a fixed random shift
// into every dimension; the shifted sequence keeps the prefix property.
type Sobol struct {
	dim   int
	v     [][sobolBits]uint32
	x     []uint32
	shift []uint32
	count uint32
}

// NewSobol creates a generator of dim-dimensional points.
func NewSobol(dim int, seed uint64) (*Sobol, error) {
	if dim < 1 {
		return nil, core.NewInvalidParameterError("dim", "must be positive")
	}
	if dim > MaxDimensions {
		return nil, fmt.Errorf("%w: %d > %d", core.ErrTooManyDimensions, dim, MaxDimensions)
	}
	s := &Sobol{
		dim:   dim,
		v:     make([][sobolBits]uint32, dim),
		x:     make([]uint32, dim),
		shift: make([]uint32, dim),
	}

	for i := 0; i < sobolBits; i++ {
		s.v[0][i] = 1 << (sobolBits - 1 - i)
	}
	for d := 1; d < dim; d++ {
		dir := directions[d-1]
		v := &s.v[d]
		for i := 0; i < dir.s && i < sobolBits; i++ {
			v[i] = dir.m[i] << (sobolBits - 1 - i)
		}
		for i := dir.s; i < sobolBits; i++ {
			v[i] = v[i-dir.s] ^ (v[i-dir.s] >> dir.s)
			for k := 1; k < dir.s; k++ {
				if (dir.a>>(dir.s-1-k))&1 == 1 {
					v[i] ^= v[i-k]
				}
			}
		}
	}

	if seed != 0 {
		rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
		for d := range s.shift {
			s.shift[d] = rng.Uint32()
		}
	}
	return s, nil
}

// Dim returns the number of dimensions.
func (s *Sobol) Dim() int { return s.dim }

// Next writes the next point, in [0,1)^dim, into dst.
func (s *Sobol) Next(dst []float64) {
	c := bits.TrailingZeros32(^s.count)
	s.count++
	for d := 0; d < s.dim; d++ {
		s.x[d] ^= s.v[d][c]
		dst[d] = float64(s.x[d]^s.shift[d]) / (1 << sobolBits)
	}
}

// Skip advances the sequence by n points.
func (s *Sobol) Skip(n int) {
	for ; n > 0; n-- {
		c := bits.TrailingZeros32(^s.count)
		s.count++
		for d := 0; d < s.dim; d++ {
			s.x[d] ^= s.v[d][c]
		}
	}
}
