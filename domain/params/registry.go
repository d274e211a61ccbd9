package params

import (
	"fmt"
	"sort"

	"github.com/mijafro/fork-lca-algebraic/domain/core"
)

// Registry is an ordered, immutable set of parameter definitions. It is
// passed explicitly to the builder, evaluator and sampler; there is no
// package-level registry.
type Registry struct {
	params []*Parameter
	index  map[string]int
}

// NewRegistry builds a registry in declaration order. Duplicate names are
// rejected.
func NewRegistry(ps ...*Parameter) (*Registry, error) {
	r := &Registry{
		params: make([]*Parameter, 0, len(ps)),
		index:  make(map[string]int, len(ps)),
	}
	for _, p := range ps {
		if p == nil {
			return nil, core.NewInvalidParameterError("<nil>", "nil parameter")
		}
		if _, dup := r.index[p.Name()]; dup {
			return nil, core.NewInvalidParameterError(p.Name(), "declared twice")
		}
		r.index[p.Name()] = len(r.params)
		r.params = append(r.params, p)
	}
	return r, nil
}

// MustRegistry is NewRegistry for statically known definitions.
func MustRegistry(ps ...*Parameter) *Registry {
	r, err := NewRegistry(ps...)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) Len() int { return len(r.params) }

// Get looks a parameter up by name.
func (r *Registry) Get(name string) (*Parameter, bool) {
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.params[i], true
}

// Position returns the declaration index of name, or -1.
func (r *Registry) Position(name string) int {
	if i, ok := r.index[name]; ok {
		return i
	}
	return -1
}

// All returns every parameter in declaration order.
func (r *Registry) All() []*Parameter {
	return append([]*Parameter(nil), r.params...)
}

// Variable returns the parameters that are sampled (not Fixed), in
// declaration order.
func (r *Registry) Variable() []*Parameter {
	out := make([]*Parameter, 0, len(r.params))
	for _, p := range r.params {
		if !p.IsFixed() {
			out = append(out, p)
		}
	}
	return out
}

// Select resolves names to parameters, keeping declaration order.
func (r *Registry) Select(names []string) ([]*Parameter, error) {
	out := make([]*Parameter, 0, len(names))
	for _, n := range r.Order(names) {
		p, ok := r.Get(n)
		if !ok {
			return nil, &core.UnboundParameterError{Name: n}
		}
		out = append(out, p)
	}
	return out, nil
}

// Order sorts names by declaration order; unknown names go last, sorted
// lexically.
func (r *Registry) Order(names []string) []string {
	out := append([]string(nil), names...)
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := r.Position(out[i]), r.Position(out[j])
		switch {
		case pi < 0 && pj < 0:
			return out[i] < out[j]
		case pi < 0:
			return false
		case pj < 0:
			return true
		}
		return pi < pj
	})
	return out
}

// Defaults maps every parameter name to its default row value.
func (r *Registry) Defaults() map[string]float64 {
	out := make(map[string]float64, len(r.params))
	for _, p := range r.params {
		out[p.Name()] = p.Default()
	}
	return out
}

// Hash fingerprints every definition.
func (r *Registry) Hash() core.RegistryHash {
	desc := make(map[string]string, len(r.params))
	for _, p := range r.params {
		desc[p.Name()] = p.Describe()
	}
	return core.ComputeRegistryHash(desc)
}

func (r *Registry) String() string {
	return fmt.Sprintf("Registry(%d parameters)", len(r.params))
}
