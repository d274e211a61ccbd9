package expr

import (
	"sort"

	"github.com/mijafro/fork-lca-algebraic/domain/core"
)

// Bindings fixes parameters to constants. Values binds continuous
// parameters; Choices binds discrete parameters to one of their choices.
type Bindings struct {
	Values  map[string]float64
	Choices map[string]string
}

func (b Bindings) Empty() bool { return len(b.Values) == 0 && len(b.Choices) == 0 }

// Substitute replaces bound parameter references by constants and collapses
// switches over bound parameters to the matching case (0 when no case
// matches). Unchanged subtrees are shared with e. The result is not folded.
func Substitute(e Expr, b Bindings) Expr {
	if b.Empty() {
		return e
	}
	switch n := e.(type) {
	case *ParamRef:
		if v, ok := b.Values[n.Name]; ok {
			return Const(v)
		}
		return n
	case *Sum:
		terms, changed := substituteAll(n.Terms, b)
		if !changed {
			return n
		}
		return &Sum{Terms: terms}
	case *Product:
		factors, changed := substituteAll(n.Factors, b)
		if !changed {
			return n
		}
		return &Product{Factors: factors}
	case *Switch:
		if choice, ok := b.Choices[n.Param]; ok {
			for _, c := range n.Cases {
				if c.Choice == choice {
					return Substitute(c.Value, b)
				}
			}
			return Const(0)
		}
		cases := make([]Case, len(n.Cases))
		changed := false
		for i, c := range n.Cases {
			v := Substitute(c.Value, b)
			changed = changed || v != c.Value
			cases[i] = Case{Choice: c.Choice, Value: v}
		}
		if !changed {
			return n
		}
		return &Switch{Param: n.Param, Cases: cases}
	case *BoundedClip:
		inner := Substitute(n.Inner, b)
		if inner == n.Inner {
			return n
		}
		return Clip(inner, n.Min, n.Max)
	default:
		return e
	}
}

func substituteAll(es []Expr, b Bindings) ([]Expr, bool) {
	out := make([]Expr, len(es))
	changed := false
	for i, e := range es {
		out[i] = Substitute(e, b)
		changed = changed || out[i] != e
	}
	return out, changed
}

// ReplaceActivities rewrites every ActivityRef through fn.
func ReplaceActivities(e Expr, fn func(*ActivityRef) (Expr, error)) (Expr, error) {
	switch n := e.(type) {
	case *ActivityRef:
		return fn(n)
	case *Sum:
		terms, err := replaceAll(n.Terms, fn)
		if err != nil {
			return nil, err
		}
		return &Sum{Terms: terms}, nil
	case *Product:
		factors, err := replaceAll(n.Factors, fn)
		if err != nil {
			return nil, err
		}
		return &Product{Factors: factors}, nil
	case *Switch:
		cases := make([]Case, len(n.Cases))
		for i, c := range n.Cases {
			v, err := ReplaceActivities(c.Value, fn)
			if err != nil {
				return nil, err
			}
			cases[i] = Case{Choice: c.Choice, Value: v}
		}
		return &Switch{Param: n.Param, Cases: cases}, nil
	case *BoundedClip:
		inner, err := ReplaceActivities(n.Inner, fn)
		if err != nil {
			return nil, err
		}
		return Clip(inner, n.Min, n.Max), nil
	default:
		return e, nil
	}
}

func replaceAll(es []Expr, fn func(*ActivityRef) (Expr, error)) ([]Expr, error) {
	out := make([]Expr, len(es))
	for i, e := range es {
		r, err := ReplaceActivities(e, fn)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

// Walk calls visit on e and every descendant, parents first.
func Walk(e Expr, visit func(Expr)) {
	visit(e)
	switch n := e.(type) {
	case *Sum:
		for _, t := range n.Terms {
			Walk(t, visit)
		}
	case *Product:
		for _, f := range n.Factors {
			Walk(f, visit)
		}
	case *Switch:
		for _, c := range n.Cases {
			Walk(c.Value, visit)
		}
	case *BoundedClip:
		Walk(n.Inner, visit)
	}
}

// NodeCount is the structural size of e. Shared subtrees count once per use.
func NodeCount(e Expr) int {
	count := 0
	Walk(e, func(Expr) { count++ })
	return count
}

// Params returns the sorted names of every parameter e depends on,
// including switch parameters.
func Params(e Expr) []string {
	seen := map[string]bool{}
	Walk(e, func(n Expr) {
		switch v := n.(type) {
		case *ParamRef:
			seen[v.Name] = true
		case *Switch:
			seen[v.Param] = true
		}
	})
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Activities returns the distinct background references in e, sorted by id.
func Activities(e Expr) []core.ActivityID {
	seen := map[core.ActivityID]bool{}
	Walk(e, func(n Expr) {
		if r, ok := n.(*ActivityRef); ok {
			seen[r.ID] = true
		}
	})
	out := make([]core.ActivityID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Equal reports structural equality.
func Equal(a, b Expr) bool {
	switch x := a.(type) {
	case *Constant:
		y, ok := b.(*Constant)
		return ok && x.Value == y.Value
	case *ParamRef:
		y, ok := b.(*ParamRef)
		return ok && x.Name == y.Name
	case *ActivityRef:
		y, ok := b.(*ActivityRef)
		return ok && x.ID == y.ID
	case *Sum:
		y, ok := b.(*Sum)
		return ok && equalAll(x.Terms, y.Terms)
	case *Product:
		y, ok := b.(*Product)
		return ok && equalAll(x.Factors, y.Factors)
	case *Switch:
		y, ok := b.(*Switch)
		if !ok || x.Param != y.Param || len(x.Cases) != len(y.Cases) {
			return false
		}
		for i := range x.Cases {
			if x.Cases[i].Choice != y.Cases[i].Choice || !Equal(x.Cases[i].Value, y.Cases[i].Value) {
				return false
			}
		}
		return true
	case *BoundedClip:
		y, ok := b.(*BoundedClip)
		return ok && x.Min == y.Min && x.Max == y.Max && Equal(x.Inner, y.Inner)
	}
	return false
}

func equalAll(a, b []Expr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
