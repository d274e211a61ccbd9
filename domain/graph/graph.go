// Package graph holds the activity graph as an arena of nodes addressed by
// core.ActivityID. Parents reference children by id, so shared
// sub-activities are stored once. Cycles are allowed at construction time
// and rejected when an expression is built.
package graph

import (
	"fmt"
	"sort"

	"github.com/mijafro/fork-lca-algebraic/domain/core"
	"github.com/mijafro/fork-lca-algebraic/domain/expr"
)

// Kind is the role of an activity.
type Kind int

const (
	Foreground Kind = iota
	Background
	Switch
)

func (k Kind) String() string {
	switch k {
	case Foreground:
		return "foreground"
	case Background:
		return "background"
	case Switch:
		return "switch"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Exchange is an edge from a foreground activity to a child with a
// (possibly parametrized) amount.
type Exchange struct {
	Child  core.ActivityID
	Amount expr.Expr
}

// SwitchCase is one alternative of a switch activity.
type SwitchCase struct {
	Choice string
	Child  core.ActivityID
	Amount expr.Expr
}

// Node is one activity.
type Node struct {
	ID   core.ActivityID
	Name string
	Kind Kind

	// Foreground
	Exchanges []Exchange

	// Background: score per impact method, constant or parametrized.
	Scores map[core.MethodKey]expr.Expr

	// Switch
	Param string
	Cases []SwitchCase
}

// Score returns the background score for method.
func (n *Node) Score(method core.MethodKey) (expr.Expr, bool) {
	s, ok := n.Scores[method]
	return s, ok
}

// Methods returns the methods a background node is scored for, sorted.
func (n *Node) Methods() []core.MethodKey {
	out := make([]core.MethodKey, 0, len(n.Scores))
	for m := range n.Scores {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Graph is the activity arena.
type Graph struct {
	nodes  []*Node
	byName map[string]core.ActivityID
}

func New() *Graph {
	return &Graph{byName: make(map[string]core.ActivityID)}
}

func (g *Graph) Len() int { return len(g.nodes) }

// Node returns the node for id.
func (g *Graph) Node(id core.ActivityID) (*Node, bool) {
	if id < 0 || int(id) >= len(g.nodes) {
		return nil, false
	}
	return g.nodes[id], true
}

// Lookup finds a node by name.
func (g *Graph) Lookup(name string) (core.ActivityID, bool) {
	id, ok := g.byName[name]
	return id, ok
}

// Name returns the name of id, or its number for unknown ids.
func (g *Graph) Name(id core.ActivityID) string {
	if n, ok := g.Node(id); ok {
		return n.Name
	}
	return fmt.Sprintf("#%d", id)
}

func (g *Graph) add(n *Node) (core.ActivityID, error) {
	if n.Name == "" {
		return core.NoActivity, core.NewInvalidModelError("activity name cannot be empty")
	}
	if _, dup := g.byName[n.Name]; dup {
		return core.NoActivity, core.NewInvalidModelError("activity %q declared twice", n.Name)
	}
	n.ID = core.ActivityID(len(g.nodes))
	g.nodes = append(g.nodes, n)
	g.byName[n.Name] = n.ID
	return n.ID, nil
}

// AddForeground declares a user-modeled activity. Its exchanges are added
// with AddExchange.
func (g *Graph) AddForeground(name string) (core.ActivityID, error) {
	return g.add(&Node{Name: name, Kind: Foreground})
}

// AddBackground declares a leaf activity with a fixed score per method.
func (g *Graph) AddBackground(name string, scores map[core.MethodKey]float64) (core.ActivityID, error) {
	exprs := make(map[core.MethodKey]expr.Expr, len(scores))
	for m, v := range scores {
		exprs[m] = expr.Const(v)
	}
	return g.AddParametricBackground(name, exprs)
}

// AddParametricBackground declares a leaf whose scores are expressions over
// parameters.
func (g *Graph) AddParametricBackground(name string, scores map[core.MethodKey]expr.Expr) (core.ActivityID, error) {
	copied := make(map[core.MethodKey]expr.Expr, len(scores))
	for m, s := range scores {
		if s == nil {
			return core.NoActivity, core.NewInvalidModelError("activity %q: nil score for %q", name, m)
		}
		copied[m] = s
	}
	return g.add(&Node{Name: name, Kind: Background, Scores: copied})
}

// AddSwitch declares an activity selecting one of cases by the discrete
// parameter param.
func (g *Graph) AddSwitch(name, param string, cases ...SwitchCase) (core.ActivityID, error) {
	if param == "" {
		return core.NoActivity, core.NewInvalidModelError("switch %q needs a parameter", name)
	}
	seen := make(map[string]bool, len(cases))
	normalized := make([]SwitchCase, len(cases))
	for i, c := range cases {
		if seen[c.Choice] {
			return core.NoActivity, core.NewInvalidModelError("switch %q: choice %q listed twice", name, c.Choice)
		}
		seen[c.Choice] = true
		if _, ok := g.Node(c.Child); !ok {
			return core.NoActivity, core.NewInvalidModelError("switch %q: unknown child %d", name, c.Child)
		}
		if c.Amount == nil {
			c.Amount = expr.Const(1)
		}
		normalized[i] = c
	}
	return g.add(&Node{Name: name, Kind: Switch, Param: param, Cases: normalized})
}

// AddExchange links a foreground parent to child with amount. A nil amount
// means 1.
func (g *Graph) AddExchange(parent, child core.ActivityID, amount expr.Expr) error {
	p, ok := g.Node(parent)
	if !ok {
		return core.NewInvalidModelError("unknown parent activity %d", parent)
	}
	if p.Kind != Foreground {
		return core.NewInvalidModelError("activity %q is %s, only foreground activities have exchanges", p.Name, p.Kind)
	}
	if _, ok := g.Node(child); !ok {
		return core.NewInvalidModelError("unknown child activity %d", child)
	}
	if amount == nil {
		amount = expr.Const(1)
	}
	p.Exchanges = append(p.Exchanges, Exchange{Child: child, Amount: amount})
	return nil
}

// Children returns the ids a node points to, in declaration order.
func (n *Node) Children() []core.ActivityID {
	switch n.Kind {
	case Foreground:
		out := make([]core.ActivityID, len(n.Exchanges))
		for i, e := range n.Exchanges {
			out[i] = e.Child
		}
		return out
	case Switch:
		out := make([]core.ActivityID, len(n.Cases))
		for i, c := range n.Cases {
			out[i] = c.Child
		}
		return out
	}
	return nil
}

// Methods returns every method scored by at least one background node,
// sorted.
func (g *Graph) Methods() []core.MethodKey {
	seen := map[core.MethodKey]bool{}
	for _, n := range g.nodes {
		for m := range n.Scores {
			seen[m] = true
		}
	}
	out := make([]core.MethodKey, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
