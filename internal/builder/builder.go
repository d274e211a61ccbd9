// Package builder turns an activity graph into one closed-form expression
// tree per impact method.
package builder

import (
	"fmt"
	"sync"

	"github.com/mijafro/fork-lca-algebraic/domain/core"
	"github.com/mijafro/fork-lca-algebraic/domain/expr"
	"github.com/mijafro/fork-lca-algebraic/domain/graph"
	"github.com/mijafro/fork-lca-algebraic/domain/params"
	"github.com/mijafro/fork-lca-algebraic/internal"
)

// inventory is the memo key used for method-independent trees whose leaves
// are activity references.
const inventory core.MethodKey = "\x00inventory"

type memoKey struct {
	id     core.ActivityID
	method core.MethodKey
}

// Builder walks a graph against a parameter registry. Raw (unfixed) trees
// are memoized per (activity, method) and shared between calls, so a
// Builder is cheap to reuse and safe for concurrent use.
type Builder struct {
	graph    *graph.Graph
	registry *params.Registry
	logger   *internal.Logger

	mu   sync.Mutex
	memo map[memoKey]expr.Expr
}

// New creates a builder. A nil logger discards output.
func New(g *graph.Graph, registry *params.Registry, logger *internal.Logger) *Builder {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &Builder{
		graph:    g,
		registry: registry,
		logger:   logger.WithComponent("Builder"),
		memo:     make(map[memoKey]expr.Expr),
	}
}

func (b *Builder) Graph() *graph.Graph { return b.graph }
func (b *Builder) Registry() *params.Registry { return b.registry }

// Build returns the folded expression of root for method. Parameters named
// in fix, and every parameter with a fixed distribution, are replaced by
// their defaults; switches over fixed parameters collapse to the default
// branch.
func (b *Builder) Build(root core.ActivityID, method core.MethodKey, fix ...string) (expr.Expr, error) {
	bindings, err := b.Defaults(fix...)
	if err != nil {
		return nil, err
	}
	return b.BuildBound(root, method, bindings)
}

// BuildBound is Build with explicit bindings instead of defaults.
func (b *Builder) BuildBound(root core.ActivityID, method core.MethodKey, bindings expr.Bindings) (expr.Expr, error) {
	raw, err := b.raw(root, method)
	if err != nil {
		return nil, err
	}
	tree := expr.Fold(expr.Substitute(raw, bindings))
	b.logger.Debug("built %s for %q: %d nodes (raw %d)", b.graph.Name(root), method, expr.NodeCount(tree), expr.NodeCount(raw))
	return tree, nil
}

// BuildAll builds root for every method, failing on the first model error.
func (b *Builder) BuildAll(root core.ActivityID, methods []core.MethodKey, fix ...string) (map[core.MethodKey]expr.Expr, error) {
	out := make(map[core.MethodKey]expr.Expr, len(methods))
	for _, m := range methods {
		tree, err := b.Build(root, m, fix...)
		if err != nil {
			return nil, err
		}
		out[m] = tree
	}
	return out, nil
}

// Defaults returns the bindings fixing the named parameters, plus every
// fixed-distribution parameter, at their defaults. Unknown names fail with
// an UnboundParameterError.
func (b *Builder) Defaults(fix ...string) (expr.Bindings, error) {
	bindings := expr.Bindings{
		Values:  map[string]float64{},
		Choices: map[string]string{},
	}
	bind := func(p *params.Parameter) {
		bindings.Values[p.Name()] = p.Default()
		if p.Kind() == params.Choice {
			bindings.Choices[p.Name()] = p.DefaultChoice()
		}
	}
	for _, p := range b.registry.All() {
		if p.IsFixed() {
			bind(p)
		}
	}
	for _, name := range fix {
		p, ok := b.registry.Get(name)
		if !ok {
			return expr.Bindings{}, &core.UnboundParameterError{Name: name}
		}
		bind(p)
	}
	return bindings, nil
}

// raw returns the unfolded, unfixed tree of id for method.
func (b *Builder) raw(id core.ActivityID, method core.MethodKey) (expr.Expr, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w := &walker{b: b, method: method, visiting: map[core.ActivityID]bool{}}
	return w.visit(id)
}

// walker holds the state of one traversal; b.mu is held for its lifetime.
type walker struct {
	b        *Builder
	method   core.MethodKey
	visiting map[core.ActivityID]bool
	path     []core.ActivityID
}

func (w *walker) visit(id core.ActivityID) (expr.Expr, error) {
	key := memoKey{id: id, method: w.method}
	if cached, ok := w.b.memo[key]; ok {
		return cached, nil
	}

	node, ok := w.b.graph.Node(id)
	if !ok {
		return nil, core.NewInvalidModelError("unknown activity %d", id)
	}
	if w.visiting[id] {
		return nil, w.cycle(id)
	}
	w.visiting[id] = true
	w.path = append(w.path, id)
	defer func() {
		delete(w.visiting, id)
		w.path = w.path[:len(w.path)-1]
	}()

	var (
		out expr.Expr
		err error
	)
	switch node.Kind {
	case graph.Background:
		out, err = w.leaf(node)
	case graph.Foreground:
		out, err = w.foreground(node)
	case graph.Switch:
		out, err = w.switchNode(node)
	default:
		err = core.NewInvalidModelError("activity %q has unknown kind %s", node.Name, node.Kind)
	}
	if err != nil {
		return nil, err
	}
	w.b.memo[key] = out
	return out, nil
}

func (w *walker) leaf(node *graph.Node) (expr.Expr, error) {
	if w.method == inventory {
		return expr.Ref(node.ID, node.Name), nil
	}
	score, ok := node.Score(w.method)
	if !ok {
		return nil, &core.UnknownMethodError{Activity: node.Name, Method: w.method}
	}
	return score, nil
}

func (w *walker) foreground(node *graph.Node) (expr.Expr, error) {
	terms := make([]expr.Expr, 0, len(node.Exchanges))
	for _, ex := range node.Exchanges {
		child, err := w.visit(ex.Child)
		if err != nil {
			return nil, err
		}
		terms = append(terms, expr.Mul(ex.Amount, child))
	}
	if len(terms) == 0 {
		return expr.Const(0), nil
	}
	return expr.Add(terms...), nil
}

func (w *walker) switchNode(node *graph.Node) (expr.Expr, error) {
	p, ok := w.b.registry.Get(node.Param)
	if !ok {
		return nil, core.NewInvalidModelError("switch %q: parameter %q is not declared", node.Name, node.Param)
	}
	if p.Kind() != params.Choice {
		return nil, core.NewInvalidModelError("switch %q: parameter %q is not a choice parameter", node.Name, node.Param)
	}

	cases := make([]expr.Case, 0, len(node.Cases))
	for _, c := range node.Cases {
		if _, ok := p.ChoiceIndex(c.Choice); !ok {
			return nil, core.NewInvalidModelError("switch %q: %q is not a choice of %q", node.Name, c.Choice, p.Name())
		}
		child, err := w.visit(c.Child)
		if err != nil {
			return nil, err
		}
		cases = append(cases, expr.When(c.Choice, expr.Mul(c.Amount, child)))
	}
	return expr.NewSwitch(p.Name(), cases...), nil
}

func (w *walker) cycle(id core.ActivityID) error {
	start := 0
	for i, p := range w.path {
		if p == id {
			start = i
			break
		}
	}
	names := make([]string, 0, len(w.path)-start+1)
	for _, p := range w.path[start:] {
		names = append(names, w.b.graph.Name(p))
	}
	names = append(names, w.b.graph.Name(id))
	return &core.CyclicGraphError{Path: names}
}

// String describes the builder for logs.
func (b *Builder) String() string {
	return fmt.Sprintf("Builder(%d activities, %s)", b.graph.Len(), b.registry)
}
