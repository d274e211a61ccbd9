package builder

import (
	"github.com/mijafro/fork-lca-algebraic/domain/core"
	"github.com/mijafro/fork-lca-algebraic/domain/expr"
	"github.com/mijafro/fork-lca-algebraic/domain/graph"
)

// BuildInventory returns the method-independent tree of root: amounts and
// switches are expanded but background activities stay as ActivityRef
// leaves. Fixing works as in Build.
func (b *Builder) BuildInventory(root core.ActivityID, fix ...string) (expr.Expr, error) {
	bindings, err := b.Defaults(fix...)
	if err != nil {
		return nil, err
	}
	raw, err := b.raw(root, inventory)
	if err != nil {
		return nil, err
	}
	return expr.Fold(expr.Substitute(raw, bindings)), nil
}

// WithImpacts replaces every background reference of tree by its score, for
// each method at once, and folds the results. A reference without a score
// for one of the methods fails with UnknownMethodError.
func WithImpacts(tree expr.Expr, g *graph.Graph, methods []core.MethodKey) (map[core.MethodKey]expr.Expr, error) {
	out := make(map[core.MethodKey]expr.Expr, len(methods))
	for _, m := range methods {
		method := m
		replaced, err := expr.ReplaceActivities(tree, func(ref *expr.ActivityRef) (expr.Expr, error) {
			node, ok := g.Node(ref.ID)
			if !ok {
				return nil, core.NewInvalidModelError("unknown activity %s", ref)
			}
			score, ok := node.Score(method)
			if !ok {
				return nil, &core.UnknownMethodError{Activity: node.Name, Method: method}
			}
			return score, nil
		})
		if err != nil {
			return nil, err
		}
		out[method] = expr.Fold(replaced)
	}
	return out, nil
}

// ImpactsWithDefaults is WithImpacts after fixing the named parameters (and
// every fixed-distribution parameter) at their defaults.
func (b *Builder) ImpactsWithDefaults(tree expr.Expr, methods []core.MethodKey, fix ...string) (map[core.MethodKey]expr.Expr, error) {
	bindings, err := b.Defaults(fix...)
	if err != nil {
		return nil, err
	}
	trees, err := WithImpacts(tree, b.graph, methods)
	if err != nil {
		return nil, err
	}
	for m, t := range trees {
		trees[m] = expr.Fold(expr.Substitute(t, bindings))
	}
	return trees, nil
}
