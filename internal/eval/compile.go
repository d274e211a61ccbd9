// Package eval evaluates expression trees against batches of assignment
// rows, in parallel and with row-order-stable output.
package eval

import (
	"math"

	"github.com/mijafro/fork-lca-algebraic/domain/core"
	"github.com/mijafro/fork-lca-algebraic/domain/expr"
	"github.com/mijafro/fork-lca-algebraic/domain/params"
)

// Rows is a batch of assignment rows with one column per parameter. The
// sampler matrices and table.Table implement it. A discrete parameter's
// value is the index of the choice in declaration order.
type Rows interface {
	Dims() (r, c int)
	At(i, j int) float64
	ColumnNames() []string
}

// rawRower is implemented by row sources that can expose a row without
// copying (mat.Dense, table.Table).
type rawRower interface {
	RawRowView(i int) []float64
}

type evalFunc func(row []float64) float64

// Program is a tree compiled against a fixed column layout. It is
// immutable and safe for concurrent use.
type Program struct {
	tree    expr.Expr
	columns []string
	choices map[int]*params.Parameter
	fn      evalFunc
}

// Compile binds every parameter reference of tree to a column. A
// reference with no column, or a switch over a parameter the registry does
// not declare as a choice, fails with UnboundParameterError.
func Compile(tree expr.Expr, registry *params.Registry, columns []string) (*Program, error) {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}
	c := &compiler{registry: registry, index: index, choices: map[int]*params.Parameter{}}
	fn, err := c.compile(tree)
	if err != nil {
		return nil, err
	}
	return &Program{tree: tree, columns: append([]string(nil), columns...), choices: c.choices, fn: fn}, nil
}

// Tree returns the compiled expression.
func (p *Program) Tree() expr.Expr { return p.tree }

// Columns returns the column layout the program expects.
func (p *Program) Columns() []string { return p.columns }

// Eval evaluates one row laid out as Columns.
func (p *Program) Eval(row []float64) float64 { return p.fn(row) }

type compiler struct {
	registry *params.Registry
	index    map[string]int
	choices  map[int]*params.Parameter // switched columns
}

func (c *compiler) column(name string) (int, error) {
	j, ok := c.index[name]
	if !ok {
		return 0, &core.UnboundParameterError{Name: name}
	}
	return j, nil
}

func (c *compiler) compile(e expr.Expr) (evalFunc, error) {
	switch n := e.(type) {
	case *expr.Constant:
		v := n.Value
		return func([]float64) float64 { return v }, nil

	case *expr.ParamRef:
		j, err := c.column(n.Name)
		if err != nil {
			return nil, err
		}
		return func(row []float64) float64 { return row[j] }, nil

	case *expr.Sum:
		terms, err := c.compileAll(n.Terms)
		if err != nil {
			return nil, err
		}
		if len(terms) == 2 {
			a, b := terms[0], terms[1]
			return func(row []float64) float64 { return a(row) + b(row) }, nil
		}
		return func(row []float64) float64 {
			s := 0.0
			for _, t := range terms {
				s += t(row)
			}
			return s
		}, nil

	case *expr.Product:
		factors, err := c.compileAll(n.Factors)
		if err != nil {
			return nil, err
		}
		if len(factors) == 2 {
			a, b := factors[0], factors[1]
			return func(row []float64) float64 { return a(row) * b(row) }, nil
		}
		return func(row []float64) float64 {
			p := 1.0
			for _, f := range factors {
				p *= f(row)
			}
			return p
		}, nil

	case *expr.Switch:
		return c.compileSwitch(n)

	case *expr.BoundedClip:
		inner, err := c.compile(n.Inner)
		if err != nil {
			return nil, err
		}
		lo, hi := n.Min, n.Max
		return func(row []float64) float64 {
			return math.Max(lo, math.Min(hi, inner(row)))
		}, nil

	case *expr.ActivityRef:
		return nil, core.NewInvalidModelError("unresolved activity reference %s", n)

	default:
		return nil, core.NewInvalidModelError("cannot evaluate %T", e)
	}
}

func (c *compiler) compileAll(es []expr.Expr) ([]evalFunc, error) {
	out := make([]evalFunc, len(es))
	for i, e := range es {
		fn, err := c.compile(e)
		if err != nil {
			return nil, err
		}
		out[i] = fn
	}
	return out, nil
}

// compileSwitch builds a dispatch table indexed by the choice index found in
// the row. Choices without a case yield 0. Rows whose value is not a valid
// choice index are rejected by Run before the dispatch is reached.
func (c *compiler) compileSwitch(n *expr.Switch) (evalFunc, error) {
	j, err := c.column(n.Param)
	if err != nil {
		return nil, err
	}
	if c.registry == nil {
		return nil, &core.UnboundParameterError{Name: n.Param}
	}
	p, ok := c.registry.Get(n.Param)
	if !ok || p.Kind() != params.Choice {
		return nil, &core.UnboundParameterError{Name: n.Param}
	}

	dispatch := make([]evalFunc, len(p.Choices()))
	for _, cs := range n.Cases {
		idx, ok := p.ChoiceIndex(cs.Choice)
		if !ok {
			return nil, core.NewInvalidModelError("switch over %q: unknown choice %q", n.Param, cs.Choice)
		}
		fn, err := c.compile(cs.Value)
		if err != nil {
			return nil, err
		}
		dispatch[idx] = fn
	}
	c.choices[j] = p
	return func(row []float64) float64 {
		v := row[j]
		if !(v >= 0 && v < float64(len(dispatch))) {
			return 0
		}
		if fn := dispatch[int(v)]; fn != nil {
			return fn(row)
		}
		return 0
	}, nil
}
