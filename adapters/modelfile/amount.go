package modelfile

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"

	"github.com/mijafro/fork-lca-algebraic/domain/expr"
)

// ParseAmount parses an arithmetic expression written in Go syntax:
// numbers, parameter names, + - * /, parentheses and clip(x, lo, hi).
// Divisors and clip bounds must reduce to constants.
func ParseAmount(src string) (expr.Expr, error) {
	node, err := parser.ParseExpr(src)
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", src, err)
	}
	e, err := convert(node)
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", src, err)
	}
	return expr.Fold(e), nil
}

func convert(node ast.Expr) (expr.Expr, error) {
	switch n := node.(type) {
	case *ast.BasicLit:
		if n.Kind != token.INT && n.Kind != token.FLOAT {
			return nil, fmt.Errorf("unsupported literal %s", n.Value)
		}
		v, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return nil, err
		}
		return expr.Const(v), nil

	case *ast.Ident:
		return expr.Param(n.Name), nil

	case *ast.ParenExpr:
		return convert(n.X)

	case *ast.UnaryExpr:
		x, err := convert(n.X)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case token.ADD:
			return x, nil
		case token.SUB:
			return expr.Neg(x), nil
		}
		return nil, fmt.Errorf("unsupported operator %s", n.Op)

	case *ast.BinaryExpr:
		x, err := convert(n.X)
		if err != nil {
			return nil, err
		}
		y, err := convert(n.Y)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case token.ADD:
			return expr.Add(x, y), nil
		case token.SUB:
			return expr.Sub(x, y), nil
		case token.MUL:
			return expr.Mul(x, y), nil
		case token.QUO:
			d, err := constant(y, "divisor")
			if err != nil {
				return nil, err
			}
			if d == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			return expr.Mul(x, expr.Const(1/d)), nil
		}
		return nil, fmt.Errorf("unsupported operator %s", n.Op)

	case *ast.CallExpr:
		fn, ok := n.Fun.(*ast.Ident)
		if !ok || fn.Name != "clip" {
			return nil, fmt.Errorf("unsupported call %s", exprString(n.Fun))
		}
		if len(n.Args) != 3 {
			return nil, fmt.Errorf("clip takes 3 arguments, got %d", len(n.Args))
		}
		inner, err := convert(n.Args[0])
		if err != nil {
			return nil, err
		}
		bounds := [2]float64{}
		for i, arg := range n.Args[1:] {
			e, err := convert(arg)
			if err != nil {
				return nil, err
			}
			if bounds[i], err = constant(e, "clip bound"); err != nil {
				return nil, err
			}
		}
		if bounds[0] > bounds[1] {
			return nil, fmt.Errorf("clip bounds %g > %g", bounds[0], bounds[1])
		}
		return expr.Clip(inner, bounds[0], bounds[1]), nil
	}
	return nil, fmt.Errorf("unsupported syntax %T", node)
}

func constant(e expr.Expr, what string) (float64, error) {
	c, ok := expr.Fold(e).(*expr.Constant)
	if !ok {
		return 0, fmt.Errorf("%s %s is not a constant", what, e)
	}
	return c.Value, nil
}

func exprString(e ast.Expr) string {
	if id, ok := e.(*ast.Ident); ok {
		return id.Name
	}
	return fmt.Sprintf("%T", e)
}
