package expr

import "math"

// Fold returns an equivalent tree with constant sub-expressions evaluated:
// nested sums and products are flattened, their constant operands are
// combined into one, neutral elements are dropped, zero products vanish, and
// clips of constants are applied. Non-constant operands keep their order.
func Fold(e Expr) Expr {
	switch n := e.(type) {
	case *Sum:
		return foldSum(n)
	case *Product:
		return foldProduct(n)
	case *Switch:
		return foldSwitch(n)
	case *BoundedClip:
		inner := Fold(n.Inner)
		if c, ok := inner.(*Constant); ok {
			return Const(math.Max(n.Min, math.Min(n.Max, c.Value)))
		}
		if inner == n.Inner {
			return n
		}
		return Clip(inner, n.Min, n.Max)
	default:
		return e
	}
}

func foldSum(s *Sum) Expr {
	acc := 0.0
	rest := make([]Expr, 0, len(s.Terms))

	var collect func(terms []Expr)
	collect = func(terms []Expr) {
		for _, t := range terms {
			switch f := Fold(t).(type) {
			case *Constant:
				acc += f.Value
			case *Sum:
				collect(f.Terms)
			default:
				rest = append(rest, f)
			}
		}
	}
	collect(s.Terms)

	if len(rest) == 0 {
		return Const(acc)
	}
	if acc != 0 {
		rest = append(rest, Const(acc))
	}
	if len(rest) == 1 {
		return rest[0]
	}
	return &Sum{Terms: rest}
}

func foldProduct(p *Product) Expr {
	acc := 1.0
	rest := make([]Expr, 0, len(p.Factors))

	var collect func(factors []Expr)
	collect = func(factors []Expr) {
		for _, f := range factors {
			switch g := Fold(f).(type) {
			case *Constant:
				acc *= g.Value
			case *Product:
				collect(g.Factors)
			default:
				rest = append(rest, g)
			}
		}
	}
	collect(p.Factors)

	if acc == 0 || len(rest) == 0 {
		return Const(acc)
	}
	if acc != 1 {
		rest = append([]Expr{Const(acc)}, rest...)
	}
	if len(rest) == 1 {
		return rest[0]
	}
	return &Product{Factors: rest}
}

func foldSwitch(s *Switch) Expr {
	cases := make([]Case, 0, len(s.Cases))
	for _, c := range s.Cases {
		v := Fold(c.Value)
		if IsConst(v, 0) {
			continue
		}
		cases = append(cases, Case{Choice: c.Choice, Value: v})
	}
	if len(cases) == 0 {
		return Const(0)
	}
	return &Switch{Param: s.Param, Cases: cases}
}
