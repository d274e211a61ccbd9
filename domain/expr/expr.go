// Package expr is the symbolic expression tree produced for an impact
// method. Trees are immutable values built through the constructor
// functions; constant folding is a separate pass (Fold).
package expr

import (
	"github.com/mijafro/fork-lca-algebraic/domain/core"
)

// Expr is one node of an expression tree. The concrete variants are
// *Constant, *ParamRef, *Sum, *Product, *Switch, *BoundedClip and
// *ActivityRef. Nodes may be shared between trees and must not be mutated.
type Expr interface {
	String() string
	node()
}

// Constant is a literal value.
type Constant struct {
	Value float64
}

// ParamRef reads a continuous parameter from the evaluated row.
type ParamRef struct {
	Name string
}

// Sum adds its terms.
type Sum struct {
	Terms []Expr
}

// Product multiplies its factors.
type Product struct {
	Factors []Expr
}

// Case is one branch of a Switch.
type Case struct {
	Choice string
	Value  Expr
}

// Switch selects the case whose Choice matches the current value of the
// discrete parameter Param. No matching case evaluates to 0.
type Switch struct {
	Param string
	Cases []Case
}

// BoundedClip clamps Inner to [Min, Max].
type BoundedClip struct {
	Inner Expr
	Min   float64
	Max   float64
}

// ActivityRef is a placeholder for a background activity whose impact has
// not been substituted yet (see builder.WithImpacts).
type ActivityRef struct {
	ID   core.ActivityID
	Name string
}

func (*Constant) node()    {}
func (*ParamRef) node()    {}
func (*Sum) node()         {}
func (*Product) node()     {}
func (*Switch) node()      {}
func (*BoundedClip) node() {}
func (*ActivityRef) node() {}

// Const returns a constant node.
func Const(v float64) *Constant { return &Constant{Value: v} }

// Param returns a parameter reference.
func Param(name string) *ParamRef { return &ParamRef{Name: name} }

// Add returns the sum of terms without folding.
func Add(terms ...Expr) *Sum {
	return &Sum{Terms: append([]Expr(nil), terms...)}
}

// Mul returns the product of factors without folding.
func Mul(factors ...Expr) *Product {
	return &Product{Factors: append([]Expr(nil), factors...)}
}

// Neg returns -e.
func Neg(e Expr) *Product { return Mul(Const(-1), e) }

// Sub returns a - b.
func Sub(a, b Expr) *Sum { return Add(a, Neg(b)) }

// NewSwitch returns a switch over the discrete parameter param.
func NewSwitch(param string, cases ...Case) *Switch {
	return &Switch{Param: param, Cases: append([]Case(nil), cases...)}
}

// When is shorthand for a switch case.
func When(choice string, value Expr) Case { return Case{Choice: choice, Value: value} }

// Clip returns inner clamped to [lo, hi].
func Clip(inner Expr, lo, hi float64) *BoundedClip {
	return &BoundedClip{Inner: inner, Min: lo, Max: hi}
}

// Ref returns a background activity placeholder.
func Ref(id core.ActivityID, name string) *ActivityRef {
	return &ActivityRef{ID: id, Name: name}
}

// IsConst reports whether e is a Constant with value v.
func IsConst(e Expr, v float64) bool {
	c, ok := e.(*Constant)
	return ok && c.Value == v
}
