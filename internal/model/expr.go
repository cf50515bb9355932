package model

import (
	"fmt"
	"math"
	"strings"
)

// Expr is a symbolic expression over variables and parameters.
type Expr interface {
	Eval() float64
	String() string
}

type Const float64

func (c Const) Eval() float64  { return float64(c) }
func (c Const) String() string { return fmt.Sprintf("%g", float64(c)) }

type opKind string

const (
	opAdd opKind = "add"
	opSub opKind = "sub"
	opMul opKind = "mul"
	opDiv opKind = "div"
	opPow opKind = "pow"
	opNeg opKind = "neg"
	opExp opKind = "exp"
	opLog opKind = "log"
	opSum opKind = "sum"
)

var infix = map[opKind]string{opAdd: "+", opSub: "-", opMul: "*", opDiv: "/", opPow: "^"}

type binary struct {
	op   opKind
	l, r Expr
}

func (b *binary) Eval() float64 {
	l, r := b.l.Eval(), b.r.Eval()
	switch b.op {
	case opAdd:
		return l + r
	case opSub:
		return l - r
	case opMul:
		return l * r
	case opDiv:
		return l / r
	case opPow:
		return math.Pow(l, r)
	}
	panic("model: unknown binary op " + string(b.op))
}

func (b *binary) String() string {
	return fmt.Sprintf("(%s %s %s)", b.l, infix[b.op], b.r)
}

type unary struct {
	op opKind
	x  Expr
}

func (u *unary) Eval() float64 {
	x := u.x.Eval()
	switch u.op {
	case opNeg:
		return -x
	case opExp:
		return math.Exp(x)
	case opLog:
		return math.Log(x)
	}
	panic("model: unknown unary op " + string(u.op))
}

func (u *unary) String() string {
	if u.op == opNeg {
		return fmt.Sprintf("-%s", u.x)
	}
	return fmt.Sprintf("%s(%s)", u.op, u.x)
}

type sum struct {
	terms []Expr
}

func (s *sum) Eval() float64 {
	total := 0.0
	for _, t := range s.terms {
		total += t.Eval()
	}
	return total
}

func (s *sum) String() string {
	parts := make([]string, len(s.terms))
	for i, t := range s.terms {
		parts[i] = t.String()
	}
	return "sum(" + strings.Join(parts, ", ") + ")"
}

func Add(a, b Expr) Expr { return &binary{op: opAdd, l: a, r: b} }
func Sub(a, b Expr) Expr { return &binary{op: opSub, l: a, r: b} }
func Mul(a, b Expr) Expr { return &binary{op: opMul, l: a, r: b} }
func Div(a, b Expr) Expr { return &binary{op: opDiv, l: a, r: b} }
func Pow(a, b Expr) Expr { return &binary{op: opPow, l: a, r: b} }
func Neg(x Expr) Expr    { return &unary{op: opNeg, x: x} }
func Exp(x Expr) Expr    { return &unary{op: opExp, x: x} }
func Log(x Expr) Expr    { return &unary{op: opLog, x: x} }

// Sum adds any number of terms. An empty sum evaluates to zero.
func Sum(terms ...Expr) Expr {
	return &sum{terms: append([]Expr(nil), terms...)}
}

// Product multiplies all factors left to right.
func Product(factors ...Expr) Expr {
	if len(factors) == 0 {
		return Const(1)
	}
	out := factors[0]
	for _, f := range factors[1:] {
		out = Mul(out, f)
	}
	return out
}

// Walk visits e and its subexpressions in preorder. Returning false from fn
// skips the children of the current node.
func Walk(e Expr, fn func(Expr) bool) {
	if !fn(e) {
		return
	}
	switch n := e.(type) {
	case *binary:
		Walk(n.l, fn)
		Walk(n.r, fn)
	case *unary:
		Walk(n.x, fn)
	case *sum:
		for _, t := range n.terms {
			Walk(t, fn)
		}
	}
}

// VarsOf returns the distinct variables referenced by e in first-seen order.
func VarsOf(e Expr) []*Var {
	seen := make(map[*Var]bool)
	var out []*Var
	Walk(e, func(x Expr) bool {
		if v, ok := x.(*Var); ok && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
		return true
	})
	return out
}
