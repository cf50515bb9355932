package model

import (
	"fmt"
	"math"
)

// IndicatorName is the local name of the pooled feasibility indicator.
const IndicatorName = "indicator"

// View is the read-only face of a block handed to later stage rules.
type View interface {
	Name() string
	// Ref resolves a variable or parameter declared on the block.
	Ref(name string) (Expr, bool)
	Value(name string) (float64, bool)
	State(name string) (*DiffState, bool)
}

// Block is the model content of one scenario node. Declaration methods record
// the first failure on the block; callers check Err once the rule returns.
type Block struct {
	name string

	vars        []*Var
	params      []*Param
	constraints []*Constraint
	states      []*DiffState
	names       map[string]any

	grid      []float64
	time      *Var
	indicator *Var

	err error
}

func NewBlock(name string) *Block {
	return &Block{name: name, names: make(map[string]any)}
}

func (b *Block) Name() string { return b.name }

func (b *Block) Err() error { return b.err }

func (b *Block) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *Block) claim(name string, sym any) bool {
	if name == "" {
		b.fail(Configf(b.component(), "empty symbol name"))
		return false
	}
	if _, dup := b.names[name]; dup {
		b.fail(Configf(b.component(), "%q declared twice", name))
		return false
	}
	b.names[name] = sym
	return true
}

func (b *Block) component() string {
	if b.name == "" {
		return "block"
	}
	return "block " + b.name
}

// Var declares a variable with bounds and an initial value.
func (b *Block) Var(name string, lower, upper, init float64) *Var {
	v := &Var{Name: name, Lower: lower, Upper: upper, Value: init, block: b}
	if lower > upper {
		b.fail(Configf(b.component(), "variable %q has bounds out of order [%g, %g]", name, lower, upper))
	}
	if b.claim(name, v) {
		b.vars = append(b.vars, v)
	}
	return v
}

// FreeVar declares an unbounded variable.
func (b *Block) FreeVar(name string, init float64) *Var {
	return b.Var(name, math.Inf(-1), math.Inf(1), init)
}

func (b *Block) Param(name string, value float64) *Param {
	p := &Param{Name: name, Value: value, block: b}
	if b.claim(name, p) {
		b.params = append(b.params, p)
	}
	return p
}

// StochasticParam declares a parameter that carries its sampling
// distribution. It starts at the distribution's nominal value.
func (b *Block) StochasticParam(name string, s Sampler) *Param {
	if err := s.Validate(); err != nil {
		b.fail(fmt.Errorf("%s: param %q: %w", b.component(), name, err))
	}
	p := b.Param(name, s.Nominal())
	p.Sampler = &s
	return p
}

// Constrain declares an ordinary constraint lower <= body <= upper. Pass
// math.Inf for an absent bound.
func (b *Block) Constrain(name string, body Expr, lower, upper float64) *Constraint {
	c := &Constraint{Name: name, Body: body, Lower: lower, Upper: upper, Active: true, block: b}
	if b.claim(name, c) {
		b.constraints = append(b.constraints, c)
	}
	return c
}

// Quality declares a constraint whose satisfaction is reported through the
// block's feasibility indicator. bigM bounds how far the body may stray once
// the constraint is relaxed.
func (b *Block) Quality(name string, body Expr, lower, upper, bigM float64) *Constraint {
	c := b.Constrain(name, body, lower, upper)
	c.Quality = true
	c.BigM = b.Param(name+"_bigM", bigM)
	return c
}

// AddConstraint installs an already built constraint, typically a relaxed row.
func (b *Block) AddConstraint(c *Constraint) error {
	if !b.claim(c.Name, c) {
		return b.err
	}
	c.block = b
	b.constraints = append(b.constraints, c)
	return nil
}

// EnableIndicator creates the pooled indicator, bounded [0, 1] with value 0.
// Calling it again returns the existing variable.
func (b *Block) EnableIndicator() *Var {
	if b.indicator == nil {
		b.indicator = b.Var(IndicatorName, 0, 1, 0)
	}
	return b.indicator
}

// Indicator returns the pooled indicator, or nil if the block has none.
func (b *Block) Indicator() *Var { return b.indicator }

func (b *Block) Vars() []*Var { return b.vars }

func (b *Block) Params() []*Param { return b.params }

func (b *Block) Constraints() []*Constraint { return b.constraints }

func (b *Block) QualityConstraints() []*Constraint {
	var out []*Constraint
	for _, c := range b.constraints {
		if c.Quality {
			out = append(out, c)
		}
	}
	return out
}

func (b *Block) LookupVar(name string) (*Var, bool) {
	v, ok := b.names[name].(*Var)
	return v, ok
}

func (b *Block) LookupParam(name string) (*Param, bool) {
	p, ok := b.names[name].(*Param)
	return p, ok
}

func (b *Block) LookupConstraint(name string) (*Constraint, bool) {
	c, ok := b.names[name].(*Constraint)
	return c, ok
}

func (b *Block) Ref(name string) (Expr, bool) {
	switch s := b.names[name].(type) {
	case *Var:
		return s, true
	case *Param:
		return s, true
	}
	return nil, false
}

func (b *Block) Value(name string) (float64, bool) {
	e, ok := b.Ref(name)
	if !ok {
		return 0, false
	}
	return e.Eval(), true
}

func (b *Block) String() string {
	return fmt.Sprintf("%s{vars=%d params=%d constraints=%d states=%d}",
		b.component(), len(b.vars), len(b.params), len(b.constraints), len(b.states))
}
