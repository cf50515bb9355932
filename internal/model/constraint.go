package model

import (
	"fmt"
	"math"
)

// Constraint bounds an expression: Lower <= Body <= Upper. An absent bound
// is -Inf or +Inf; an equality has Lower == Upper.
type Constraint struct {
	Name    string
	Body    Expr
	Lower   float64
	Upper   float64
	Active  bool
	Quality bool
	// BigM is set on quality constraints only.
	BigM *Param

	block *Block
}

func (c *Constraint) QualifiedName() string { return qualify(c.block, c.Name) }

func (c *Constraint) Block() *Block { return c.block }

func (c *Constraint) HasLower() bool { return !math.IsInf(c.Lower, -1) }

func (c *Constraint) HasUpper() bool { return !math.IsInf(c.Upper, 1) }

func (c *Constraint) IsEquality() bool { return c.HasLower() && c.Lower == c.Upper }

// Violation is how far the body currently sits outside its bounds, or zero.
func (c *Constraint) Violation() float64 {
	v := c.Body.Eval()
	if math.IsNaN(v) {
		return math.Inf(1)
	}
	return math.Max(0, math.Max(c.Lower-v, v-c.Upper))
}

func (c *Constraint) String() string {
	switch {
	case c.IsEquality():
		return fmt.Sprintf("%s: %s == %g", c.QualifiedName(), c.Body, c.Upper)
	case c.HasLower() && c.HasUpper():
		return fmt.Sprintf("%s: %g <= %s <= %g", c.QualifiedName(), c.Lower, c.Body, c.Upper)
	case c.HasUpper():
		return fmt.Sprintf("%s: %s <= %g", c.QualifiedName(), c.Body, c.Upper)
	case c.HasLower():
		return fmt.Sprintf("%s: %s >= %g", c.QualifiedName(), c.Body, c.Lower)
	}
	return fmt.Sprintf("%s: %s (free)", c.QualifiedName(), c.Body)
}
