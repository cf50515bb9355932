package solver

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/dsfeas/internal/model"
)

// Evaluator solves problems whose only free variables are feasibility
// indicators, with every other quantity already determined (for instance by
// trajectory initialization). Each constraint must be affine in the single
// indicator it references. The optimum sets every indicator to the smallest
// value its rows allow.
type Evaluator struct {
	// Tolerance is the relative slack granted to every bound.
	Tolerance float64 `mapstructure:"tolerance"`
}

func NewEvaluator() *Evaluator {
	return &Evaluator{Tolerance: 1e-9}
}

func (e *Evaluator) Name() string { return "eval" }

type interval struct {
	lo, hi float64
	by     string
}

func (e *Evaluator) Solve(ctx context.Context, p *model.Problem) (*Result, error) {
	free := make(map[*model.Var]*interval)
	for _, v := range p.Indicators {
		if v != nil && !v.Fixed() {
			free[v] = &interval{lo: v.Lower, hi: v.Upper}
		}
	}

	for _, c := range p.Constraints {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var decision *model.Var
		for _, v := range model.VarsOf(c.Body) {
			if _, ok := free[v]; !ok {
				continue
			}
			if decision != nil {
				return nil, fmt.Errorf("constraint %s references more than one free indicator", c.QualifiedName())
			}
			decision = v
		}

		if decision == nil {
			if viol := c.Violation(); viol > e.slack(c) {
				return &Result{
					Status:  StatusInfeasible,
					Message: fmt.Sprintf("%s violated by %g", c.QualifiedName(), viol),
				}, nil
			}
			continue
		}

		if msg := e.restrict(c, decision, free[decision]); msg != "" {
			return &Result{Status: StatusInfeasible, Message: msg}, nil
		}
	}

	for _, v := range p.Indicators {
		iv, ok := free[v]
		if !ok {
			continue
		}
		if iv.lo > iv.hi+1e-12 {
			return &Result{
				Status:  StatusInfeasible,
				Message: fmt.Sprintf("%s needs %g but is capped at %g (%s)", v.QualifiedName(), iv.lo, iv.hi, iv.by),
			}, nil
		}
		v.Value = iv.lo
	}

	var obj float64
	if p.Objective != nil {
		obj = p.Objective.Eval()
	}
	return &Result{Status: StatusOptimal, Objective: obj}, nil
}

func (e *Evaluator) slack(c *model.Constraint) float64 {
	scale := 1.0
	if c.HasUpper() {
		scale = math.Max(scale, math.Abs(c.Upper))
	}
	if c.HasLower() {
		scale = math.Max(scale, math.Abs(c.Lower))
	}
	return e.Tolerance * scale
}

// restrict narrows iv to the values of v that satisfy c.
func (e *Evaluator) restrict(c *model.Constraint, v *model.Var, iv *interval) string {
	saved := v.Value
	v.Value = 0
	f0 := c.Body.Eval()
	v.Value = 1
	slope := c.Body.Eval() - f0
	v.Value = saved

	if math.IsNaN(f0) || math.IsNaN(slope) {
		return fmt.Sprintf("%s does not evaluate", c.QualifiedName())
	}
	tol := e.slack(c)

	raise := func(lo float64) {
		if lo > iv.lo {
			iv.lo, iv.by = lo, c.Name
		}
	}
	limit := func(hi float64) {
		if hi < iv.hi {
			iv.hi, iv.by = hi, c.Name
		}
	}

	if c.HasUpper() && f0 > c.Upper+tol {
		if slope >= 0 {
			return fmt.Sprintf("%s exceeds its upper bound for every indicator value", c.QualifiedName())
		}
		raise((f0 - c.Upper) / -slope)
	} else if c.HasUpper() && slope > 0 {
		limit((c.Upper + tol - f0) / slope)
	}

	if c.HasLower() && f0 < c.Lower-tol {
		if slope <= 0 {
			return fmt.Sprintf("%s is below its lower bound for every indicator value", c.QualifiedName())
		}
		raise((c.Lower - f0) / slope)
	} else if c.HasLower() && slope < 0 {
		limit((f0 - c.Lower + tol) / -slope)
	}
	return ""
}
