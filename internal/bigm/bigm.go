// Package bigm relaxes quality constraints with a big-M term on a feasibility
// indicator. With the indicator at 0 a relaxed row is the original bound; at
// 1 the bound is loosened by M.
package bigm

import (
	"math"

	"github.com/san-kum/dsfeas/internal/model"
)

// Relaxed holds the rows that replace one quality constraint. Either row
// is nil when the source has no bound on that side.
type Relaxed struct {
	Source *model.Constraint
	Upper  *model.Constraint
	Lower  *model.Constraint
}

func (r *Relaxed) Rows() []*model.Constraint {
	var rows []*model.Constraint
	if r.Upper != nil {
		rows = append(rows, r.Upper)
	}
	if r.Lower != nil {
		rows = append(rows, r.Lower)
	}
	return rows
}

// Encode builds body <= upper + M*ind and body >= lower - M*ind for the
// bounds c declares. An equality yields both rows. The rows are returned
// uninstalled; c is left untouched.
func Encode(c *model.Constraint, indicator *model.Var, bigM *model.Param) (*Relaxed, error) {
	if bigM == nil {
		return nil, model.Configf("bigm", "constraint %s has no big-M constant", c.QualifiedName())
	}
	if !(bigM.Value > 0) || math.IsInf(bigM.Value, 1) {
		return nil, model.Configf("bigm", "constraint %s: big-M must be positive and finite, got %g", c.QualifiedName(), bigM.Value)
	}
	if !c.HasLower() && !c.HasUpper() {
		return nil, model.Configf("bigm", "constraint %s has no bound, nothing to relax", c.QualifiedName())
	}

	slack := model.Mul(bigM, indicator)
	r := &Relaxed{Source: c}
	if c.HasUpper() {
		r.Upper = &model.Constraint{
			Name:   c.Name + "_relaxed_ub",
			Body:   model.Sub(c.Body, slack),
			Lower:  math.Inf(-1),
			Upper:  c.Upper,
			Active: true,
		}
	}
	if c.HasLower() {
		r.Lower = &model.Constraint{
			Name:   c.Name + "_relaxed_lb",
			Body:   model.Add(c.Body, slack),
			Lower:  c.Lower,
			Upper:  math.Inf(1),
			Active: true,
		}
	}
	return r, nil
}

// EncodeBlock relaxes every active quality constraint of b against the
// block's pooled indicator, installs the rows and deactivates the sources.
// The indicator is created when missing.
func EncodeBlock(b *model.Block) ([]*Relaxed, error) {
	quality := b.QualityConstraints()
	ind := b.EnableIndicator()
	if err := b.Err(); err != nil {
		return nil, err
	}

	var out []*Relaxed
	for _, c := range quality {
		if !c.Active {
			continue
		}
		r, err := Encode(c, ind, c.BigM)
		if err != nil {
			return nil, err
		}
		for _, row := range r.Rows() {
			if err := b.AddConstraint(row); err != nil {
				return nil, err
			}
		}
		c.Active = false
		out = append(out, r)
	}
	return out, nil
}
