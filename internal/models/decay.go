package models

import (
	"math"

	"github.com/san-kum/dsfeas/internal/model"
	"github.com/san-kum/dsfeas/internal/scenario"
)

// Decay is first-order decay dx/dt = -k theta x on [0, 1]. The rate k is
// designed, theta is an uncertain multiplier, and x(1) must stay below
// Limit.
type Decay struct {
	X0         float64
	Limit      float64
	GridPoints int
	BigM       float64
}

func NewDecay() *Decay {
	return &Decay{X0: 1, Limit: 0.3, GridPoints: 11, BigM: 10}
}

func (d *Decay) Problem() *Problem {
	designNames := []string{"k"}
	lower := []float64{0.5}
	upper := []float64{3}
	uncertainNames := []string{"theta"}
	samplers := []model.Sampler{model.NormalSampler(1, 0.1)}

	return &Problem{
		Name:           "decay",
		Description:    "first-order decay with an uncertain rate multiplier",
		Design:         declareDesign(designNames, lower, upper),
		Uncertain:      d.uncertainRule(uncertainNames, samplers),
		DesignNames:    designNames,
		DesignLower:    lower,
		DesignUpper:    upper,
		UncertainNames: uncertainNames,
		Samplers:       samplers,
		Outputs:        []string{"x"},
	}
}

func (d *Decay) uncertainRule(names []string, samplers []model.Sampler) scenario.StageRule {
	return func(b *model.Block, anc scenario.Ancestors) error {
		k, err := anc.Ref("k")
		if err != nil {
			return err
		}
		theta := declareUncertain(b, names, samplers)[0]

		grid := make([]float64, d.GridPoints)
		for i := range grid {
			grid[i] = float64(i) / float64(d.GridPoints-1)
		}
		b.TimeGrid(grid)

		x := b.DiffState("x", model.Const(d.X0))
		x.SetRate(model.Neg(model.Product(k, theta, x.Now())))
		b.Quality("residual", x.Final(), math.Inf(-1), d.Limit, d.BigM)
		return nil
	}
}
