package models

import (
	"math"

	"github.com/san-kum/dsfeas/internal/model"
	"github.com/san-kum/dsfeas/internal/scenario"
)

// Reactor is an isothermal batch reactor running 2A -> B -> C in normalized
// time tau in [0, 1]. The batch time tf and temperature T are designed; the
// activation energies and pre-exponential factors are uncertain.
//
//	dcA/dtau = tf * (-2 k1 exp(-E1/(R T)) cA^2)
//	dcB/dtau = tf * (k1 exp(-E1/(R T)) cA^2 - k2 exp(-E2/(R T)) cB)
//	dcC/dtau = tf * k2 exp(-E2/(R T)) cB
//
// Quality: the final B fraction must reach Purity, and the value of B must
// cover feed and operating cost.
type Reactor struct {
	CA0        float64
	R          float64
	Purity     float64
	GridPoints int

	PurityBigM float64
	ProfitBigM float64
}

func NewReactor() *Reactor {
	return &Reactor{
		CA0:        2000,
		R:          1,
		Purity:     0.8,
		GridPoints: 21,
		PurityBigM: 1e3,
		ProfitBigM: 1e5,
	}
}

func (r *Reactor) Problem() *Problem {
	designNames := []string{"tf", "T"}
	lower := []float64{250, 250}
	upper := []float64{350, 300}
	uncertainNames := []string{"E1", "E2", "k1", "k2"}
	samplers := []model.Sampler{
		model.NormalSampler(2.5e3, 2.5e2),
		model.NormalSampler(5e3, 5e2),
		model.NormalSampler(6.409e-2, 6.409e-3),
		model.NormalSampler(9.938e3, 9.938e2),
	}

	return &Problem{
		Name:           "reactor",
		Description:    "batch reactor 2A -> B -> C with purity and profit constraints",
		Design:         declareDesign(designNames, lower, upper),
		Uncertain:      r.uncertainRule(uncertainNames, samplers),
		DesignNames:    designNames,
		DesignLower:    lower,
		DesignUpper:    upper,
		UncertainNames: uncertainNames,
		Samplers:       samplers,
		Outputs:        []string{"cA", "cB", "cC"},
	}
}

func (r *Reactor) grid() []float64 {
	g := make([]float64, r.GridPoints)
	for i := range g {
		g[i] = float64(i) / float64(r.GridPoints-1)
	}
	return g
}

func (r *Reactor) uncertainRule(names []string, samplers []model.Sampler) scenario.StageRule {
	return func(b *model.Block, anc scenario.Ancestors) error {
		tf, err := anc.Ref("tf")
		if err != nil {
			return err
		}
		T, err := anc.Ref("T")
		if err != nil {
			return err
		}
		p := declareUncertain(b, names, samplers)
		E1, E2, k1, k2 := p[0], p[1], p[2], p[3]

		RT := model.Mul(model.Const(r.R), T)
		rate1 := model.Mul(k1, model.Exp(model.Neg(model.Div(E1, RT))))
		rate2 := model.Mul(k2, model.Exp(model.Neg(model.Div(E2, RT))))

		cA0 := b.Param("cA0", r.CA0)
		b.TimeGrid(r.grid())
		cA := b.DiffState("cA", cA0)
		cB := b.DiffState("cB", model.Const(0))
		cC := b.DiffState("cC", model.Const(0))

		r1 := model.Mul(rate1, model.Pow(cA.Now(), model.Const(2)))
		r2 := model.Mul(rate2, cB.Now())
		cA.SetRate(model.Mul(tf, model.Mul(model.Const(-2), r1)))
		cB.SetRate(model.Mul(tf, model.Sub(r1, r2)))
		cC.SetRate(model.Mul(tf, r2))

		// 1000 * (Purity - (cB + eps)/(cA + cB + cC + eps)) <= 0
		eps := model.Const(1e-2)
		total := model.Sum(cA.Final(), cB.Final(), cC.Final(), eps)
		fraction := model.Div(model.Add(cB.Final(), eps), total)
		b.Quality("purity",
			model.Mul(model.Const(1000), model.Sub(model.Const(r.Purity), fraction)),
			math.Inf(-1), 0, r.PurityBigM)

		// -(100 cB(1) - 20 cA(0) - 128 (tf + 30)) / 1000 <= 0
		profit := model.Sum(
			model.Mul(model.Const(100), cB.Final()),
			model.Mul(model.Const(-20), cA.At(0)),
			model.Mul(model.Const(-128), model.Add(tf, model.Const(30))),
		)
		b.Quality("profit",
			model.Div(model.Neg(profit), model.Const(1000)),
			math.Inf(-1), 0, r.ProfitBigM)
		return nil
	}
}
