package model

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Var is a decision variable. Lower and Upper are -Inf/+Inf when unbounded.
type Var struct {
	Name  string
	Lower float64
	Upper float64
	Value float64

	fixed bool
	block *Block
}

func (v *Var) Eval() float64 { return v.Value }

func (v *Var) String() string { return v.QualifiedName() }

func (v *Var) QualifiedName() string { return qualify(v.block, v.Name) }

func (v *Var) Block() *Block { return v.block }

func (v *Var) Fixed() bool { return v.fixed }

// Fix pins the variable at value. Solvers must not move a fixed variable.
func (v *Var) Fix(value float64) {
	v.Value = value
	v.fixed = true
}

func (v *Var) Unfix() { v.fixed = false }

// InBounds reports whether the current value lies within [Lower, Upper].
func (v *Var) InBounds() bool {
	return v.Value >= v.Lower && v.Value <= v.Upper
}

// Param is a mutable parameter. Parameters are not decision variables; the
// binder writes their values between solves.
type Param struct {
	Name    string
	Value   float64
	Sampler *Sampler

	block *Block
}

func (p *Param) Eval() float64 { return p.Value }

func (p *Param) String() string { return p.QualifiedName() }

func (p *Param) QualifiedName() string { return qualify(p.block, p.Name) }

func (p *Param) Block() *Block { return p.block }

type Distribution string

const (
	Normal  Distribution = "normal"
	Uniform Distribution = "uniform"
)

// Sampler describes how a stochastic parameter is drawn. For Normal, A and B
// are mean and standard deviation; for Uniform they are the interval bounds.
type Sampler struct {
	Dist Distribution `json:"dist" yaml:"dist"`
	A    float64      `json:"a" yaml:"a"`
	B    float64      `json:"b" yaml:"b"`
}

func NormalSampler(mean, stddev float64) Sampler {
	return Sampler{Dist: Normal, A: mean, B: stddev}
}

func UniformSampler(lo, hi float64) Sampler {
	return Sampler{Dist: Uniform, A: lo, B: hi}
}

func (s Sampler) Validate() error {
	switch s.Dist {
	case Normal:
		if s.B < 0 || math.IsNaN(s.B) {
			return Configf("sampler", "normal stddev must be non-negative, got %g", s.B)
		}
	case Uniform:
		if !(s.A <= s.B) {
			return Configf("sampler", "uniform bounds out of order [%g, %g]", s.A, s.B)
		}
	default:
		return Configf("sampler", "unknown distribution %q", s.Dist)
	}
	return nil
}

// Nominal is the value a stochastic parameter carries before any draw.
func (s Sampler) Nominal() float64 {
	if s.Dist == Uniform {
		return 0.5 * (s.A + s.B)
	}
	return s.A
}

func (s Sampler) Draw(rng *rand.Rand) float64 {
	switch s.Dist {
	case Uniform:
		return distuv.Uniform{Min: s.A, Max: s.B, Src: rng}.Rand()
	default:
		if s.B == 0 {
			return s.A
		}
		return distuv.Normal{Mu: s.A, Sigma: s.B, Src: rng}.Rand()
	}
}

func (s Sampler) String() string {
	return fmt.Sprintf("%s(%g, %g)", s.Dist, s.A, s.B)
}

func qualify(b *Block, name string) string {
	if b == nil || b.name == "" {
		return name
	}
	return b.name + "." + name
}
