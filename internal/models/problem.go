// Package models is the library of named feasibility problems. A problem
// supplies the stage rules for its design and uncertain stages along with
// the names, bounds and nominal distributions of its inputs.
package models

import (
	"fmt"
	"sort"

	"github.com/san-kum/dsfeas/internal/model"
	"github.com/san-kum/dsfeas/internal/scenario"
)

type Problem struct {
	Name        string
	Description string

	// Design declares the design parameters; Uncertain declares the
	// uncertain parameters, dynamics and quality constraints of one sample.
	Design    scenario.StageRule
	Uncertain scenario.StageRule

	DesignNames []string
	DesignLower []float64
	DesignUpper []float64

	UncertainNames []string
	Samplers       []model.Sampler

	// Outputs are the uncertain-stage symbols worth recording by default.
	Outputs []string
}

var registry = map[string]func() *Problem{
	"reactor": func() *Problem { return NewReactor().Problem() },
	"decay":   func() *Problem { return NewDecay().Problem() },
}

func Get(name string) (*Problem, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown problem: %s (available: %v)", name, List())
	}
	return fn(), nil
}

func List() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// declareDesign is the design stage rule shared by the library problems.
func declareDesign(names []string, lower, upper []float64) scenario.StageRule {
	return func(b *model.Block, anc scenario.Ancestors) error {
		for i, name := range names {
			b.Param(name, 0.5*(lower[i]+upper[i]))
		}
		return nil
	}
}

// declareUncertain declares one stochastic parameter per sampler and returns
// them in order.
func declareUncertain(b *model.Block, names []string, samplers []model.Sampler) []*model.Param {
	out := make([]*model.Param, len(names))
	for i, name := range names {
		out[i] = b.StochasticParam(name, samplers[i])
	}
	return out
}
