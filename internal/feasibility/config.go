package feasibility

import (
	"github.com/san-kum/dsfeas/internal/binding"
	"github.com/san-kum/dsfeas/internal/model"
	"github.com/san-kum/dsfeas/internal/scenario"
)

// Layout chooses how design points and uncertain samples map onto stages.
type Layout string

const (
	// TwoStage puts the design point at the root and one child per sample.
	// Each design point is a separate solve cycle.
	TwoStage Layout = "two_stage"
	// ThreeStage puts every design point below an empty root and the
	// samples below each design point. The whole batch is one cycle.
	ThreeStage Layout = "three_stage"
)

func (l Layout) valid() bool { return l == TwoStage || l == ThreeStage }

// designStage is the stage whose blocks receive a design point.
func (l Layout) designStage() int {
	if l == ThreeStage {
		return 1
	}
	return 0
}

func (l Layout) stages() int {
	if l == ThreeStage {
		return 3
	}
	return 2
}

// Rules are the stage rules of a problem. Root is only used by the
// three-stage layout and may be nil.
type Rules struct {
	Root      scenario.StageRule
	Design    scenario.StageRule
	Uncertain scenario.StageRule
}

func noop(*model.Block, scenario.Ancestors) error { return nil }

func (r Rules) forLayout(l Layout) ([]scenario.StageRule, error) {
	if r.Design == nil || r.Uncertain == nil {
		return nil, model.Configf("feasibility", "design and uncertain stage rules are required")
	}
	if l == TwoStage {
		return []scenario.StageRule{r.Design, r.Uncertain}, nil
	}
	root := r.Root
	if root == nil {
		root = noop
	}
	return []scenario.StageRule{root, r.Design, r.Uncertain}, nil
}

type Config struct {
	Layout  Layout
	Workers int

	// InputMap names, per stage, the parameters that receive the columns
	// of d and p.
	InputMap  binding.InputMap
	OutputMap map[int][]string

	WarnInfeasible bool
	SaveOutput     bool

	// Seed drives the redraw of stochastic parameters that no input map
	// entry binds. Worker i draws from the stream (Seed, i).
	Seed uint64
}

func DefaultConfig() Config {
	return Config{Layout: TwoStage, Workers: 1, Seed: 1}
}

// DefaultInputMap binds design names to the design stage and uncertain
// names to the last stage of layout.
func DefaultInputMap(l Layout, design, uncertain []string) binding.InputMap {
	s := l.designStage()
	return binding.InputMap{s: design, s + 1: uncertain}
}

func (c *Config) validate() error {
	if !c.Layout.valid() {
		return model.Configf("feasibility", "unknown layout %q", c.Layout)
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if len(c.InputMap) == 0 {
		return model.Configf("feasibility", "input map is empty")
	}
	for stage := range c.InputMap {
		if stage < 0 || stage >= c.Layout.stages() {
			return model.Configf("feasibility", "input map stage %d outside %s layout", stage, c.Layout)
		}
	}
	for stage := range c.OutputMap {
		if stage < 0 || stage >= c.Layout.stages() {
			return model.Configf("feasibility", "output map stage %d outside %s layout", stage, c.Layout)
		}
	}
	return nil
}
