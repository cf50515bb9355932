package config

import "sort"

var Presets = map[string]map[string]*Config{
	"reactor": {
		"nominal": {
			Problem: "reactor", Layout: "two_stage",
			Solver:      SolverConfig{Name: "eval"},
			Initializer: InitializerConfig{Enabled: true, Integrator: "rk4", Dt: 0.01, Tolerance: 1e-6},
			Batch:       BatchConfig{Workers: 4},
			Seed:        1,
			Design:      DesignConfig{Points: 11},
			Uncertain:   UncertainConfig{Samples: 20},
		},
		"focused": {
			Problem: "reactor", Layout: "two_stage",
			Solver:      SolverConfig{Name: "eval"},
			Initializer: InitializerConfig{Enabled: true, Integrator: "rk45", Dt: 0.01, Tolerance: 1e-8, Adaptive: true},
			Batch:       BatchConfig{Workers: 4},
			Seed:        7,
			Design: DesignConfig{
				Names:  []string{"tf", "T"},
				Lower:  []float64{270, 275},
				Upper:  []float64{340, 295},
				Points: 8,
			},
			Uncertain: UncertainConfig{Samples: 50},
		},
		"batch": {
			Problem: "reactor", Layout: "three_stage",
			Solver:      SolverConfig{Name: "eval"},
			Initializer: InitializerConfig{Enabled: true, Integrator: "rk4", Dt: 0.01, Tolerance: 1e-6},
			Batch:       BatchConfig{Workers: 1},
			Seed:        1,
			Design:      DesignConfig{Points: 5},
			Uncertain:   UncertainConfig{Samples: 10},
		},
	},
	"decay": {
		"quick": {
			Problem: "decay", Layout: "two_stage",
			Solver:      SolverConfig{Name: "eval"},
			Initializer: InitializerConfig{Enabled: true, Integrator: "rk4", Dt: 0.01, Tolerance: 1e-6},
			Batch:       BatchConfig{Workers: 2},
			Seed:        1,
			Design:      DesignConfig{Points: 11},
			Uncertain:   UncertainConfig{Samples: 10},
		},
		"narrow": {
			Problem: "decay", Layout: "two_stage",
			Solver:      SolverConfig{Name: "eval"},
			Initializer: InitializerConfig{Enabled: true, Integrator: "euler", Dt: 0.001, Tolerance: 1e-6},
			Batch:       BatchConfig{Workers: 1},
			Seed:        3,
			Uncertain: UncertainConfig{
				Names:   []string{"theta"},
				Mean:    []float64{1},
				StdDev:  []float64{0.02},
				Samples: 10,
			},
			Design: DesignConfig{Points: 6},
		},
	},
}

// GetPreset returns a copy of the named preset with output settings taken
// from the defaults, or nil.
func GetPreset(problem, preset string) *Config {
	problemPresets, ok := Presets[problem]
	if !ok {
		return nil
	}
	p, ok := problemPresets[preset]
	if !ok {
		return nil
	}
	cfg := *p
	cfg.Output = DefaultConfig().Output
	return &cfg
}

func ListPresets(problem string) []string {
	problemPresets, ok := Presets[problem]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(problemPresets))
	for name := range problemPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
