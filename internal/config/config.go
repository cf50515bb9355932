package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/dsfeas/internal/model"
)

const (
	DefaultProblem    = "reactor"
	DefaultLayout     = "two_stage"
	DefaultSolver     = "eval"
	DefaultIntegrator = "rk4"
	DefaultDt         = 0.01
	DefaultTolerance  = 1e-6
	DefaultSamples    = 20
	DefaultPoints     = 5
	DefaultOutputPath = "dsfeas-records.jsonl.gz"
)

var validate = validator.New()

type Config struct {
	Problem string `yaml:"problem" validate:"required"`
	Layout  string `yaml:"layout" validate:"oneof=two_stage three_stage"`

	// InputMap and OutputMap name parameters per stage. An empty input map
	// binds the design and uncertain names of the problem.
	InputMap  map[int][]string `yaml:"input_map,omitempty" validate:"omitempty,dive,keys,gte=0,endkeys,min=1"`
	OutputMap map[int][]string `yaml:"output_map,omitempty" validate:"omitempty,dive,keys,gte=0,endkeys"`

	Solver         SolverConfig `yaml:"solver"`
	WarnInfeasible bool         `yaml:"warn_infeasible"`
	SaveOutput     bool         `yaml:"save_output"`
	Output         OutputConfig `yaml:"output"`

	Initializer InitializerConfig `yaml:"initializer"`
	Batch       BatchConfig       `yaml:"batch"`
	Seed        uint64            `yaml:"seed"`

	Design    DesignConfig    `yaml:"design"`
	Uncertain UncertainConfig `yaml:"uncertain"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type SolverConfig struct {
	Name string `yaml:"name" validate:"required"`
	// IOOptions is passed to the solver factory untouched.
	IOOptions map[string]any `yaml:"io_options,omitempty"`
}

type OutputConfig struct {
	Path   string `yaml:"path" validate:"required_if=Format sqlite"`
	Format string `yaml:"format" validate:"omitempty,oneof=jsonl sqlite"`
}

type InitializerConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Integrator string  `yaml:"integrator" validate:"oneof=euler rk4 rk45"`
	Dt         float64 `yaml:"dt" validate:"gt=0"`
	Tolerance  float64 `yaml:"tolerance" validate:"gt=0"`
	Adaptive   bool    `yaml:"adaptive"`
}

type BatchConfig struct {
	Workers int `yaml:"workers" validate:"gte=1,lte=256"`
}

// DesignConfig overrides the design bounds of the problem. Points is the
// number of grid points per design dimension.
type DesignConfig struct {
	Names  []string  `yaml:"names,omitempty"`
	Lower  []float64 `yaml:"lower,omitempty"`
	Upper  []float64 `yaml:"upper,omitempty"`
	Points int       `yaml:"points" validate:"gte=1"`
}

// UncertainConfig overrides the normal distributions of the uncertain
// parameters. Samples is the number of draws per evaluation.
type UncertainConfig struct {
	Names   []string  `yaml:"names,omitempty"`
	Mean    []float64 `yaml:"mean,omitempty"`
	StdDev  []float64 `yaml:"stddev,omitempty" validate:"omitempty,dive,gte=0"`
	Samples int       `yaml:"samples" validate:"gte=1"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty" validate:"omitempty,hostname_port"`
}

func DefaultConfig() *Config {
	return &Config{
		Problem: DefaultProblem,
		Layout:  DefaultLayout,
		Solver:  SolverConfig{Name: DefaultSolver},
		Output: OutputConfig{
			Path:   DefaultOutputPath,
			Format: "jsonl",
		},
		Initializer: InitializerConfig{
			Enabled:    true,
			Integrator: DefaultIntegrator,
			Dt:         DefaultDt,
			Tolerance:  DefaultTolerance,
		},
		Batch:     BatchConfig{Workers: 1},
		Seed:      1,
		Design:    DesignConfig{Points: DefaultPoints},
		Uncertain: UncertainConfig{Samples: DefaultSamples},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks field constraints and the consistency of the design and
// uncertain overrides. Failures match model.ErrConfiguration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return model.Configf("config", "%v", err)
	}

	d := c.Design
	if len(d.Names) > 0 || len(d.Lower) > 0 || len(d.Upper) > 0 {
		if len(d.Lower) != len(d.Names) || len(d.Upper) != len(d.Names) {
			return model.Configf("config", "design: %d names, %d lower and %d upper bounds",
				len(d.Names), len(d.Lower), len(d.Upper))
		}
		for i := range d.Names {
			if d.Lower[i] > d.Upper[i] {
				return model.Configf("config", "design %s: lower %g above upper %g",
					d.Names[i], d.Lower[i], d.Upper[i])
			}
		}
	}

	u := c.Uncertain
	if len(u.Names) > 0 || len(u.Mean) > 0 || len(u.StdDev) > 0 {
		if len(u.Mean) != len(u.Names) || len(u.StdDev) != len(u.Names) {
			return model.Configf("config", "uncertain: %d names, %d means and %d standard deviations",
				len(u.Names), len(u.Mean), len(u.StdDev))
		}
	}
	return nil
}

// Samplers returns normal samplers for the uncertain override, or nil when
// the problem's own distributions apply.
func (c *Config) Samplers() []model.Sampler {
	if len(c.Uncertain.Names) == 0 {
		return nil
	}
	out := make([]model.Sampler, len(c.Uncertain.Names))
	for i := range out {
		out[i] = model.NormalSampler(c.Uncertain.Mean[i], c.Uncertain.StdDev[i])
	}
	return out
}
