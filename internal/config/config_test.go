package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/dsfeas/internal/model"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Problem != "reactor" {
		t.Errorf("expected problem reactor, got %s", cfg.Problem)
	}
	if cfg.Initializer.Dt <= 0 {
		t.Error("dt should be positive")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	data := `
problem: decay
layout: three_stage
input_map:
  1: [k]
  2: [theta]
output_map:
  2: [x]
solver:
  name: exec
  io_options:
    command: ./ipopt-bridge
    timeout: 30s
warn_infeasible: true
batch:
  workers: 3
uncertain:
  samples: 7
metrics:
  addr: ":9090"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "decay", cfg.Problem)
	assert.Equal(t, "three_stage", cfg.Layout)
	assert.Equal(t, map[int][]string{1: {"k"}, 2: {"theta"}}, cfg.InputMap)
	assert.Equal(t, []string{"x"}, cfg.OutputMap[2])
	assert.Equal(t, "exec", cfg.Solver.Name)
	assert.Equal(t, "./ipopt-bridge", cfg.Solver.IOOptions["command"])
	assert.Equal(t, "30s", cfg.Solver.IOOptions["timeout"])
	assert.True(t, cfg.WarnInfeasible)
	assert.Equal(t, 3, cfg.Batch.Workers)
	assert.Equal(t, 7, cfg.Uncertain.Samples)

	// untouched keys keep their defaults
	assert.Equal(t, DefaultIntegrator, cfg.Initializer.Integrator)
	assert.Equal(t, DefaultPoints, cfg.Design.Points)
	assert.Equal(t, DefaultOutputPath, cfg.Output.Path)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	cfg := GetPreset("reactor", "focused")
	require.NotNil(t, cfg)
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"unknown layout", func(c *Config) { c.Layout = "one_stage" }},
		{"missing problem", func(c *Config) { c.Problem = "" }},
		{"missing solver", func(c *Config) { c.Solver.Name = "" }},
		{"zero workers", func(c *Config) { c.Batch.Workers = 0 }},
		{"bad integrator", func(c *Config) { c.Initializer.Integrator = "verlet" }},
		{"zero dt", func(c *Config) { c.Initializer.Dt = 0 }},
		{"bad format", func(c *Config) { c.Output.Format = "csv" }},
		{"sqlite without path", func(c *Config) { c.Output.Format = "sqlite"; c.Output.Path = "" }},
		{"negative stage", func(c *Config) { c.InputMap = map[int][]string{-1: {"a"}} }},
		{"empty stage names", func(c *Config) { c.InputMap = map[int][]string{0: {}} }},
		{"bad metrics addr", func(c *Config) { c.Metrics.Addr = "not an address" }},
		{"short design bounds", func(c *Config) {
			c.Design.Names = []string{"tf", "T"}
			c.Design.Lower = []float64{250}
			c.Design.Upper = []float64{350, 300}
		}},
		{"inverted design bounds", func(c *Config) {
			c.Design.Names = []string{"tf"}
			c.Design.Lower = []float64{350}
			c.Design.Upper = []float64{250}
		}},
		{"uncertain mismatch", func(c *Config) {
			c.Uncertain.Names = []string{"E1"}
			c.Uncertain.Mean = []float64{2500}
		}},
		{"negative stddev", func(c *Config) {
			c.Uncertain.Names = []string{"E1"}
			c.Uncertain.Mean = []float64{2500}
			c.Uncertain.StdDev = []float64{-1}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrConfiguration), "got %v", err)
		})
	}
}

func TestSamplers(t *testing.T) {
	cfg := DefaultConfig()
	assert.Nil(t, cfg.Samplers())

	cfg.Uncertain.Names = []string{"E1", "E2"}
	cfg.Uncertain.Mean = []float64{2500, 5000}
	cfg.Uncertain.StdDev = []float64{250, 500}
	s := cfg.Samplers()
	require.Len(t, s, 2)
	assert.Equal(t, 5000.0, s[1].Nominal())
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("reactor", "nominal")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.Design.Points != 11 {
		t.Errorf("expected 11 design points, got %d", cfg.Design.Points)
	}

	cfg.Batch.Workers = 99
	if GetPreset("reactor", "nominal").Batch.Workers == 99 {
		t.Error("preset was modified through the returned copy")
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	if cfg := GetPreset("reactor", "nonexistent"); cfg != nil {
		t.Error("expected nil for nonexistent preset")
	}
	if cfg := GetPreset("nonexistent", "nominal"); cfg != nil {
		t.Error("expected nil for nonexistent problem")
	}
}

func TestPresetsValidate(t *testing.T) {
	for problem := range Presets {
		for _, name := range ListPresets(problem) {
			t.Run(problem+"/"+name, func(t *testing.T) {
				assert.NoError(t, GetPreset(problem, name).Validate())
			})
		}
	}
}

func TestListPresets(t *testing.T) {
	assert.Equal(t, []string{"batch", "focused", "nominal"}, ListPresets("reactor"))
	assert.Nil(t, ListPresets("nonexistent"))
}
