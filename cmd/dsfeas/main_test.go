package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/dsfeas/internal/config"
	"github.com/san-kum/dsfeas/internal/feasibility"
)

func TestParseInts(t *testing.T) {
	bf, err := parseInts("2, 3,")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, bf)

	_, err = parseInts("2,x")
	assert.Error(t, err)
}

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments("tf=300, T = 285")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"tf": 300, "T": 285}, got)

	_, err = parseAssignments("tf")
	assert.Error(t, err)
	_, err = parseAssignments("tf=hot")
	assert.Error(t, err)
}

func TestResolveAppliesOverrides(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Layout = "three_stage"
	cfg.Design.Names = []string{"tf", "T"}
	cfg.Design.Lower = []float64{280, 280}
	cfg.Design.Upper = []float64{320, 290}
	cfg.Design.Points = 3
	cfg.Uncertain.Samples = 4
	require.NoError(t, cfg.Validate())

	s, err := resolve(cfg)
	require.NoError(t, err)

	grid, err := s.grid()
	require.NoError(t, err)
	assert.Equal(t, 9, grid.Size())

	p, err := s.samples()
	require.NoError(t, err)
	assert.Len(t, p, 4)
	assert.Len(t, p[0], 4)

	again, err := s.samples()
	require.NoError(t, err)
	assert.Equal(t, p, again, "samples depend only on the seed")

	fc := s.feasibilityConfig()
	assert.Equal(t, feasibility.ThreeStage, fc.Layout)
	assert.Equal(t, []string{"tf", "T"}, fc.InputMap[1])
	assert.Equal(t, []string{"E1", "E2", "k1", "k2"}, fc.InputMap[2])
	assert.Equal(t, []string{"cA", "cB", "cC"}, fc.OutputMap[2])
}

func TestResolveUnknownProblem(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Problem = "pendulum"
	_, err := resolve(cfg)
	assert.Error(t, err)
}
