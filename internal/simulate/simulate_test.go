package simulate

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/dsfeas/internal/binding"
	"github.com/san-kum/dsfeas/internal/model"
	"github.com/san-kum/dsfeas/internal/scenario"
)

// decayRules: root declares x0, leaves declare k and dx/dt = -k x on [0, 1].
func decayRules() []scenario.StageRule {
	return []scenario.StageRule{
		func(b *model.Block, anc scenario.Ancestors) error {
			b.Param("x0", 2)
			return nil
		},
		func(b *model.Block, anc scenario.Ancestors) error {
			x0, err := anc.Ref("x0")
			if err != nil {
				return err
			}
			b.TimeGrid([]float64{0, 0.25, 0.5, 1})
			k := b.Param("k", 1)
			x := b.DiffState("x", x0)
			x.SetRate(model.Neg(model.Mul(k, x.Now())))
			b.Quality("end", x.Final(), math.Inf(-1), 0.5, 10)
			return nil
		},
	}
}

func TestInitialize(t *testing.T) {
	rules := decayRules()
	tree, err := scenario.Build(rules, []int{3})
	require.NoError(t, err)
	require.NoError(t, binding.Bind(tree,
		binding.InputMap{0: {"x0"}, 1: {"k"}},
		binding.Values{0: {{3}}, 1: {{0.5}, {1}, {2}}}))

	in, err := New(rules, DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, in.Initialize(context.Background(), tree))

	grid := []float64{0, 0.25, 0.5, 1}
	for i, k := range []float64{0.5, 1, 2} {
		s, ok := tree.Final()[i].Block.State("x")
		require.True(t, ok)
		for j, tm := range grid {
			assert.InDelta(t, 3*math.Exp(-k*tm), s.At(j).Value, 1e-6, "k=%g t=%g", k, tm)
			assert.False(t, s.At(j).Fixed())
		}
	}
}

func TestInitializeAdaptiveEuler(t *testing.T) {
	rules := decayRules()
	tree, err := scenario.Build(rules, []int{1})
	require.NoError(t, err)

	in, err := New(rules, Options{Integrator: "euler", Dt: 0.05, Tolerance: 1e-7, Adaptive: true})
	require.NoError(t, err)
	require.NoError(t, in.Initialize(context.Background(), tree))

	s, _ := tree.Final()[0].Block.State("x")
	assert.InDelta(t, 2*math.Exp(-1), s.Final().Value, 1e-3)
}

func TestTrajectories(t *testing.T) {
	rules := decayRules()
	tree, err := scenario.Build(rules, []int{2})
	require.NoError(t, err)

	in, err := New(rules, Options{Integrator: "rk45", Dt: 0.1})
	require.NoError(t, err)
	trajs, err := in.Trajectories(context.Background(), tree)
	require.NoError(t, err)
	require.Len(t, trajs, 2)

	tr := trajs[1]
	assert.Equal(t, scenario.Index{1}, tr.Index)
	assert.Equal(t, []string{"x"}, tr.Names)
	assert.Len(t, tr.Times, 11)
	assert.InDelta(t, 2*math.Exp(-0.55), tr.Sample(0, 0.55), 5e-3)

	s, _ := tree.Final()[1].Block.State("x")
	assert.Equal(t, 2.0, s.Final().Value, "Trajectories must not write into the tree")
}

func TestNewErrors(t *testing.T) {
	static := []scenario.StageRule{
		func(b *model.Block, anc scenario.Ancestors) error { return nil },
		func(b *model.Block, anc scenario.Ancestors) error {
			b.Param("p", 1)
			return nil
		},
	}
	_, err := New(static, DefaultOptions())
	assert.ErrorIs(t, err, model.ErrConfiguration)

	_, err = New(decayRules(), Options{Integrator: "verlet", Dt: 0.1})
	assert.ErrorIs(t, err, model.ErrConfiguration)

	_, err = New(decayRules(), Options{Integrator: "rk4", Dt: 0})
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestInitializeCanceled(t *testing.T) {
	rules := decayRules()
	tree, err := scenario.Build(rules, []int{1})
	require.NoError(t, err)
	in, err := New(rules, DefaultOptions())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, in.Initialize(ctx, tree), context.Canceled)
}

func TestInitializeRejectsSharedStates(t *testing.T) {
	rules := []scenario.StageRule{
		func(b *model.Block, anc scenario.Ancestors) error {
			b.TimeGrid([]float64{0, 0.5, 1})
			x := b.DiffState("x", model.Const(1))
			x.SetRate(model.Neg(x.Now()))
			return nil
		},
		func(b *model.Block, anc scenario.Ancestors) error {
			k := b.Param("k", 1)
			b.Quality("k", k, math.Inf(-1), 2, 10)
			return nil
		},
	}
	tree, err := scenario.Build(rules, []int{2})
	require.NoError(t, err)
	in, err := New(rules, DefaultOptions())
	require.NoError(t, err)

	root, err := tree.Scenario(scenario.Index{})
	require.NoError(t, err)
	s, _ := root.Block.State("x")
	before := s.Final().Value

	err = in.Initialize(context.Background(), tree)
	assert.ErrorIs(t, err, model.ErrConfiguration)
	assert.Equal(t, before, s.Final().Value)
}
