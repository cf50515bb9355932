package model

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExprEval(t *testing.T) {
	b := NewBlock("root")
	x := b.Var("x", 0, 10, 2)
	k := b.Param("k", 3)

	tests := []struct {
		name string
		expr Expr
		want float64
	}{
		{"add", Add(x, k), 5},
		{"sub", Sub(x, k), -1},
		{"mul", Mul(x, k), 6},
		{"div", Div(k, x), 1.5},
		{"pow", Pow(x, Const(3)), 8},
		{"neg", Neg(x), -2},
		{"exp", Exp(Const(0)), 1},
		{"log", Log(Const(math.E)), 1},
		{"sum", Sum(x, k, Const(1)), 6},
		{"empty sum", Sum(), 0},
		{"product", Product(x, k, Const(2)), 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.expr.Eval(), 1e-12)
		})
	}

	x.Value = 4
	assert.Equal(t, 12.0, Mul(x, k).Eval())
}

func TestVarsOf(t *testing.T) {
	b := NewBlock("")
	x := b.FreeVar("x", 0)
	y := b.FreeVar("y", 0)
	p := b.Param("p", 1)

	vars := VarsOf(Sum(Mul(x, p), Exp(y), x))
	require.Len(t, vars, 2)
	assert.Same(t, x, vars[0])
	assert.Same(t, y, vars[1])
}

func TestEncodeDecode(t *testing.T) {
	b := NewBlock("root.sub[1]")
	x := b.Var("x", 0, 1, 0.25)
	p := b.Param("p", 2)
	e := Sub(Mul(p, Exp(x)), Sum(Const(1), Neg(x)))

	data, err := json.Marshal(Encode(e))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ref":"root.sub[1].x"`)

	var node Node
	require.NoError(t, json.Unmarshal(data, &node))

	back, err := Decode(node, func(kind, ref string) (Expr, error) {
		switch {
		case kind == "var" && ref == x.QualifiedName():
			return x, nil
		case kind == "param" && ref == p.QualifiedName():
			return p, nil
		}
		return nil, errors.New("unresolved " + ref)
	})
	require.NoError(t, err)
	assert.InDelta(t, e.Eval(), back.Eval(), 1e-12)

	_, err = Decode(Node{Op: "mul", Args: []Node{{Op: "const", Value: 1}}}, nil)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestBlockDeclarations(t *testing.T) {
	b := NewBlock("root")
	b.Var("x", 0, 1, 0)
	b.Param("x", 1)
	require.Error(t, b.Err())
	assert.ErrorIs(t, b.Err(), ErrConfiguration)

	var cfg *ConfigError
	require.True(t, errors.As(b.Err(), &cfg))
	assert.Equal(t, "block root", cfg.Component)

	b = NewBlock("")
	b.Var("y", 2, 1, 0)
	assert.ErrorIs(t, b.Err(), ErrConfiguration)
}

func TestBlockLookup(t *testing.T) {
	b := NewBlock("root")
	x := b.Var("x", 0, 1, 0.5)
	b.Param("k", 7)
	c := b.Quality("q", x, math.Inf(-1), 0.25, 100)
	require.NoError(t, b.Err())

	v, ok := b.Value("k")
	assert.True(t, ok)
	assert.Equal(t, 7.0, v)

	_, ok = b.Ref("q")
	assert.False(t, ok, "constraints are not expression symbols")

	got, ok := b.LookupConstraint("q")
	require.True(t, ok)
	assert.Same(t, c, got)
	assert.Equal(t, 100.0, c.BigM.Value)
	assert.Equal(t, []*Constraint{c}, b.QualityConstraints())
	assert.Equal(t, "root.x", x.QualifiedName())

	ind := b.EnableIndicator()
	assert.Same(t, ind, b.EnableIndicator())
	assert.Equal(t, 0.0, ind.Lower)
	assert.Equal(t, 1.0, ind.Upper)
	assert.False(t, ind.Fixed())
}

func TestConstraintViolation(t *testing.T) {
	b := NewBlock("")
	x := b.FreeVar("x", 0)
	upper := b.Constrain("u", x, math.Inf(-1), 5)
	lower := b.Constrain("l", x, -1, math.Inf(1))
	eq := b.Constrain("e", x, 2, 2)

	tests := []struct {
		value            float64
		upper, lower, eq float64
	}{
		{0, 0, 0, 2},
		{7, 2, 0, 5},
		{-3, 0, 2, 5},
		{2, 0, 0, 0},
	}
	for _, tt := range tests {
		x.Value = tt.value
		assert.Equal(t, tt.upper, upper.Violation(), "upper at %g", tt.value)
		assert.Equal(t, tt.lower, lower.Violation(), "lower at %g", tt.value)
		assert.Equal(t, tt.eq, eq.Violation(), "eq at %g", tt.value)
	}
	assert.True(t, eq.IsEquality())
	assert.False(t, upper.HasLower())

	x.Value = math.NaN()
	assert.True(t, math.IsInf(upper.Violation(), 1))
}

func TestSampler(t *testing.T) {
	assert.NoError(t, NormalSampler(1, 0.1).Validate())
	assert.ErrorIs(t, NormalSampler(1, -1).Validate(), ErrConfiguration)
	assert.ErrorIs(t, UniformSampler(2, 1).Validate(), ErrConfiguration)
	assert.ErrorIs(t, Sampler{Dist: "cauchy"}.Validate(), ErrConfiguration)

	draw := func(s Sampler) []float64 {
		rng := rand.New(rand.NewPCG(7, 7))
		out := make([]float64, 5)
		for i := range out {
			out[i] = s.Draw(rng)
		}
		return out
	}
	n := NormalSampler(10, 1)
	assert.Equal(t, draw(n), draw(n))

	for _, v := range draw(UniformSampler(-1, 1)) {
		assert.GreaterOrEqual(t, v, -1.0)
		assert.LessOrEqual(t, v, 1.0)
	}
	assert.Equal(t, []float64{3, 3, 3, 3, 3}, draw(NormalSampler(3, 0)))

	b := NewBlock("")
	p := b.StochasticParam("k", UniformSampler(2, 4))
	assert.Equal(t, 3.0, p.Value)
	require.NotNil(t, p.Sampler)
}

func TestDiffState(t *testing.T) {
	b := NewBlock("")
	b.DiffState("x", Const(1))
	assert.ErrorIs(t, b.Err(), ErrConfiguration)

	b = NewBlock("root")
	b.TimeGrid([]float64{0, 0.5, 1})
	k := b.Param("k", 2)
	x := b.DiffState("x", Const(1))
	x.SetRate(Neg(Mul(k, x.Now())))
	require.NoError(t, b.Err())
	require.NoError(t, b.CheckStates())

	assert.Len(t, x.Points(), 3)
	assert.Equal(t, "root.x[2]", x.Final().QualifiedName())
	assert.Equal(t, 1.0, x.At(1).Value)
	assert.True(t, x.Now().Fixed())

	x.Now().Value = 3
	assert.Equal(t, -6.0, x.Rate.Eval())

	b.DiffState("y", Const(0))
	assert.ErrorIs(t, b.CheckStates(), ErrConfiguration)

	b.TimeGrid([]float64{0, 0})
	assert.ErrorIs(t, b.Err(), ErrConfiguration)
}
