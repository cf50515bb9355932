// Package design generates design points and uncertain-parameter samples
// for batch feasibility runs.
package design

import (
	"context"
	"math"
	"math/rand/v2"

	"github.com/san-kum/dsfeas/internal/model"
)

// Grid is the cartesian product of one value list per design parameter.
type Grid struct {
	names  []string
	ranges [][]float64
}

func NewGrid(names []string, ranges [][]float64) (*Grid, error) {
	if len(names) == 0 {
		return nil, model.Configf("design", "no design parameters")
	}
	if len(names) != len(ranges) {
		return nil, model.Configf("design", "%d names for %d value ranges", len(names), len(ranges))
	}
	for i, r := range ranges {
		if len(r) == 0 {
			return nil, model.Configf("design", "parameter %q has no values", names[i])
		}
	}
	return &Grid{names: names, ranges: ranges}, nil
}

// FromBounds spaces points values evenly over [lower[i], upper[i]] for each
// parameter.
func FromBounds(names []string, lower, upper []float64, points int) (*Grid, error) {
	if len(lower) != len(names) || len(upper) != len(names) {
		return nil, model.Configf("design", "bounds must have one entry per parameter")
	}
	if points < 1 {
		return nil, model.Configf("design", "points must be at least 1, got %d", points)
	}
	ranges := make([][]float64, len(names))
	for i := range names {
		if lower[i] > upper[i] {
			return nil, model.Configf("design", "parameter %q has bounds out of order [%g, %g]", names[i], lower[i], upper[i])
		}
		ranges[i] = Linspace(lower[i], upper[i], points)
	}
	return NewGrid(names, ranges)
}

// Linspace returns n evenly spaced values from lo to hi inclusive. A single
// point sits at the midpoint.
func Linspace(lo, hi float64, n int) []float64 {
	if n == 1 {
		return []float64{0.5 * (lo + hi)}
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + (hi-lo)*float64(i)/float64(n-1)
	}
	return out
}

func (g *Grid) Names() []string { return g.names }

func (g *Grid) Size() int {
	n := 1
	for _, r := range g.ranges {
		n *= len(r)
	}
	return n
}

// Points enumerates the grid with the last parameter varying fastest.
func (g *Grid) Points() [][]float64 {
	out := make([][]float64, 0, g.Size())
	g.collect(0, make([]float64, 0, len(g.names)), &out)
	return out
}

func (g *Grid) collect(depth int, current []float64, out *[][]float64) {
	if depth == len(g.names) {
		*out = append(*out, append([]float64(nil), current...))
		return
	}
	for _, val := range g.ranges[depth] {
		g.collect(depth+1, append(current, val), out)
	}
}

// Search scores every grid point with eval and returns the highest scoring
// one. Points whose evaluation fails are skipped; ctx cancellation stops the
// search.
func (g *Grid) Search(ctx context.Context, eval func(ctx context.Context, point []float64) (float64, error)) ([]float64, float64, error) {
	best := math.Inf(-1)
	var bestPoint []float64

	for _, pt := range g.Points() {
		if err := ctx.Err(); err != nil {
			return bestPoint, best, err
		}
		score, err := eval(ctx, pt)
		if err != nil {
			continue
		}
		if score > best {
			best = score
			bestPoint = pt
		}
	}
	return bestPoint, best, nil
}

// Samples draws n rows, one column per sampler, from rng.
func Samples(rng *rand.Rand, samplers []model.Sampler, n int) ([][]float64, error) {
	for _, s := range samplers {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	if n < 1 {
		return nil, model.Configf("design", "sample count must be at least 1, got %d", n)
	}
	out := make([][]float64, n)
	for i := range out {
		row := make([]float64, len(samplers))
		for j, s := range samplers {
			row[j] = s.Draw(rng)
		}
		out[i] = row
	}
	return out, nil
}
