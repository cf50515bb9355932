// Package binding writes design and uncertain-parameter values into the
// parameters of a scenario tree.
package binding

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/san-kum/dsfeas/internal/model"
	"github.com/san-kum/dsfeas/internal/scenario"
)

// InputMap names, per stage, the parameters that receive one value column
// each.
type InputMap map[int][]string

// Values holds, per stage, one row per node of that stage.
type Values map[int][][]float64

type UndefinedBindingError struct {
	Stage int
}

func (e *UndefinedBindingError) Error() string {
	return fmt.Sprintf("%v: values given for stage %d but no parameters are mapped to it", model.ErrConfiguration, e.Stage)
}

func (e *UndefinedBindingError) Is(target error) bool { return target == model.ErrConfiguration }

type ShapeError struct {
	Stage      int
	Row        int // -1 when the row count is wrong
	Want, Have int
}

func (e *ShapeError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("%v: stage %d has %d nodes, got %d value rows", model.ErrConfiguration, e.Stage, e.Want, e.Have)
	}
	return fmt.Sprintf("%v: stage %d row %d has %d columns, want %d", model.ErrConfiguration, e.Stage, e.Row, e.Have, e.Want)
}

func (e *ShapeError) Is(target error) bool { return target == model.ErrConfiguration }

// Bind assigns values[stage][i][j] to parameter inputMap[stage][j] of the
// i-th node of that stage, nodes taken in AtStage order. Stages are bound in
// ascending order; nothing is written for a stage that fails its checks.
func Bind(tree *scenario.Tree, inputMap InputMap, values Values) error {
	stages := make([]int, 0, len(values))
	for s := range values {
		stages = append(stages, s)
	}
	slices.Sort(stages)

	for _, stage := range stages {
		rows := values[stage]
		names, ok := inputMap[stage]
		if !ok {
			return &UndefinedBindingError{Stage: stage}
		}
		nodes, err := tree.AtStage(stage)
		if err != nil {
			return model.Configf("binding", "stage %d: %v", stage, err)
		}
		if len(rows) != len(nodes) {
			return &ShapeError{Stage: stage, Row: -1, Want: len(nodes), Have: len(rows)}
		}

		params := make([][]*model.Param, len(nodes))
		for i, n := range nodes {
			if len(rows[i]) != len(names) {
				return &ShapeError{Stage: stage, Row: i, Want: len(names), Have: len(rows[i])}
			}
			params[i] = make([]*model.Param, len(names))
			for j, name := range names {
				p, ok := n.Block.LookupParam(name)
				if !ok {
					return model.Configf("binding", "stage %d node %s has no parameter %q", stage, n.Index, name)
				}
				params[i][j] = p
			}
		}

		for i := range params {
			for j, p := range params[i] {
				p.Value = rows[i][j]
			}
		}
	}
	return nil
}

// Resample redraws every parameter that was declared with a sampler, in
// preorder, and returns how many were drawn.
func Resample(tree *scenario.Tree, rng *rand.Rand) int {
	drawn := 0
	_ = tree.Walk(func(n *scenario.Node) error {
		drawn += ResampleBlock(n.Block, rng)
		return nil
	})
	return drawn
}

func ResampleBlock(b *model.Block, rng *rand.Rand) int {
	drawn := 0
	for _, p := range b.Params() {
		if p.Sampler != nil {
			p.Value = p.Sampler.Draw(rng)
			drawn++
		}
	}
	return drawn
}
