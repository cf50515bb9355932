// Package output harvests solved values from a scenario tree and persists
// one record per solve cycle.
package output

import (
	"math"
	"sort"

	"github.com/san-kum/dsfeas/internal/model"
	"github.com/san-kum/dsfeas/internal/scenario"
)

// Snapshot holds the values of a solved tree keyed by qualified name.
// Non-finite values cannot be encoded and are listed by name instead.
type Snapshot struct {
	Objective  float64            `json:"objective"`
	Indicators []float64          `json:"indicators"`
	Values     map[string]float64 `json:"values,omitempty"`
	NonFinite  []string           `json:"non_finite,omitempty"`
}

func (s *Snapshot) put(name string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		s.NonFinite = append(s.NonFinite, name)
		return
	}
	s.Values[name] = v
}

// Collect reads the objective, the indicators and the named symbols of each
// stage. A name may refer to a variable, a parameter or a differential
// state, which contributes every trajectory point. An empty output map
// collects every variable and parameter in the tree.
func Collect(tree *scenario.Tree, outputMap map[int][]string) (*Snapshot, error) {
	snap := &Snapshot{Values: make(map[string]float64)}
	if obj := tree.Objective(); obj != nil {
		snap.Objective = obj.Eval()
	}
	for _, v := range tree.Indicators() {
		snap.Indicators = append(snap.Indicators, v.Value)
	}

	if len(outputMap) == 0 {
		_ = tree.Walk(func(n *scenario.Node) error {
			for _, v := range n.Block.Vars() {
				snap.put(v.QualifiedName(), v.Value)
			}
			for _, p := range n.Block.Params() {
				snap.put(p.QualifiedName(), p.Value)
			}
			return nil
		})
		return snap, nil
	}

	stages := make([]int, 0, len(outputMap))
	for s := range outputMap {
		stages = append(stages, s)
	}
	sort.Ints(stages)

	for _, stage := range stages {
		nodes, err := tree.AtStage(stage)
		if err != nil {
			return nil, model.Configf("output", "stage %d: %v", stage, err)
		}
		for _, n := range nodes {
			for _, name := range outputMap[stage] {
				if err := collectName(snap, n.Block, name); err != nil {
					return nil, err
				}
			}
		}
	}
	return snap, nil
}

func collectName(snap *Snapshot, b *model.Block, name string) error {
	if s, ok := b.State(name); ok {
		for _, pt := range s.Points() {
			snap.put(pt.QualifiedName(), pt.Value)
		}
		return nil
	}
	if v, ok := b.LookupVar(name); ok {
		snap.put(v.QualifiedName(), v.Value)
		return nil
	}
	if p, ok := b.LookupParam(name); ok {
		snap.put(p.QualifiedName(), p.Value)
		return nil
	}
	return model.Configf("output", "block %s has no symbol %q", b.Name(), name)
}
