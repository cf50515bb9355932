package scenario

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/san-kum/dsfeas/internal/bigm"
	"github.com/san-kum/dsfeas/internal/model"
)

// StageRule declares the content of one node. It may read, but not modify,
// the blocks of the node's ancestors.
type StageRule func(b *model.Block, anc Ancestors) error

type Node struct {
	Index    Index
	Stage    int
	Block    *model.Block
	children []*Node
}

func (n *Node) Children() []*Node { return n.children }

func (n *Node) Terminal() bool { return len(n.children) == 0 }

// Tree is an arena of scenario nodes. stages[s] lists the nodes of depth s
// in lexicographic index order.
type Tree struct {
	bf        []int
	nodes     []*Node
	stages    [][]*Node
	objective model.Expr
	indicator []*model.Var
}

type buildOptions struct {
	logger    *slog.Logger
	transform func(*Tree) error
}

type BuildOption func(*buildOptions)

func WithLogger(l *slog.Logger) BuildOption {
	return func(o *buildOptions) { o.logger = l }
}

// WithTransform runs fn once on every freshly built tree, after the
// objective is in place.
func WithTransform(fn func(*Tree) error) BuildOption {
	return func(o *buildOptions) { o.transform = fn }
}

// Build applies rules[0] to the root and rules[i] to each of the bf[i-1]
// children of every stage i-1 node.
func Build(rules []StageRule, bf []int, opts ...BuildOption) (*Tree, error) {
	o := buildOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	if err := checkFactors(bf); err != nil {
		return nil, err
	}
	if len(rules) != len(bf)+1 {
		return nil, model.Configf("scenario", "%d stage rules for %d stages", len(rules), len(bf)+1)
	}

	t := &Tree{
		bf:     append([]int(nil), bf...),
		stages: make([][]*Node, len(bf)+1),
	}
	if _, err := t.grow(rules, Index{}, Ancestors{}); err != nil {
		return nil, err
	}

	terms := make([]model.Expr, 0, len(t.stages[len(bf)]))
	err := EachIndex(t.bf, func(idx Index) error {
		n, err := t.Scenario(idx)
		if err != nil {
			return err
		}
		ind := n.Block.Indicator()
		t.indicator = append(t.indicator, ind)
		terms = append(terms, model.Sub(model.Const(1), ind))
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.objective = model.Mul(model.Const(1/float64(len(terms))), model.Sum(terms...))

	if o.transform != nil {
		if err := o.transform(t); err != nil {
			return nil, fmt.Errorf("transform scenario tree: %w", err)
		}
	}

	o.logger.Debug("scenario tree built",
		"branching", t.bf,
		"nodes", len(t.nodes),
		"scenarios", len(terms))
	return t, nil
}

func checkFactors(bf []int) error {
	if len(bf) == 0 {
		return model.Configf("scenario", "at least one branching factor is required")
	}
	for i, n := range bf {
		if n <= 0 {
			return model.Configf("scenario", "branching factor %d must be positive, got %d", i, n)
		}
	}
	return nil
}

func (t *Tree) grow(rules []StageRule, idx Index, anc Ancestors) (*Node, error) {
	stage := len(idx)
	b := model.NewBlock(idx.BlockName())
	if err := rules[stage](b, anc); err != nil {
		return nil, fmt.Errorf("stage %d rule at %s: %w", stage, idx, err)
	}
	if err := b.Err(); err != nil {
		return nil, fmt.Errorf("stage %d rule at %s: %w", stage, idx, err)
	}
	if err := b.CheckStates(); err != nil {
		return nil, err
	}

	n := &Node{Index: idx, Stage: stage, Block: b}
	t.nodes = append(t.nodes, n)
	t.stages[stage] = append(t.stages[stage], n)

	if stage == len(t.bf) {
		if _, err := bigm.EncodeBlock(b); err != nil {
			return nil, err
		}
		return n, nil
	}

	if q := b.QualityConstraints(); len(q) > 0 {
		return nil, model.Configf("scenario", "non-terminal node %s declares quality constraint %q", idx, q[0].Name)
	}

	next := anc.with(b)
	n.children = make([]*Node, 0, t.bf[stage])
	for k := 0; k < t.bf[stage]; k++ {
		child, err := t.grow(rules, idx.Child(k), next)
		if err != nil {
			return nil, err
		}
		n.children = append(n.children, child)
	}
	return n, nil
}

func (t *Tree) Root() *Node { return t.nodes[0] }

func (t *Tree) BranchingFactors() []int { return append([]int(nil), t.bf...) }

// Stages counts stages including the root.
func (t *Tree) Stages() int { return len(t.bf) + 1 }

// Scenario descends from the root one component per stage.
func (t *Tree) Scenario(idx Index) (*Node, error) {
	if len(idx) > len(t.bf) {
		return nil, &IndexError{Index: idx, Position: -1, Limit: len(t.bf)}
	}
	n := t.nodes[0]
	for k, c := range idx {
		if c < 0 || c >= len(n.children) {
			return nil, &IndexError{Index: append(Index(nil), idx...), Position: k, Limit: len(n.children)}
		}
		n = n.children[c]
	}
	return n, nil
}

// AtStage returns the nodes of depth s in lexicographic index order. The
// slice is a copy; the nodes are shared.
func (t *Tree) AtStage(s int) ([]*Node, error) {
	if s < 0 || s >= len(t.stages) {
		return nil, &IndexError{Index: Index{s}, Position: -1, Limit: len(t.bf)}
	}
	return slices.Clone(t.stages[s]), nil
}

// Final returns the terminal scenarios.
func (t *Tree) Final() []*Node { return slices.Clone(t.stages[len(t.bf)]) }

// Objective is the mean of (1 - indicator) over terminal scenarios, to be
// maximized.
func (t *Tree) Objective() model.Expr { return t.objective }

// Indicators returns the feasibility indicators in Final order.
func (t *Tree) Indicators() []*model.Var { return slices.Clone(t.indicator) }

// Walk visits every node in preorder and stops at the first error.
func (t *Tree) Walk(fn func(*Node) error) error {
	for _, n := range t.nodes {
		if err := fn(n); err != nil {
			return err
		}
	}
	return nil
}

// Path returns the nodes from the root down to n.
func (t *Tree) Path(n *Node) []*Node {
	path := make([]*Node, 0, n.Stage+1)
	for s := 0; s <= n.Stage; s++ {
		anc, err := t.Scenario(n.Index[:s])
		if err != nil {
			return nil
		}
		path = append(path, anc)
	}
	return path
}

// Problem flattens the tree for a solver.
func (t *Tree) Problem() *model.Problem {
	p := &model.Problem{Objective: t.objective, Indicators: slices.Clone(t.indicator)}
	for _, n := range t.nodes {
		p.Collect(n.Block)
	}
	return p
}

func (t *Tree) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "tree bf=%v scenarios=%d\n", t.bf, len(t.stages[len(t.bf)]))
	for _, n := range t.nodes {
		sb.WriteString(strings.Repeat("  ", n.Stage))
		fmt.Fprintf(&sb, "%s %s\n", n.Index, n.Block)
	}
	return sb.String()
}

// Flatten applies every rule, in stage order, to a single block. Each rule
// sees that same block as all of its ancestors.
func Flatten(rules []StageRule) (*model.Block, error) {
	if len(rules) == 0 {
		return nil, model.Configf("scenario", "no stage rules to flatten")
	}
	b := model.NewBlock("")
	anc := Ancestors{}
	for stage, rule := range rules {
		if err := rule(b, anc); err != nil {
			return nil, fmt.Errorf("flatten stage %d: %w", stage, err)
		}
		if err := b.Err(); err != nil {
			return nil, fmt.Errorf("flatten stage %d: %w", stage, err)
		}
		anc = anc.with(b)
	}
	if err := b.CheckStates(); err != nil {
		return nil, err
	}
	return b, nil
}
