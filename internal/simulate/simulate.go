// Package simulate initializes scenario trajectories by integrating each
// terminal scenario's differential states on a flattened copy of the model.
package simulate

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/interp"

	"github.com/san-kum/dsfeas/internal/dynamo"
	"github.com/san-kum/dsfeas/internal/integrators"
	"github.com/san-kum/dsfeas/internal/model"
	"github.com/san-kum/dsfeas/internal/scenario"
)

type Options struct {
	Integrator string
	Dt         float64
	Tolerance  float64
	Adaptive   bool
	Logger     *slog.Logger
}

func DefaultOptions() Options {
	return Options{Integrator: "rk4", Dt: 0.01, Tolerance: 1e-6}
}

// Initializer integrates the flattened model once per terminal scenario. It
// keeps mutable state and must not be shared between goroutines.
type Initializer struct {
	flat   *model.Block
	sim    *dynamo.Simulator
	cfg    dynamo.Config
	logger *slog.Logger
}

// Trajectory is the integrated path of one terminal scenario.
type Trajectory struct {
	Index  scenario.Index
	Names  []string
	Times  []float64
	States []dynamo.State
}

func New(rules []scenario.StageRule, opts Options) (*Initializer, error) {
	flat, err := scenario.Flatten(rules)
	if err != nil {
		return nil, err
	}
	if len(flat.States()) == 0 {
		return nil, model.Configf("simulate", "model declares no differential states")
	}

	integ, err := integrators.New(opts.Integrator)
	if err != nil {
		return nil, model.Configf("simulate", "%v", err)
	}

	cfg := dynamo.DefaultConfig()
	cfg.Dt = opts.Dt
	cfg.Adaptive = opts.Adaptive
	if opts.Tolerance > 0 {
		cfg.Tolerance = opts.Tolerance
	}
	if span := flat.Grid()[len(flat.Grid())-1] - flat.Grid()[0]; cfg.MaxDt > span {
		cfg.MaxDt = span
	}
	if err := cfg.Validate(); err != nil {
		return nil, model.Configf("simulate", "%v", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Initializer{
		flat:   flat,
		sim:    dynamo.New(newSystem(flat), integ),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Initialize writes interpolated trajectories into the state variables of
// every terminal scenario of tree. The values are initial guesses; nothing
// is fixed.
func (in *Initializer) Initialize(ctx context.Context, tree *scenario.Tree) error {
	if err := terminalStates(tree); err != nil {
		return err
	}
	for _, leaf := range tree.Final() {
		traj, err := in.integrate(ctx, leaf.Index, tree.Path(leaf))
		if err != nil {
			return err
		}
		if err := in.export(traj, leaf); err != nil {
			return err
		}
	}
	in.logger.Debug("trajectories initialized", "scenarios", len(tree.Final()))
	return nil
}

// Trajectories integrates every terminal scenario and returns the raw
// paths without touching the tree.
func (in *Initializer) Trajectories(ctx context.Context, tree *scenario.Tree) ([]*Trajectory, error) {
	out := make([]*Trajectory, 0, len(tree.Final()))
	for _, leaf := range tree.Final() {
		traj, err := in.integrate(ctx, leaf.Index, tree.Path(leaf))
		if err != nil {
			return nil, err
		}
		out = append(out, traj)
	}
	return out, nil
}

func (in *Initializer) integrate(ctx context.Context, idx scenario.Index, path []*scenario.Node) (*Trajectory, error) {
	for _, n := range path {
		for _, p := range n.Block.Params() {
			if fp, ok := in.flat.LookupParam(p.Name); ok {
				fp.Value = p.Value
			}
		}
	}

	states := in.flat.States()
	x0 := make(dynamo.State, len(states))
	names := make([]string, len(states))
	for i, s := range states {
		x0[i] = s.Initial.Eval()
		names[i] = s.Name
	}

	res, err := in.sim.Sample(ctx, x0, in.outputTimes(), in.cfg)
	if err != nil {
		return nil, fmt.Errorf("integrate scenario %s: %w", idx, err)
	}
	return &Trajectory{Index: append(scenario.Index(nil), idx...), Names: names, Times: res.Times, States: res.States}, nil
}

// outputTimes spans the model grid at roughly Dt spacing and always
// includes both ends.
func (in *Initializer) outputTimes() []float64 {
	grid := in.flat.Grid()
	t0, t1 := grid[0], grid[len(grid)-1]
	n := int(math.Ceil((t1-t0)/in.cfg.Dt - 1e-9))
	if n < 1 {
		n = 1
	}
	times := make([]float64, n+1)
	for i := range times {
		times[i] = t0 + (t1-t0)*float64(i)/float64(n)
	}
	return times
}

// terminalStates rejects differential states on shared ancestors. Each
// terminal scenario integrates its own path, so only leaves own a trajectory.
func terminalStates(tree *scenario.Tree) error {
	last := tree.Final()[0].Stage
	return tree.Walk(func(n *scenario.Node) error {
		if n.Stage < last && len(n.Block.States()) > 0 {
			return model.Configf("simulate", "node %s at stage %d declares differential states, only terminal scenarios may",
				n.Index, n.Stage)
		}
		return nil
	})
}

func (in *Initializer) export(traj *Trajectory, leaf *scenario.Node) error {
	grid := in.flat.Grid()
	col := make([]float64, len(traj.Times))

	for i, name := range traj.Names {
		for k, x := range traj.States {
			col[k] = x[i]
		}
		var pl interp.PiecewiseLinear
		if err := pl.Fit(traj.Times, col); err != nil {
			return fmt.Errorf("interpolate %s in scenario %s: %w", name, traj.Index, err)
		}

		s, ok := leaf.Block.State(name)
		if !ok {
			continue
		}
		if len(s.Points()) != len(grid) {
			return model.Configf("simulate", "state %s in %s has %d points, flattened grid has %d",
				name, leaf.Block.Name(), len(s.Points()), len(grid))
		}
		for k, pt := range s.Points() {
			pt.Value = pl.Predict(grid[k])
		}
	}
	return nil
}

// Column returns the path of state i.
func (tr *Trajectory) Column(i int) []float64 {
	col := make([]float64, len(tr.States))
	for k, x := range tr.States {
		col[k] = x[i]
	}
	return col
}

// Sample returns the value of state i at time t by linear interpolation.
func (tr *Trajectory) Sample(i int, t float64) float64 {
	col := tr.Column(i)
	var pl interp.PiecewiseLinear
	if err := pl.Fit(tr.Times, col); err != nil {
		return math.NaN()
	}
	return pl.Predict(t)
}
