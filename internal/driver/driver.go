// Package driver runs the two-phase feasibility solve on a scenario tree: a
// relaxed solve that lets every indicator float in [0, 1], then a solve with
// each indicator fixed to 0 or 1.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/san-kum/dsfeas/internal/metrics"
	"github.com/san-kum/dsfeas/internal/model"
	"github.com/san-kum/dsfeas/internal/scenario"
	"github.com/san-kum/dsfeas/internal/solver"
)

type Phase string

const (
	PhaseRelaxed Phase = "relaxed"
	PhaseFixed   Phase = "fixed"
)

// ErrSolve is matched by every solver failure surfaced by the driver.
var ErrSolve = errors.New("solve failed")

type SolveError struct {
	Phase Phase
	Err   error
}

func (e *SolveError) Error() string {
	return fmt.Sprintf("%v in %s phase: %v", ErrSolve, e.Phase, e.Err)
}

func (e *SolveError) Unwrap() error { return e.Err }

func (e *SolveError) Is(target error) bool { return target == ErrSolve }

// PhaseSummary records one solver call.
type PhaseSummary struct {
	Status    solver.Status `json:"status"`
	Objective float64       `json:"objective"`
	Duration  time.Duration `json:"duration"`
	Message   string        `json:"message,omitempty"`
}

// Outcome of one cycle. Indicators follow Tree.Final order; every entry is
// exactly 0 or 1. Fixed is nil when the relaxation was infeasible.
type Outcome struct {
	Indicators           []float64     `json:"indicators"`
	RelaxationInfeasible bool          `json:"relaxation_infeasible,omitempty"`
	Relaxed              *PhaseSummary `json:"relaxed"`
	Fixed                *PhaseSummary `json:"fixed,omitempty"`
}

// Feasible counts terminal scenarios with indicator 0.
func (o *Outcome) Feasible() int {
	n := 0
	for _, v := range o.Indicators {
		if v == 0 {
			n++
		}
	}
	return n
}

type Driver struct {
	solver         solver.Solver
	logger         *slog.Logger
	warnInfeasible bool
	infeasible     atomic.Int64
}

type Option func(*Driver)

func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// WithWarnInfeasible logs a warning for every infeasible relaxation.
func WithWarnInfeasible(warn bool) Option {
	return func(d *Driver) { d.warnInfeasible = warn }
}

func New(s solver.Solver, opts ...Option) *Driver {
	d := &Driver{solver: s, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// InfeasibleCount is the number of cycles, over the driver's lifetime, whose
// relaxed problem was infeasible.
func (d *Driver) InfeasibleCount() int64 { return d.infeasible.Load() }

// Run performs one relaxed/fixed cycle on tree. A driver may be shared by
// goroutines working on distinct trees.
func (d *Driver) Run(ctx context.Context, tree *scenario.Tree) (*Outcome, error) {
	inds := tree.Indicators()
	for _, v := range inds {
		v.Unfix()
		v.Value = 0
	}
	problem := tree.Problem()

	relaxed, err := d.solve(ctx, PhaseRelaxed, problem)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Relaxed: relaxed}

	if relaxed.Infeasible() {
		for _, v := range inds {
			v.Fix(1)
		}
		count := d.infeasible.Add(1)
		metrics.RelaxationInfeasible()
		if d.warnInfeasible {
			d.logger.Warn("relaxed problem infeasible, marking all scenarios infeasible",
				"scenarios", len(inds),
				"infeasible_total", count,
				"message", relaxed.Message)
		}
		out.RelaxationInfeasible = true
		out.Indicators = values(inds)
		return out, nil
	}

	for _, v := range inds {
		v.Fix(cutoff(v.Value))
	}

	fixed, err := d.solve(ctx, PhaseFixed, problem)
	if err != nil {
		return nil, err
	}
	out.Fixed = fixed
	out.Indicators = values(inds)

	d.logger.Debug("solve cycle complete",
		"scenarios", len(inds),
		"feasible", out.Feasible(),
		"relaxed_objective", relaxed.Objective,
		"fixed_objective", fixed.Objective)
	return out, nil
}

func (d *Driver) solve(ctx context.Context, phase Phase, p *model.Problem) (*PhaseSummary, error) {
	start := time.Now()
	res, err := d.solver.Solve(ctx, p)
	elapsed := time.Since(start)
	if err != nil {
		metrics.ObserveSolve(string(phase), "error", elapsed)
		return nil, &SolveError{Phase: phase, Err: err}
	}
	if res == nil {
		metrics.ObserveSolve(string(phase), "error", elapsed)
		return nil, &SolveError{Phase: phase, Err: errors.New("solver returned no result")}
	}
	metrics.ObserveSolve(string(phase), res.Status.String(), elapsed)
	return &PhaseSummary{
		Status:    res.Status,
		Objective: res.Objective,
		Duration:  elapsed,
		Message:   res.Message,
	}, nil
}

func (s *PhaseSummary) Infeasible() bool { return s.Status == solver.StatusInfeasible }

// cutoff maps a relaxed indicator to its fixed value: only an exact zero
// counts as satisfied.
func cutoff(v float64) float64 {
	if v == 0 {
		return 0
	}
	return 1
}

func values(vars []*model.Var) []float64 {
	out := make([]float64, len(vars))
	for i, v := range vars {
		out[i] = v.Value
	}
	return out
}
