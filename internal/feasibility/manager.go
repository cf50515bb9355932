// Package feasibility evaluates the black-box constraint g(d, p) of a
// design-space exploration: for every design point, one value per
// uncertain sample, non-negative when that scenario is feasible.
package feasibility

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/dsfeas/internal/binding"
	"github.com/san-kum/dsfeas/internal/driver"
	"github.com/san-kum/dsfeas/internal/metrics"
	"github.com/san-kum/dsfeas/internal/model"
	"github.com/san-kum/dsfeas/internal/output"
	"github.com/san-kum/dsfeas/internal/scenario"
	"github.com/san-kum/dsfeas/internal/simulate"
	"github.com/san-kum/dsfeas/internal/solver"
)

// Initializer supplies starting values for a bound tree before it is
// solved.
type Initializer interface {
	Initialize(ctx context.Context, tree *scenario.Tree) error
}

// InitializerFactory creates one initializer per worker.
type InitializerFactory func(rules []scenario.StageRule) (Initializer, error)

// Simulation returns a factory for trajectory initializers.
func Simulation(opts simulate.Options) InitializerFactory {
	return func(rules []scenario.StageRule) (Initializer, error) {
		return simulate.New(rules, opts)
	}
}

// Progress is called after every evaluated design point.
type Progress func(done, total int)

type Manager struct {
	rules  []scenario.StageRule
	cfg    Config
	driver *driver.Driver
	logger *slog.Logger

	newInit   InitializerFactory
	transform func(*scenario.Tree) error
	progress  Progress

	sinkMu sync.Mutex
	sink   output.Sink

	workers []*worker
	pool    chan *worker
}

// worker owns everything that is mutated during a cycle.
type worker struct {
	id    int
	cache *scenario.Cache
	init  Initializer
	rng   *rand.Rand
}

type Option func(*Manager)

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func WithInitializer(f InitializerFactory) Option {
	return func(m *Manager) { m.newInit = f }
}

// WithTransform runs fn on every freshly built tree.
func WithTransform(fn func(*scenario.Tree) error) Option {
	return func(m *Manager) { m.transform = fn }
}

// WithSink receives one record per cycle when Config.SaveOutput is set.
// The manager does not close the sink.
func WithSink(s output.Sink) Option {
	return func(m *Manager) { m.sink = s }
}

func WithProgress(p Progress) Option {
	return func(m *Manager) { m.progress = p }
}

func New(rules Rules, cfg Config, s solver.Solver, opts ...Option) (*Manager, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, model.Configf("feasibility", "no solver")
	}
	stageRules, err := rules.forLayout(cfg.Layout)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		rules:  stageRules,
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if cfg.SaveOutput && m.sink == nil {
		return nil, model.Configf("feasibility", "save_output is set but no sink is configured")
	}
	// Infeasible relaxations are reported here, with the design point.
	m.driver = driver.New(s, driver.WithLogger(m.logger))

	m.pool = make(chan *worker, cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		w := &worker{
			id:  i,
			rng: rand.New(rand.NewPCG(cfg.Seed, uint64(i))),
			cache: scenario.NewCache(stageRules,
				scenario.WithLogger(m.logger),
				scenario.WithTransform(m.built)),
		}
		if m.newInit != nil {
			w.init, err = m.newInit(stageRules)
			if err != nil {
				return nil, fmt.Errorf("create initializer: %w", err)
			}
		}
		m.workers = append(m.workers, w)
		m.pool <- w
	}
	return m, nil
}

func (m *Manager) built(t *scenario.Tree) error {
	metrics.TreeBuilt()
	if m.transform != nil {
		return m.transform(t)
	}
	return nil
}

func (m *Manager) Config() Config { return m.cfg }

// InfeasibleCount is the number of cycles whose relaxation was infeasible.
func (m *Manager) InfeasibleCount() int64 { return m.driver.InfeasibleCount() }

// TreeBuilds is the number of scenario trees built by all workers.
func (m *Manager) TreeBuilds() int {
	n := 0
	for _, w := range m.workers {
		n += w.cache.Builds()
	}
	return n
}

// G evaluates every design point of d against the samples p. The result
// has one [len(p)][1] matrix per design point, in input order, holding the
// negated indicators: 0 for a feasible scenario and -1 otherwise.
func (m *Manager) G(ctx context.Context, d, p [][]float64) ([][][]float64, error) {
	if err := checkRows("d", d); err != nil {
		return nil, err
	}
	if err := checkRows("p", p); err != nil {
		return nil, err
	}
	if len(d) == 0 {
		return [][][]float64{}, nil
	}

	if m.cfg.Layout == ThreeStage {
		return m.threeStage(ctx, d, p)
	}
	return m.twoStage(ctx, d, p)
}

func (m *Manager) twoStage(ctx context.Context, d, p [][]float64) ([][][]float64, error) {
	out := make([][][]float64, len(d))
	var done atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Workers)
	for i, point := range d {
		g.Go(func() error {
			w, err := m.acquire(ctx)
			if err != nil {
				return err
			}
			defer m.release(w)

			values := binding.Values{0: {point}, 1: p}
			inds, err := m.cycle(ctx, w, []int{len(p)}, values, i)
			if err != nil {
				return fmt.Errorf("design point %d: %w", i, err)
			}
			out[i] = column(inds)
			m.report(int(done.Add(1)), len(d))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Manager) threeStage(ctx context.Context, d, p [][]float64) ([][][]float64, error) {
	w, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer m.release(w)

	// stage 2 holds one node per (design point, sample) pair
	rows := make([][]float64, 0, len(d)*len(p))
	for range d {
		rows = append(rows, p...)
	}
	values := binding.Values{1: d, 2: rows}
	inds, err := m.cycle(ctx, w, []int{len(d), len(p)}, values, -1)
	if err != nil {
		return nil, err
	}

	n := len(p)
	out := make([][][]float64, len(d))
	for i := range d {
		out[i] = column(inds[i*n : (i+1)*n])
	}
	m.report(len(d), len(d))
	return out, nil
}

func (m *Manager) acquire(ctx context.Context) (*worker, error) {
	select {
	case w := <-m.pool:
		return w, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) release(w *worker) { m.pool <- w }

// cycle binds values into the worker's tree, solves it and returns the
// indicators in Final order. point is the design point index, or -1 when
// the cycle covers the whole batch.
func (m *Manager) cycle(ctx context.Context, w *worker, bf []int, values binding.Values, point int) ([]float64, error) {
	start := time.Now()

	tree, err := w.cache.Get(bf)
	if err != nil {
		return nil, err
	}
	// bound values overwrite the draws
	drawn := binding.Resample(tree, w.rng)
	if err := binding.Bind(tree, m.cfg.InputMap, values); err != nil {
		return nil, err
	}
	if w.init != nil {
		if err := w.init.Initialize(ctx, tree); err != nil {
			return nil, fmt.Errorf("initialize trajectories: %w", err)
		}
	}

	out, err := m.driver.Run(ctx, tree)
	if err != nil {
		return nil, err
	}

	feasible := out.Feasible()
	metrics.ObserveScenarios(feasible, len(out.Indicators)-feasible)
	metrics.ObserveDesignPoint(time.Since(start))

	if out.RelaxationInfeasible && m.cfg.WarnInfeasible {
		m.logger.Warn("relaxed problem infeasible, all scenarios marked infeasible",
			"design_point", point,
			"worker", w.id,
			"scenarios", len(out.Indicators),
			"infeasible_total", m.InfeasibleCount(),
			"message", out.Relaxed.Message)
	}

	if m.cfg.SaveOutput {
		if err := m.save(tree, values, out, point); err != nil {
			return nil, err
		}
	}

	m.logger.Debug("design point evaluated",
		"design_point", point,
		"feasible", feasible,
		"scenarios", len(out.Indicators),
		"resampled", drawn,
		"elapsed", time.Since(start))
	return out.Indicators, nil
}

func (m *Manager) save(tree *scenario.Tree, values binding.Values, out *driver.Outcome, point int) error {
	snap, err := output.Collect(tree, m.cfg.OutputMap)
	if err != nil {
		return err
	}
	label := "batch"
	if point >= 0 {
		label = fmt.Sprintf("point-%d", point)
	}
	rec := output.NewRecord(label, values, out, snap)

	m.sinkMu.Lock()
	defer m.sinkMu.Unlock()
	if err := m.sink.Write(rec); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

func (m *Manager) report(done, total int) {
	if m.progress != nil {
		m.progress(done, total)
	}
}

// column negates indicators into a [n][1] matrix. Feasible entries are
// +0, never -0.
func column(inds []float64) [][]float64 {
	out := make([][]float64, len(inds))
	for i, v := range inds {
		out[i] = []float64{0 - v}
	}
	return out
}

func checkRows(name string, rows [][]float64) error {
	if name == "p" && len(rows) == 0 {
		return model.Configf("feasibility", "no uncertain samples")
	}
	for i, r := range rows {
		if len(r) != len(rows[0]) {
			return model.Configf("feasibility", "%s row %d has %d columns, row 0 has %d", name, i, len(r), len(rows[0]))
		}
	}
	return nil
}
