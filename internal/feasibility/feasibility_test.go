package feasibility_test

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/san-kum/dsfeas/internal/binding"
	"github.com/san-kum/dsfeas/internal/driver"
	"github.com/san-kum/dsfeas/internal/feasibility"
	"github.com/san-kum/dsfeas/internal/model"
	"github.com/san-kum/dsfeas/internal/models"
	"github.com/san-kum/dsfeas/internal/output"
	"github.com/san-kum/dsfeas/internal/scenario"
	"github.com/san-kum/dsfeas/internal/simulate"
	"github.com/san-kum/dsfeas/internal/solver"
)

// offsetRules declare a design parameter a and a sample parameter c with
// the quality constraint c + a <= 0.
func offsetRules() feasibility.Rules {
	return feasibility.Rules{
		Design: func(b *model.Block, anc scenario.Ancestors) error {
			b.Param("a", 0)
			return nil
		},
		Uncertain: func(b *model.Block, anc scenario.Ancestors) error {
			a, err := anc.Ref("a")
			if err != nil {
				return err
			}
			c := b.Param("c", 0)
			b.Quality("offset", model.Add(c, a), math.Inf(-1), 0, 10)
			return nil
		},
	}
}

func config(layout feasibility.Layout) feasibility.Config {
	cfg := feasibility.DefaultConfig()
	cfg.Layout = layout
	cfg.InputMap = feasibility.DefaultInputMap(layout, []string{"a"}, []string{"c"})
	return cfg
}

func flatten(g [][][]float64) [][]float64 {
	out := make([][]float64, len(g))
	for i, col := range g {
		for _, row := range col {
			out[i] = append(out[i], row[0])
		}
	}
	return out
}

type memorySink struct {
	mu      sync.Mutex
	records []*output.Record
}

func (s *memorySink) Write(rec *output.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *memorySink) Close() error { return nil }

type countingInit struct{ calls int }

func (c *countingInit) Initialize(ctx context.Context, tree *scenario.Tree) error {
	c.calls++
	return nil
}

var _ = Describe("Manager", func() {
	var (
		ctx context.Context
		d   [][]float64
		p   [][]float64
	)

	BeforeEach(func() {
		ctx = context.Background()
		d = [][]float64{{0}, {1}}
		p = [][]float64{{-2}, {-1.5}, {-0.5}}
	})

	DescribeTable("one violated scenario out of six",
		func(layout feasibility.Layout) {
			sink := &memorySink{}
			cfg := config(layout)
			cfg.SaveOutput = true
			m, err := feasibility.New(offsetRules(), cfg, solver.NewEvaluator(), feasibility.WithSink(sink))
			Expect(err).NotTo(HaveOccurred())

			g, err := m.G(ctx, d, p)
			Expect(err).NotTo(HaveOccurred())
			Expect(g).To(HaveLen(2))
			Expect(g[0]).To(HaveLen(3))
			Expect(flatten(g)).To(Equal([][]float64{{0, 0, 0}, {0, 0, -1}}))
			for _, col := range g {
				for _, row := range col {
					Expect(math.Signbit(row[0]) && row[0] == 0).To(BeFalse(), "negative zero")
				}
			}
			Expect(m.InfeasibleCount()).To(BeZero())
			Expect(sink.records).NotTo(BeEmpty())
		},
		Entry("two stages", feasibility.TwoStage),
		Entry("three stages", feasibility.ThreeStage),
	)

	It("scores the three-stage batch as one cycle with objective 5/6", func() {
		sink := &memorySink{}
		cfg := config(feasibility.ThreeStage)
		cfg.SaveOutput = true
		m, err := feasibility.New(offsetRules(), cfg, solver.NewEvaluator(), feasibility.WithSink(sink))
		Expect(err).NotTo(HaveOccurred())

		_, err = m.G(ctx, d, p)
		Expect(err).NotTo(HaveOccurred())
		Expect(sink.records).To(HaveLen(1))

		rec := sink.records[0]
		Expect(rec.Label).To(Equal("batch"))
		Expect(rec.Fixed).NotTo(BeNil())
		Expect(rec.Fixed.Objective).To(BeNumerically("~", 5.0/6.0, 1e-12))
		Expect(rec.Output.Indicators).To(Equal([]float64{0, 0, 0, 0, 0, 1}))
		Expect(rec.Input).To(HaveKey(1))
		Expect(rec.Input[2]).To(HaveLen(6))
		Expect(rec.Input[2][3]).To(Equal([]float64{-2}))
		Expect(rec.Input[2][5]).To(Equal([]float64{-0.5}))
	})

	Context("with stochastic parameters", func() {
		// c is bound from p; k is declared with a sampler and never bound.
		stochasticRules := func() feasibility.Rules {
			r := offsetRules()
			r.Uncertain = func(b *model.Block, anc scenario.Ancestors) error {
				a, err := anc.Ref("a")
				if err != nil {
					return err
				}
				c := b.StochasticParam("c", model.NormalSampler(5, 1))
				b.StochasticParam("k", model.NormalSampler(0, 1))
				b.Quality("offset", model.Add(c, a), math.Inf(-1), 0, 10)
				return nil
			}
			return r
		}

		// draws runs three cycles and returns k of the first leaf after
		// each, plus the feasibility results.
		draws := func(seed uint64) ([]float64, [][][]float64) {
			cfg := config(feasibility.TwoStage)
			cfg.Seed = seed
			var tree *scenario.Tree
			m, err := feasibility.New(stochasticRules(), cfg, solver.NewEvaluator(),
				feasibility.WithTransform(func(t *scenario.Tree) error {
					tree = t
					return nil
				}))
			Expect(err).NotTo(HaveOccurred())

			var ks []float64
			var g [][][]float64
			for range 3 {
				g, err = m.G(ctx, d[:1], p)
				Expect(err).NotTo(HaveOccurred())
				k, ok := tree.Final()[0].Block.LookupParam("k")
				Expect(ok).To(BeTrue())
				ks = append(ks, k.Value)
				c, _ := tree.Final()[2].Block.LookupParam("c")
				Expect(c.Value).To(Equal(-0.5))
			}
			return ks, g
		}

		It("redraws unbound parameters every cycle", func() {
			ks, g := draws(7)
			Expect(ks[0]).NotTo(Equal(ks[1]))
			Expect(ks[1]).NotTo(Equal(ks[2]))
			Expect(flatten(g)).To(Equal([][]float64{{0, 0, 0}}))
		})

		It("reproduces the draws for a fixed seed", func() {
			a, _ := draws(7)
			b, _ := draws(7)
			c, _ := draws(8)
			Expect(a).To(Equal(b))
			Expect(a).NotTo(Equal(c))
		})
	})

	It("reuses the tree while the branching factors are unchanged", func() {
		m, err := feasibility.New(offsetRules(), config(feasibility.TwoStage), solver.NewEvaluator())
		Expect(err).NotTo(HaveOccurred())

		_, err = m.G(ctx, d, p)
		Expect(err).NotTo(HaveOccurred())
		_, err = m.G(ctx, [][]float64{{0.5}}, [][]float64{{1}, {2}, {3}})
		Expect(err).NotTo(HaveOccurred())
		Expect(m.TreeBuilds()).To(Equal(1))

		_, err = m.G(ctx, d, p[:2])
		Expect(err).NotTo(HaveOccurred())
		Expect(m.TreeBuilds()).To(Equal(2))
	})

	It("runs the transform once per built tree", func() {
		calls := 0
		m, err := feasibility.New(offsetRules(), config(feasibility.TwoStage), solver.NewEvaluator(),
			feasibility.WithTransform(func(t *scenario.Tree) error {
				calls++
				return nil
			}))
		Expect(err).NotTo(HaveOccurred())
		for range 3 {
			_, err = m.G(ctx, d, p)
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(calls).To(Equal(1))
	})

	It("keeps input order with several workers", func() {
		cfg := config(feasibility.TwoStage)
		cfg.Workers = 4

		var mu sync.Mutex
		var reports, totals []int
		m, err := feasibility.New(offsetRules(), cfg, solver.NewEvaluator(),
			feasibility.WithProgress(func(done, total int) {
				mu.Lock()
				defer mu.Unlock()
				reports = append(reports, done)
				totals = append(totals, total)
			}))
		Expect(err).NotTo(HaveOccurred())

		points := make([][]float64, 8)
		for i := range points {
			points[i] = []float64{float64(i)}
		}
		g, err := m.G(ctx, points, [][]float64{{-3.5}})
		Expect(err).NotTo(HaveOccurred())

		want := [][]float64{{0}, {0}, {0}, {0}, {-1}, {-1}, {-1}, {-1}}
		Expect(flatten(g)).To(Equal(want))
		Expect(reports).To(ConsistOf(1, 2, 3, 4, 5, 6, 7, 8))
		Expect(totals).To(HaveEach(8))
		Expect(m.TreeBuilds()).To(BeNumerically("<=", 4))
	})

	It("calls the initializer once per cycle", func() {
		inits := []*countingInit{}
		factory := func(rules []scenario.StageRule) (feasibility.Initializer, error) {
			Expect(rules).To(HaveLen(2))
			in := &countingInit{}
			inits = append(inits, in)
			return in, nil
		}
		m, err := feasibility.New(offsetRules(), config(feasibility.TwoStage), solver.NewEvaluator(),
			feasibility.WithInitializer(factory))
		Expect(err).NotTo(HaveOccurred())

		_, err = m.G(ctx, d, p)
		Expect(err).NotTo(HaveOccurred())
		Expect(inits).To(HaveLen(1))
		Expect(inits[0].calls).To(Equal(2))
	})

	Context("with a mocked solver", func() {
		var (
			ctrl *gomock.Controller
			mock *solver.MockSolver
		)

		BeforeEach(func() {
			ctrl = gomock.NewController(GinkgoT())
			mock = solver.NewMockSolver(ctrl)
		})

		It("marks every scenario infeasible when the relaxation is infeasible", func() {
			mock.EXPECT().Solve(gomock.Any(), gomock.Any()).
				Return(&solver.Result{Status: solver.StatusInfeasible, Message: "locally infeasible"}, nil).
				Times(3)

			cfg := config(feasibility.TwoStage)
			cfg.WarnInfeasible = true
			m, err := feasibility.New(offsetRules(), cfg, mock)
			Expect(err).NotTo(HaveOccurred())

			g, err := m.G(ctx, [][]float64{{0}, {1}, {2}}, p)
			Expect(err).NotTo(HaveOccurred())
			Expect(flatten(g)).To(Equal([][]float64{{-1, -1, -1}, {-1, -1, -1}, {-1, -1, -1}}))
			Expect(m.InfeasibleCount()).To(Equal(int64(3)))
		})

		It("aborts the batch on a solver error", func() {
			boom := errors.New("solver crashed")
			mock.EXPECT().Solve(gomock.Any(), gomock.Any()).Return(nil, boom).AnyTimes()

			m, err := feasibility.New(offsetRules(), config(feasibility.TwoStage), mock)
			Expect(err).NotTo(HaveOccurred())

			_, err = m.G(ctx, d, p)
			Expect(err).To(MatchError(driver.ErrSolve))
			Expect(errors.Is(err, boom)).To(BeTrue())

			var se *driver.SolveError
			Expect(errors.As(err, &se)).To(BeTrue())
			Expect(se.Phase).To(Equal(driver.PhaseRelaxed))
		})
	})

	Describe("configuration errors", func() {
		It("rejects an unknown layout", func() {
			cfg := config(feasibility.TwoStage)
			cfg.Layout = "four_stage"
			_, err := feasibility.New(offsetRules(), cfg, solver.NewEvaluator())
			Expect(err).To(MatchError(model.ErrConfiguration))
		})

		It("rejects an empty input map", func() {
			cfg := config(feasibility.TwoStage)
			cfg.InputMap = nil
			_, err := feasibility.New(offsetRules(), cfg, solver.NewEvaluator())
			Expect(err).To(MatchError(model.ErrConfiguration))
		})

		It("rejects input map stages outside the layout", func() {
			cfg := config(feasibility.TwoStage)
			cfg.InputMap = binding.InputMap{2: {"c"}}
			_, err := feasibility.New(offsetRules(), cfg, solver.NewEvaluator())
			Expect(err).To(MatchError(model.ErrConfiguration))
		})

		It("requires a sink to save output", func() {
			cfg := config(feasibility.TwoStage)
			cfg.SaveOutput = true
			_, err := feasibility.New(offsetRules(), cfg, solver.NewEvaluator())
			Expect(err).To(MatchError(model.ErrConfiguration))
		})

		It("requires both stage rules", func() {
			_, err := feasibility.New(feasibility.Rules{}, config(feasibility.TwoStage), solver.NewEvaluator())
			Expect(err).To(MatchError(model.ErrConfiguration))
		})

		It("rejects ragged inputs", func() {
			m, err := feasibility.New(offsetRules(), config(feasibility.TwoStage), solver.NewEvaluator())
			Expect(err).NotTo(HaveOccurred())

			_, err = m.G(ctx, [][]float64{{0}, {1, 2}}, p)
			Expect(err).To(MatchError(model.ErrConfiguration))
			_, err = m.G(ctx, d, [][]float64{{0}, {}})
			Expect(err).To(MatchError(model.ErrConfiguration))
			_, err = m.G(ctx, d, nil)
			Expect(err).To(MatchError(model.ErrConfiguration))
		})

		It("rejects rows that do not match the input map", func() {
			m, err := feasibility.New(offsetRules(), config(feasibility.TwoStage), solver.NewEvaluator())
			Expect(err).NotTo(HaveOccurred())

			_, err = m.G(ctx, [][]float64{{0, 1}}, p)
			Expect(err).To(MatchError(model.ErrConfiguration))
			var shape *binding.ShapeError
			Expect(errors.As(err, &shape)).To(BeTrue())
		})

		It("rejects unknown parameter names", func() {
			cfg := config(feasibility.TwoStage)
			cfg.InputMap = binding.InputMap{0: {"b"}, 1: {"c"}}
			m, err := feasibility.New(offsetRules(), cfg, solver.NewEvaluator())
			Expect(err).NotTo(HaveOccurred())

			_, err = m.G(ctx, d, p)
			Expect(err).To(MatchError(model.ErrConfiguration))
		})
	})

	It("returns an empty result for no design points", func() {
		m, err := feasibility.New(offsetRules(), config(feasibility.TwoStage), solver.NewEvaluator())
		Expect(err).NotTo(HaveOccurred())
		g, err := m.G(ctx, nil, p)
		Expect(err).NotTo(HaveOccurred())
		Expect(g).To(BeEmpty())
	})

	It("writes records that can be read back from a stream", func() {
		path := filepath.Join(GinkgoT().TempDir(), "records.jsonl.gz")
		sink, err := output.Open(path, output.FormatJSONL)
		Expect(err).NotTo(HaveOccurred())

		cfg := config(feasibility.TwoStage)
		cfg.SaveOutput = true
		cfg.OutputMap = map[int][]string{1: {"c"}}
		m, err := feasibility.New(offsetRules(), cfg, solver.NewEvaluator(), feasibility.WithSink(sink))
		Expect(err).NotTo(HaveOccurred())

		_, err = m.G(ctx, d, p)
		Expect(err).NotTo(HaveOccurred())
		Expect(sink.Close()).To(Succeed())

		var labels []string
		err = output.ReadFile(path, func(rec *output.Record) error {
			labels = append(labels, rec.Label)
			Expect(rec.Output.Values).To(HaveKeyWithValue("root.sub[2].c", -0.5))
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(labels).To(Equal([]string{"point-0", "point-1"}))
	})
})

var _ = Describe("Decay problem", func() {
	It("separates slow and fast designs", func() {
		prob, err := models.Get("decay")
		Expect(err).NotTo(HaveOccurred())

		for _, layout := range []feasibility.Layout{feasibility.TwoStage, feasibility.ThreeStage} {
			cfg := feasibility.DefaultConfig()
			cfg.Layout = layout
			cfg.InputMap = feasibility.DefaultInputMap(layout, prob.DesignNames, prob.UncertainNames)

			m, err := feasibility.New(
				feasibility.Rules{Design: prob.Design, Uncertain: prob.Uncertain},
				cfg,
				solver.NewEvaluator(),
				feasibility.WithInitializer(feasibility.Simulation(simulate.DefaultOptions())),
			)
			Expect(err).NotTo(HaveOccurred())

			g, err := m.G(context.Background(),
				[][]float64{{0.5}, {3}},
				[][]float64{{1}, {1.05}})
			Expect(err).NotTo(HaveOccurred())
			Expect(flatten(g)).To(Equal([][]float64{{-1, -1}, {0, 0}}), "layout %s", layout)

			s := feasibility.Summarize(g)
			Expect(s.Robust).To(Equal(1))
			Expect(s.Feasible).To(Equal(2))
		}
	})
})

var _ = Describe("Summarize", func() {
	It("reports feasible fractions per design point", func() {
		s := feasibility.Summarize([][][]float64{
			{{0}, {0}},
			{{0}, {-1}},
			{{-1}, {-1}},
		})
		Expect(s.Points).To(Equal(3))
		Expect(s.Scenarios).To(Equal(6))
		Expect(s.Feasible).To(Equal(3))
		Expect(s.Robust).To(Equal(1))
		Expect(s.Fractions).To(Equal([]float64{1, 0.5, 0}))
		Expect(s.Mean).To(BeNumerically("~", 0.5, 1e-12))
		Expect(s.StdDev).To(BeNumerically("~", 0.5, 1e-12))
	})

	It("handles an empty result", func() {
		s := feasibility.Summarize(nil)
		Expect(s.Points).To(BeZero())
		Expect(s.Mean).To(BeZero())
	})
})
