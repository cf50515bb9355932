package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/dsfeas/internal/config"
	"github.com/san-kum/dsfeas/internal/design"
	"github.com/san-kum/dsfeas/internal/feasibility"
	"github.com/san-kum/dsfeas/internal/metrics"
	"github.com/san-kum/dsfeas/internal/model"
	"github.com/san-kum/dsfeas/internal/models"
	"github.com/san-kum/dsfeas/internal/output"
	"github.com/san-kum/dsfeas/internal/simulate"
	"github.com/san-kum/dsfeas/internal/solver"
	"github.com/san-kum/dsfeas/internal/tui"
)

// setup is a problem with the design and uncertain overrides of a config
// applied.
type setup struct {
	cfg            *config.Config
	problem        *models.Problem
	designNames    []string
	lower, upper   []float64
	uncertainNames []string
	samplers       []model.Sampler
}

func resolve(cfg *config.Config) (*setup, error) {
	prob, err := models.Get(cfg.Problem)
	if err != nil {
		return nil, err
	}
	s := &setup{
		cfg:            cfg,
		problem:        prob,
		designNames:    prob.DesignNames,
		lower:          prob.DesignLower,
		upper:          prob.DesignUpper,
		uncertainNames: prob.UncertainNames,
		samplers:       prob.Samplers,
	}
	if len(cfg.Design.Names) > 0 {
		s.designNames, s.lower, s.upper = cfg.Design.Names, cfg.Design.Lower, cfg.Design.Upper
	}
	if len(cfg.Uncertain.Names) > 0 {
		s.uncertainNames, s.samplers = cfg.Uncertain.Names, cfg.Samplers()
	}
	return s, nil
}

func (s *setup) layout() feasibility.Layout { return feasibility.Layout(s.cfg.Layout) }

func (s *setup) rules() feasibility.Rules {
	return feasibility.Rules{Design: s.problem.Design, Uncertain: s.problem.Uncertain}
}

func (s *setup) feasibilityConfig() feasibility.Config {
	fc := feasibility.DefaultConfig()
	fc.Layout = s.layout()
	fc.Workers = s.cfg.Batch.Workers
	fc.WarnInfeasible = s.cfg.WarnInfeasible
	fc.SaveOutput = s.cfg.SaveOutput
	fc.Seed = s.cfg.Seed

	fc.InputMap = feasibility.DefaultInputMap(fc.Layout, s.designNames, s.uncertainNames)
	if len(s.cfg.InputMap) > 0 {
		fc.InputMap = s.cfg.InputMap
	}
	last := 1
	if fc.Layout == feasibility.ThreeStage {
		last = 2
	}
	fc.OutputMap = map[int][]string{last: s.problem.Outputs}
	if len(s.cfg.OutputMap) > 0 {
		fc.OutputMap = s.cfg.OutputMap
	}
	return fc
}

func (s *setup) simulateOptions() simulate.Options {
	in := s.cfg.Initializer
	return simulate.Options{
		Integrator: in.Integrator,
		Dt:         in.Dt,
		Tolerance:  in.Tolerance,
		Adaptive:   in.Adaptive,
		Logger:     slog.Default(),
	}
}

func (s *setup) rng() *rand.Rand {
	return rand.New(rand.NewPCG(s.cfg.Seed, s.cfg.Seed^0x9e3779b97f4a7c15))
}

func (s *setup) grid() (*design.Grid, error) {
	return design.FromBounds(s.designNames, s.lower, s.upper, s.cfg.Design.Points)
}

func (s *setup) samples() ([][]float64, error) {
	return design.Samples(s.rng(), s.samplers, s.cfg.Uncertain.Samples)
}

// manager builds a feasibility manager. The returned sink, if any, must be
// closed by the caller.
func (s *setup) manager(opts ...feasibility.Option) (*feasibility.Manager, output.Sink, error) {
	sol, err := solver.New(s.cfg.Solver.Name, s.cfg.Solver.IOOptions)
	if err != nil {
		return nil, nil, err
	}

	opts = append(opts, feasibility.WithLogger(slog.Default()))
	if s.cfg.Initializer.Enabled {
		opts = append(opts, feasibility.WithInitializer(feasibility.Simulation(s.simulateOptions())))
	}

	var sink output.Sink
	if s.cfg.SaveOutput {
		sink, err = output.Open(s.cfg.Output.Path, s.cfg.Output.Format)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, feasibility.WithSink(sink))
	}

	m, err := feasibility.New(s.rules(), s.feasibilityConfig(), sol, opts...)
	if err != nil {
		if sink != nil {
			sink.Close()
		}
		return nil, nil, err
	}
	return m, sink, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runFeasibility(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	s, err := resolve(cfg)
	if err != nil {
		return err
	}

	grid, err := s.grid()
	if err != nil {
		return err
	}
	d := grid.Points()
	p, err := s.samples()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr); err != nil {
				slog.Error("metrics server stopped", "addr", cfg.Metrics.Addr, "err", err)
			}
		}()
		slog.Info("serving metrics", "addr", cfg.Metrics.Addr)
	}

	start := time.Now()
	var g [][][]float64

	if useTUI {
		name := fmt.Sprintf("%s  %d points × %d samples", cfg.Problem, len(d), len(p))
		err = tui.Run(ctx, name, len(d), func(ctx context.Context, send func(tea.Msg)) ([]float64, error) {
			var m *feasibility.Manager
			m, sink, err := s.manager(feasibility.WithProgress(func(done, total int) {
				send(tui.ProgressMsg{Done: done, Total: total, Infeasible: m.InfeasibleCount()})
			}))
			if err != nil {
				return nil, err
			}
			if sink != nil {
				defer sink.Close()
			}
			g, err = m.G(ctx, d, p)
			if err != nil {
				return nil, err
			}
			return feasibility.Summarize(g).Fractions, nil
		})
		if err != nil {
			return err
		}
	} else {
		m, sink, err := s.manager(feasibility.WithProgress(func(done, total int) {
			slog.Debug("progress", "done", done, "total", total)
		}))
		if err != nil {
			return err
		}
		if sink != nil {
			defer sink.Close()
		}
		fmt.Printf("evaluating %s: %d design points × %d samples (%s, %d workers)\n",
			cfg.Problem, len(d), len(p), cfg.Layout, cfg.Batch.Workers)
		g, err = m.G(ctx, d, p)
		if err != nil {
			return err
		}
		if n := m.InfeasibleCount(); n > 0 {
			fmt.Println(bad.Render(fmt.Sprintf("%d infeasible relaxations", n)))
		}
	}

	printSummary(s, d, g, time.Since(start))
	if cfg.SaveOutput {
		fmt.Printf("\nrecords: %s (%s)\n", cfg.Output.Path, cfg.Output.Format)
	}
	return nil
}

func printSummary(s *setup, d [][]float64, g [][][]float64, elapsed time.Duration) {
	sum := feasibility.Summarize(g)

	fmt.Println()
	fmt.Println(title.Render("design points"))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tFEASIBLE\n", strings.ToUpper(strings.Join(s.designNames, "\t")))
	for i, pt := range d {
		cells := make([]string, len(pt))
		for j, v := range pt {
			cells[j] = fmt.Sprintf("%.4g", v)
		}
		frac := fmt.Sprintf("%.0f%%", 100*sum.Fractions[i])
		if sum.Fractions[i] == 1 {
			frac = good.Render(frac)
		} else if sum.Fractions[i] == 0 {
			frac = bad.Render(frac)
		}
		fmt.Fprintf(w, "%s\t%s\n", strings.Join(cells, "\t"), frac)
	}
	w.Flush()

	if len(sum.Fractions) > 1 {
		fmt.Println()
		fmt.Println(asciigraph.Plot(sum.Fractions,
			asciigraph.Height(8),
			asciigraph.Width(min(80, max(len(sum.Fractions), 20))),
			asciigraph.Caption("feasible fraction per design point")))
	}

	fmt.Println()
	fmt.Printf("%s %d/%d scenarios feasible, %d robust design points\n",
		label.Render("result:"), sum.Feasible, sum.Scenarios, sum.Robust)
	fmt.Printf("%s mean %.3f, std %.3f\n", label.Render("fraction:"), sum.Mean, sum.StdDev)
	fmt.Printf("%s %v\n", label.Render("elapsed:"), elapsed.Round(time.Millisecond))
}

func searchDesign(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	s, err := resolve(cfg)
	if err != nil {
		return err
	}
	grid, err := s.grid()
	if err != nil {
		return err
	}
	p, err := s.samples()
	if err != nil {
		return err
	}

	// one design point per call, so the single cycle layout never applies
	cfg.Layout = string(feasibility.TwoStage)
	m, sink, err := s.manager()
	if err != nil {
		return err
	}
	if sink != nil {
		defer sink.Close()
	}

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("searching %d design points of %s with %d samples\n", grid.Size(), cfg.Problem, len(p))
	best, score, err := grid.Search(ctx, func(ctx context.Context, pt []float64) (float64, error) {
		g, err := m.G(ctx, [][]float64{pt}, p)
		if err != nil {
			slog.Warn("design point failed", "point", pt, "err", err)
			return 0, err
		}
		return feasibility.Summarize(g).Fractions[0], nil
	})
	if err != nil {
		return err
	}
	if best == nil {
		return fmt.Errorf("no design point could be evaluated")
	}

	fmt.Println()
	fmt.Println(title.Render("best design point"))
	for i, name := range s.designNames {
		fmt.Printf("  %s %g\n", label.Render(fmt.Sprintf("%-8s", name)), best[i])
	}
	fmt.Printf("  %s %.1f%%\n", label.Render("feasible"), 100*score)
	return nil
}

func serveSolver(cmd *cobra.Command, args []string) error {
	s, err := solver.New(solverName, nil)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()
	return solver.Serve(ctx, os.Stdin, os.Stdout, s)
}
