package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/dsfeas/internal/binding"
	"github.com/san-kum/dsfeas/internal/feasibility"
	"github.com/san-kum/dsfeas/internal/model"
	"github.com/san-kum/dsfeas/internal/output"
	"github.com/san-kum/dsfeas/internal/scenario"
	"github.com/san-kum/dsfeas/internal/simulate"
	"github.com/san-kum/dsfeas/internal/storage"
)

func simulateScenarios(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	s, err := resolve(cfg)
	if err != nil {
		return err
	}

	point := make([]float64, len(s.designNames))
	for i := range point {
		point[i] = 0.5 * (s.lower[i] + s.upper[i])
	}
	if designFlag != "" {
		given, err := parseAssignments(designFlag)
		if err != nil {
			return err
		}
		for name, v := range given {
			found := false
			for i, n := range s.designNames {
				if n == name {
					point[i] = v
					found = true
				}
			}
			if !found {
				return fmt.Errorf("unknown design parameter %q (available: %v)", name, s.designNames)
			}
		}
	}

	p, err := s.samples()
	if err != nil {
		return err
	}

	rules := []scenario.StageRule{s.problem.Design, s.problem.Uncertain}
	tree, err := scenario.Build(rules, []int{len(p)})
	if err != nil {
		return err
	}
	err = binding.Bind(tree,
		binding.InputMap{0: s.designNames, 1: s.uncertainNames},
		binding.Values{0: {point}, 1: p})
	if err != nil {
		return err
	}

	init, err := simulate.New(rules, s.simulateOptions())
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()
	trajs, err := init.Trajectories(ctx, tree)
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	meta := storage.RunMetadata{
		Problem:    cfg.Problem,
		Seed:       cfg.Seed,
		Dt:         cfg.Initializer.Dt,
		Integrator: cfg.Initializer.Integrator,
		Design:     make(map[string]float64),
	}
	for i, name := range s.designNames {
		meta.Design[name] = point[i]
	}
	runID, err := st.Save(meta, trajs)
	if err != nil {
		return err
	}

	fmt.Printf("simulated %d scenarios of %s at %s\n", len(trajs), cfg.Problem, formatPoint(s.designNames, point))
	fmt.Printf("run id: %s\n\n", runID)
	if len(trajs) > 0 {
		plotStates(trajs, "")
	}
	return nil
}

func formatPoint(names []string, pt []float64) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = fmt.Sprintf("%s=%g", n, pt[i])
	}
	return strings.Join(parts, ",")
}

// plotStates draws one chart per state with a series per scenario.
func plotStates(trajs []*simulate.Trajectory, only string) {
	const maxSeries = 8
	for i, name := range trajs[0].Names {
		if only != "" && name != only {
			continue
		}
		var series [][]float64
		for k, tr := range trajs {
			if k >= maxSeries {
				break
			}
			series = append(series, tr.Column(i))
		}
		caption := fmt.Sprintf("%s vs time", name)
		if len(trajs) > maxSeries {
			caption += fmt.Sprintf(" (first %d of %d scenarios)", maxSeries, len(trajs))
		}
		fmt.Println(asciigraph.PlotMany(series,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(caption)))
		fmt.Println()
	}
}

func showTree(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	s, err := resolve(cfg)
	if err != nil {
		return err
	}
	bf, err := parseInts(branching)
	if err != nil {
		return err
	}

	rules := []scenario.StageRule{s.problem.Design, s.problem.Uncertain}
	if s.layout() == feasibility.ThreeStage {
		rules = []scenario.StageRule{func(*model.Block, scenario.Ancestors) error { return nil }, s.problem.Design, s.problem.Uncertain}
	}
	tree, err := scenario.Build(rules, bf)
	if err != nil {
		return err
	}

	fmt.Print(tree.String())
	prob := tree.Problem()
	fmt.Println()
	fmt.Printf("%s %d\n", label.Render("scenarios:  "), len(tree.Final()))
	fmt.Printf("%s %d (%d free)\n", label.Render("variables:  "), len(prob.Vars), len(prob.Free()))
	fmt.Printf("%s %d\n", label.Render("parameters: "), len(prob.Params))
	fmt.Printf("%s %d\n", label.Render("constraints:"), len(prob.Constraints))
	fmt.Printf("%s %s\n", label.Render("objective:  "), truncate(prob.Objective.String(), 100))
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func listRecords(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	path, format := cfg.Output.Path, cfg.Output.Format
	if len(args) > 0 {
		path = args[0]
		format = outFormat
		if format == "" && (strings.HasSuffix(path, ".db") || strings.HasSuffix(path, ".sqlite")) {
			format = output.FormatSQLite
		}
	}
	ctx := context.Background()

	if recordID != "" {
		rec, err := findRecord(ctx, path, format, recordID)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tLABEL\tFEASIBLE\tRELAXED\tFIXED")
	n := 0
	err = output.Read(ctx, path, format, func(rec *output.Record) error {
		if recordLimit > 0 && n >= recordLimit {
			return nil
		}
		n++
		feasible, total := rec.Feasible()
		relaxed, fixed := "-", "-"
		if rec.Relaxed != nil {
			relaxed = fmt.Sprintf("%s %.4g", rec.Relaxed.Status, rec.Relaxed.Objective)
		}
		if rec.Fixed != nil {
			fixed = fmt.Sprintf("%s %.4g", rec.Fixed.Status, rec.Fixed.Objective)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			rec.ID[:8],
			rec.Time.Format("2006-01-02 15:04:05"),
			rec.Label,
			feasible, total,
			relaxed, fixed)
		return nil
	})
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Println("no records found")
		return nil
	}
	return w.Flush()
}

// findRecord matches id as a prefix so the short IDs of the listing work.
func findRecord(ctx context.Context, path, format, id string) (*output.Record, error) {
	if format == output.FormatSQLite && len(id) == 36 {
		st, err := output.OpenSQL(path)
		if err != nil {
			return nil, err
		}
		defer st.Close()
		return st.Load(ctx, id)
	}

	var found *output.Record
	err := output.Read(ctx, path, format, func(rec *output.Record) error {
		if found == nil && strings.HasPrefix(rec.ID, id) {
			found = rec
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", output.ErrNotFound, id)
	}
	return found, nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROBLEM\tTIME\tSCENARIOS\tDT\tINTEG\tDESIGN")
	for _, run := range runs {
		names := make([]string, 0, len(run.Design))
		for name := range run.Design {
			names = append(names, name)
		}
		sort.Strings(names)
		pt := make([]float64, len(names))
		for i, name := range names {
			pt[i] = run.Design[name]
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.4g\t%s\t%s\n",
			run.ID,
			run.Problem,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			len(run.Scenarios),
			run.Dt,
			run.Integrator,
			formatPoint(names, pt),
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	if len(meta.Scenarios) == 0 {
		return fmt.Errorf("no data to plot")
	}

	trajs := make([]*simulate.Trajectory, len(meta.Scenarios))
	for k := range meta.Scenarios {
		trajs[k], err = st.LoadTrajectory(runID, k)
		if err != nil {
			return err
		}
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("problem: %s\n", meta.Problem)
	fmt.Printf("scenarios: %d\n\n", len(trajs))
	plotStates(trajs, stateName)
	return nil
}
