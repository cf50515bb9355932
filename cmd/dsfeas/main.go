package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/san-kum/dsfeas/internal/config"
	"github.com/san-kum/dsfeas/internal/models"
)

var (
	dataDir    string
	configFile string
	preset     string
	problem    string
	verbose    bool

	layout     string
	solverName string
	workers    int
	samples    int
	points     int
	seed       uint64
	integrator string
	noInit     bool
	save       bool
	outPath    string
	outFormat  string
	metricsAt  string
	useTUI     bool

	designFlag  string
	branching   string
	stateName   string
	recordID    string
	recordLimit int
)

var (
	title  = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	label  = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	good   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	bad    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	strong = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "dsfeas",
		Short:         "scenario-tree feasibility evaluation for design-space exploration",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".dsfeas", "data directory for simulation runs")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&preset, "preset", "", "use preset configuration")
	rootCmd.PersistentFlags().StringVar(&problem, "problem", "", "problem name")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "evaluate g(d, p) over a design grid",
		RunE:  runFeasibility,
	}
	addEvalFlags(runCmd)
	runCmd.Flags().BoolVar(&useTUI, "tui", false, "show a progress view")
	runCmd.Flags().BoolVar(&save, "save", false, "persist one record per solve cycle")
	runCmd.Flags().StringVar(&outPath, "out", "", "record output path")
	runCmd.Flags().StringVar(&outFormat, "format", "", "record format (jsonl, sqlite)")
	runCmd.Flags().StringVar(&metricsAt, "metrics", "", "serve prometheus metrics on addr")

	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "find the design grid point with the largest feasible fraction",
		RunE:  searchDesign,
	}
	addEvalFlags(searchCmd)

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "integrate sampled scenarios at one design point and store the trajectories",
		RunE:  simulateScenarios,
	}
	simulateCmd.Flags().StringVar(&designFlag, "design", "", "design point, e.g. tf=300,T=285 (default: mid-range)")
	simulateCmd.Flags().IntVar(&samples, "samples", 0, "uncertain samples")
	simulateCmd.Flags().Uint64Var(&seed, "seed", 0, "random seed")
	simulateCmd.Flags().StringVar(&integrator, "integrator", "", "integrator (euler, rk4, rk45)")

	treeCmd := &cobra.Command{
		Use:   "tree",
		Short: "build a scenario tree and print its outline",
		RunE:  showTree,
	}
	treeCmd.Flags().StringVar(&branching, "bf", "2", "branching factors, e.g. 2,3")
	treeCmd.Flags().StringVar(&layout, "layout", "", "two_stage or three_stage")

	recordsCmd := &cobra.Command{
		Use:   "records [path]",
		Short: "list persisted solve records",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listRecords,
	}
	recordsCmd.Flags().StringVar(&outFormat, "format", "", "record format (jsonl, sqlite)")
	recordsCmd.Flags().StringVar(&recordID, "id", "", "print one record as JSON")
	recordsCmd.Flags().IntVar(&recordLimit, "limit", 0, "show at most this many records")

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "list stored simulation runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored simulation run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&stateName, "state", "", "plot only this state")

	presetsCmd := &cobra.Command{
		Use:   "presets [problem]",
		Short: "list available presets for a problem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := config.ListPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for problem: %s\n", args[0])
				return nil
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, p := range presets {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	problemsCmd := &cobra.Command{
		Use:   "problems",
		Short: "list problems",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range models.List() {
				p, err := models.Get(name)
				if err != nil {
					return err
				}
				fmt.Printf("  %s  %s\n", strong.Render(fmt.Sprintf("%-10s", name)), label.Render(p.Description))
				fmt.Printf("    design    %s\n", strings.Join(p.DesignNames, ", "))
				fmt.Printf("    uncertain %s\n", strings.Join(p.UncertainNames, ", "))
			}
			return nil
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve-solver",
		Short: "solve one problem document from stdin with a built-in solver",
		RunE:  serveSolver,
	}
	serveCmd.Flags().StringVar(&solverName, "solver", "eval", "built-in solver")

	rootCmd.AddCommand(runCmd, searchCmd, simulateCmd, treeCmd, recordsCmd, runsCmd, plotCmd, presetsCmd, problemsCmd, serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, bad.Render("error:"), err)
		os.Exit(1)
	}
}

func addEvalFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&layout, "layout", "", "two_stage or three_stage")
	cmd.Flags().StringVar(&solverName, "solver", "", "solver name")
	cmd.Flags().IntVar(&workers, "workers", 0, "parallel design points")
	cmd.Flags().IntVar(&samples, "samples", 0, "uncertain samples per design point")
	cmd.Flags().IntVar(&points, "points", 0, "grid points per design dimension")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed")
	cmd.Flags().StringVar(&integrator, "integrator", "", "integrator (euler, rk4, rk45)")
	cmd.Flags().BoolVar(&noInit, "no-init", false, "skip trajectory initialization")
}

// loadConfig resolves defaults, then the preset, then the config file, then
// flags that were set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	name := problem
	if name == "" {
		name = cfg.Problem
	}

	if preset != "" {
		p := config.GetPreset(name, preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(name))
		}
		cfg = p
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if problem != "" {
		cfg.Problem = problem
	}
	if flags.Changed("layout") {
		cfg.Layout = layout
	}
	if flags.Changed("solver") {
		cfg.Solver.Name = solverName
	}
	if flags.Changed("workers") {
		cfg.Batch.Workers = workers
	}
	if flags.Changed("samples") {
		cfg.Uncertain.Samples = samples
	}
	if flags.Changed("points") {
		cfg.Design.Points = points
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("integrator") {
		cfg.Initializer.Integrator = integrator
	}
	if flags.Changed("no-init") {
		cfg.Initializer.Enabled = !noInit
	}
	if flags.Changed("save") {
		cfg.SaveOutput = save
	}
	if flags.Changed("out") {
		cfg.Output.Path = outPath
	}
	if flags.Changed("format") {
		cfg.Output.Format = outFormat
	}
	if flags.Changed("metrics") {
		cfg.Metrics.Addr = metricsAt
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseInts(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("bad integer %q: %w", part, err)
		}
		out = append(out, n)
	}
	return out, nil
}

// parseAssignments reads name=value pairs separated by commas.
func parseAssignments(s string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, val, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("expected name=value, got %q", part)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, fmt.Errorf("bad value for %s: %w", name, err)
		}
		out[strings.TrimSpace(name)] = v
	}
	return out, nil
}
