package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/san-kum/dynopt/internal/analysis"
	"github.com/san-kum/dynopt/internal/automation"
	"github.com/san-kum/dynopt/internal/config"
	"github.com/san-kum/dynopt/internal/experiment"
	"github.com/san-kum/dynopt/internal/export"
	"github.com/san-kum/dynopt/internal/optim"
	"github.com/san-kum/dynopt/internal/solution"
	"github.com/san-kum/dynopt/internal/storage"
	"github.com/san-kum/dynopt/internal/viz"
)

var (
	configFile string
	preset     string
	integrator string
	shooting   string
	frames     int
	draws      int
	workers    int
	ranges     []string
	seed       uint64
	stage      string
	costType   string
	stateName  string
	stateRow   int
	xAxis      string
	yAxis      string
	output     string
	svgFile    string
	asJSON     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dynopt",
		Short: "optimal control solution post-processing",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd)
		},
	}

	rootCmd.PersistentFlags().String("data", ".dynopt", "data directory")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "log as json")

	runCmd := &cobra.Command{
		Use:   "run [model]",
		Short: "decode, integrate and store a solution",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runProblem,
	}
	problemFlags(runCmd)
	runCmd.Flags().StringVar(&integrator, "integrator", "", "integrator (overrides the problem file)")
	runCmd.Flags().StringVar(&shooting, "shooting", "", "shooting policy (single, single_discontinuous_phase, multiple)")
	runCmd.Flags().IntVar(&frames, "frames", 0, "interpolation frames")
	runCmd.Flags().IntVar(&draws, "draws", 0, "noise draws")
	runCmd.Flags().Uint64Var(&seed, "seed", 0, "noise seed")
	runCmd.Flags().IntVar(&workers, "workers", 0, "noise draws integrated at once")
	runCmd.Flags().StringVar(&stage, "stage", "integrated", "solution to store (initial, integrated, interpolated)")
	runCmd.Flags().BoolVar(&asJSON, "json", false, "print the stored solution as json")

	costCmd := &cobra.Command{
		Use:   "cost [model]",
		Short: "print the cost of the initial point",
		Args:  cobra.MaximumNArgs(1),
		RunE:  printCost,
	}
	problemFlags(costCmd)
	costCmd.Flags().StringVar(&costType, "type", "all", "terms to print (objectives, constraints, all)")

	sweepCmd := &cobra.Command{
		Use:   "sweep [model]",
		Short: "grid search constant initial guesses by initial cost",
		Args:  cobra.MaximumNArgs(1),
		RunE:  sweepGuesses,
	}
	problemFlags(sweepCmd)
	sweepCmd.Flags().StringArrayVar(&ranges, "param", nil, "guess range, e.g. controls.0.tau=-1,0,1 (repeatable)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a state of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&stateName, "state", "", "state column (default: every column)")

	phaseCmd := &cobra.Command{
		Use:   "phase [run_id]",
		Short: "phase portrait of two states of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  phasePlot,
	}
	phaseCmd.Flags().StringVar(&xAxis, "x", "", "state on the x axis (default: first state)")
	phaseCmd.Flags().StringVar(&yAxis, "y", "", "state on the y axis (default: second state)")
	phaseCmd.Flags().StringVar(&svgFile, "svg", "", "also write the portrait to an svg file")

	batchCmd := &cobra.Command{
		Use:   "batch [scenario.yaml]",
		Short: "run and store every step of a scenario",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}

	spectrumCmd := &cobra.Command{
		Use:   "spectrum [run_id]",
		Short: "dominant frequency of a state of an interpolated run",
		Args:  cobra.ExactArgs(1),
		RunE:  spectrumRun,
	}
	spectrumCmd.Flags().StringVar(&stateName, "state", "", "state column (default: every column)")

	previewCmd := &cobra.Command{
		Use:   "preview [model]",
		Short: "plot a state of the initial point without storing it",
		Args:  cobra.MaximumNArgs(1),
		RunE:  previewProblem,
	}
	problemFlags(previewCmd)
	previewCmd.Flags().StringVar(&stateName, "state", "", "state name")
	previewCmd.Flags().IntVar(&stateRow, "row", 0, "row of the state")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export run metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list available presets for a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := config.ListPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for model: %s\n", args[0])
				return nil
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, p := range presets {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "list models, penalties and integrators",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := experiment.NewRegistry()
			fmt.Printf("models:      %s\n", strings.Join(reg.ListModels(), ", "))
			fmt.Printf("penalties:   %s\n", strings.Join(reg.ListPenalties(), ", "))
			fmt.Printf("integrators: %s\n", strings.Join(reg.ListIntegrators(), ", "))
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, batchCmd, costCmd, sweepCmd, listCmd, plotCmd, phaseCmd, spectrumCmd, previewCmd, exportCmd, exportJSONCmd, presetsCmd, modelsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func problemFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "problem file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset problem")
}

func initConfig(cmd *cobra.Command) error {
	viper.SetEnvPrefix("DYNOPT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	for _, name := range []string{"data", "log-level", "log-json"} {
		if err := viper.BindPFlag(name, cmd.Root().PersistentFlags().Lookup(name)); err != nil {
			return err
		}
	}
	return nil
}

func newLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(viper.GetString("log-level"))
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	if !viper.GetBool("log-json") {
		cfg.Encoding = "console"
	}
	return cfg.Build()
}

func dataDir() string {
	return viper.GetString("data")
}

// loadProblem resolves, in order, --config, --preset for the model argument
// and the default problem.
func loadProblem(args []string) (*config.Config, error) {
	if configFile != "" {
		cfg, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, nil
	}

	model := "pendulum"
	if len(args) > 0 {
		model = args[0]
	}
	if preset != "" {
		cfg := config.GetPreset(model, preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(model))
		}
		return cfg, nil
	}
	if len(args) > 0 && model != "pendulum" {
		return nil, fmt.Errorf("model %s needs --preset or --config (available presets: %v)", model, config.ListPresets(model))
	}
	return config.DefaultConfig(), nil
}

func newExperiment(cmd *cobra.Command, args []string) (*experiment.Experiment, *config.Config, *zap.Logger, error) {
	cfg, err := loadProblem(args)
	if err != nil {
		return nil, nil, nil, err
	}

	// presets are shared, flags must not leak into them
	c := *cfg
	cfg = &c
	flags := cmd.Flags()
	if flags.Changed("integrator") {
		cfg.Integrate.Integrator = integrator
	}
	if flags.Changed("shooting") {
		cfg.Integrate.Shooting = shooting
		cfg.Integrate.KeepIntermediatePoints = cfg.Integrate.KeepIntermediatePoints || shooting == "multiple"
	}
	if flags.Changed("frames") {
		cfg.Interpolate = config.InterpolateConfig{Frames: frames}
	}
	if flags.Changed("draws") {
		cfg.Noise.Draws = draws
	}
	if flags.Changed("seed") {
		cfg.Noise.Seed = seed
	}
	if flags.Changed("workers") {
		cfg.Noise.Workers = workers
	}

	logger, err := newLogger()
	if err != nil {
		return nil, nil, nil, err
	}
	exp, err := experiment.New(cfg, experiment.WithLogger(logger))
	if err != nil {
		return nil, nil, nil, err
	}
	return exp, cfg, logger, nil
}

func runProblem(cmd *cobra.Command, args []string) error {
	exp, cfg, logger, err := newExperiment(cmd, args)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("running %s problem...\n", cfg.Model)
	res, err := exp.Run(ctx)
	if err != nil {
		return err
	}

	sol, err := automation.Stage(res, stage)
	if err != nil {
		return err
	}

	st := storage.New(dataDir())
	if err := st.Init(); err != nil {
		return err
	}
	run := storage.Run{Preset: preset, Model: cfg.Model, Solution: sol, Terms: res.Terms, Cost: res.Cost}
	runID, err := st.Save(run)
	if err != nil {
		return err
	}

	if asJSON {
		data := storage.NewExportData(run)
		data.ID = runID
		return storage.ExportJSONStdout(data)
	}

	fmt.Printf("completed in %v\n", res.Elapsed)
	fmt.Printf("run id: %s\n\n", runID)
	if err := viz.Summary(os.Stdout, sol, res.Cost); err != nil {
		return err
	}
	fmt.Println()
	return res.Initial.WriteCostReport(os.Stdout, solution.CostAll)
}

func printCost(cmd *cobra.Command, args []string) error {
	exp, _, logger, err := newExperiment(cmd, args)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ct, err := solution.ParseCostType(costType)
	if err != nil {
		return err
	}
	sol, err := exp.Initial()
	if err != nil {
		return err
	}
	return sol.WriteCostReport(os.Stdout, ct)
}

func sweepGuesses(cmd *cobra.Command, args []string) error {
	if len(ranges) == 0 {
		return fmt.Errorf("at least one --param is required")
	}
	base, err := loadProblem(args)
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	names := make([]string, len(ranges))
	values := make([][]float64, len(ranges))
	total := 1
	for i, r := range ranges {
		if names[i], values[i], err = optim.ParseRange(r); err != nil {
			return err
		}
		total *= len(values[i])
	}

	build := func(params map[string]float64) (*experiment.Experiment, error) {
		cfg, err := optim.WithGuesses(base, params)
		if err != nil {
			return nil, err
		}
		return experiment.New(cfg, experiment.WithLogger(logger))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("searching %d combinations...\n", total)
	best, cost, err := optim.NewGridSearch(names, values).Search(ctx, build, optim.InitialCost)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GUESS\tVALUE")
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%g\n", name, best[name])
	}
	fmt.Fprintf(w, "cost\t%.6g\n", cost)
	return w.Flush()
}

func previewProblem(cmd *cobra.Command, args []string) error {
	exp, _, logger, err := newExperiment(cmd, args)
	if err != nil {
		return err
	}
	defer logger.Sync()

	sol, err := exp.Initial()
	if err != nil {
		return err
	}
	names := exp.Model().StateNames()
	if stateName != "" {
		names = []string{stateName}
	}
	for _, name := range names {
		series, err := viz.StateSeries(sol, name, stateRow)
		if err != nil {
			return err
		}
		graph, err := viz.Plot(series, viz.PlotOptions{Caption: name})
		if err != nil {
			return err
		}
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir())
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tPRESET\tTIME\tPHASES\tSTAGE\tCOST")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%.6g\n",
			run.ID,
			run.Model,
			run.Preset,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Phases,
			runStage(run),
			run.Cost,
		)
	}

	return w.Flush()
}

func runStage(meta storage.RunMetadata) string {
	var parts []string
	switch {
	case meta.Interpolated:
		parts = append(parts, "interpolated")
	case meta.Integrated:
		parts = append(parts, "integrated")
	default:
		parts = append(parts, "initial")
	}
	if meta.Merged {
		parts = append(parts, "merged")
	}
	return strings.Join(parts, "+")
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir())
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	phases := make([]*storage.PhaseData, meta.Phases)
	for p := range phases {
		if phases[p], err = st.LoadPhase(runID, p); err != nil {
			return err
		}
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("model: %s\n", meta.Model)
	fmt.Printf("phases: %d\n\n", meta.Phases)

	columns := meta.States
	if stateName != "" {
		columns = []string{stateName}
	}
	for _, col := range columns {
		series := make([][]float64, len(phases))
		for p, pd := range phases {
			if series[p], err = pd.Column(col); err != nil {
				return fmt.Errorf("phase %d: %w", p, err)
			}
		}
		graph, err := viz.Plot(series, viz.PlotOptions{Caption: col + " vs time"})
		if err != nil {
			return err
		}
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

// loadSeries concatenates the named columns across every phase of a run.
func loadSeries(st *storage.Store, meta *storage.RunMetadata, names ...string) ([]float64, [][]float64, error) {
	var times []float64
	cols := make([][]float64, len(names))
	for p := 0; p < meta.Phases; p++ {
		pd, err := st.LoadPhase(meta.ID, p)
		if err != nil {
			return nil, nil, err
		}
		times = append(times, pd.Times...)
		for i, name := range names {
			col, err := pd.Column(name)
			if err != nil {
				return nil, nil, fmt.Errorf("phase %d: %w", p, err)
			}
			cols[i] = append(cols[i], col...)
		}
	}
	return times, cols, nil
}

func phasePlot(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir())
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	if len(meta.States) < 2 && (xAxis == "" || yAxis == "") {
		return fmt.Errorf("run %s has fewer than two states, set --x and --y", meta.ID)
	}
	if xAxis == "" {
		xAxis = meta.States[0]
	}
	if yAxis == "" {
		yAxis = meta.States[1]
	}

	_, cols, err := loadSeries(st, meta, xAxis, yAxis)
	if err != nil {
		return err
	}
	portrait, err := analysis.NewPhasePortrait(xAxis, yAxis, cols[0], cols[1])
	if err != nil {
		return err
	}
	fmt.Print(analysis.PhasePortraitToASCII(portrait, 80, 24))
	if svgFile != "" {
		if err := export.WritePhasePortraitSVG(svgFile, portrait, export.DefaultSVGWidth, export.DefaultSVGHeight, ""); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", svgFile)
	}
	return nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	scenario, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	st := storage.New(dataDir())
	if err := st.Init(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("running scenario %s (%d steps)...\n", scenario.Name, len(scenario.Steps))
	results, runErr := automation.RunScenario(ctx, scenario, st, logger)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tRUN\tMODEL\tSTAGE\tCOST")
	for _, r := range results {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.6g\n", r.Step, r.RunID, r.Model, r.Stage, r.Cost)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return runErr
}

func spectrumRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir())
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	if meta.Phases != 1 {
		return fmt.Errorf("run %s has %d phases, store a merged interpolation", meta.ID, meta.Phases)
	}

	names := meta.States
	if stateName != "" {
		names = []string{stateName}
	}
	times, cols, err := loadSeries(st, meta, names...)
	if err != nil {
		return err
	}
	dt, err := analysis.UniformStep(times, 1e-9)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STATE\tDOMINANT (Hz)")
	for i, name := range names {
		spec, err := analysis.PowerSpectrum(cols[i], dt)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%.4g\n", name, spec.Dominant())
	}
	return w.Flush()
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir())
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func exportJSON(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir())
	data, err := st.Export(args[0])
	if err != nil {
		return err
	}
	if output != "" {
		return storage.ExportJSON(output, *data)
	}
	return storage.ExportJSONStdout(*data)
}
