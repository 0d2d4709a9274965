package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mpcart/internal/config"
	"github.com/san-kum/mpcart/internal/export"
	"github.com/san-kum/mpcart/internal/logger"
	"github.com/san-kum/mpcart/internal/metrics"
	"github.com/san-kum/mpcart/internal/mpc"
	"github.com/san-kum/mpcart/internal/pendulum"
	"github.com/san-kum/mpcart/internal/sim"
	"github.com/san-kum/mpcart/internal/storage"
	"github.com/san-kum/mpcart/internal/viz"
)

var (
	dataDir    string
	quiet      bool
	configFile string
	preset     string
	outDir     string

	// flag overrides applied on top of the selected config
	horizon int
	dt      float64
	steps   int
	x0Flags []float64
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mpcart",
		Short: "model predictive control of a cart with a double inverted pendulum",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Quiet = quiet
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".mpcart", "data directory")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress log output")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a closed-loop simulation",
		RunE:  runSimulation,
	}
	addTuningFlags(runCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored run in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	renderCmd := &cobra.Command{
		Use:   "render [run_id]",
		Short: "render a stored run to PNG images",
		Args:  cobra.ExactArgs(1),
		RunE:  renderRun,
	}
	renderCmd.Flags().StringVar(&outDir, "out", "plots", "output directory")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run trajectory to CSV on stdout",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run metadata and trajectory to JSON on stdout",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range config.ListPresets() {
				fmt.Println(name)
			}
			return nil
		},
	}

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "run the closed loop with a live terminal view",
		RunE:  runLive,
	}
	addTuningFlags(liveCmd)

	rootCmd.AddCommand(runCmd, listCmd, plotCmd, renderCmd, exportCSVCmd, exportJSONCmd, presetsCmd, liveCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addTuningFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().IntVar(&horizon, "horizon", config.DefaultHorizon, "prediction horizon length")
	cmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "sample interval")
	cmd.Flags().IntVar(&steps, "steps", config.DefaultSteps, "number of control steps")
	cmd.Flags().Float64SliceVar(&x0Flags, "x0", nil, "initial state (6 values)")
}

// loadConfig resolves the effective configuration: preset, then config file,
// then explicit CLI flags on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if preset != "" {
		p := config.GetPreset(preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
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

	if cmd.Flags().Changed("horizon") {
		cfg.MPC.Horizon = horizon
	}
	if cmd.Flags().Changed("dt") {
		cfg.MPC.Dt = dt
	}
	if cmd.Flags().Changed("steps") {
		cfg.Sim.Steps = steps
	}
	if cmd.Flags().Changed("x0") {
		cfg.Sim.X0 = x0Flags
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// assemble builds the cart, the discretized controller and the plant from a
// validated configuration.
func assemble(cfg *config.Config) (*pendulum.Cart, *mpc.Controller, *sim.LinearPlant, error) {
	cart, err := pendulum.New(cfg.Cart.M0, cfg.Cart.M1, cfg.Cart.M2,
		cfg.Cart.L1, cfg.Cart.L2, cfg.Cart.Gravity)
	if err != nil {
		return nil, nil, nil, err
	}

	ad, bd, err := cart.Discretize(cfg.MPC.Dt)
	if err != nil {
		return nil, nil, nil, err
	}

	qn := cfg.MPC.Qn
	var qnSym *mat.SymDense
	if len(qn) > 0 {
		qnSym = diag(qn)
	}

	ctrl, err := mpc.New(ad, bd, mpc.Config{
		Horizon: cfg.MPC.Horizon,
		Q:       diag(cfg.MPC.Q),
		R:       diag(cfg.MPC.R),
		Qn:      qnSym,
		XMin:    cfg.MPC.XMin,
		XMax:    cfg.MPC.XMax,
		UMin:    cfg.MPC.UMin,
		UMax:    cfg.MPC.UMax,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	if err := ctrl.SetReference(cfg.Sim.XRef); err != nil {
		return nil, nil, nil, err
	}

	plant, err := sim.NewLinearPlant(ad, bd)
	if err != nil {
		return nil, nil, nil, err
	}
	return cart, ctrl, plant, nil
}

func diag(values []float64) *mat.SymDense {
	s := mat.NewSymDense(len(values), nil)
	for i, v := range values {
		s.SetSym(i, i, v)
	}
	return s
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	_, ctrl, plant, err := assemble(cfg)
	if err != nil {
		return err
	}

	loop := sim.New(ctrl, plant)
	loop.AddMetric(metrics.NewControlEffort())
	loop.AddMetric(metrics.NewTrackingError(cfg.Sim.XRef))
	loop.AddMetric(metrics.NewPeakInput())
	if len(cfg.MPC.XMin) > 0 || len(cfg.MPC.XMax) > 0 {
		loop.AddMetric(metrics.NewBoundMargin(cfg.MPC.XMin, cfg.MPC.XMax))
	}

	fmt.Printf("running %d steps at dt=%.3fs, horizon %d...\n",
		cfg.Sim.Steps, cfg.MPC.Dt, cfg.MPC.Horizon)
	start := time.Now()

	result, err := loop.Run(context.Background(), sim.State(cfg.Sim.X0), sim.Config{
		Dt:            cfg.MPC.Dt,
		Steps:         cfg.Sim.Steps,
		ValidateState: true,
	})
	if err != nil {
		return err
	}

	elapsed := time.Since(start)

	runID, err := st.Save(cfg.MPC.Horizon, cfg.MPC.Dt, result)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("steps: %d\n", result.StepsTaken)
	if n := len(result.InfeasibleSteps); n > 0 {
		fmt.Printf("degraded steps: %d\n", n)
	}
	final := result.States[len(result.States)-1]
	fmt.Printf("final state norm: %.6f\n", final.Norm())
	fmt.Println("\nmetrics:")
	for name, val := range result.Metrics {
		fmt.Printf("  %s: %.6f\n", name, val)
	}

	return nil
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
	fmt.Fprintln(w, "ID\tTIME\tHORIZON\tDT\tSTEPS\tDEGRADED")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.4fs\t%d\t%d\n",
			run.ID,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Horizon,
			run.Dt,
			run.Steps,
			len(run.InfeasibleSteps),
		)
	}

	return w.Flush()
}

var channelCaptions = []string{
	"cart position",
	"theta1 (first link angle)",
	"theta2 (second link angle)",
	"cart velocity",
	"omega1 (first link rate)",
	"omega2 (second link rate)",
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	states, inputs, _, err := st.LoadTrajectory(runID)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("horizon: %d, dt: %.4fs, steps: %d\n\n", meta.Horizon, meta.Dt, meta.Steps)

	for ch := 0; ch < len(states[0]); ch++ {
		data := make([]float64, len(states))
		for i := range states {
			data[i] = states[i][ch]
		}

		caption := fmt.Sprintf("x%d vs time", ch)
		if ch < len(channelCaptions) {
			caption = channelCaptions[ch]
		}

		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(caption),
		)
		fmt.Println(graph)
		fmt.Println()
	}

	if len(inputs) > 0 {
		data := make([]float64, len(inputs))
		for i := range inputs {
			data[i] = inputs[i][0]
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption("applied force"),
		)
		fmt.Println(graph)
	}

	return nil
}

func renderRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	states, inputs, times, err := st.LoadTrajectory(runID)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		return fmt.Errorf("no data to render")
	}

	written, err := export.WritePlots(outDir, times, states, inputs)
	if err != nil {
		return err
	}
	for _, path := range written {
		fmt.Println(path)
	}
	return nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	states, inputs, times, err := st.LoadTrajectory(runID)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		return fmt.Errorf("no data to export")
	}

	w := csv.NewWriter(os.Stdout)
	defer w.Flush()

	header := []string{"time"}
	for i := range states[0] {
		header = append(header, fmt.Sprintf("x%d", i))
	}
	numInputs := 0
	if len(inputs) > 0 {
		numInputs = len(inputs[0])
		for i := 0; i < numInputs; i++ {
			header = append(header, fmt.Sprintf("u%d", i))
		}
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for i := range states {
		row := []string{strconv.FormatFloat(times[i], 'f', 6, 64)}
		for _, val := range states[i] {
			row = append(row, strconv.FormatFloat(val, 'f', 6, 64))
		}
		if i < len(inputs) {
			for _, val := range inputs[i] {
				row = append(row, strconv.FormatFloat(val, 'f', 6, 64))
			}
		} else {
			for j := 0; j < numInputs; j++ {
				row = append(row, "")
			}
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	return nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	states, inputs, times, err := st.LoadTrajectory(runID)
	if err != nil {
		return err
	}

	out := struct {
		Metadata *storage.RunMetadata `json:"metadata"`
		Times    []float64            `json:"times"`
		States   [][]float64          `json:"states"`
		Inputs   [][]float64          `json:"inputs"`
	}{meta, times, states, inputs}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	cart, ctrl, plant, err := assemble(cfg)
	if err != nil {
		return err
	}

	return viz.Run(ctrl, plant, cfg.Sim.X0, cart.L1, cart.L2, cfg.MPC.Dt, cfg.Sim.Steps)
}
