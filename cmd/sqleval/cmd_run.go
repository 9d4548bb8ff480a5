package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spboyer/sqleval/internal/agent"
	"github.com/spboyer/sqleval/internal/config"
	"github.com/spboyer/sqleval/internal/dataset"
	"github.com/spboyer/sqleval/internal/models"
	"github.com/spboyer/sqleval/internal/oracle"
	"github.com/spboyer/sqleval/internal/orchestration"
	"github.com/spboyer/sqleval/internal/reporting"
	"github.com/spboyer/sqleval/internal/sqlexec"
	"github.com/spboyer/sqleval/internal/uploader"
	"github.com/spf13/cobra"
)

var (
	runOutputDir   string
	runLimit       int
	runWorkers     int
	runModel       string
	runVerbose     bool
	runTranscripts bool
	runJUnit       bool
	runInterpret   bool
	runTurnFilters []string
	runNoUpload    bool
)

// newTransport is replaced in tests.
var newTransport = buildTransport

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <experiment.yaml>",
		Short: "Run an experiment",
		Long: `Run an experiment from a configuration file.

Every selected turn is answered by the configured agent. Its last query and the
turn's reference query are executed read-only and compared by result set. The
configuration and results are written to <output_dir>/<experiment_name>/.`,
		Args: cobra.ExactArgs(1),
		RunE: runCommandE,
	}

	cmd.Flags().StringVar(&runOutputDir, "output-dir", "", "Override output_dir from the experiment file")
	cmd.Flags().IntVar(&runLimit, "limit", 0, "Evaluate at most N turns")
	cmd.Flags().IntVar(&runWorkers, "workers", 0, "Number of turns evaluated concurrently")
	cmd.Flags().StringVar(&runModel, "model", "", "Override agent.model")
	cmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print every agent round")
	cmd.Flags().BoolVar(&runTranscripts, "transcripts", false, "Write per-turn transcript files")
	cmd.Flags().BoolVar(&runJUnit, "junit", false, "Write junit.xml next to results.json")
	cmd.Flags().BoolVar(&runInterpret, "interpret", false, "Print a plain-language interpretation of the results")
	cmd.Flags().StringArrayVar(&runTurnFilters, "turn", nil, "Filter turns by uid or db_id glob pattern (can be repeated)")
	cmd.Flags().BoolVar(&runNoUpload, "no-upload", false, "Skip configured uploads")

	return cmd
}

func runCommandE(cmd *cobra.Command, args []string) error {
	path := args[0]
	exp, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load experiment: %w", err)
	}

	rc := config.NewRunConfig(exp,
		config.WithConfigPath(path),
		config.WithVerbose(runVerbose),
		config.WithInterpret(runInterpret),
		config.WithOutputDir(runOutputDir),
		config.WithLimit(runLimit),
		config.WithWorkers(runWorkers),
		config.WithModel(runModel),
		config.WithTranscripts(runTranscripts),
		config.WithJUnit(runJUnit),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runExperiment(ctx, cmd.OutOrStdout(), rc, runTurnFilters, !runNoUpload)
}

func runExperiment(ctx context.Context, out io.Writer, rc *config.RunConfig, filters []string, upload bool) error {
	exp := rc.Experiment()

	turns, err := loadTurns(ctx, exp.Data)
	if err != nil {
		return err
	}
	if turns, err = orchestration.FilterTurns(turns, filters); err != nil {
		return err
	}

	transport, closeTransport, err := newTransport(exp)
	if err != nil {
		return fmt.Errorf("failed to create oracle transport: %w", err)
	}
	defer func() {
		if err := closeTransport(); err != nil {
			slog.Warn("failed to close oracle transport", "error", err)
		}
	}()

	snapshot, err := exp.AsMap()
	if err != nil {
		return fmt.Errorf("failed to snapshot configuration: %w", err)
	}

	progress := newProgressReporter(out, rc.Verbose())
	opener := sqlexec.SQLiteOpener{Root: exp.Data.DBRoot}
	controller := agent.NewController(oracle.NewClient(transport), opener,
		agent.WithMaxSteps(exp.Agent.MaxSteps),
		agent.WithTimeout(exp.Timeout()),
		agent.WithPreview(agent.PreviewLimits{Rows: exp.Agent.PreviewRows, CellChars: exp.Agent.PreviewCellChars}),
		agent.WithObserver(progress.round),
	)
	runner := orchestration.NewRunner(controller, opener,
		orchestration.WithTimeout(exp.Timeout()),
		orchestration.WithOrderInsensitive(exp.Eval.CompareOrderInsensitive),
		orchestration.WithOnError(exp.Eval.OnError),
		orchestration.WithWorkers(exp.Run.Workers),
		orchestration.WithTranscriptDir(rc.TranscriptDir()),
		orchestration.WithConfigSnapshot(snapshot),
	)
	runner.OnProgress(progress.event)

	fmt.Fprintf(out, "Running experiment: %s\n", exp.ExperimentName)
	fmt.Fprintf(out, "Engine: %s\n", exp.Agent.Engine)
	fmt.Fprintf(out, "Model: %s\n", exp.Agent.Model)
	fmt.Fprintf(out, "Turns: %d\n", len(turns))
	if exp.Run.Workers > 1 {
		fmt.Fprintf(out, "Parallel: %d workers\n", exp.Run.Workers)
	}
	fmt.Fprintln(out)

	result, err := runner.Run(ctx, exp.ExperimentName, turns)
	if err != nil {
		return fmt.Errorf("experiment failed: %w", err)
	}

	runDir := rc.RunDir()
	resultsPath, err := reporting.WriteRun(runDir, exp, result)
	if err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}
	if exp.Run.JUnit {
		if err := reporting.WriteJUnitXML(result, filepath.Join(runDir, reporting.JUnitFile)); err != nil {
			return fmt.Errorf("failed to write junit report: %w", err)
		}
	}
	if exp.Run.Archive {
		if _, err := reporting.WriteArchive(runDir, exp.ExperimentName); err != nil {
			return fmt.Errorf("failed to archive run: %w", err)
		}
	}

	printSummary(out, result)
	if rc.Interpret() {
		fmt.Fprintln(out)
		fmt.Fprint(out, reporting.FormatSummaryReport(result))
	}
	fmt.Fprintf(out, "\nResults saved to: %s\n", resultsPath)

	if upload {
		uploadRun(ctx, out, exp.Upload, runDir)
	}

	if threshold := exp.Eval.MinAccuracy; threshold > 0 && result.Metrics.AccuracyOrZero() < threshold {
		return &AccuracyBelowThresholdError{Accuracy: result.Metrics.AccuracyOrZero(), Threshold: threshold}
	}
	return nil
}

func loadTurns(ctx context.Context, data config.DataConfig) ([]models.Turn, error) {
	store, err := dataset.Open(data.TurnsDB)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	turns, err := store.Load(ctx, dataset.Filter{
		Source:       data.Source,
		Split:        data.Split,
		Limit:        data.Limit,
		MinTurnIndex: data.MinTurnIndex,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load turns: %w", err)
	}
	return turns, nil
}

// uploadRun reports upload failures without failing the run; the results
// are already on disk.
func uploadRun(ctx context.Context, out io.Writer, cfg config.UploadConfig, dir string) {
	u, err := uploader.New(ctx, cfg)
	if err != nil {
		slog.Warn("failed to configure upload", "error", err)
		return
	}
	if !u.Enabled() {
		return
	}
	loc, err := u.UploadDir(ctx, dir)
	if err != nil {
		slog.Warn("upload failed", "error", err)
	}
	if loc != "" {
		fmt.Fprintf(out, "Uploaded to: %s\n", loc)
	}
}

func buildTransport(exp *config.Experiment) (oracle.Transport, func() error, error) {
	noop := func() error { return nil }
	switch exp.Agent.Engine {
	case config.EngineScripted:
		t, err := oracle.LoadScript(exp.Agent.Script)
		return t, noop, err
	case config.EngineCopilot:
		t := oracle.NewCopilotTransport(exp.Agent.Model, nil)
		return t, t.Close, nil
	case config.EngineLLM:
		t, err := oracle.NewLLMTransport(oracle.LLMConfig{
			Provider:  exp.Agent.Provider,
			Model:     exp.Agent.Model,
			BaseURL:   exp.Agent.BaseURL,
			APIKey:    exp.APIKey(oracle.DefaultAPIKeyEnv),
			MaxTokens: exp.Agent.MaxTokens,
		})
		return t, noop, err
	default:
		return nil, nil, fmt.Errorf("unknown engine type: %s", exp.Agent.Engine)
	}
}
