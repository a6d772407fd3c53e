package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/droverhq/drover/internal/engine"
	"github.com/droverhq/drover/internal/monitor"
	"github.com/droverhq/drover/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database    string
	ProbeConfig string
	Seed        int64
	MinWorkers  int
	MaxWorkers  int

	// TokenGenerator overrides run token generation (for testing).
	// Nil means UUIDv7 tokens.
	TokenGenerator engine.RunTokenGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <manifests-dir>",
		Short: "Start the engine with compiled manifests",
		Long: `Start the pipeline engine with compiled CUE manifests.

The engine loads pipelines from the manifest directory, opens the
SQLite event log (creating it if needed), and starts the single-writer
event loop. Submitted runs execute until SIGINT or SIGTERM.

Example:
  drover run --db ./drover.db ./manifests
  drover run --db /tmp/test.db ./manifests --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite event log (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.ProbeConfig, "probe-config", "", "YAML probe set for probe tasks (default: builtin probes)")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 1, "seed for simulator tasks")
	cmd.Flags().IntVar(&opts.MinWorkers, "min-workers", 1, "worker pool floor under load")
	cmd.Flags().IntVar(&opts.MaxWorkers, "max-workers", 4, "worker pool ceiling")

	return cmd
}

func runEngine(opts *RunOptions, manifestsDir string, cmd *cobra.Command) error {
	configureLogger(opts.Verbose)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	slog.Info("compiling manifests", "dir", manifestsDir)
	loaded, err := loadManifests(manifestsDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compile manifests", err)
	}
	slog.Info("manifests compiled", "pipelines", len(loaded.Pipelines))

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open event log", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing event log", "error", closeErr)
		}
	}()

	clock, err := openClock(ctx, st)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read event log", err)
	}

	probes, err := loadProbes(opts.ProbeConfig, st)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load probe config", err)
	}

	tokenGen := opts.TokenGenerator
	if tokenGen == nil {
		tokenGen = engine.UUIDv7Generator{}
	}
	reg := buildRegistry(st, probes, opts.Seed, clock, slog.Default())
	pool := engine.NewPool(engine.PoolConfig{
		MinWorkers: opts.MinWorkers,
		MaxWorkers: opts.MaxWorkers,
		Sampler:    monitor.HostSampler{},
		Logger:     slog.Default(),
	})
	eng, err := engine.New(st, loaded.Pipelines, tokenGen, reg,
		engine.WithClock(clock), engine.WithPool(pool))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build engine", err)
	}

	runCtx, cancel := signalContext(ctx)
	defer cancel()

	// Pick up runs left incomplete by a previous session before the
	// loop starts consuming events.
	if err := eng.Resume(runCtx); err != nil &&
		!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "failed to resume incomplete runs", err)
	}

	go pool.Scale(runCtx, 5*time.Second)

	slog.Info("engine starting", "db", opts.Database, "manifests_dir", manifestsDir)
	fmt.Fprintln(cmd.OutOrStdout(), "Engine started. Listening for runs.")
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	if err := eng.Run(runCtx); err != nil &&
		!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "engine error", err)
	}

	slog.Info("engine stopped gracefully")
	return nil
}

// loadProbes builds the probe set for the probe runner kind: the
// configured file when given, the builtin set otherwise.
func loadProbes(path string, st *store.Store) ([]monitor.Probe, error) {
	if path == "" {
		return defaultProbes(st), nil
	}
	cfg, err := monitor.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return cfg.Build(st)
}

// signalContext derives a context cancelled by SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
