package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/droverhq/drover/internal/engine"
	"github.com/droverhq/drover/internal/ir"
	"github.com/droverhq/drover/internal/store"
)

// SubmitOptions holds flags for the submit command.
type SubmitOptions struct {
	*RootOptions
	Database  string
	Manifests string
	Seed      int64
	Timeout   time.Duration

	TokenGenerator engine.RunTokenGenerator
}

// SubmitResult is the outcome of one submitted run.
type SubmitResult struct {
	RunToken string `json:"run_token"`
	Pipeline string `json:"pipeline"`
	Status   string `json:"status"`
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit <pipeline>",
		Short: "Run one pipeline to completion",
		Long: `Submit a single run of the named pipeline and wait for it to reach a
terminal status. The run executes against the event log like any
other; a failed run exits with code 1.

Examples:
  drover submit nightly --db ./drover.db --manifests ./manifests
  drover submit sim-cycle --db ./drover.db --manifests ./manifests --seed 42`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite event log (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Manifests, "manifests", "", "manifest directory (required)")
	_ = cmd.MarkFlagRequired("manifests")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 1, "seed for simulator tasks")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 5*time.Minute, "how long to wait for the run to finish")

	return cmd
}

func runSubmit(opts *SubmitOptions, pipeline string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	loaded, err := loadManifests(opts.Manifests)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compile manifests", err)
	}
	if loaded.Pipeline(pipeline) == nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("pipeline %q not found in %s", pipeline, opts.Manifests))
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open event log", err)
	}
	defer st.Close()

	clock, err := openClock(ctx, st)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read event log", err)
	}

	log := slog.Default()
	if !opts.Verbose {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	tokenGen := opts.TokenGenerator
	if tokenGen == nil {
		tokenGen = engine.UUIDv7Generator{}
	}
	reg := buildRegistry(st, defaultProbes(st), opts.Seed, clock, log)
	eng, err := engine.New(st, loaded.Pipelines, tokenGen, reg,
		engine.WithClock(clock), engine.WithLogger(log))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build engine", err)
	}

	engineDone := make(chan error, 1)
	go func() { engineDone <- eng.Run(ctx) }()
	defer func() {
		eng.Stop()
		<-engineDone
	}()

	token, err := eng.SubmitRun(pipeline)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to submit run", err)
	}
	formatter.VerboseLog("submitted run %s", token)

	run, err := waitTerminalRun(ctx, st, token, opts.Timeout)
	if err != nil {
		return WrapExitError(ExitCommandError, "run did not finish", err)
	}

	result := SubmitResult{RunToken: run.Token, Pipeline: run.Pipeline, Status: run.Status}
	if formatter.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		mark := "✓"
		if run.Status != ir.RunSucceeded {
			mark = "✗"
		}
		fmt.Fprintf(formatter.Writer, "%s run %s (%s): %s\n", mark, run.Token, run.Pipeline, run.Status)
	}

	if run.Status != ir.RunSucceeded {
		return NewExitError(ExitFailure, fmt.Sprintf("run %s %s", run.Token, run.Status))
	}
	return nil
}

// waitTerminalRun polls the event log until the run leaves the running
// state. The store is the source of truth, not engine internals.
func waitTerminalRun(ctx context.Context, st *store.Store, token string, timeout time.Duration) (ir.Run, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		run, err := st.ReadRun(ctx, token)
		switch {
		case errors.Is(err, store.ErrNotFound):
			// Start event not processed yet.
		case err != nil:
			return ir.Run{}, err
		case run.Status != ir.RunRunning:
			return run, nil
		}

		if time.Now().After(deadline) {
			return ir.Run{}, fmt.Errorf("run %s still not terminal after %s", token, timeout)
		}
		select {
		case <-ctx.Done():
			return ir.Run{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
