package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/droverhq/drover/internal/report"
	"github.com/droverhq/drover/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <run-token>",
		Short: "Rebuild and print a run trace from the event log",
		Long: `Rebuild the full trace of a recorded run: its invocations and results
interleaved in sequence order. The trace is rebuilt twice and the
canonical renderings compared, so a non-deterministic event log is
caught rather than silently reported.

Exit codes:
  0 - trace rebuilt and deterministic
  1 - replay diverged between rebuilds
  2 - command error (database or run not found)

Examples:
  drover replay 0189a7f2-... --db ./drover.db
  drover replay scenario-run --db ./drover.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite event log (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runReplay(opts *ReplayOptions, token string, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open event log", err)
	}
	defer st.Close()

	first, err := rebuildTrace(ctx, st, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NewExitError(ExitCommandError, fmt.Sprintf("run %q not found", token))
		}
		return WrapExitError(ExitCommandError, "failed to rebuild trace", err)
	}
	second, err := rebuildTrace(ctx, st, token)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to rebuild trace", err)
	}

	if opts.Format == "json" {
		if _, err := cmd.OutOrStdout().Write(first); err != nil {
			return err
		}
	} else if err := printTraceText(ctx, cmd, st, token, opts.Verbose); err != nil {
		return err
	}

	if !bytes.Equal(first, second) {
		return NewExitError(ExitFailure, "replay diverged between rebuilds")
	}
	return nil
}

// rebuildTrace renders the run trace in canonical form.
func rebuildTrace(ctx context.Context, st *store.Store, token string) ([]byte, error) {
	doc, err := report.RunTrace(ctx, st, token)
	if err != nil {
		return nil, err
	}
	return report.Marshal(doc)
}

// printTraceText prints the run header and its timeline from the raw
// events, one line per event.
func printTraceText(ctx context.Context, cmd *cobra.Command, st *store.Store, token string, verbose bool) error {
	w := cmd.OutOrStdout()

	run, err := st.ReadRun(ctx, token)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}
	invs, results, err := st.ReadRunEvents(ctx, token)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run events", err)
	}

	fmt.Fprintf(w, "Run %s (%s): %s\n", run.Token, run.Pipeline, run.Status)
	fmt.Fprintln(w)

	taskByInv := make(map[string]string, len(invs))
	type line struct {
		seq  int64
		id   string
		text string
	}
	lines := make([]line, 0, len(invs)+len(results))
	for _, inv := range invs {
		_, task, _ := inv.TaskURI.Split()
		taskByInv[inv.ID] = task
		text := fmt.Sprintf("  [%d] INV  %s", inv.Seq, task)
		if verbose {
			text += fmt.Sprintf("  id=%s", truncateID(inv.ID))
		}
		lines = append(lines, line{inv.Seq, inv.ID, text})
	}
	for _, res := range results {
		text := fmt.Sprintf("  [%d] RES  %s %s", res.Seq, taskByInv[res.InvocationID], res.Status)
		if res.Error != "" {
			text += fmt.Sprintf("  error=%q", res.Error)
		}
		if verbose {
			text += fmt.Sprintf("  attempts=%d duration_ms=%d", res.Attempts, res.DurationMS)
		}
		lines = append(lines, line{res.Seq, res.ID, text})
	}
	sortLines := func(i, j int) bool {
		if lines[i].seq != lines[j].seq {
			return lines[i].seq < lines[j].seq
		}
		return lines[i].id < lines[j].id
	}
	sort.Slice(lines, sortLines)
	for _, l := range lines {
		fmt.Fprintln(w, l.text)
	}
	return nil
}

// truncateID shortens a long identifier for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
