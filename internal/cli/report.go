package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/droverhq/drover/internal/ir"
	"github.com/droverhq/drover/internal/monitor"
	"github.com/droverhq/drover/internal/query"
	"github.com/droverhq/drover/internal/report"
	"github.com/droverhq/drover/internal/revenue"
	"github.com/droverhq/drover/internal/store"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	Database string
	Since    int64
	Where    []string
	Limit    int
	OutDir   string
}

// reportTables maps report kinds to the event log table --where
// filters run against.
var reportTables = map[string]string{
	"runs":    "runs",
	"health":  "health_samples",
	"revenue": "transactions",
	"betting": "bets",
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report <runs|health|revenue|betting>",
		Short: "Render a deterministic JSON report from the event log",
		Long: `Render one of the standard reports as a canonical JSON document:
sorted keys, no HTML escaping, byte-identical for identical state.

With --where the command instead queries the report's backing table
directly; filters take the form field=op:value with op one of
eq, ne, gt, lt, since.

Examples:
  drover report runs --db ./drover.db
  drover report health --db ./drover.db --format json
  drover report betting --db ./drover.db --where platform=eq:betway-sim --where created_seq=since:100
  drover report revenue --db ./drover.db --out ./reports`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite event log (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().Int64Var(&opts.Since, "since", 0, "only consider events at or after this seq")
	cmd.Flags().StringArrayVar(&opts.Where, "where", nil, "row filter field=op:value (repeatable)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "cap --where result rows (0 = no cap)")
	cmd.Flags().StringVar(&opts.OutDir, "out", "", "also write the document to this directory")

	return cmd
}

func runReport(opts *ReportOptions, kind string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := context.Background()

	table, ok := reportTables[kind]
	if !ok {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown report %q", kind))
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open event log", err)
	}
	defer st.Close()

	if len(opts.Where) > 0 {
		return runReportQuery(ctx, formatter, st, table, opts)
	}

	doc, err := buildReport(ctx, st, kind, opts.Since)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("failed to build %s report", kind), err)
	}
	data, err := report.Marshal(doc)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to render report", err)
	}

	if opts.OutDir != "" {
		path, err := report.WriteFile(opts.OutDir, kind, doc)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to write report", err)
		}
		formatter.VerboseLog("wrote %s", path)
	}

	if formatter.Format == "json" {
		return formatter.Success(json.RawMessage(data))
	}
	_, err = formatter.Writer.Write(data)
	return err
}

// buildReport assembles the requested document from the event log.
func buildReport(ctx context.Context, st *store.Store, kind string, since int64) (ir.Object, error) {
	clock, err := openClock(ctx, st)
	if err != nil {
		return nil, err
	}

	switch kind {
	case "runs":
		return report.Runs(ctx, st)
	case "health":
		m := monitor.New(st, nil, clock)
		summary, err := m.Summarize(ctx)
		if err != nil {
			return nil, err
		}
		return report.Health(summary), nil
	case "revenue":
		tracker := revenue.NewTracker(st, clock)
		rep, err := tracker.Track(ctx, since)
		if err != nil {
			return nil, err
		}
		return report.Revenue(rep), nil
	case "betting":
		return report.Betting(ctx, st, since)
	default:
		return nil, fmt.Errorf("unknown report %q", kind)
	}
}

// runReportQuery answers a --where invocation: parse the filters,
// compile them against the backing table, and print the rows.
func runReportQuery(ctx context.Context, formatter *OutputFormatter, st *store.Store, table string, opts *ReportOptions) error {
	pred, err := query.ParseFilter(opts.Where)
	if err != nil {
		return WrapExitError(ExitCommandError, "bad --where filter", err)
	}

	q := query.Query{
		Table:   table,
		Columns: query.Columns(table),
		Filter:  pred,
		Limit:   opts.Limit,
	}
	rows, err := query.Exec(ctx, st, q)
	if err != nil {
		return WrapExitError(ExitCommandError, "query failed", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(rows)
	}

	fmt.Fprintf(formatter.Writer, "%d row(s) from %s\n", len(rows), table)
	for _, row := range rows {
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for i, k := range keys {
			if i > 0 {
				fmt.Fprint(formatter.Writer, "  ")
			}
			fmt.Fprintf(formatter.Writer, "%s=%v", k, row[k])
		}
		fmt.Fprintln(formatter.Writer)
	}
	return nil
}
