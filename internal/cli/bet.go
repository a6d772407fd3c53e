package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/droverhq/drover/internal/betting"
	"github.com/droverhq/drover/internal/store"
)

// defaultBetPlatforms is the platform set when --platforms is not
// given.
var defaultBetPlatforms = []string{"betway-sim", "pinnacle-sim"}

// BetOptions holds flags for bet simulate.
type BetOptions struct {
	*RootOptions
	Database      string
	Seed          int64
	Cycles        int
	Bankroll      int64
	Opportunities int
	Platforms     []string
}

// BetResult aggregates the simulated cycles.
type BetResult struct {
	Cycles   []betting.CycleSummary `json:"cycles"`
	Placed   int                    `json:"placed"`
	Won      int                    `json:"won"`
	Lost     int                    `json:"lost"`
	Net      int64                  `json:"net_cents"`
	Bankroll int64                  `json:"bankroll_after_cents"`
}

// NewBetCommand creates the bet command group.
func NewBetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bet",
		Short: "Betting simulation",
	}
	cmd.AddCommand(newBetSimulateCommand(rootOpts))
	return cmd
}

func newBetSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run seeded betting cycles against the ledger",
		Long: `Run one or more seeded simulation cycles: analyze generated market
opportunities, place stakes under the bankroll policy, settle outcomes
from the seeded source, and record every bet in the ledger. The same
seed against the same ledger produces the same cycles.

Examples:
  drover bet simulate --db ./drover.db --seed 42
  drover bet simulate --db ./drover.db --seed 7 --cycles 3 --bankroll 250000`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBetSimulate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite event log (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 1, "simulation seed")
	cmd.Flags().IntVar(&opts.Cycles, "cycles", 1, "number of cycles to run")
	cmd.Flags().Int64Var(&opts.Bankroll, "bankroll", 100_000, "starting bankroll in cents")
	cmd.Flags().IntVar(&opts.Opportunities, "opportunities", 10, "market opportunities per cycle")
	cmd.Flags().StringSliceVar(&opts.Platforms, "platforms", nil, "restrict to these platforms")

	return cmd
}

func runBetSimulate(opts *BetOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := context.Background()

	if opts.Cycles < 1 {
		return NewExitError(ExitCommandError, "--cycles must be at least 1")
	}
	platforms := opts.Platforms
	if len(platforms) == 0 {
		platforms = defaultBetPlatforms
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
	daySeq := clock.Current()

	log := slog.Default()
	if !opts.Verbose {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	sim := betting.NewSimulator(st, opts.Seed, betting.DefaultPolicy, clock, log)

	result := BetResult{Bankroll: opts.Bankroll}
	for i := 0; i < opts.Cycles; i++ {
		summary, err := sim.RunCycle(ctx, betting.CycleConfig{
			Platforms:     platforms,
			Opportunities: opts.Opportunities,
			Bankroll:      result.Bankroll,
			DaySeq:        daySeq,
		})
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("cycle %d failed", i+1), err)
		}
		result.Cycles = append(result.Cycles, summary)
		result.Placed += summary.Placed
		result.Won += summary.Won
		result.Lost += summary.Lost
		result.Net += summary.Net
		result.Bankroll = summary.Bankroll
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	for i, c := range result.Cycles {
		fmt.Fprintf(formatter.Writer, "cycle %d: placed=%d won=%d lost=%d net=%s bankroll=%s\n",
			i+1, c.Placed, c.Won, c.Lost, cents(c.Net), cents(c.Bankroll))
	}
	fmt.Fprintf(formatter.Writer, "total: placed=%d won=%d lost=%d net=%s bankroll=%s\n",
		result.Placed, result.Won, result.Lost, cents(result.Net), cents(result.Bankroll))
	return nil
}

// cents renders an integer cent amount as dollars.
func cents(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s$%d.%02d", sign, v/100, v%100)
}
