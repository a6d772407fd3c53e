package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/droverhq/drover/internal/monitor"
	"github.com/droverhq/drover/internal/notify"
	"github.com/droverhq/drover/internal/store"
)

// MonitorOptions holds flags for the monitor command.
type MonitorOptions struct {
	*RootOptions
	Database     string
	Config       string
	NotifyConfig string
}

// NewMonitorCommand creates the monitor command.
func NewMonitorCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MonitorOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run health probes standalone",
		Long: `Run the configured health probes on their intervals, persisting
samples to the event log and raising deduplicated alerts for warning
and critical readings. With --notify-config, alerts also fan out to
the configured notification channels.

Runs until SIGINT or SIGTERM.

Examples:
  drover monitor --db ./drover.db --config ./probes.yaml
  drover monitor --db ./drover.db --config ./probes.yaml --notify-config ./channels.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite event log (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Config, "config", "", "YAML probe set (required)")
	_ = cmd.MarkFlagRequired("config")
	cmd.Flags().StringVar(&opts.NotifyConfig, "notify-config", "", "YAML channel registry for alert fan-out")

	return cmd
}

func runMonitor(opts *MonitorOptions, cmd *cobra.Command) error {
	configureLogger(opts.Verbose)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open event log", err)
	}
	defer st.Close()

	cfg, err := monitor.LoadConfig(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load probe config", err)
	}
	probes, err := cfg.Build(st)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build probes", err)
	}

	clock, err := openClock(ctx, st)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read event log", err)
	}

	monOpts := []monitor.Option{monitor.WithLogger(slog.Default())}
	var watch func(context.Context)
	if opts.NotifyConfig != "" {
		notifyCfg, err := notify.LoadConfig(opts.NotifyConfig)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load notify config", err)
		}
		dispatcher := notify.NewDispatcher(notifyCfg, st, clock, slog.Default())
		monOpts = append(monOpts, monitor.WithAlertSink(dispatcher))
		watch = func(wctx context.Context) {
			// Hot-reload the channel registry on config edits; the
			// dispatcher keeps the last good set on parse failure.
			if err := dispatcher.Watch(wctx, opts.NotifyConfig); err != nil &&
				!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				slog.Warn("notify config watch stopped", "error", err)
			}
		}
	}

	m := monitor.New(st, probes, clock, monOpts...)

	runCtx, cancel := signalContext(ctx)
	defer cancel()

	if watch != nil {
		go watch(runCtx)
	}

	slog.Info("monitor starting", "probes", len(probes))
	fmt.Fprintln(cmd.OutOrStdout(), "Monitor started. Press Ctrl-C to stop.")

	if err := m.Run(runCtx); err != nil &&
		!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "monitor error", err)
	}

	slog.Info("monitor stopped gracefully")
	return nil
}
