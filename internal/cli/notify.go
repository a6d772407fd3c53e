package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/droverhq/drover/internal/notify"
	"github.com/droverhq/drover/internal/store"
)

// NotifyOptions holds flags for the notify command.
type NotifyOptions struct {
	*RootOptions
	Database string
	Config   string
	Severity string
	Channels []string
}

// NotifyResult reports where a message went.
type NotifyResult struct {
	Subject  string   `json:"subject"`
	Severity string   `json:"severity"`
	Channels []string `json:"channels,omitempty"`
}

// NewNotifyCommand creates the notify command.
func NewNotifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &NotifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "notify <subject> <message>",
		Short: "Send a message through the configured channels",
		Long: `Fan a message out to the channel registry: severity routing, rate
limits and dedupe apply exactly as they do for engine and monitor
notifications, and every delivery attempt lands in the notifications
table.

Examples:
  drover notify "deploy done" "v42 is live" --db ./drover.db --config ./channels.yaml
  drover notify "disk filling" "88% on /" --severity warning --channels ops,oncall \
      --db ./drover.db --config ./channels.yaml`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNotify(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite event log (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Config, "config", "", "YAML channel registry (required)")
	_ = cmd.MarkFlagRequired("config")
	cmd.Flags().StringVar(&opts.Severity, "severity", "info", "message severity (info|warning|critical)")
	cmd.Flags().StringSliceVar(&opts.Channels, "channels", nil, "restrict delivery to these channels")

	return cmd
}

func runNotify(opts *NotifyOptions, subject, body string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := context.Background()

	severity, err := notify.ParseSeverity(opts.Severity)
	if err != nil {
		return WrapExitError(ExitCommandError, "bad --severity", err)
	}

	cfg, err := notify.LoadConfig(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load notify config", err)
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
	dispatcher := notify.NewDispatcher(cfg, st, clock, log)

	err = dispatcher.Dispatch(ctx, notify.Message{
		Subject:  subject,
		Body:     body,
		Severity: severity,
		Channels: opts.Channels,
	})
	if err != nil {
		_ = formatter.Error("dispatch_failed", err.Error(), nil)
		return NewExitError(ExitFailure, fmt.Sprintf("dispatch failed: %v", err))
	}

	result := NotifyResult{Subject: subject, Severity: severity.String(), Channels: opts.Channels}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ sent %q (%s)\n", subject, severity)
	return nil
}
