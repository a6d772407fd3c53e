package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/droverhq/drover/internal/payments"
	"github.com/droverhq/drover/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Database      string
	Addr          string
	WebhookSecret string
	Tolerance     time.Duration
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the payments webhook endpoint",
		Long: `Serve the payment provider webhook over HTTP. Incoming events are
signature-verified, deduplicated on event id, and applied to the
transactions ledger. Runs until SIGINT or SIGTERM, then shuts the
listener down gracefully.

Example:
  drover serve --db ./drover.db --addr :8484 --webhook-secret "$WEBHOOK_SECRET"`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite event log (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Addr, "addr", ":8484", "listen address")
	cmd.Flags().StringVar(&opts.WebhookSecret, "webhook-secret", "", "HMAC secret for signature verification (required)")
	_ = cmd.MarkFlagRequired("webhook-secret")
	cmd.Flags().DurationVar(&opts.Tolerance, "tolerance", 5*time.Minute, "signature timestamp tolerance")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
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

	clock, err := openClock(ctx, st)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read event log", err)
	}

	processor := payments.NewProcessor(st, clock, slog.Default())
	handler := payments.NewHandler(processor, opts.WebhookSecret, opts.Tolerance, slog.Default())

	runCtx, cancel := signalContext(ctx)
	defer cancel()

	slog.Info("webhook server starting", "addr", opts.Addr)
	fmt.Fprintf(cmd.OutOrStdout(), "Webhook server listening on %s. Press Ctrl-C to stop.\n", opts.Addr)

	if err := payments.Serve(runCtx, opts.Addr, handler, slog.Default()); err != nil &&
		!errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "webhook server error", err)
	}

	slog.Info("webhook server stopped gracefully")
	return nil
}
