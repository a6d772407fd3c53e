package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/droverhq/drover/internal/store"
)

// Provider intent status values the reconciler understands.
const (
	IntentSucceeded = "succeeded"
	IntentCanceled  = "canceled"
	IntentFailed    = "failed"
)

// Provider looks up charge state at the payment provider.
type Provider interface {
	IntentStatus(ctx context.Context, providerRef string) (string, error)
}

// Reconciler converges pending transactions to the provider's view.
// It covers the gap webhooks leave: deliveries that were lost or that
// arrived while the service was down.
type Reconciler struct {
	store    *store.Store
	provider Provider
	seq      Sequencer
	log      *slog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(st *store.Store, provider Provider, seq Sequencer, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{store: st, provider: provider, seq: seq, log: log}
}

// Reconcile sweeps pending transactions created at or after sinceSeq
// (the caller's lookback horizon) and applies the provider's status.
// Per-item failures are collected and returned joined; the sweep
// never stops early. Returns how many transactions changed state.
func (r *Reconciler) Reconcile(ctx context.Context, sinceSeq int64) (int, error) {
	pending, err := r.store.ListTransactions(ctx, store.TxPending, sinceSeq)
	if err != nil {
		return 0, err
	}

	converged := 0
	var errs []error
	for _, tx := range pending {
		if tx.ProviderRef == "" {
			// Never submitted to the provider; nothing to converge.
			continue
		}

		status, err := r.provider.IntentStatus(ctx, tx.ProviderRef)
		if err != nil {
			errs = append(errs, fmt.Errorf("transaction %s: %w", tx.ID, err))
			continue
		}

		var to, reason string
		switch status {
		case IntentSucceeded:
			to = store.TxSettled
		case IntentCanceled, IntentFailed:
			to = store.TxFailed
			reason = "provider reports intent " + status
		default:
			// Still in flight at the provider; leave it pending.
			continue
		}

		moved, err := r.store.TransitionTransaction(ctx, tx.ID, store.TxPending, to, tx.ProviderRef, reason, r.seq.Next())
		if err != nil {
			errs = append(errs, fmt.Errorf("transaction %s: %w", tx.ID, err))
			continue
		}
		if moved {
			converged++
			r.log.Info("transaction reconciled",
				"transaction", tx.ID, "status", to, "provider_ref", tx.ProviderRef)
		}
	}
	return converged, errors.Join(errs...)
}
