package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/droverhq/drover/internal/store"
)

// Handled event types.
const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
	EventChargeRefunded  = "charge.refunded"
)

// Event is the provider's webhook envelope, trimmed to the fields the
// processor uses.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID            string `json:"id"`
			PaymentIntent string `json:"payment_intent"` // set on charge.* events
			Amount        int64  `json:"amount"`
			Metadata      struct {
				Account string `json:"account"`
			} `json:"metadata"`
			LastPaymentError struct {
				Message string `json:"message"`
			} `json:"last_payment_error"`
		} `json:"object"`
	} `json:"data"`
}

// providerRef is the payment intent the event concerns. Charge events
// carry it as a reference; intent events are it.
func (e Event) providerRef() string {
	if e.Data.Object.PaymentIntent != "" {
		return e.Data.Object.PaymentIntent
	}
	return e.Data.Object.ID
}

// ParseEvent decodes a webhook body.
func ParseEvent(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("parse webhook event: %w", err)
	}
	if ev.ID == "" || ev.Type == "" {
		return Event{}, errors.New("webhook event missing id or type")
	}
	return ev, nil
}

// Sequencer hands out logical sequence numbers for ledger writes.
type Sequencer interface {
	Next() int64
}

// Processor applies webhook events to the transaction ledger.
type Processor struct {
	store *store.Store
	seq   Sequencer
	log   *slog.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(st *store.Store, seq Sequencer, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{store: st, seq: seq, log: log}
}

// Process applies one event. Duplicate event ids are acknowledged
// without reapplying their effects. Unknown event types are recorded
// and acknowledged so the provider stops retrying them.
//
// The dedupe record is written only after the effect succeeds. A
// failed effect leaves the event unrecorded, so the provider's retry
// applies it again; the effects themselves are idempotent.
func (p *Processor) Process(ctx context.Context, ev Event) error {
	seen, err := p.store.WebhookProcessed(ctx, ev.ID)
	if err != nil {
		return err
	}
	if seen {
		p.log.Debug("duplicate webhook event dropped", "event", ev.ID, "type", ev.Type)
		return nil
	}

	seq := p.seq.Next()
	if err := p.apply(ctx, ev, seq); err != nil {
		return err
	}
	_, err = p.store.MarkWebhookProcessed(ctx, ev.ID, ev.Type, seq)
	return err
}

func (p *Processor) apply(ctx context.Context, ev Event, seq int64) error {
	switch ev.Type {
	case EventIntentSucceeded:
		return p.settle(ctx, ev, seq)
	case EventIntentFailed:
		return p.fail(ctx, ev, seq)
	case EventChargeRefunded:
		return p.refund(ctx, ev, seq)
	default:
		p.log.Info("unhandled webhook event type acknowledged", "event", ev.ID, "type", ev.Type)
		return nil
	}
}

// settle marks the matching pending transaction settled, or creates a
// settled transaction when the charge originated outside this system.
func (p *Processor) settle(ctx context.Context, ev Event, seq int64) error {
	ref := ev.providerRef()
	tx, err := p.store.ReadTransactionByProviderRef(ctx, ref)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return p.store.WriteTransaction(ctx, store.Transaction{
			ID:          uuid.NewString(),
			Account:     ev.Data.Object.Metadata.Account,
			AmountCents: ev.Data.Object.Amount,
			Status:      store.TxSettled,
			ProviderRef: ref,
			CreatedSeq:  seq,
		})
	case err != nil:
		return err
	}

	moved, err := p.store.TransitionTransaction(ctx, tx.ID, store.TxPending, store.TxSettled, ref, "", seq)
	if err != nil {
		return err
	}
	if !moved {
		p.log.Info("settle skipped, transaction not pending",
			"transaction", tx.ID, "status", tx.Status)
	}
	return nil
}

func (p *Processor) fail(ctx context.Context, ev Event, seq int64) error {
	ref := ev.providerRef()
	tx, err := p.store.ReadTransactionByProviderRef(ctx, ref)
	if errors.Is(err, store.ErrNotFound) {
		p.log.Info("failure event for unknown transaction acknowledged", "provider_ref", ref)
		return nil
	}
	if err != nil {
		return err
	}

	reason := ev.Data.Object.LastPaymentError.Message
	if reason == "" {
		reason = "payment failed"
	}
	_, err = p.store.TransitionTransaction(ctx, tx.ID, store.TxPending, store.TxFailed, ref, reason, seq)
	return err
}

func (p *Processor) refund(ctx context.Context, ev Event, seq int64) error {
	ref := ev.providerRef()
	tx, err := p.store.ReadTransactionByProviderRef(ctx, ref)
	if errors.Is(err, store.ErrNotFound) {
		p.log.Info("refund event for unknown transaction acknowledged", "provider_ref", ref)
		return nil
	}
	if err != nil {
		return err
	}

	moved, err := p.store.TransitionTransaction(ctx, tx.ID, store.TxSettled, store.TxRefunded, ref, "", seq)
	if err != nil {
		return err
	}
	if !moved {
		// A refund can race the settle webhook; refunding a still
		// pending transaction is accepted.
		_, err = p.store.TransitionTransaction(ctx, tx.ID, store.TxPending, store.TxRefunded, ref, "", seq)
	}
	return err
}

// IdempotencyKey builds the outbound charge idempotency key. The
// account and amount make collisions meaningful to a human reading
// provider logs; the uuid makes the key unique per attempt.
func IdempotencyKey(account string, amountCents int64) string {
	return fmt.Sprintf("charge-%s-%d-%s", account, amountCents, uuid.NewString())
}
