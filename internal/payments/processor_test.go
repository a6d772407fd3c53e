package payments

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droverhq/drover/internal/store"
)

type counterSeq struct{ n atomic.Int64 }

func (c *counterSeq) Next() int64 { return c.n.Add(1) }

func paymentsTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "payments_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testProcessor(t *testing.T) (*Processor, *store.Store) {
	t.Helper()
	st := paymentsTestStore(t)
	return NewProcessor(st, &counterSeq{}, quietLogger()), st
}

func intentEvent(id, typ, ref string) Event {
	ev := Event{ID: id, Type: typ}
	ev.Data.Object.ID = ref
	return ev
}

func seedPending(t *testing.T, st *store.Store, id, ref string, amount int64) {
	t.Helper()
	require.NoError(t, st.WriteTransaction(context.Background(), store.Transaction{
		ID: id, Account: "acct-main", AmountCents: amount,
		Status: store.TxPending, ProviderRef: ref, CreatedSeq: 1,
	}))
}

func TestProcess_SettlesPendingTransaction(t *testing.T) {
	p, st := testProcessor(t)
	ctx := context.Background()
	seedPending(t, st, "tx-1", "pi_100", 2500)

	err := p.Process(ctx, intentEvent("evt_1", EventIntentSucceeded, "pi_100"))
	require.NoError(t, err)

	tx, err := st.ReadTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, store.TxSettled, tx.Status)
	assert.NotZero(t, tx.SettledSeq)
}

func TestProcess_SucceededEventForUnknownRefCreatesTransaction(t *testing.T) {
	p, st := testProcessor(t)
	ctx := context.Background()

	ev := intentEvent("evt_2", EventIntentSucceeded, "pi_200")
	ev.Data.Object.Amount = 9900
	ev.Data.Object.Metadata.Account = "acct-side"
	require.NoError(t, p.Process(ctx, ev))

	tx, err := st.ReadTransactionByProviderRef(ctx, "pi_200")
	require.NoError(t, err)
	assert.Equal(t, store.TxSettled, tx.Status)
	assert.Equal(t, int64(9900), tx.AmountCents)
	assert.Equal(t, "acct-side", tx.Account)
}

func TestProcess_DuplicateEventHasNoSecondEffect(t *testing.T) {
	p, st := testProcessor(t)
	ctx := context.Background()
	seedPending(t, st, "tx-1", "pi_100", 2500)

	ev := intentEvent("evt_1", EventIntentSucceeded, "pi_100")
	require.NoError(t, p.Process(ctx, ev))

	// Roll the transaction back out of band; a replayed event must not
	// re-settle it.
	_, err := st.TransitionTransaction(ctx, "tx-1", store.TxSettled, store.TxRefunded, "", "", 10)
	require.NoError(t, err)

	require.NoError(t, p.Process(ctx, ev))
	tx, err := st.ReadTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, store.TxRefunded, tx.Status)
}

func TestProcess_RetryAfterFailedEffectStillSettles(t *testing.T) {
	p, st := testProcessor(t)
	ctx := context.Background()
	seedPending(t, st, "tx-1", "pi_100", 2500)

	// Force the ledger write to fail on the first delivery.
	_, err := st.DB().ExecContext(ctx, `
		CREATE TRIGGER reject_settle BEFORE UPDATE ON transactions
		BEGIN SELECT RAISE(ABORT, 'disk I/O error'); END
	`)
	require.NoError(t, err)

	ev := intentEvent("evt_1", EventIntentSucceeded, "pi_100")
	require.Error(t, p.Process(ctx, ev))

	// The provider retries the same event once the fault clears. It must
	// not be dropped as a duplicate of the failed delivery.
	_, err = st.DB().ExecContext(ctx, `DROP TRIGGER reject_settle`)
	require.NoError(t, err)
	require.NoError(t, p.Process(ctx, ev))

	tx, err := st.ReadTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, store.TxSettled, tx.Status)
}

func TestProcess_FailureEventRecordsReason(t *testing.T) {
	p, st := testProcessor(t)
	ctx := context.Background()
	seedPending(t, st, "tx-1", "pi_100", 2500)

	ev := intentEvent("evt_3", EventIntentFailed, "pi_100")
	ev.Data.Object.LastPaymentError.Message = "card declined"
	require.NoError(t, p.Process(ctx, ev))

	tx, err := st.ReadTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, store.TxFailed, tx.Status)
	assert.Equal(t, "card declined", tx.Error)
}

func TestProcess_FailureEventDefaultReason(t *testing.T) {
	p, st := testProcessor(t)
	ctx := context.Background()
	seedPending(t, st, "tx-1", "pi_100", 2500)

	require.NoError(t, p.Process(ctx, intentEvent("evt_3", EventIntentFailed, "pi_100")))

	tx, err := st.ReadTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, "payment failed", tx.Error)
}

func TestProcess_RefundOnSettledTransaction(t *testing.T) {
	p, st := testProcessor(t)
	ctx := context.Background()
	seedPending(t, st, "tx-1", "pi_100", 2500)
	require.NoError(t, p.Process(ctx, intentEvent("evt_1", EventIntentSucceeded, "pi_100")))

	// charge.refunded carries the intent as a reference field.
	ev := Event{ID: "evt_4", Type: EventChargeRefunded}
	ev.Data.Object.ID = "ch_900"
	ev.Data.Object.PaymentIntent = "pi_100"
	require.NoError(t, p.Process(ctx, ev))

	tx, err := st.ReadTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, store.TxRefunded, tx.Status)
}

func TestProcess_RefundRacingSettleWebhook(t *testing.T) {
	p, st := testProcessor(t)
	ctx := context.Background()
	seedPending(t, st, "tx-1", "pi_100", 2500)

	// Refund arrives before the settle webhook ever did.
	require.NoError(t, p.Process(ctx, intentEvent("evt_4", EventChargeRefunded, "pi_100")))

	tx, err := st.ReadTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, store.TxRefunded, tx.Status)
}

func TestProcess_UnknownEventTypeAcknowledged(t *testing.T) {
	p, st := testProcessor(t)
	ctx := context.Background()

	require.NoError(t, p.Process(ctx, intentEvent("evt_5", "customer.created", "cus_1")))

	// Recorded for dedupe even though unhandled.
	fresh, err := st.MarkWebhookProcessed(ctx, "evt_5", "customer.created", 99)
	require.NoError(t, err)
	assert.False(t, fresh)
}

func TestProcess_FailureForUnknownTransactionAcknowledged(t *testing.T) {
	p, _ := testProcessor(t)

	err := p.Process(context.Background(), intentEvent("evt_6", EventIntentFailed, "pi_ghost"))
	assert.NoError(t, err)
}

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent([]byte(`{
		"id": "evt_1",
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_1", "amount": 1200, "metadata": {"account": "acct-main"}}}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, int64(1200), ev.Data.Object.Amount)
	assert.Equal(t, "pi_1", ev.providerRef())

	_, err = ParseEvent([]byte(`{"type": "x"}`))
	assert.Error(t, err)
	_, err = ParseEvent([]byte(`not json`))
	assert.Error(t, err)
}

func TestIdempotencyKey(t *testing.T) {
	key := IdempotencyKey("acct-main", 4200)
	assert.True(t, len(key) > len("charge-acct-main-4200-"))
	assert.Contains(t, key, "charge-acct-main-4200-")

	other := IdempotencyKey("acct-main", 4200)
	assert.NotEqual(t, key, other, fmt.Sprintf("keys must be unique per attempt: %s", key))
}
