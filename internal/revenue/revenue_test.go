package revenue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droverhq/drover/internal/ir"
	"github.com/droverhq/drover/internal/notify"
	"github.com/droverhq/drover/internal/store"
)

type counterSeq struct{ n atomic.Int64 }

func (c *counterSeq) Next() int64 { return c.n.Add(1) }

type fakeSink struct {
	msgs []notify.Message
	err  error
}

func (f *fakeSink) Dispatch(_ context.Context, msg notify.Message) error {
	f.msgs = append(f.msgs, msg)
	return f.err
}

func revenueTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "revenue_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedPlatform(t *testing.T, s *store.Store, name string, target int64, enabled bool) {
	t.Helper()
	err := s.UpsertPlatform(context.Background(), store.Platform{
		Name:        name,
		Category:    "streaming",
		TargetCents: target,
		Enabled:     enabled,
	})
	require.NoError(t, err)
}

func seedSettled(t *testing.T, s *store.Store, account string, amount, seq int64) {
	t.Helper()
	err := s.WriteTransaction(context.Background(), store.Transaction{
		ID:          uuid.NewString(),
		Account:     account,
		AmountCents: amount,
		Status:      store.TxSettled,
		CreatedSeq:  seq,
	})
	require.NoError(t, err)
}

func TestParseRegistry(t *testing.T) {
	reg, err := ParseRegistry([]byte(`
platforms:
  - name: adsterra
    category: ads
    target_cents: 10000
  - name: shutterstock
    category: content
    target_cents: 5000
    enabled: false
`))
	require.NoError(t, err)
	require.Len(t, reg.Platforms, 2)
	assert.True(t, reg.Platforms[0].enabled())
	assert.False(t, reg.Platforms[1].enabled())
	assert.Equal(t, int64(10000), reg.Platforms[0].TargetCents)
}

func TestParseRegistry_Invalid(t *testing.T) {
	cases := map[string]string{
		"missing name":     "platforms:\n  - category: ads\n    target_cents: 100\n",
		"duplicate":        "platforms:\n  - name: a\n    target_cents: 100\n  - name: a\n    target_cents: 200\n",
		"zero target":      "platforms:\n  - name: a\n    target_cents: 0\n",
		"negative target":  "platforms:\n  - name: a\n    target_cents: -5\n",
		"not yaml at all":  "{{{",
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRegistry([]byte(text))
			assert.Error(t, err)
		})
	}
}

func TestRegistry_Sync(t *testing.T) {
	s := revenueTestStore(t)
	ctx := context.Background()

	reg, err := ParseRegistry([]byte(`
platforms:
  - name: adsterra
    category: ads
    target_cents: 10000
`))
	require.NoError(t, err)
	require.NoError(t, reg.Sync(ctx, s))

	p, err := s.ReadPlatform(ctx, "adsterra")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), p.TargetCents)
	assert.True(t, p.Enabled)

	// A registry edit lands on the next sync.
	reg.Platforms[0].TargetCents = 20000
	require.NoError(t, reg.Sync(ctx, s))
	p, err = s.ReadPlatform(ctx, "adsterra")
	require.NoError(t, err)
	assert.Equal(t, int64(20000), p.TargetCents)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, StatusExcellent, statusFor(130))
	assert.Equal(t, StatusExcellent, statusFor(100))
	assert.Equal(t, StatusGood, statusFor(99))
	assert.Equal(t, StatusGood, statusFor(75))
	assert.Equal(t, StatusFair, statusFor(74))
	assert.Equal(t, StatusFair, statusFor(50))
	assert.Equal(t, StatusPoor, statusFor(49))
	assert.Equal(t, StatusPoor, statusFor(0))
}

func TestTrack_Report(t *testing.T) {
	s := revenueTestStore(t)
	ctx := context.Background()

	seedPlatform(t, s, "adsterra", 10_000, true)
	seedPlatform(t, s, "fiverr", 10_000, true)
	seedPlatform(t, s, "shutterstock", 10_000, true)
	seedPlatform(t, s, "retired", 10_000, false)

	seedSettled(t, s, "adsterra", 12_000, 1)
	seedSettled(t, s, "fiverr", 5_000, 2)
	seedSettled(t, s, "fiverr", 3_000, 3)
	seedSettled(t, s, "shutterstock", 2_000, 4)
	seedSettled(t, s, "retired", 9_000, 5)

	// Pending money does not count.
	require.NoError(t, s.WriteTransaction(ctx, store.Transaction{
		ID: uuid.NewString(), Account: "shutterstock",
		AmountCents: 50_000, Status: store.TxPending, CreatedSeq: 6,
	}))

	sink := &fakeSink{}
	tr := NewTracker(s, &counterSeq{}, WithAlertSink(sink), WithLogger(quietLogger()))

	rep, err := tr.Track(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rep.Platforms, 3)

	byName := map[string]Performance{}
	for _, p := range rep.Platforms {
		byName[p.Platform] = p
	}
	assert.Equal(t, Performance{
		Platform: "adsterra", Category: "streaming",
		TargetCents: 10_000, RecordedCents: 12_000,
		Percent: 120, Status: StatusExcellent,
	}, byName["adsterra"])
	assert.Equal(t, StatusGood, byName["fiverr"].Status)
	assert.Equal(t, int64(80), byName["fiverr"].Percent)
	assert.Equal(t, StatusPoor, byName["shutterstock"].Status)
	assert.Equal(t, int64(20), byName["shutterstock"].Percent)

	assert.Equal(t, int64(30_000), rep.TotalTargetCents)
	assert.Equal(t, int64(22_000), rep.TotalRecordedCents)
	assert.Equal(t, int64(73), rep.OverallPercent)

	// Only the poor stream alerted.
	require.Len(t, sink.msgs, 1)
	assert.Equal(t, notify.SeverityWarning, sink.msgs[0].Severity)
	assert.Equal(t, "revenue:shutterstock", sink.msgs[0].DedupeKey)

	alerts, err := s.ReadAlerts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "revenue:shutterstock", alerts[0].Source)
}

func TestTrack_SinceSeq(t *testing.T) {
	s := revenueTestStore(t)
	ctx := context.Background()

	seedPlatform(t, s, "adsterra", 10_000, true)
	seedSettled(t, s, "adsterra", 9_000, 1)
	seedSettled(t, s, "adsterra", 6_000, 10)

	tr := NewTracker(s, &counterSeq{}, WithLogger(quietLogger()))

	rep, err := tr.Track(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rep.Platforms, 1)
	assert.Equal(t, int64(6_000), rep.Platforms[0].RecordedCents)
	assert.Equal(t, StatusFair, rep.Platforms[0].Status)
}

func TestTrack_AlertDedupe(t *testing.T) {
	s := revenueTestStore(t)
	ctx := context.Background()

	seedPlatform(t, s, "adsterra", 10_000, true)
	seedSettled(t, s, "adsterra", 100, 1)

	sink := &fakeSink{}
	seq := &counterSeq{}
	tr := NewTracker(s, seq, WithAlertSink(sink), WithAlertWindow(50), WithLogger(quietLogger()))

	for range 3 {
		_, err := tr.Track(ctx, 0)
		require.NoError(t, err)
	}
	assert.Len(t, sink.msgs, 1)

	// Once the window has passed, the same stream alerts again.
	seq.n.Add(100)
	_, err := tr.Track(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, sink.msgs, 2)
}

func TestTrack_SinkFailureNonFatal(t *testing.T) {
	s := revenueTestStore(t)
	ctx := context.Background()

	seedPlatform(t, s, "adsterra", 10_000, true)

	sink := &fakeSink{err: errors.New("webhook down")}
	tr := NewTracker(s, &counterSeq{}, WithAlertSink(sink), WithLogger(quietLogger()))

	rep, err := tr.Track(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rep.Platforms, 1)
	assert.Equal(t, StatusPoor, rep.Platforms[0].Status)
}

func TestGenerate_DeterministicAmounts(t *testing.T) {
	ctx := context.Background()
	cfg := GenerateConfig{Platforms: []string{"adsterra", "fiverr"}, Entries: 10}

	a := NewGenerator(revenueTestStore(t), 42, &counterSeq{}, quietLogger())
	b := NewGenerator(revenueTestStore(t), 42, &counterSeq{}, quietLogger())

	sumA, err := a.Generate(ctx, cfg)
	require.NoError(t, err)
	sumB, err := b.Generate(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, sumA, sumB)

	c := NewGenerator(revenueTestStore(t), 43, &counterSeq{}, quietLogger())
	sumC, err := c.Generate(ctx, cfg)
	require.NoError(t, err)
	assert.NotEqual(t, sumA.RecordedCents, sumC.RecordedCents)
}

func TestGenerate_LedgerMatchesSummary(t *testing.T) {
	s := revenueTestStore(t)
	ctx := context.Background()

	gen := NewGenerator(s, 7, &counterSeq{}, quietLogger())
	sum, err := gen.Generate(ctx, GenerateConfig{Platforms: []string{"adsterra"}, Entries: 8})
	require.NoError(t, err)
	assert.Equal(t, 8, sum.Entries)
	assert.Equal(t, 1, sum.Platforms)

	txs, err := s.ListTransactions(ctx, store.TxSettled, 0)
	require.NoError(t, err)
	require.Len(t, txs, 8)
	var total int64
	for _, tx := range txs {
		assert.Equal(t, "adsterra", tx.Account)
		assert.GreaterOrEqual(t, tx.AmountCents, int64(5_00))
		assert.LessOrEqual(t, tx.AmountCents, int64(100_00))
		total += tx.AmountCents
	}
	assert.Equal(t, sum.RecordedCents, total)
}

func TestGenerate_DefaultsToRegisteredPlatforms(t *testing.T) {
	s := revenueTestStore(t)
	ctx := context.Background()

	seedPlatform(t, s, "adsterra", 10_000, true)
	seedPlatform(t, s, "retired", 10_000, false)

	gen := NewGenerator(s, 1, &counterSeq{}, quietLogger())
	sum, err := gen.Generate(ctx, GenerateConfig{})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Platforms)
	assert.Equal(t, 5, sum.Entries)

	txs, err := s.ListTransactions(ctx, "", 0)
	require.NoError(t, err)
	for _, tx := range txs {
		assert.Equal(t, "adsterra", tx.Account)
	}
}

func TestGenerate_NoPlatforms(t *testing.T) {
	gen := NewGenerator(revenueTestStore(t), 1, &counterSeq{}, quietLogger())
	_, err := gen.Generate(context.Background(), GenerateConfig{})
	assert.ErrorContains(t, err, "no platforms")
}

func TestSimRunner(t *testing.T) {
	s := revenueTestStore(t)
	gen := NewGenerator(s, 5, &counterSeq{}, quietLogger())

	runner := SimRunner(gen)
	out, err := runner.Run(context.Background(), ir.TaskSpec{
		Name: "revenue-cycle",
		Params: ir.Object{
			"sim":       ir.String("revenue"),
			"platforms": ir.Array{ir.String("adsterra"), ir.String("fiverr")},
			"entries":   ir.Int(3),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, ir.Int(2), out["platforms"])
	assert.Equal(t, ir.Int(6), out["entries"])
	recorded, ok := out["recorded_cents"].(ir.Int)
	require.True(t, ok)
	assert.Positive(t, int64(recorded))
}

func TestSimRunner_NoPlatforms(t *testing.T) {
	gen := NewGenerator(revenueTestStore(t), 5, &counterSeq{}, quietLogger())
	_, err := SimRunner(gen).Run(context.Background(), ir.TaskSpec{
		Name:   "revenue-cycle",
		Params: ir.Object{"sim": ir.String("revenue")},
	})
	assert.ErrorContains(t, err, "no platforms")
}
