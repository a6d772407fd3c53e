package notify

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droverhq/drover/internal/ir"
	"github.com/droverhq/drover/internal/store"
)

type fakeRecorder struct {
	mu   sync.Mutex
	rows []store.Notification
}

func (r *fakeRecorder) WriteNotification(_ context.Context, n store.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, n)
	return nil
}

func (r *fakeRecorder) byChannel(name string) []store.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []store.Notification
	for _, n := range r.rows {
		if n.Channel == name {
			out = append(out, n)
		}
	}
	return out
}

type counterSeq struct{ n atomic.Int64 }

func (c *counterSeq) Next() int64 { return c.n.Add(1) }

func countingServer(t *testing.T, status int) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func testDispatcher(t *testing.T, cfg Config) (*Dispatcher, *fakeRecorder) {
	t.Helper()
	rec := &fakeRecorder{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewDispatcher(cfg, rec, &counterSeq{}, log), rec
}

func channelCfg(name, url string, minSeverity string) ChannelConfig {
	return ChannelConfig{Name: name, Kind: KindGeneric, WebhookURL: url, MinSeverity: minSeverity}
}

func mustConfig(t *testing.T, channels ...ChannelConfig) Config {
	t.Helper()
	cfg := Config{Channels: channels}
	require.NoError(t, cfg.validate())
	return cfg
}

func TestDispatch_FansOutToAllChannels(t *testing.T) {
	srvA, hitsA := countingServer(t, http.StatusOK)
	srvB, hitsB := countingServer(t, http.StatusOK)

	d, rec := testDispatcher(t, mustConfig(t,
		channelCfg("alpha", srvA.URL, "info"),
		channelCfg("beta", srvB.URL, "info"),
	))

	err := d.Dispatch(context.Background(), Message{Subject: "hello", Severity: SeverityInfo})
	require.NoError(t, err)
	assert.Equal(t, int64(1), hitsA.Load())
	assert.Equal(t, int64(1), hitsB.Load())

	for _, name := range []string{"alpha", "beta"} {
		rows := rec.byChannel(name)
		require.Len(t, rows, 1, name)
		assert.Equal(t, store.NotifyDelivered, rows[0].Status)
		assert.NotZero(t, rows[0].Seq)
	}
}

func TestDispatch_SeverityFloor(t *testing.T) {
	srv, hits := countingServer(t, http.StatusOK)

	d, rec := testDispatcher(t, mustConfig(t,
		channelCfg("critical-only", srv.URL, "critical"),
	))

	require.NoError(t, d.Dispatch(context.Background(), Message{Subject: "fyi", Severity: SeverityInfo}))
	assert.Zero(t, hits.Load())
	assert.Empty(t, rec.byChannel("critical-only"))

	require.NoError(t, d.Dispatch(context.Background(), Message{Subject: "down", Severity: SeverityCritical}))
	assert.Equal(t, int64(1), hits.Load())
}

func TestDispatch_ExplicitChannelList(t *testing.T) {
	srvA, hitsA := countingServer(t, http.StatusOK)
	srvB, hitsB := countingServer(t, http.StatusOK)

	d, _ := testDispatcher(t, mustConfig(t,
		channelCfg("alpha", srvA.URL, "info"),
		channelCfg("beta", srvB.URL, "info"),
	))

	err := d.Dispatch(context.Background(), Message{
		Subject:  "targeted",
		Severity: SeverityInfo,
		Channels: []string{"beta"},
	})
	require.NoError(t, err)
	assert.Zero(t, hitsA.Load())
	assert.Equal(t, int64(1), hitsB.Load())
}

func TestDispatch_DisabledChannelSkipped(t *testing.T) {
	srv, hits := countingServer(t, http.StatusOK)

	off := false
	cfg := mustConfig(t, ChannelConfig{
		Name: "muted", Kind: KindGeneric, WebhookURL: srv.URL, Enabled: &off,
	})
	d, rec := testDispatcher(t, cfg)

	require.NoError(t, d.Dispatch(context.Background(), Message{Subject: "s", Severity: SeverityCritical}))
	assert.Zero(t, hits.Load())
	assert.Empty(t, rec.rows)
}

func TestDispatch_FailureIsolatedPerChannel(t *testing.T) {
	srvBad, _ := countingServer(t, http.StatusInternalServerError)
	srvGood, hitsGood := countingServer(t, http.StatusOK)

	d, rec := testDispatcher(t, mustConfig(t,
		channelCfg("broken", srvBad.URL, "info"),
		channelCfg("healthy", srvGood.URL, "info"),
	))

	err := d.Dispatch(context.Background(), Message{Subject: "s", Severity: SeverityWarning})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel broken")

	// The healthy channel still got the message.
	assert.Equal(t, int64(1), hitsGood.Load())

	broken := rec.byChannel("broken")
	require.Len(t, broken, 1)
	assert.Equal(t, store.NotifyFailed, broken[0].Status)
	assert.Contains(t, broken[0].Error, "webhook status 500")

	healthy := rec.byChannel("healthy")
	require.Len(t, healthy, 1)
	assert.Equal(t, store.NotifyDelivered, healthy[0].Status)
}

func TestDispatch_DedupeWithinWindow(t *testing.T) {
	srv, hits := countingServer(t, http.StatusOK)

	d, rec := testDispatcher(t, mustConfig(t, channelCfg("ops", srv.URL, "info")))

	now := time.Unix(1_700_000_000, 0)
	d.now = func() time.Time { return now }
	d.Reload(mustConfig(t, channelCfg("ops", srv.URL, "info")))

	msg := Message{Subject: "cpu critical", Severity: SeverityCritical, DedupeKey: "probe:cpu"}
	require.NoError(t, d.Dispatch(context.Background(), msg))
	require.NoError(t, d.Dispatch(context.Background(), msg))
	assert.Equal(t, int64(1), hits.Load())

	rows := rec.byChannel("ops")
	require.Len(t, rows, 2)
	assert.Equal(t, store.NotifyDelivered, rows[0].Status)
	assert.Equal(t, store.NotifySkipped, rows[1].Status)
	assert.Contains(t, rows[1].Error, "duplicate")

	// Past the window the same key delivers again.
	now = now.Add(6 * time.Minute)
	require.NoError(t, d.Dispatch(context.Background(), msg))
	assert.Equal(t, int64(2), hits.Load())
}

func TestDispatch_RateLimited(t *testing.T) {
	srv, hits := countingServer(t, http.StatusOK)

	cfg := mustConfig(t, ChannelConfig{
		Name: "slow", Kind: KindGeneric, WebhookURL: srv.URL, RatePerMinute: 1,
	})
	d, rec := testDispatcher(t, cfg)

	now := time.Unix(1_700_000_000, 0)
	d.now = func() time.Time { return now }
	d.Reload(cfg)

	require.NoError(t, d.Dispatch(context.Background(), Message{Subject: "a", Severity: SeverityInfo}))
	require.NoError(t, d.Dispatch(context.Background(), Message{Subject: "b", Severity: SeverityInfo}))
	assert.Equal(t, int64(1), hits.Load())

	rows := rec.byChannel("slow")
	require.Len(t, rows, 2)
	assert.Equal(t, store.NotifySkipped, rows[1].Status)
	assert.Contains(t, rows[1].Error, "rate limited")

	// Tokens refill with time.
	now = now.Add(2 * time.Minute)
	require.NoError(t, d.Dispatch(context.Background(), Message{Subject: "c", Severity: SeverityInfo}))
	assert.Equal(t, int64(2), hits.Load())
}

func TestReload_SwapsChannels(t *testing.T) {
	srvOld, hitsOld := countingServer(t, http.StatusOK)
	srvNew, hitsNew := countingServer(t, http.StatusOK)

	d, _ := testDispatcher(t, mustConfig(t, channelCfg("ops", srvOld.URL, "info")))
	d.Reload(mustConfig(t, channelCfg("ops", srvNew.URL, "info")))

	require.NoError(t, d.Dispatch(context.Background(), Message{Subject: "s", Severity: SeverityInfo}))
	assert.Zero(t, hitsOld.Load())
	assert.Equal(t, int64(1), hitsNew.Load())
}

func TestNotifyRun_FailedRunsAreCritical(t *testing.T) {
	srv, hits := countingServer(t, http.StatusOK)

	d, rec := testDispatcher(t, mustConfig(t, channelCfg("ops", srv.URL, "critical")))

	run := ir.Run{Token: "run-1", Pipeline: "nightly", Status: ir.RunFailed}
	require.NoError(t, d.NotifyRun(context.Background(), run, []string{"ops"}, "task load failed"))
	assert.Equal(t, int64(1), hits.Load())

	rows := rec.byChannel("ops")
	require.Len(t, rows, 1)
	assert.Equal(t, "run nightly failed", rows[0].Subject)

	// A succeeded run maps to info and does not clear the critical floor.
	run.Status = ir.RunSucceeded
	require.NoError(t, d.NotifyRun(context.Background(), run, []string{"ops"}, "done"))
	assert.Equal(t, int64(1), hits.Load())
}
