package cli

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droverhq/drover/internal/store"
)

func channelConfigFile(t *testing.T, url string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "channels.yaml")
	cfg := fmt.Sprintf(`
channels:
  - name: ops
    kind: slack
    webhook_url: %s
`, url)
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func TestNotify_DeliversAndRecords(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	db := filepath.Join(t.TempDir(), "drover.db")
	out, err := execute(t, "notify", "deploy done", "v42 is live",
		"--db", db, "--config", channelConfigFile(t, srv.URL))
	require.NoError(t, err)
	assert.Contains(t, out, `✓ sent "deploy done" (info)`)
	assert.Equal(t, int64(1), hits.Load())

	s, err := store.Open(db)
	require.NoError(t, err)
	defer s.Close()
	recorded, err := s.ReadNotifications(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Equal(t, "ops", recorded[0].Channel)
	assert.Equal(t, "deploy done", recorded[0].Subject)
}

func TestNotify_BadSeverity(t *testing.T) {
	db := filepath.Join(t.TempDir(), "drover.db")
	_, err := execute(t, "notify", "s", "b", "--severity", "loud",
		"--db", db, "--config", channelConfigFile(t, "https://hooks.example/x"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestNotify_FailedDeliveryExitsOne(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	db := filepath.Join(t.TempDir(), "drover.db")
	_, err := execute(t, "notify", "s", "b",
		"--db", db, "--config", channelConfigFile(t, srv.URL))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestNotify_MissingConfig(t *testing.T) {
	db := filepath.Join(t.TempDir(), "drover.db")
	_, err := execute(t, "notify", "s", "b", "--db", db,
		"--config", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
