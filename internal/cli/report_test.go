package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droverhq/drover/internal/ir"
	"github.com/droverhq/drover/internal/store"
)

// seededDB creates a file-backed event log with two recorded runs and
// returns its path.
func seededDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "drover.db")
	s, err := store.Open(path)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.WriteRun(ctx, ir.Run{
		Token: "run-a", Pipeline: "nightly", SpecHash: "h1",
		Status: ir.RunSucceeded, StartedSeq: 1,
	}))
	require.NoError(t, s.WriteRun(ctx, ir.Run{
		Token: "run-b", Pipeline: "nightly", SpecHash: "h1",
		Status: ir.RunFailed, StartedSeq: 5,
	}))
	require.NoError(t, s.WriteInvocation(ctx, ir.Invocation{
		ID: "inv-1", RunToken: "run-a", TaskURI: "nightly.fetch",
		Args: ir.Object{"url": ir.String("https://feeds.example.com/daily")},
		Seq:  2, SpecHash: "h1", EngineVersion: "v1", IRVersion: "v1",
	}))
	require.NoError(t, s.WriteResult(ctx, ir.Result{
		ID: "res-1", InvocationID: "inv-1", Status: ir.StatusSucceeded,
		Output: ir.Object{"status": ir.Int(200)},
		Attempts: 1, DurationMS: 48, Seq: 3,
	}))
	return path
}

func TestReport_RunsText(t *testing.T) {
	db := seededDB(t)

	out, err := execute(t, "report", "runs", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, `"report":"runs"`)
	assert.Contains(t, out, `"total":2`)
}

func TestReport_RunsJSONEnvelope(t *testing.T) {
	db := seededDB(t)

	out, err := execute(t, "--format", "json", "report", "runs", "--db", db)
	require.NoError(t, err)

	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &doc))
	assert.Equal(t, "runs", doc["report"])
}

func TestReport_UnknownKind(t *testing.T) {
	_, err := execute(t, "report", "bandwidth", "--db", seededDB(t))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReport_WhereFilter(t *testing.T) {
	db := seededDB(t)

	out, err := execute(t, "report", "runs", "--db", db, "--where", "status=eq:failed")
	require.NoError(t, err)
	assert.Contains(t, out, "1 row(s) from runs")
	assert.Contains(t, out, "token=run-b")
	assert.NotContains(t, out, "run-a")
}

func TestReport_WhereSince(t *testing.T) {
	db := seededDB(t)

	out, err := execute(t, "--format", "json", "report", "runs", "--db", db,
		"--where", "started_seq=since:5")
	require.NoError(t, err)

	var resp struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "run-b", resp.Data[0]["token"])
}

func TestReport_BadWhereFilter(t *testing.T) {
	_, err := execute(t, "report", "runs", "--db", seededDB(t), "--where", "status~failed")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReport_WriteOut(t *testing.T) {
	db := seededDB(t)
	outDir := t.TempDir()

	_, err := execute(t, "report", "runs", "--db", db, "--out", outDir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(outDir, "runs.json"))
}

func TestReport_HealthEmptyStore(t *testing.T) {
	out, err := execute(t, "report", "health", "--db", seededDB(t))
	require.NoError(t, err)
	assert.Contains(t, out, `"report":"health"`)
}

func TestReport_BettingEmptyStore(t *testing.T) {
	out, err := execute(t, "report", "betting", "--db", seededDB(t))
	require.NoError(t, err)
	assert.Contains(t, out, `"report":"betting"`)
}
