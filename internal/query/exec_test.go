package query_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droverhq/drover/internal/ir"
	"github.com/droverhq/drover/internal/query"
	"github.com/droverhq/drover/internal/store"
)

func execTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "exec_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestExec_FilterAndOrder(t *testing.T) {
	s := execTestStore(t)
	ctx := context.Background()

	samples := []store.HealthSample{
		{Probe: "cpu", Value: 91.5, Level: "critical", Seq: 3},
		{Probe: "cpu", Value: 42.0, Level: "ok", Seq: 1},
		{Probe: "memory", Value: 88.0, Level: "warning", Seq: 2},
		{Probe: "cpu", Value: 87.0, Level: "warning", Seq: 5},
	}
	for _, sample := range samples {
		require.NoError(t, s.WriteHealthSample(ctx, sample))
	}

	rows, err := query.Exec(ctx, s, query.Query{
		Table:   "health_samples",
		Columns: []string{"probe", "value", "level", "seq"},
		Filter:  query.Eq{Field: "probe", Value: ir.String("cpu")},
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// Rows come back in seq order regardless of insertion order.
	assert.Equal(t, int64(1), rows[0]["seq"])
	assert.Equal(t, int64(3), rows[1]["seq"])
	assert.Equal(t, int64(5), rows[2]["seq"])
	assert.Equal(t, "ok", rows[0]["level"])
	assert.Equal(t, 42.0, rows[0]["value"])
}

func TestExec_SinceAndLimit(t *testing.T) {
	s := execTestStore(t)
	ctx := context.Background()

	for seq := int64(1); seq <= 6; seq++ {
		require.NoError(t, s.WriteHealthSample(ctx, store.HealthSample{
			Probe: "disk", Value: float64(seq), Level: "ok", Seq: seq,
		}))
	}

	rows, err := query.Exec(ctx, s, query.Query{
		Table:   "health_samples",
		Columns: []string{"seq"},
		Filter:  query.Since{Seq: 3},
		Limit:   2,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(3), rows[0]["seq"])
	assert.Equal(t, int64(4), rows[1]["seq"])
}

func TestExec_EmptyResultIsNotNil(t *testing.T) {
	s := execTestStore(t)

	rows, err := query.Exec(context.Background(), s, query.Query{
		Table:   "alerts",
		Columns: []string{"id", "message"},
	})
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestExec_TextColumnsScanAsStrings(t *testing.T) {
	s := execTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertPlatform(ctx, store.Platform{
		Name: "streaming-sim", Category: "media", TargetCents: 250_000, Enabled: true,
	}))

	rows, err := query.Exec(ctx, s, query.Query{
		Table:   "platforms",
		Columns: []string{"name", "category", "target_cents"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "streaming-sim", rows[0]["name"])
	assert.Equal(t, "media", rows[0]["category"])
	assert.Equal(t, int64(250_000), rows[0]["target_cents"])
}

func TestExec_InvalidQueryDoesNotReachDatabase(t *testing.T) {
	s := execTestStore(t)

	_, err := query.Exec(context.Background(), s, query.Query{
		Table:   "runs",
		Columns: []string{"token; DROP TABLE runs"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown column")
}
