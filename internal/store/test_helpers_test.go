package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/droverhq/drover/internal/ir"
)

// createTestStore creates a file-backed store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun creates and writes a running run so invocation FK
// constraints are satisfied.
func createTestRun(t *testing.T, s *Store, token string, seq int64) ir.Run {
	t.Helper()
	run := ir.Run{
		Token:      token,
		Pipeline:   "nightly",
		SpecHash:   "test-hash",
		Status:     ir.RunRunning,
		StartedSeq: seq,
	}
	if err := s.WriteRun(context.Background(), run); err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}
	return run
}

// createTestInvocation creates a test invocation with minimal required fields.
func createTestInvocation(id, runToken, taskURI string, seq int64) ir.Invocation {
	return ir.Invocation{
		ID:            id,
		RunToken:      runToken,
		TaskURI:       ir.TaskRef(taskURI),
		Args:          ir.Object{},
		Seq:           seq,
		SpecHash:      "test-hash",
		EngineVersion: "0.1.0",
		IRVersion:     "1",
	}
}

// createTestResult creates a test result with minimal required fields.
func createTestResult(id, invocationID, status string, seq int64) ir.Result {
	return ir.Result{
		ID:           id,
		InvocationID: invocationID,
		Status:       status,
		Output:       ir.Object{},
		Attempts:     1,
		DurationMS:   10,
		Seq:          seq,
	}
}
