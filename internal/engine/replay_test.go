package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droverhq/drover/internal/ir"
	"github.com/droverhq/drover/internal/store"
)

// seedCrashedRun writes a run that crashed mid-flight: fetch succeeded,
// load has an invocation but no result, report never dispatched.
func seedCrashedRun(t *testing.T, s *store.Store, spec ir.PipelineSpec) (token string, loadInv ir.Invocation) {
	t.Helper()
	ctx := context.Background()
	token = "run-crashed"

	hash, err := ir.SpecHash(spec)
	require.NoError(t, err)

	require.NoError(t, s.WriteRun(ctx, ir.Run{
		Token: token, Pipeline: spec.Name, SpecHash: hash,
		Status: ir.RunRunning, StartedSeq: 1,
	}))

	fetch := spec.Task("fetch")
	fetchID, err := ir.InvocationID(token, ir.NewTaskRef(spec.Name, "fetch"), fetch.Params, 2)
	require.NoError(t, err)
	fetchInv := ir.Invocation{
		ID: fetchID, RunToken: token, TaskURI: ir.NewTaskRef(spec.Name, "fetch"),
		Args: fetch.Params, Seq: 2, SpecHash: hash,
		EngineVersion: ir.EngineVersion, IRVersion: ir.IRVersion,
	}
	require.NoError(t, s.WriteInvocation(ctx, fetchInv))
	require.NoError(t, s.WriteAttempt(ctx, ir.Attempt{
		InvocationID: fetchID, Attempt: 1, Outcome: ir.OutcomeSucceeded, Seq: 3,
	}))
	resID, err := ir.ResultID(fetchID, ir.StatusSucceeded, ir.Object{}, 4)
	require.NoError(t, err)
	require.NoError(t, s.WriteResult(ctx, ir.Result{
		ID: resID, InvocationID: fetchID, Status: ir.StatusSucceeded,
		Output: ir.Object{}, Attempts: 1, DurationMS: 5, Seq: 4,
	}))

	load := spec.Task("load")
	loadID, err := ir.InvocationID(token, ir.NewTaskRef(spec.Name, "load"), load.Params, 5)
	require.NoError(t, err)
	loadInv = ir.Invocation{
		ID: loadID, RunToken: token, TaskURI: ir.NewTaskRef(spec.Name, "load"),
		Args: load.Params, Seq: 5, SpecHash: hash,
		EngineVersion: ir.EngineVersion, IRVersion: ir.IRVersion,
	}
	require.NoError(t, s.WriteInvocation(ctx, loadInv))

	return token, loadInv
}

func replaySpec() ir.PipelineSpec {
	return ir.PipelineSpec{
		Name: "nightly",
		Tasks: []ir.TaskSpec{
			simTask("fetch", 5),
			simTask("load", 5, "fetch"),
			simTask("report", 5, "load"),
		},
	}
}

func TestReplay_ResumesCrashedRun(t *testing.T) {
	s := setupTestStore(t)
	spec := replaySpec()
	token, loadInv := seedCrashedRun(t, s, spec)

	runner := newRecordingRunner()
	e := buildEngine(t, s, spec, runner)

	require.NoError(t, e.Resume(context.Background()))
	startEngine(t, e)

	waitRunStatus(t, s, token, ir.RunSucceeded)

	// fetch already succeeded and is not re-executed
	assert.Equal(t, []string{"load", "report"}, runner.executions())

	// The unresolved invocation kept its recorded identity
	res, err := s.ReadResult(context.Background(), loadInv.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.StatusSucceeded, res.Status)
}

func TestReplay_ClockResumesPastRecordedSeq(t *testing.T) {
	s := setupTestStore(t)
	spec := replaySpec()
	seedCrashedRun(t, s, spec)

	e := buildEngine(t, s, spec, newRecordingRunner())
	require.NoError(t, e.Resume(context.Background()))

	assert.GreaterOrEqual(t, e.Clock().Current(), int64(5))
}

func TestReplay_CompleteRunIsNoOp(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	spec := ir.PipelineSpec{Name: "p", Tasks: []ir.TaskSpec{simTask("a", 5)}}
	hash, err := ir.SpecHash(spec)
	require.NoError(t, err)

	require.NoError(t, s.WriteRun(ctx, ir.Run{
		Token: "run-done", Pipeline: "p", SpecHash: hash,
		Status: ir.RunRunning, StartedSeq: 1,
	}))
	invID, err := ir.InvocationID("run-done", ir.NewTaskRef("p", "a"), spec.Tasks[0].Params, 2)
	require.NoError(t, err)
	require.NoError(t, s.WriteInvocation(ctx, ir.Invocation{
		ID: invID, RunToken: "run-done", TaskURI: ir.NewTaskRef("p", "a"),
		Args: spec.Tasks[0].Params, Seq: 2, SpecHash: hash,
		EngineVersion: ir.EngineVersion, IRVersion: ir.IRVersion,
	}))
	resID, err := ir.ResultID(invID, ir.StatusSucceeded, ir.Object{}, 3)
	require.NoError(t, err)
	require.NoError(t, s.WriteResult(ctx, ir.Result{
		ID: resID, InvocationID: invID, Status: ir.StatusSucceeded,
		Output: ir.Object{}, Attempts: 1, Seq: 3,
	}))

	runner := newRecordingRunner()
	e := buildEngine(t, s, spec, runner)
	require.NoError(t, e.Resume(ctx))
	startEngine(t, e)

	// All results were recorded; replay just closes the run out
	waitRunStatus(t, s, "run-done", ir.RunSucceeded)
	assert.Empty(t, runner.executions())
}

func TestReplay_UnknownPipelineFails(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteRun(ctx, ir.Run{
		Token: "run-x", Pipeline: "removed", SpecHash: "h",
		Status: ir.RunRunning, StartedSeq: 1,
	}))

	spec := ir.PipelineSpec{Name: "p", Tasks: []ir.TaskSpec{simTask("a", 5)}}
	e := buildEngine(t, s, spec, newRecordingRunner())

	err := e.Resume(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "removed")
}
