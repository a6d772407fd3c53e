package engine

import (
	"context"
	"fmt"

	"github.com/droverhq/drover/internal/ir"
)

// Replay and idempotency.
//
// Replay is structural, not a special mode: the same code path handles
// initial execution and recovery. Three mechanisms make it safe:
//
//  1. ON CONFLICT DO NOTHING on content-addressed rows - re-writing an
//     invocation or result that already exists is a no-op.
//  2. The clock resumes from the store's high-water seq, so fresh
//     events never collide with recorded ones.
//  3. The scheduler is rebuilt from recorded results, so tasks that
//     already reached a terminal status are not dispatched again; only
//     unresolved invocations and never-dispatched tasks proceed.
//
// A crash between an invocation write and its result leaves an
// unresolved invocation; Replay re-dispatches exactly those.

// Resume replays every incomplete run found in the store. Called once
// at startup, before Run() starts consuming events.
func (e *Engine) Resume(ctx context.Context) error {
	tokens, err := e.store.FindIncompleteRuns(ctx)
	if err != nil {
		return fmt.Errorf("resume: %w", err)
	}

	for _, token := range tokens {
		if err := e.Replay(ctx, token); err != nil {
			return fmt.Errorf("resume run %s: %w", token, err)
		}
	}
	return nil
}

// Replay reconstructs one run's state from the store and enqueues the
// work still outstanding. The engine must know the run's pipeline; a
// run whose pipeline was removed from the manifest set is an error.
func (e *Engine) Replay(ctx context.Context, runToken string) error {
	state, err := e.store.GetRunState(ctx, runToken)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	if state.IsComplete {
		return nil
	}

	spec, ok := e.pipelines[state.Run.Pipeline]
	if !ok {
		return fmt.Errorf("replay %s: pipeline %q not loaded", runToken, state.Run.Pipeline)
	}

	// Resume the clock past everything recorded
	if state.LastSeq > e.clock.Current() {
		e.clock = NewClockAt(state.LastSeq)
	}

	rs := &runState{
		spec:  spec,
		hash:  state.Run.SpecHash,
		sched: newScheduler(spec),
		quota: NewQuotaEnforcer(e.maxAttempts),
	}

	// Rebuild terminal statuses from recorded results
	byInvocation := make(map[string]ir.Invocation, len(state.Invocations))
	for _, inv := range state.Invocations {
		byInvocation[inv.ID] = inv
	}
	resolved := make(map[string]bool, len(state.Results))
	var released []ir.TaskSpec
	for _, res := range state.Results {
		inv, ok := byInvocation[res.InvocationID]
		if !ok {
			continue
		}
		_, task, err := inv.TaskURI.Split()
		if err != nil {
			return fmt.Errorf("replay %s: %w", runToken, err)
		}
		rs.sched.MarkRunning(task)
		released = append(released, rs.sched.MarkDone(task, res.Status)...)
		resolved[task] = true

		// Charge recorded attempts so the quota survives restarts
		attempts, err := e.store.ReadAttempts(ctx, inv.ID)
		if err != nil {
			return fmt.Errorf("replay %s: %w", runToken, err)
		}
		if err := rs.quota.Charge(runToken, len(attempts)); err != nil {
			return fmt.Errorf("replay %s: %w", runToken, err)
		}
	}

	e.runs[runToken] = rs

	// Already finished but the run row never flipped (crash between the
	// last result and FinishRun): just close it out.
	if rs.sched.AllTerminal() {
		e.finishRun(ctx, runToken, rs)
		return nil
	}

	e.log.Info("replaying run",
		"run", runToken, "pipeline", state.Run.Pipeline,
		"pending", state.PendingCount, "resume_seq", e.clock.Current())

	// Re-dispatch: unresolved invocations first, then tasks whose
	// dependencies completed but which never dispatched (root tasks
	// that never ran, plus tasks released by the rebuild above).
	seen := make(map[string]bool)
	for _, inv := range state.Invocations {
		_, task, err := inv.TaskURI.Split()
		if err != nil {
			return fmt.Errorf("replay %s: %w", runToken, err)
		}
		seen[task] = true
		if resolved[task] {
			continue
		}
		if t := spec.Task(task); t != nil {
			e.queue.Enqueue(Event{Ready: &ReadyEvent{
				RunToken: runToken,
				Task:     *t,
				Pipeline: spec.Name,
				Priority: t.Priority,
				Seq:      inv.Seq,
				Existing: &inv,
			}})
		}
	}
	for _, task := range rs.sched.InitialReady() {
		if !seen[task.Name] {
			e.enqueueReady(runToken, task)
		}
	}
	for _, task := range released {
		if !seen[task.Name] {
			e.enqueueReady(runToken, task)
		}
	}

	return nil
}
