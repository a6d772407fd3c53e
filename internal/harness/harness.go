package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/droverhq/drover/internal/engine"
	"github.com/droverhq/drover/internal/ir"
	"github.com/droverhq/drover/internal/manifest"
	"github.com/droverhq/drover/internal/store"
)

// runTimeout bounds one scenario execution. Scripted runners return
// instantly, so hitting it means the engine wedged.
const runTimeout = 10 * time.Second

// Run executes a scenario against the real engine in a fresh
// in-memory database and evaluates its assertions.
//
// Determinism: the run token is fixed, the pool has one worker, retry
// jitter is off and every seq comes from the engine's logical clock,
// so the same scenario always yields the same trace.
func Run(scenario *Scenario) (*Result, error) {
	loaded, errs := manifest.LoadDir(scenario.Manifests)
	if len(errs) > 0 {
		return nil, fmt.Errorf("load manifests: %w", errors.Join(errs...))
	}
	if loaded.Pipeline(scenario.Pipeline) == nil {
		return nil, fmt.Errorf("pipeline %q not found in %s", scenario.Pipeline, scenario.Manifests)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("open scenario store: %w", err)
	}
	defer st.Close()

	runner := newScriptedRunner(scenario.Outputs)
	reg := engine.NewRegistry()
	for kind := range ir.ValidRunnerKinds {
		reg.Register(kind, runner)
	}

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	pool := engine.NewPool(engine.PoolConfig{MinWorkers: 1, MaxWorkers: 1, Logger: quiet})

	eng, err := engine.New(st, loaded.Pipelines,
		engine.NewFixedGenerator(scenario.RunToken), reg,
		engine.WithoutJitter(),
		engine.WithLogger(quiet),
		engine.WithPool(pool),
	)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		eng.Run(context.Background())
	}()
	stop := func() {
		eng.Stop()
		<-engineDone
	}

	token, err := eng.SubmitRun(scenario.Pipeline)
	if err != nil {
		stop()
		return nil, fmt.Errorf("submit %s: %w", scenario.Pipeline, err)
	}

	run, err := waitTerminal(st, token)
	stop()
	if err != nil {
		return nil, err
	}

	res := &Result{Pass: true, RunToken: token, RunStatus: run.Status}
	res.Trace, err = buildTrace(st, token)
	if err != nil {
		return nil, err
	}

	if scenario.ExpectStatus != "" && run.Status != scenario.ExpectStatus {
		res.AddError(fmt.Sprintf("run status: want %s, got %s", scenario.ExpectStatus, run.Status))
	}
	for _, msg := range EvaluateAssertions(res, scenario.Assertions) {
		res.AddError(msg)
	}
	return res, nil
}

// waitTerminal polls until the run leaves the running status.
func waitTerminal(st *store.Store, token string) (ir.Run, error) {
	ctx := context.Background()
	deadline := time.Now().Add(runTimeout)
	for {
		run, err := st.ReadRun(ctx, token)
		if err == nil && run.Status != ir.RunRunning {
			return run, nil
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return ir.Run{}, err
		}
		if time.Now().After(deadline) {
			return ir.Run{}, fmt.Errorf("run %s did not finish within %s", token, runTimeout)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// buildTrace merges a run's invocations and results into one timeline
// ordered by seq.
func buildTrace(st *store.Store, token string) ([]TraceEvent, error) {
	invs, results, err := st.ReadRunEvents(context.Background(), token)
	if err != nil {
		return nil, fmt.Errorf("read run events: %w", err)
	}

	taskByInv := make(map[string]string, len(invs))
	events := make([]TraceEvent, 0, len(invs)+len(results))
	for _, inv := range invs {
		_, task, err := inv.TaskURI.Split()
		if err != nil {
			return nil, fmt.Errorf("trace %s: %w", token, err)
		}
		taskByInv[inv.ID] = task
		ev := TraceEvent{Type: "invocation", Task: task, Seq: inv.Seq}
		if len(inv.Args) > 0 {
			ev.Args = inv.Args
		}
		events = append(events, ev)
	}
	for _, res := range results {
		ev := TraceEvent{
			Type:     "result",
			Task:     taskByInv[res.InvocationID],
			Status:   res.Status,
			Error:    res.Error,
			Attempts: res.Attempts,
			Seq:      res.Seq,
		}
		if len(res.Output) > 0 {
			ev.Output = res.Output
		}
		events = append(events, ev)
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	return events, nil
}
