package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/droverhq/drover/internal/ir"
	"github.com/droverhq/drover/internal/store"
)

// DefaultMaxAttempts is the default per-run attempt quota.
// This prevents runaway runs from consuming unbounded resources.
const DefaultMaxAttempts = 1000

// RunNotifier receives run-completion notifications for the channels a
// pipeline names in on_success / on_failure. Implemented by the notify
// package; nil disables notifications.
type RunNotifier interface {
	NotifyRun(ctx context.Context, run ir.Run, channels []string, message string) error
}

// runState is the in-memory state for one active run.
// Touched only by the Run goroutine.
type runState struct {
	spec  ir.PipelineSpec
	hash  string
	sched *scheduler
	quota *QuotaEnforcer
}

// Engine is the single-writer orchestration event loop.
//
// All store mutations happen in the Run goroutine. External callers use
// SubmitRun() to start pipelines; worker goroutines post attempt
// outcomes back through the queue.
//
// Thread-safety model:
//   - SubmitRun(): safe from any goroutine
//   - Run():       must be called from exactly one goroutine
type Engine struct {
	store     *store.Store
	clock     *Clock
	queue     *eventQueue
	tokenGen  RunTokenGenerator
	registry  *Registry
	pool      *Pool
	cycles    *CycleDetector
	notifier  RunNotifier
	log       *slog.Logger
	jitter    func() float64
	pipelines map[string]ir.PipelineSpec
	hashes    map[string]string

	maxAttempts int
	runs        map[string]*runState

	workers sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxAttempts sets the per-run attempt quota.
// Default: 1000 (DefaultMaxAttempts). Use a small value to test quota
// enforcement.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) { e.maxAttempts = n }
}

// WithClock sets a pre-positioned clock. Used for replay to resume from
// the store's high-water sequence number.
func WithClock(c *Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithNotifier installs the run-completion notifier.
func WithNotifier(n RunNotifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithPool sets the worker pool. Default: min 1, max 4, no load sampler.
func WithPool(p *Pool) Option {
	return func(e *Engine) { e.pool = p }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithoutJitter makes retry backoff deterministic. Test-only.
func WithoutJitter() Option {
	return func(e *Engine) { e.jitter = func() float64 { return 0 } }
}

// New creates an Engine over compiled pipelines.
//
// Pipeline specs are content-hashed at construction; the hash is
// stamped on every invocation for provenance.
func New(
	s *store.Store,
	pipelines []ir.PipelineSpec,
	tokenGen RunTokenGenerator,
	registry *Registry,
	opts ...Option,
) (*Engine, error) {
	e := &Engine{
		store:       s,
		clock:       NewClock(),
		queue:       newEventQueue(),
		tokenGen:    tokenGen,
		registry:    registry,
		cycles:      NewCycleDetector(),
		log:         slog.Default(),
		jitter:      rand.Float64,
		pipelines:   make(map[string]ir.PipelineSpec, len(pipelines)),
		hashes:      make(map[string]string, len(pipelines)),
		maxAttempts: DefaultMaxAttempts,
		runs:        make(map[string]*runState),
	}

	for _, p := range pipelines {
		hash, err := ir.SpecHash(p)
		if err != nil {
			return nil, fmt.Errorf("hash pipeline %s: %w", p.Name, err)
		}
		e.pipelines[p.Name] = p
		e.hashes[p.Name] = hash
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.pool == nil {
		e.pool = NewPool(PoolConfig{MinWorkers: 1, MaxWorkers: 4, Logger: e.log})
	}
	if e.registry == nil {
		e.registry = NewRegistry()
	}

	return e, nil
}

// SubmitRun starts a run of the named pipeline and returns its token.
// Thread-safe: may be called from any goroutine.
func (e *Engine) SubmitRun(pipeline string) (string, error) {
	if _, ok := e.pipelines[pipeline]; !ok {
		return "", fmt.Errorf("unknown pipeline %q", pipeline)
	}
	token := e.tokenGen.Generate()
	if !e.queue.Enqueue(Event{Start: &StartEvent{RunToken: token, Pipeline: pipeline}}) {
		return "", errors.New("engine stopped")
	}
	return token, nil
}

// Clock returns the engine's logical clock.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// QueueLen returns the number of queued events. Diagnostics only.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Stop closes the event queue; Run returns once the queue drains.
func (e *Engine) Stop() {
	e.queue.Close()
}

// Run starts the single-writer event loop.
// Blocks until the context is cancelled or Stop() drains the queue.
//
// Must be called from exactly ONE goroutine. All event processing and
// store writes happen here for deterministic behavior.
//
// On event processing failure the error is logged with event context
// and processing continues; retrying a store write would make replay
// non-deterministic.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("engine starting", "pipelines", len(e.pipelines))
	defer e.workers.Wait()

	for {
		event, ok := e.queue.TryDequeue()
		if ok {
			if err := e.processEvent(ctx, event); err != nil {
				e.logEventError(event, err)
			}
			continue
		}

		if e.queue.Closed() {
			e.log.Info("engine stopping: queue closed")
			return nil
		}

		select {
		case <-ctx.Done():
			e.log.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()
		case <-e.queue.Wait():
		}
	}
}

// processEvent routes an event to the appropriate handler.
// Called only from the Run goroutine.
func (e *Engine) processEvent(ctx context.Context, event Event) error {
	switch {
	case event.Start != nil:
		return e.processStart(ctx, event.Start)
	case event.Ready != nil:
		return e.processReady(ctx, event.Ready)
	case event.Done != nil:
		return e.processDone(ctx, event.Done)
	default:
		return errors.New("empty event")
	}
}

// processStart writes the run record and enqueues its root tasks.
func (e *Engine) processStart(ctx context.Context, start *StartEvent) error {
	spec, ok := e.pipelines[start.Pipeline]
	if !ok {
		return fmt.Errorf("unknown pipeline %q", start.Pipeline)
	}

	run := ir.Run{
		Token:      start.RunToken,
		Pipeline:   start.Pipeline,
		SpecHash:   e.hashes[start.Pipeline],
		Status:     ir.RunRunning,
		StartedSeq: e.clock.Next(),
	}
	if err := e.store.WriteRun(ctx, run); err != nil {
		return fmt.Errorf("write run %s: %w", run.Token, err)
	}

	rs := &runState{
		spec:  spec,
		hash:  run.SpecHash,
		sched: newScheduler(spec),
		quota: NewQuotaEnforcer(e.maxAttempts),
	}
	e.runs[run.Token] = rs

	e.log.Info("run started", "run", run.Token, "pipeline", run.Pipeline, "seq", run.StartedSeq)

	for _, task := range rs.sched.InitialReady() {
		e.enqueueReady(run.Token, task)
	}

	// A pipeline always has tasks (the compiler rejects empty ones), so
	// the run cannot be terminal here.
	return nil
}

// enqueueReady stamps and queues a dispatchable task.
func (e *Engine) enqueueReady(runToken string, task ir.TaskSpec) {
	rs := e.runs[runToken]
	e.queue.Enqueue(Event{Ready: &ReadyEvent{
		RunToken: runToken,
		Task:     task,
		Pipeline: rs.spec.Name,
		Priority: task.Priority,
		Seq:      e.clock.Next(),
	}})
}

// processReady dispatches a ready task: cycle guard, invocation record,
// then a worker goroutine that executes attempts and posts DoneEvent.
func (e *Engine) processReady(ctx context.Context, ready *ReadyEvent) error {
	rs, ok := e.runs[ready.RunToken]
	if !ok {
		// Run already finished (quota termination races a late ready)
		return nil
	}
	task := ready.Task

	argsHash, err := ir.ArgsHash(task.Params)
	if err != nil {
		return fmt.Errorf("hash args for %s: %w", task.Name, err)
	}

	var inv ir.Invocation
	if ready.Existing != nil {
		// Replay: the invocation is already in the log; keep its identity
		inv = *ready.Existing
	} else {
		// Stamp at dispatch, not enqueue: invocation seq order then
		// reflects priority order in the log
		seq := e.clock.Next()
		taskURI := ir.NewTaskRef(rs.spec.Name, task.Name)
		invID, err := ir.InvocationID(ready.RunToken, taskURI, task.Params, seq)
		if err != nil {
			return fmt.Errorf("invocation id for %s: %w", task.Name, err)
		}
		inv = ir.Invocation{
			ID:            invID,
			RunToken:      ready.RunToken,
			TaskURI:       taskURI,
			Args:          task.Params,
			Seq:           seq,
			SpecHash:      rs.hash,
			EngineVersion: ir.EngineVersion,
			IRVersion:     ir.IRVersion,
		}
	}

	if e.cycles.WouldCycle(ready.RunToken, task.Name, argsHash) {
		e.log.Warn("cycle detected", "run", ready.RunToken, "task", task.Name)
		return e.failWithout(ctx, rs, inv, task.Name, NewCycleError(ready.RunToken, task.Name))
	}
	e.cycles.Record(ready.RunToken, task.Name, argsHash)

	if err := e.store.WriteInvocation(ctx, inv); err != nil {
		return fmt.Errorf("write invocation %s: %w", inv.ID, err)
	}
	rs.sched.MarkRunning(task.Name)

	runner, ok := e.registry.Resolve(task.Kind)
	if !ok {
		return e.failWithout(ctx, rs, inv, task.Name,
			NewMissingTaskError(ready.RunToken, task.Name, string(task.Kind)))
	}

	e.log.Debug("dispatching task",
		"run", ready.RunToken, "task", task.Name, "kind", task.Kind,
		"priority", task.Priority, "seq", ready.Seq)

	e.workers.Add(1)
	go e.execute(ctx, ready.RunToken, inv, task, runner)

	return nil
}

// failWithout posts a failed DoneEvent for a task that never reached a
// worker (cycle guard, missing runner). The invocation is recorded so
// the failure is visible in the event log.
func (e *Engine) failWithout(ctx context.Context, rs *runState, inv ir.Invocation, task string, cause error) error {
	if err := e.store.WriteInvocation(ctx, inv); err != nil {
		return fmt.Errorf("write invocation %s: %w", inv.ID, err)
	}
	rs.sched.MarkRunning(task)
	return e.processDone(ctx, &DoneEvent{
		RunToken:   inv.RunToken,
		Task:       task,
		Invocation: inv,
		Result: ir.Result{
			InvocationID: inv.ID,
			Status:       ir.StatusFailed,
			Output:       ir.Object{},
			Error:        cause.Error(),
		},
	})
}

// execute runs attempts for one invocation in a worker goroutine.
// It acquires a pool slot, honors the task timeout per attempt, applies
// the retry policy with backoff, and posts a DoneEvent. It never writes
// to the store.
func (e *Engine) execute(ctx context.Context, runToken string, inv ir.Invocation, task ir.TaskSpec, runner Runner) {
	defer e.workers.Done()

	done := &DoneEvent{
		RunToken:   runToken,
		Task:       task.Name,
		Invocation: inv,
	}

	release, err := e.pool.Acquire(ctx, task.CPUHeavy)
	if err != nil {
		done.Result = ir.Result{
			InvocationID: inv.ID,
			Status:       ir.StatusFailed,
			Output:       ir.Object{},
			Error:        fmt.Sprintf("acquire worker: %v", err),
		}
		e.queue.Enqueue(Event{Done: done})
		return
	}
	defer release()

	policy := task.Retry
	if policy.MaxAttempts < 1 {
		policy = ir.DefaultRetry
	}

	start := time.Now()
	var output ir.Object
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if task.TimeoutMS > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, time.Duration(task.TimeoutMS)*time.Millisecond)
		}

		output, lastErr = runner.Run(attemptCtx, task)
		timedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
		cancel()

		outcome := ir.OutcomeSucceeded
		errMsg := ""
		if lastErr != nil {
			outcome = ir.OutcomeFailed
			errMsg = lastErr.Error()
			if timedOut {
				outcome = ir.OutcomeTimeout
				errMsg = (&RuntimeError{
					Code:     ErrCodeTimeout,
					Message:  fmt.Sprintf("attempt exceeded %dms timeout", task.TimeoutMS),
					RunToken: runToken,
					Task:     task.Name,
				}).Error()
			}
		}
		done.Attempts = append(done.Attempts, ir.Attempt{
			InvocationID: inv.ID,
			Attempt:      attempt,
			Outcome:      outcome,
			Error:        errMsg,
		})

		if lastErr == nil {
			break
		}
		if attempt == policy.MaxAttempts || ctx.Err() != nil {
			break
		}
		if !sleepCtx(ctx.Done(), Backoff(policy, attempt, e.jitter())) {
			break
		}
	}

	status := ir.StatusSucceeded
	errMsg := ""
	if lastErr != nil {
		status = ir.StatusFailed
		errMsg = lastErr.Error()
	}
	if output == nil {
		output = ir.Object{}
	}

	done.Result = ir.Result{
		InvocationID: inv.ID,
		Status:       status,
		Output:       output,
		Error:        errMsg,
		Attempts:     int64(len(done.Attempts)),
		DurationMS:   time.Since(start).Milliseconds(),
	}
	e.queue.Enqueue(Event{Done: done})
}

// processDone persists a terminal outcome, charges the quota, releases
// dependents and finishes the run when every task is terminal.
func (e *Engine) processDone(ctx context.Context, done *DoneEvent) error {
	rs, ok := e.runs[done.RunToken]
	if !ok {
		return nil
	}

	// Stamp attempts and result in the single-writer goroutine; workers
	// do not touch the clock.
	for i := range done.Attempts {
		done.Attempts[i].Seq = e.clock.Next()
		if err := e.store.WriteAttempt(ctx, done.Attempts[i]); err != nil {
			return fmt.Errorf("write attempt %d for %s: %w", done.Attempts[i].Attempt, done.Task, err)
		}
	}

	res := done.Result
	res.Seq = e.clock.Next()
	id, err := ir.ResultID(res.InvocationID, res.Status, res.Output, res.Seq)
	if err != nil {
		return fmt.Errorf("result id for %s: %w", done.Task, err)
	}
	res.ID = id
	if err := e.store.WriteResult(ctx, res); err != nil {
		return fmt.Errorf("write result %s: %w", res.ID, err)
	}

	e.log.Info("task finished",
		"run", done.RunToken, "task", done.Task,
		"status", res.Status, "attempts", res.Attempts, "seq", res.Seq)

	if err := rs.quota.Charge(done.RunToken, len(done.Attempts)); err != nil {
		e.log.Error("attempt quota exceeded",
			"run", done.RunToken,
			"attempts", rs.quota.Current(),
			"limit", rs.quota.MaxAttempts())
		rs.sched.MarkDone(done.Task, res.Status)
		return e.terminateRun(ctx, done.RunToken, rs, err)
	}

	released := rs.sched.MarkDone(done.Task, res.Status)
	if res.Status == ir.StatusSucceeded {
		for _, task := range released {
			e.enqueueReady(done.RunToken, task)
		}
	} else {
		skipped := rs.sched.SkipDependents(done.Task)
		for _, name := range skipped {
			if err := e.writeSkipped(ctx, rs, done.RunToken, name, done.Task); err != nil {
				return err
			}
		}
	}

	if rs.sched.AllTerminal() {
		e.finishRun(ctx, done.RunToken, rs)
	}
	return nil
}

// writeSkipped records an invocation/result pair for a task that will
// never run because a dependency failed. Skipped tasks appear in the
// event log like any other so reports see the whole pipeline.
func (e *Engine) writeSkipped(ctx context.Context, rs *runState, runToken, task, failedDep string) error {
	spec := rs.spec.Task(task)
	if spec == nil {
		return fmt.Errorf("skipped task %s not in pipeline %s", task, rs.spec.Name)
	}

	taskURI := ir.NewTaskRef(rs.spec.Name, task)
	seq := e.clock.Next()
	invID, err := ir.InvocationID(runToken, taskURI, spec.Params, seq)
	if err != nil {
		return fmt.Errorf("invocation id for skipped %s: %w", task, err)
	}
	inv := ir.Invocation{
		ID:            invID,
		RunToken:      runToken,
		TaskURI:       taskURI,
		Args:          spec.Params,
		Seq:           seq,
		SpecHash:      rs.hash,
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}
	if err := e.store.WriteInvocation(ctx, inv); err != nil {
		return fmt.Errorf("write skipped invocation %s: %w", task, err)
	}

	cause := NewDependencyFailedError(runToken, task, failedDep)
	resSeq := e.clock.Next()
	resID, err := ir.ResultID(inv.ID, ir.StatusSkipped, ir.Object{}, resSeq)
	if err != nil {
		return fmt.Errorf("result id for skipped %s: %w", task, err)
	}
	res := ir.Result{
		ID:           resID,
		InvocationID: inv.ID,
		Status:       ir.StatusSkipped,
		Output:       ir.Object{},
		Error:        cause.Error(),
		Attempts:     0,
		DurationMS:   0,
		Seq:          resSeq,
	}
	if err := e.store.WriteResult(ctx, res); err != nil {
		return fmt.Errorf("write skipped result %s: %w", task, err)
	}

	e.log.Info("task skipped", "run", runToken, "task", task, "failed_dep", failedDep)
	return nil
}

// terminateRun force-fails a run (quota exceeded). Pending tasks are
// recorded as skipped; in-flight attempts finish but no longer change
// the run status.
func (e *Engine) terminateRun(ctx context.Context, runToken string, rs *runState, cause error) error {
	for _, name := range rs.sched.SkipPending() {
		if err := e.writeSkipped(ctx, rs, runToken, name, "run terminated"); err != nil {
			return err
		}
	}
	e.finishRunWith(ctx, runToken, rs, ir.RunFailed)
	return cause
}

// finishRun transitions a run to its terminal status and fires
// notifications.
func (e *Engine) finishRun(ctx context.Context, runToken string, rs *runState) {
	status := ir.RunFailed
	if rs.sched.Succeeded() {
		status = ir.RunSucceeded
	}
	e.finishRunWith(ctx, runToken, rs, status)
}

func (e *Engine) finishRunWith(ctx context.Context, runToken string, rs *runState, status string) {
	if err := e.store.FinishRun(ctx, runToken, status); err != nil {
		e.log.Error("finish run failed", "run", runToken, "error", err)
	}

	e.log.Info("run finished", "run", runToken, "pipeline", rs.spec.Name, "status", status)

	channels := rs.spec.OnFailure
	message := fmt.Sprintf("pipeline %s run %s failed", rs.spec.Name, runToken)
	if status == ir.RunSucceeded {
		channels = rs.spec.OnSuccess
		message = fmt.Sprintf("pipeline %s run %s succeeded", rs.spec.Name, runToken)
	}

	if e.notifier != nil && len(channels) > 0 {
		run := ir.Run{Token: runToken, Pipeline: rs.spec.Name, SpecHash: rs.hash, Status: status}
		notifyCtx := context.WithoutCancel(ctx)
		e.workers.Add(1)
		go func() {
			defer e.workers.Done()
			if err := e.notifier.NotifyRun(notifyCtx, run, channels, message); err != nil {
				e.log.Warn("run notification failed", "run", runToken, "error", err)
			}
		}()
	}

	e.cycles.Clear(runToken)
	delete(e.runs, runToken)
}

// logEventError logs a processing failure with enough context to replay
// the event manually.
func (e *Engine) logEventError(event Event, err error) {
	switch {
	case event.Start != nil:
		e.log.Error("start event failed", "run", event.Start.RunToken, "pipeline", event.Start.Pipeline, "error", err)
	case event.Ready != nil:
		e.log.Error("ready event failed", "run", event.Ready.RunToken, "task", event.Ready.Task.Name, "error", err)
	case event.Done != nil:
		e.log.Error("done event failed", "run", event.Done.RunToken, "task", event.Done.Task, "error", err)
	default:
		e.log.Error("event failed", "error", err)
	}
}
