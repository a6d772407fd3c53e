package ir

import (
	"fmt"
	"strings"
)

// RunnerKind selects how a task is executed.
type RunnerKind string

const (
	// RunnerExec runs a local command.
	RunnerExec RunnerKind = "exec"
	// RunnerHTTP performs an HTTP request and records status/latency.
	RunnerHTTP RunnerKind = "http"
	// RunnerProbe collects a health probe sample.
	RunnerProbe RunnerKind = "probe"
	// RunnerSim invokes a registered simulator (betting, revenue).
	RunnerSim RunnerKind = "sim"
)

// ValidRunnerKinds defines the allowed runner kinds.
var ValidRunnerKinds = map[RunnerKind]bool{
	RunnerExec:  true,
	RunnerHTTP:  true,
	RunnerProbe: true,
	RunnerSim:   true,
}

// Task status values. A task is pending until dispatched, running
// while an attempt is in flight, and ends in exactly one terminal
// status.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	// StatusSkipped marks tasks whose dependencies failed; they are
	// never dispatched.
	StatusSkipped = "skipped"
)

// TerminalStatuses lists statuses after which a task never changes.
var TerminalStatuses = map[string]bool{
	StatusSucceeded: true,
	StatusFailed:    true,
	StatusSkipped:   true,
}

// RetryPolicy bounds attempts for a single task.
// Backoff before attempt n (1-based) is BaseMS * Multiplier^(n-1),
// capped at MaxBackoffMS, with up to 25% jitter added by the engine.
type RetryPolicy struct {
	MaxAttempts  int   `json:"max_attempts"`
	BaseMS       int64 `json:"base_ms"`
	Multiplier   int64 `json:"multiplier"`
	MaxBackoffMS int64 `json:"max_backoff_ms"`
}

// DefaultRetry is applied when a manifest omits the retry block.
var DefaultRetry = RetryPolicy{
	MaxAttempts:  3,
	BaseMS:       500,
	Multiplier:   2,
	MaxBackoffMS: 30_000,
}

// TaskSpec is a compiled task definition.
type TaskSpec struct {
	Name     string      `json:"name"`
	Kind     RunnerKind  `json:"kind"`
	Params   Object      `json:"params"`
	Priority int         `json:"priority"` // 1..9, higher dispatched first
	TimeoutMS int64      `json:"timeout_ms"`
	Retry    RetryPolicy `json:"retry"`
	After    []string    `json:"after,omitempty"`
	CPUHeavy bool        `json:"cpu_heavy,omitempty"`
}

// PipelineSpec is a compiled pipeline definition.
// Tasks preserve declaration order; the engine relies on that order
// for deterministic tie-breaking between equal-priority tasks.
type PipelineSpec struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Tasks       []TaskSpec `json:"tasks"`
	OnSuccess   []string   `json:"on_success,omitempty"` // notification channels
	OnFailure   []string   `json:"on_failure,omitempty"`
}

// Task returns the task with the given name, or nil.
func (p *PipelineSpec) Task(name string) *TaskSpec {
	for i := range p.Tasks {
		if p.Tasks[i].Name == name {
			return &p.Tasks[i]
		}
	}
	return nil
}

// TaskRef is a typed reference to a pipeline task.
// Format: "pipeline.task".
type TaskRef string

// NewTaskRef builds a TaskRef from pipeline and task names.
func NewTaskRef(pipeline, task string) TaskRef {
	return TaskRef(pipeline + "." + task)
}

// Split returns the pipeline and task components of the reference.
func (r TaskRef) Split() (pipeline, task string, err error) {
	i := strings.LastIndex(string(r), ".")
	if i <= 0 || i == len(r)-1 {
		return "", "", fmt.Errorf("malformed task reference %q: want pipeline.task", string(r))
	}
	return string(r)[:i], string(r)[i+1:], nil
}

// Invocation records a task being handed to the dispatcher.
// The ID is content-addressed and stable across replays.
type Invocation struct {
	ID            string  `json:"id"`
	RunToken      string  `json:"run_token"`
	TaskURI       TaskRef `json:"task_uri"`
	Args          Object  `json:"args"`
	Seq           int64   `json:"seq"`
	SpecHash      string  `json:"spec_hash"`
	EngineVersion string  `json:"engine_version"`
	IRVersion     string  `json:"ir_version"`
}

// Result records a task's terminal outcome. Exactly one result exists
// per invocation; the store enforces this with a unique index.
type Result struct {
	ID           string `json:"id"`
	InvocationID string `json:"invocation_id"`
	Status       string `json:"status"` // succeeded, failed, skipped
	Output       Object `json:"output"`
	Error        string `json:"error,omitempty"`
	Attempts     int64  `json:"attempts"`
	DurationMS   int64  `json:"duration_ms"`
	Seq          int64  `json:"seq"`
}

// Attempt records one execution attempt of an invocation, including
// the retries that preceded a terminal result.
type Attempt struct {
	InvocationID string `json:"invocation_id"`
	Attempt      int    `json:"attempt"` // 1-based
	Outcome      string `json:"outcome"` // succeeded, failed, timeout
	Error        string `json:"error,omitempty"`
	Seq          int64  `json:"seq"`
}

// Attempt outcome values.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeTimeout   = "timeout"
)

// Run records one pipeline execution.
type Run struct {
	Token      string `json:"token"`
	Pipeline   string `json:"pipeline"`
	SpecHash   string `json:"spec_hash"`
	Status     string `json:"status"` // running, succeeded, failed
	StartedSeq int64  `json:"started_seq"`
}

// Run status values.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)
