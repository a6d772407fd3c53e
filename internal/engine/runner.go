package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/droverhq/drover/internal/ir"
)

// Runner executes one task attempt. Implementations must honor ctx
// cancellation; the dispatcher derives a per-attempt timeout context.
//
// The returned object becomes the task's recorded output. Runners never
// write to the store themselves.
type Runner interface {
	Run(ctx context.Context, task ir.TaskSpec) (ir.Object, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, task ir.TaskSpec) (ir.Object, error)

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, task ir.TaskSpec) (ir.Object, error) {
	return f(ctx, task)
}

// Registry maps runner kinds to implementations. The engine resolves a
// task's kind at dispatch time; unknown kinds fail the task with a
// MISSING_TASK error rather than crashing the run.
//
// Built-in kinds exec and http are registered by NewRegistry. The probe
// and sim kinds are wired in by the monitor and simulator packages.
type Registry struct {
	mu      sync.RWMutex
	runners map[ir.RunnerKind]Runner
}

// NewRegistry creates a registry with the built-in exec and http runners.
func NewRegistry() *Registry {
	r := &Registry{runners: make(map[ir.RunnerKind]Runner)}
	r.Register(ir.RunnerExec, ExecRunner{})
	r.Register(ir.RunnerHTTP, HTTPRunner{Client: &http.Client{Timeout: 30 * time.Second}})
	return r
}

// Register installs a runner for a kind, replacing any existing one.
func (r *Registry) Register(kind ir.RunnerKind, runner Runner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runners[kind] = runner
}

// Resolve returns the runner for a kind, or false if none is registered.
func (r *Registry) Resolve(kind ir.RunnerKind) (Runner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runner, ok := r.runners[kind]
	return runner, ok
}

// ExecRunner runs a local command.
//
// Params:
//
//	command: string (required)
//	args:    array of strings
//
// Output: {"exit_code": int, "stdout": string (truncated to 8 KiB)}
// A non-zero exit code fails the attempt.
type ExecRunner struct{}

const execOutputCap = 8 * 1024

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, task ir.TaskSpec) (ir.Object, error) {
	command := task.Params.Str("command")
	if command == "" {
		return nil, fmt.Errorf("exec task %s: missing command param", task.Name)
	}

	var args []string
	if raw, ok := task.Params["args"].(ir.Array); ok {
		for _, v := range raw {
			s, ok := v.(ir.String)
			if !ok {
				return nil, fmt.Errorf("exec task %s: args must be strings", task.Name)
			}
			args = append(args, string(s))
		}
	}

	cmd := exec.CommandContext(ctx, command, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	stdout := out.String()
	if len(stdout) > execOutputCap {
		stdout = stdout[:execOutputCap]
	}
	stdout = strings.ToValidUTF8(stdout, "�")

	exitCode := 0
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		} else {
			return nil, fmt.Errorf("exec task %s: %w", task.Name, err)
		}
	}

	output := ir.Object{
		"exit_code": ir.Int(exitCode),
		"stdout":    ir.String(stdout),
	}
	if exitCode != 0 {
		return output, fmt.Errorf("exec task %s: exit code %d", task.Name, exitCode)
	}
	return output, nil
}

// HTTPRunner performs an HTTP request and records status and latency.
//
// Params:
//
//	url:           string (required)
//	method:        string (default GET)
//	expect_status: int (default 200)
//
// Output: {"status": int, "latency_ms": int}
// A status other than expect_status fails the attempt.
type HTTPRunner struct {
	Client *http.Client
}

// Run implements Runner.
func (r HTTPRunner) Run(ctx context.Context, task ir.TaskSpec) (ir.Object, error) {
	url := task.Params.Str("url")
	if url == "" {
		return nil, fmt.Errorf("http task %s: missing url param", task.Name)
	}
	method := task.Params.Str("method")
	if method == "" {
		method = http.MethodGet
	}
	expect := task.Params.Num("expect_status")
	if expect == 0 {
		expect = http.StatusOK
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("http task %s: %w", task.Name, err)
	}

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http task %s: %w", task.Name, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	output := ir.Object{
		"status":     ir.Int(resp.StatusCode),
		"latency_ms": ir.Int(time.Since(start).Milliseconds()),
	}
	if int64(resp.StatusCode) != expect {
		return output, fmt.Errorf("http task %s: status %d, expected %d", task.Name, resp.StatusCode, expect)
	}
	return output, nil
}
