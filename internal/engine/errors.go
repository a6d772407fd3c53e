package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected during engine execution.
//
// Runtime errors include:
//   - Cycle detection: same (task, args) would dispatch twice in a run
//   - Quota exceeded: run exceeds the max attempts limit
//   - Dependency failed: an after task failed, dependents are skipped
//   - Missing task: a referenced task has no registered runner
//   - Timeout: an attempt exceeded the task's timeout
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// RunToken identifies the affected run.
	RunToken string

	// Task identifies the task (empty for run-level errors).
	Task string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeCycleDetected indicates the same (task, args) would dispatch twice.
	ErrCodeCycleDetected RuntimeErrorCode = "CYCLE_DETECTED"

	// ErrCodeQuotaExceeded indicates the run exceeded max attempts.
	ErrCodeQuotaExceeded RuntimeErrorCode = "QUOTA_EXCEEDED"

	// ErrCodeDependencyFailed indicates an after task failed.
	ErrCodeDependencyFailed RuntimeErrorCode = "DEPENDENCY_FAILED"

	// ErrCodeMissingTask indicates no runner is registered for the task's kind.
	ErrCodeMissingTask RuntimeErrorCode = "MISSING_TASK"

	// ErrCodeTimeout indicates an attempt exceeded the task timeout.
	ErrCodeTimeout RuntimeErrorCode = "TIMEOUT"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.RunToken != "" && e.Task != "" {
		return fmt.Sprintf("%s: %s (run=%s, task=%s)", e.Code, e.Message, e.RunToken, e.Task)
	}
	if e.RunToken != "" {
		return fmt.Sprintf("%s: %s (run=%s)", e.Code, e.Message, e.RunToken)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsCycleError returns true if the error is a cycle detection error.
// Uses errors.As to handle wrapped errors.
func IsCycleError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeCycleDetected
	}
	return false
}

// IsQuotaError returns true if the error is a quota exceeded error.
// Uses errors.As to handle wrapped errors.
func IsQuotaError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeQuotaExceeded
	}
	return false
}

// NewCycleError creates a RuntimeError for cycle detection.
func NewCycleError(runToken, task string) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeCycleDetected,
		Message:  "task would dispatch with identical args twice in run",
		RunToken: runToken,
		Task:     task,
	}
}

// NewQuotaError creates a RuntimeError for quota exceeded.
func NewQuotaError(runToken string, attempts, maxAttempts int) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeQuotaExceeded,
		Message:  fmt.Sprintf("run exceeded max attempts (%d > %d)", attempts, maxAttempts),
		RunToken: runToken,
		Details: map[string]string{
			"attempts":     fmt.Sprintf("%d", attempts),
			"max_attempts": fmt.Sprintf("%d", maxAttempts),
		},
	}
}

// NewDependencyFailedError creates a RuntimeError for a skipped dependent.
func NewDependencyFailedError(runToken, task, failedDep string) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeDependencyFailed,
		Message:  fmt.Sprintf("dependency %s did not succeed", failedDep),
		RunToken: runToken,
		Task:     task,
	}
}

// NewMissingTaskError creates a RuntimeError for an unresolvable runner.
func NewMissingTaskError(runToken, task, kind string) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeMissingTask,
		Message:  fmt.Sprintf("no runner registered for kind %q", kind),
		RunToken: runToken,
		Task:     task,
	}
}
