package manifest

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/droverhq/drover/internal/ir"
)

// Validation error codes (E100-E199).
const (
	ErrPipelineNameInvalid = "E100" // pipeline name fails the identifier rule
	ErrNoTasks             = "E101" // pipeline has no tasks
	ErrTaskNameInvalid     = "E102" // task name fails the identifier rule
	ErrDuplicateTask       = "E103" // duplicate task name
	ErrUnknownKind         = "E104" // runner kind not recognized
	ErrPriorityOutOfRange  = "E105" // priority outside 1..9
	ErrUnknownDependency   = "E106" // after references a missing task
	ErrSelfDependency      = "E107" // task depends on itself
	ErrRetryInvalid        = "E108" // retry policy out of bounds
	ErrDependencyCycle     = "E110" // dependency graph contains a cycle
)

// ValidationError represents a manifest validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// nameRE is the rule for pipeline and task names. Dots are excluded so
// that "pipeline.task" references stay unambiguous.
var nameRE = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// Validate checks a compiled pipeline against schema rules.
// All errors are collected; validation does not fail fast.
// Cycle detection runs only when the reference structure is otherwise
// sound, so a cycle report never names a nonexistent task.
func Validate(spec *ir.PipelineSpec) []ValidationError {
	var errs []ValidationError

	if !nameRE.MatchString(spec.Name) {
		errs = append(errs, ValidationError{
			Field:   "pipeline",
			Message: fmt.Sprintf("name %q must match %s", spec.Name, nameRE),
			Code:    ErrPipelineNameInvalid,
		})
	}

	if len(spec.Tasks) == 0 {
		errs = append(errs, ValidationError{
			Field:   "task",
			Message: "pipeline must declare at least one task",
			Code:    ErrNoTasks,
		})
		return errs
	}

	seen := make(map[string]bool, len(spec.Tasks))
	refsOK := true
	for _, t := range spec.Tasks {
		field := "task." + t.Name

		if !nameRE.MatchString(t.Name) {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("name %q must match %s", t.Name, nameRE),
				Code:    ErrTaskNameInvalid,
			})
		}
		if seen[t.Name] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "duplicate task name",
				Code:    ErrDuplicateTask,
			})
		}
		seen[t.Name] = true

		if !ir.ValidRunnerKinds[t.Kind] {
			errs = append(errs, ValidationError{
				Field:   field + ".kind",
				Message: fmt.Sprintf("unknown runner kind %q", t.Kind),
				Code:    ErrUnknownKind,
			})
		}

		if t.Priority < MinPriority || t.Priority > MaxPriority {
			errs = append(errs, ValidationError{
				Field:   field + ".priority",
				Message: fmt.Sprintf("priority %d outside [%d, %d]", t.Priority, MinPriority, MaxPriority),
				Code:    ErrPriorityOutOfRange,
			})
		}

		if t.Retry.MaxAttempts < 1 {
			errs = append(errs, ValidationError{
				Field:   field + ".retry.max_attempts",
				Message: "must be at least 1",
				Code:    ErrRetryInvalid,
			})
		}
		if t.Retry.BaseMS <= 0 || t.Retry.Multiplier < 1 || t.Retry.MaxBackoffMS < t.Retry.BaseMS {
			errs = append(errs, ValidationError{
				Field:   field + ".retry",
				Message: "base must be positive, multiplier at least 1, max_backoff at least base",
				Code:    ErrRetryInvalid,
			})
		}
	}

	for _, t := range spec.Tasks {
		field := "task." + t.Name
		for _, dep := range t.After {
			if dep == t.Name {
				refsOK = false
				errs = append(errs, ValidationError{
					Field:   field + ".after",
					Message: "task depends on itself",
					Code:    ErrSelfDependency,
				})
				continue
			}
			if !seen[dep] {
				refsOK = false
				errs = append(errs, ValidationError{
					Field:   field + ".after",
					Message: fmt.Sprintf("unknown dependency %q", dep),
					Code:    ErrUnknownDependency,
				})
			}
		}
	}

	if refsOK {
		for _, cycle := range DetectCycles(spec) {
			errs = append(errs, ValidationError{
				Field:   "task",
				Message: fmt.Sprintf("dependency cycle: %s", strings.Join(cycle, " -> ")),
				Code:    ErrDependencyCycle,
			})
		}
	}

	return errs
}
