package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droverhq/drover/internal/ir"
)

func validSpec() *ir.PipelineSpec {
	return &ir.PipelineSpec{
		Name: "deploy",
		Tasks: []ir.TaskSpec{
			{Name: "build", Kind: ir.RunnerExec, Params: ir.Object{}, Priority: 5, TimeoutMS: 60_000, Retry: ir.DefaultRetry},
			{Name: "test", Kind: ir.RunnerExec, Params: ir.Object{}, Priority: 5, TimeoutMS: 60_000, Retry: ir.DefaultRetry, After: []string{"build"}},
		},
	}
}

// TestValidate_OK verifies a well-formed spec passes.
func TestValidate_OK(t *testing.T) {
	assert.Empty(t, Validate(validSpec()))
}

// TestValidate_CollectsAll verifies multiple problems are reported
// together rather than failing fast.
func TestValidate_CollectsAll(t *testing.T) {
	spec := validSpec()
	spec.Tasks[0].Kind = "teleport"
	spec.Tasks[1].Priority = 42

	errs := Validate(spec)
	require.Len(t, errs, 2)

	codes := []string{errs[0].Code, errs[1].Code}
	assert.Contains(t, codes, ErrUnknownKind)
	assert.Contains(t, codes, ErrPriorityOutOfRange)
}

// TestValidate_UnknownDependency verifies dangling after references
// are caught.
func TestValidate_UnknownDependency(t *testing.T) {
	spec := validSpec()
	spec.Tasks[1].After = []string{"missing"}

	errs := Validate(spec)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnknownDependency, errs[0].Code)
}

// TestValidate_SelfDependency verifies a task cannot depend on itself.
func TestValidate_SelfDependency(t *testing.T) {
	spec := validSpec()
	spec.Tasks[0].After = []string{"build"}

	errs := Validate(spec)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrSelfDependency, errs[0].Code)
}

// TestValidate_DuplicateTask verifies duplicate names are caught.
func TestValidate_DuplicateTask(t *testing.T) {
	spec := validSpec()
	spec.Tasks[1].Name = "build"
	spec.Tasks[1].After = nil

	errs := Validate(spec)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrDuplicateTask, errs[0].Code)
}

// TestValidate_BadNames verifies the identifier rule for pipeline and
// task names.
func TestValidate_BadNames(t *testing.T) {
	spec := validSpec()
	spec.Name = "Deploy Prod"
	spec.Tasks[0].Name = "build.stage"
	spec.Tasks[1].After = nil

	errs := Validate(spec)
	codes := make([]string, len(errs))
	for i, e := range errs {
		codes[i] = e.Code
	}
	assert.Contains(t, codes, ErrPipelineNameInvalid)
	assert.Contains(t, codes, ErrTaskNameInvalid)
}

// TestValidate_RetryBounds verifies retry policy validation.
func TestValidate_RetryBounds(t *testing.T) {
	spec := validSpec()
	spec.Tasks[0].Retry = ir.RetryPolicy{MaxAttempts: 0, BaseMS: -1, Multiplier: 0, MaxBackoffMS: 0}

	errs := Validate(spec)
	require.NotEmpty(t, errs)
	for _, e := range errs {
		assert.Equal(t, ErrRetryInvalid, e.Code)
	}
}

// TestValidate_Cycle verifies a dependency cycle is a validation
// error carrying the cycle path.
func TestValidate_Cycle(t *testing.T) {
	spec := &ir.PipelineSpec{
		Name: "cyclic",
		Tasks: []ir.TaskSpec{
			{Name: "a", Kind: ir.RunnerExec, Params: ir.Object{}, Priority: 5, TimeoutMS: 1000, Retry: ir.DefaultRetry, After: []string{"c"}},
			{Name: "b", Kind: ir.RunnerExec, Params: ir.Object{}, Priority: 5, TimeoutMS: 1000, Retry: ir.DefaultRetry, After: []string{"a"}},
			{Name: "c", Kind: ir.RunnerExec, Params: ir.Object{}, Priority: 5, TimeoutMS: 1000, Retry: ir.DefaultRetry, After: []string{"b"}},
		},
	}

	errs := Validate(spec)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrDependencyCycle, errs[0].Code)
	assert.Contains(t, errs[0].Message, "->")
}

// TestValidate_CycleSkippedWhenRefsBroken verifies cycle detection is
// suppressed while references are unresolved, so it never reports a
// cycle through a task that does not exist.
func TestValidate_CycleSkippedWhenRefsBroken(t *testing.T) {
	spec := validSpec()
	spec.Tasks[0].After = []string{"ghost"}

	errs := Validate(spec)
	for _, e := range errs {
		assert.NotEqual(t, ErrDependencyCycle, e.Code)
	}
}

// TestDetectCycles_SelfLoop verifies self-loops are reported as
// closed two-element paths.
func TestDetectCycles_SelfLoop(t *testing.T) {
	spec := &ir.PipelineSpec{
		Name: "p",
		Tasks: []ir.TaskSpec{
			{Name: "a", After: []string{"a"}},
		},
	}

	cycles := DetectCycles(spec)
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"a", "a"}, cycles[0])
}

// TestDetectCycles_DAG verifies an acyclic graph reports nothing.
func TestDetectCycles_DAG(t *testing.T) {
	assert.Empty(t, DetectCycles(validSpec()))
}
