package manifest

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droverhq/drover/internal/ir"
)

// compilePipeline is a test helper that compiles CUE source and
// extracts the named pipeline.
func compilePipeline(t *testing.T, src, name string) (*ir.PipelineSpec, error) {
	t.Helper()
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	require.NoError(t, v.Err())
	return CompilePipeline(v.LookupPath(cue.ParsePath("pipeline." + name)))
}

// TestCompilePipeline_Full verifies a fully specified pipeline
// compiles with every field populated.
func TestCompilePipeline_Full(t *testing.T) {
	src := `
pipeline: deploy: {
	description: "build and ship"
	task: build: {
		kind: "exec"
		params: command: "npm run build"
		priority: 7
		timeout: "10m"
		retry: {
			max_attempts: 5
			base: "1s"
			multiplier: 3
			max_backoff: "1m"
		}
		cpu_heavy: true
	}
	task: verify: {
		kind: "http"
		params: url: "https://example.com/healthz"
		after: ["build"]
	}
	notify: {
		on_success: ["releases"]
		on_failure: ["ops", "releases"]
	}
}
`
	spec, err := compilePipeline(t, src, "deploy")
	require.NoError(t, err)

	assert.Equal(t, "deploy", spec.Name)
	assert.Equal(t, "build and ship", spec.Description)
	require.Len(t, spec.Tasks, 2)

	build := spec.Tasks[0]
	assert.Equal(t, "build", build.Name)
	assert.Equal(t, ir.RunnerExec, build.Kind)
	assert.Equal(t, ir.String("npm run build"), build.Params["command"])
	assert.Equal(t, 7, build.Priority)
	assert.Equal(t, int64(600_000), build.TimeoutMS)
	assert.Equal(t, 5, build.Retry.MaxAttempts)
	assert.Equal(t, int64(1000), build.Retry.BaseMS)
	assert.Equal(t, int64(3), build.Retry.Multiplier)
	assert.Equal(t, int64(60_000), build.Retry.MaxBackoffMS)
	assert.True(t, build.CPUHeavy)

	verify := spec.Tasks[1]
	assert.Equal(t, ir.RunnerHTTP, verify.Kind)
	assert.Equal(t, []string{"build"}, verify.After)

	assert.Equal(t, []string{"releases"}, spec.OnSuccess)
	assert.Equal(t, []string{"ops", "releases"}, spec.OnFailure)
}

// TestCompilePipeline_Defaults verifies omitted fields get defaults.
func TestCompilePipeline_Defaults(t *testing.T) {
	src := `
pipeline: minimal: {
	task: only: {
		kind: "exec"
		params: command: "true"
	}
}
`
	spec, err := compilePipeline(t, src, "minimal")
	require.NoError(t, err)

	task := spec.Tasks[0]
	assert.Equal(t, DefaultPriority, task.Priority)
	assert.Equal(t, DefaultTimeout.Milliseconds(), task.TimeoutMS)
	assert.Equal(t, ir.DefaultRetry, task.Retry)
	assert.False(t, task.CPUHeavy)
	assert.Empty(t, task.After)
}

// TestCompilePipeline_MissingKind verifies kind is required.
func TestCompilePipeline_MissingKind(t *testing.T) {
	src := `
pipeline: broken: {
	task: bad: {
		params: command: "true"
	}
}
`
	_, err := compilePipeline(t, src, "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kind is required")
}

// TestCompilePipeline_NoTasks verifies empty pipelines are rejected.
func TestCompilePipeline_NoTasks(t *testing.T) {
	src := `
pipeline: empty: {
	description: "nothing"
}
`
	_, err := compilePipeline(t, src, "empty")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one task")
}

// TestCompilePipeline_BadDuration verifies invalid durations error
// with the field path.
func TestCompilePipeline_BadDuration(t *testing.T) {
	src := `
pipeline: broken: {
	task: bad: {
		kind: "exec"
		timeout: "not-a-duration"
	}
}
`
	_, err := compilePipeline(t, src, "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.timeout")
}

// TestCompilePipeline_FloatParamRejected verifies IR float rejection
// surfaces through the params path.
func TestCompilePipeline_FloatParamRejected(t *testing.T) {
	src := `
pipeline: broken: {
	task: bad: {
		kind: "exec"
		params: threshold: 1.5
	}
}
`
	_, err := compilePipeline(t, src, "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")
}

// TestCompilePipeline_NestedParams verifies nested params structures
// convert to IR objects and arrays.
func TestCompilePipeline_NestedParams(t *testing.T) {
	src := `
pipeline: nested: {
	task: call: {
		kind: "http"
		params: {
			url: "https://example.com"
			headers: {accept: "application/json"}
			codes: [200, 204]
		}
	}
}
`
	spec, err := compilePipeline(t, src, "nested")
	require.NoError(t, err)

	params := spec.Tasks[0].Params
	assert.Equal(t, ir.Object{"accept": ir.String("application/json")}, params["headers"])
	assert.Equal(t, ir.Array{ir.Int(200), ir.Int(204)}, params["codes"])
}
