package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droverhq/drover/internal/ir"
)

func TestExecRunner_Success(t *testing.T) {
	task := ir.TaskSpec{
		Name: "hello",
		Kind: ir.RunnerExec,
		Params: ir.Object{
			"command": ir.String("echo"),
			"args":    ir.Array{ir.String("hello")},
		},
	}

	out, err := ExecRunner{}.Run(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, ir.Int(0), out["exit_code"])
	assert.Equal(t, ir.String("hello\n"), out["stdout"])
}

func TestExecRunner_NonZeroExit(t *testing.T) {
	task := ir.TaskSpec{
		Name:   "fails",
		Kind:   ir.RunnerExec,
		Params: ir.Object{"command": ir.String("false")},
	}

	out, err := ExecRunner{}.Run(context.Background(), task)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit code 1")
	assert.Equal(t, ir.Int(1), out["exit_code"])
}

func TestExecRunner_MissingCommand(t *testing.T) {
	task := ir.TaskSpec{Name: "bad", Kind: ir.RunnerExec, Params: ir.Object{}}

	_, err := ExecRunner{}.Run(context.Background(), task)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing command")
}

func TestHTTPRunner_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	task := ir.TaskSpec{
		Name:   "ping",
		Kind:   ir.RunnerHTTP,
		Params: ir.Object{"url": ir.String(srv.URL)},
	}

	out, err := HTTPRunner{Client: srv.Client()}.Run(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, ir.Int(200), out["status"])
	assert.GreaterOrEqual(t, int64(out["latency_ms"].(ir.Int)), int64(0))
}

func TestHTTPRunner_UnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	task := ir.TaskSpec{
		Name:   "ping",
		Kind:   ir.RunnerHTTP,
		Params: ir.Object{"url": ir.String(srv.URL)},
	}

	out, err := HTTPRunner{Client: srv.Client()}.Run(context.Background(), task)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
	assert.Equal(t, ir.Int(503), out["status"])
}

func TestHTTPRunner_ExpectStatusParam(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	task := ir.TaskSpec{
		Name: "ping",
		Kind: ir.RunnerHTTP,
		Params: ir.Object{
			"url":           ir.String(srv.URL),
			"expect_status": ir.Int(204),
		},
	}

	_, err := HTTPRunner{Client: srv.Client()}.Run(context.Background(), task)
	assert.NoError(t, err)
}

func TestRegistry_ResolveAndReplace(t *testing.T) {
	reg := NewRegistry()

	_, ok := reg.Resolve(ir.RunnerExec)
	assert.True(t, ok)
	_, ok = reg.Resolve(ir.RunnerSim)
	assert.False(t, ok)

	reg.Register(ir.RunnerSim, RunnerFunc(func(ctx context.Context, task ir.TaskSpec) (ir.Object, error) {
		return ir.Object{}, nil
	}))
	_, ok = reg.Resolve(ir.RunnerSim)
	assert.True(t, ok)
}
