package manifest

import (
	"fmt"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/droverhq/drover/internal/ir"
)

// Defaults applied when a manifest omits optional task fields.
const (
	DefaultPriority = 5
	DefaultTimeout  = 5 * time.Minute
	MinPriority     = 1
	MaxPriority     = 9
)

// CompileError reports a manifest compilation failure with position
// information when CUE can provide it.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CompilePipeline parses a CUE value into a PipelineSpec.
// The value should be the pipeline struct itself; the pipeline name is
// taken from the struct label:
//
//	v := ctx.CompileString(src)
//	spec, err := CompilePipeline(v.LookupPath(cue.ParsePath("pipeline.deploy")))
func CompilePipeline(v cue.Value) (*ir.PipelineSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.PipelineSpec{}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].String()
	}
	if spec.Name == "" {
		return nil, &CompileError{Field: "pipeline", Message: "pipeline name label is required", Pos: v.Pos()}
	}

	if desc := v.LookupPath(cue.ParsePath("description")); desc.Exists() {
		s, err := desc.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		spec.Description = s
	}

	tasks, err := parseTasks(v)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, &CompileError{Field: "task", Message: "at least one task is required", Pos: v.Pos()}
	}
	spec.Tasks = tasks

	if notify := v.LookupPath(cue.ParsePath("notify")); notify.Exists() {
		spec.OnSuccess, err = parseStringList(notify.LookupPath(cue.ParsePath("on_success")))
		if err != nil {
			return nil, err
		}
		spec.OnFailure, err = parseStringList(notify.LookupPath(cue.ParsePath("on_failure")))
		if err != nil {
			return nil, err
		}
	}

	return spec, nil
}

// parseTasks parses the task struct, preserving declaration order.
// CUE struct iteration yields fields in source order, which the engine
// relies on for deterministic tie-breaking.
func parseTasks(v cue.Value) ([]ir.TaskSpec, error) {
	tasksVal := v.LookupPath(cue.ParsePath("task"))
	if !tasksVal.Exists() {
		return nil, nil
	}

	iter, err := tasksVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var tasks []ir.TaskSpec
	for iter.Next() {
		task, err := parseTask(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func parseTask(name string, v cue.Value) (ir.TaskSpec, error) {
	task := ir.TaskSpec{
		Name:      name,
		Params:    ir.Object{},
		Priority:  DefaultPriority,
		TimeoutMS: DefaultTimeout.Milliseconds(),
		Retry:     ir.DefaultRetry,
	}

	kindVal := v.LookupPath(cue.ParsePath("kind"))
	if !kindVal.Exists() {
		return task, &CompileError{Field: name + ".kind", Message: "kind is required", Pos: v.Pos()}
	}
	kind, err := kindVal.String()
	if err != nil {
		return task, formatCUEError(err)
	}
	task.Kind = ir.RunnerKind(kind)

	if params := v.LookupPath(cue.ParsePath("params")); params.Exists() {
		obj, err := cueToObject(params)
		if err != nil {
			return task, &CompileError{Field: name + ".params", Message: err.Error(), Pos: params.Pos()}
		}
		task.Params = obj
	}

	if pv := v.LookupPath(cue.ParsePath("priority")); pv.Exists() {
		p, err := pv.Int64()
		if err != nil {
			return task, formatCUEError(err)
		}
		task.Priority = int(p)
	}

	if tv := v.LookupPath(cue.ParsePath("timeout")); tv.Exists() {
		d, err := parseDuration(name+".timeout", tv)
		if err != nil {
			return task, err
		}
		task.TimeoutMS = d.Milliseconds()
	}

	if rv := v.LookupPath(cue.ParsePath("retry")); rv.Exists() {
		task.Retry, err = parseRetry(name, rv)
		if err != nil {
			return task, err
		}
	}

	task.After, err = parseStringList(v.LookupPath(cue.ParsePath("after")))
	if err != nil {
		return task, err
	}

	if hv := v.LookupPath(cue.ParsePath("cpu_heavy")); hv.Exists() {
		b, err := hv.Bool()
		if err != nil {
			return task, formatCUEError(err)
		}
		task.CPUHeavy = b
	}

	return task, nil
}

func parseRetry(taskName string, v cue.Value) (ir.RetryPolicy, error) {
	policy := ir.DefaultRetry

	if mv := v.LookupPath(cue.ParsePath("max_attempts")); mv.Exists() {
		n, err := mv.Int64()
		if err != nil {
			return policy, formatCUEError(err)
		}
		policy.MaxAttempts = int(n)
	}
	if bv := v.LookupPath(cue.ParsePath("base")); bv.Exists() {
		d, err := parseDuration(taskName+".retry.base", bv)
		if err != nil {
			return policy, err
		}
		policy.BaseMS = d.Milliseconds()
	}
	if mv := v.LookupPath(cue.ParsePath("multiplier")); mv.Exists() {
		n, err := mv.Int64()
		if err != nil {
			return policy, formatCUEError(err)
		}
		policy.Multiplier = n
	}
	if xv := v.LookupPath(cue.ParsePath("max_backoff")); xv.Exists() {
		d, err := parseDuration(taskName+".retry.max_backoff", xv)
		if err != nil {
			return policy, err
		}
		policy.MaxBackoffMS = d.Milliseconds()
	}

	return policy, nil
}

// parseDuration accepts Go duration strings ("500ms", "5m").
func parseDuration(field string, v cue.Value) (time.Duration, error) {
	s, err := v.String()
	if err != nil {
		return 0, formatCUEError(err)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, &CompileError{Field: field, Message: fmt.Sprintf("invalid duration %q", s), Pos: v.Pos()}
	}
	if d <= 0 {
		return 0, &CompileError{Field: field, Message: "duration must be positive", Pos: v.Pos()}
	}
	return d, nil
}

func parseStringList(v cue.Value) ([]string, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// cueToObject converts a CUE struct into an IR object. Floats are
// rejected here with a position-free error; the caller attaches the
// field path.
func cueToObject(v cue.Value) (ir.Object, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, err
	}
	obj := ir.Object{}
	for iter.Next() {
		val, err := cueToValue(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", iter.Label(), err)
		}
		obj[iter.Label()] = val
	}
	return obj, nil
}

func cueToValue(v cue.Value) (ir.Value, error) {
	switch v.Kind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, err
		}
		return ir.String(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, err
		}
		return ir.Int(n), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, err
		}
		return ir.Bool(b), nil
	case cue.FloatKind, cue.NumberKind:
		return nil, fmt.Errorf("floats are forbidden in task params")
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, err
		}
		var arr ir.Array
		for iter.Next() {
			elem, err := cueToValue(iter.Value())
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil
	case cue.StructKind:
		return cueToObject(v)
	default:
		return nil, fmt.Errorf("unsupported param kind %v", v.Kind())
	}
}

// formatCUEError converts a CUE error into a CompileError with
// position information when available.
func formatCUEError(err error) error {
	if cueErrs := errors.Errors(err); len(cueErrs) > 0 {
		first := cueErrs[0]
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     first.Position(),
		}
	}
	return err
}
