package harness

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/droverhq/drover/internal/ir"
)

// EvaluateAssertions checks every assertion against the result and
// returns the failure messages. An empty slice means all passed.
func EvaluateAssertions(res *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(res, a)
		case AssertTraceOrder:
			err = assertTraceOrder(res, a)
		case AssertTraceCount:
			err = assertTraceCount(res, a)
		case AssertFinalStatus:
			err = assertFinalStatus(res, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return failures
}

// assertTraceContains checks that some invocation of the task carries
// the expected args. Args match as a subset: only the listed keys are
// compared.
func assertTraceContains(res *Result, a Assertion) error {
	want, err := ir.ObjectFromGo(a.Args)
	if err != nil {
		return fmt.Errorf("bad expected args: %w", err)
	}

	seen := 0
	for _, ev := range res.Trace {
		if ev.Type != "invocation" || ev.Task != a.Task {
			continue
		}
		seen++
		if argsMatch(ev.Args, want) {
			return nil
		}
	}
	if seen == 0 {
		return fmt.Errorf("task %q was never invoked", a.Task)
	}
	return fmt.Errorf("task %q invoked %d time(s) but never with matching args", a.Task, seen)
}

func argsMatch(got, want ir.Object) bool {
	for k, wv := range want {
		gv, ok := got[k]
		if !ok || !reflect.DeepEqual(gv, wv) {
			return false
		}
	}
	return true
}

// assertTraceOrder checks that tasks were invoked as a subsequence of
// the trace: each task appears after the previous one, gaps allowed.
func assertTraceOrder(res *Result, a Assertion) error {
	next := 0
	for _, ev := range res.Trace {
		if next >= len(a.Tasks) {
			break
		}
		if ev.Type == "invocation" && ev.Task == a.Tasks[next] {
			next++
		}
	}
	if next < len(a.Tasks) {
		return fmt.Errorf("expected order [%s]; stuck waiting for %q (matched %d of %d)",
			strings.Join(a.Tasks, ", "), a.Tasks[next], next, len(a.Tasks))
	}
	return nil
}

func assertTraceCount(res *Result, a Assertion) error {
	count := 0
	for _, ev := range res.Trace {
		if ev.Type == "invocation" && ev.Task == a.Task {
			count++
		}
	}
	if count != a.Count {
		return fmt.Errorf("task %q invoked %d time(s), want %d", a.Task, count, a.Count)
	}
	return nil
}

func assertFinalStatus(res *Result, a Assertion) error {
	if res.RunStatus != a.Status {
		return fmt.Errorf("run status %q, want %q", res.RunStatus, a.Status)
	}
	return nil
}
