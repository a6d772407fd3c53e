package harness

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/droverhq/drover/internal/ir"
)

// scriptedRunner serves scenario-scripted outputs for every runner
// kind. Tasks without a script succeed with an empty output.
type scriptedRunner struct {
	mu       sync.Mutex
	steps    map[string]OutputStep
	attempts map[string]int
}

func newScriptedRunner(outputs []OutputStep) *scriptedRunner {
	steps := make(map[string]OutputStep, len(outputs))
	for _, step := range outputs {
		steps[step.Task] = step
	}
	return &scriptedRunner{steps: steps, attempts: make(map[string]int)}
}

func (r *scriptedRunner) Run(_ context.Context, task ir.TaskSpec) (ir.Object, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[task.Name]++

	step, ok := r.steps[task.Name]
	if !ok {
		return ir.Object{}, nil
	}
	if step.Fail != "" && (step.FailTimes == 0 || r.attempts[task.Name] <= step.FailTimes) {
		return nil, errors.New(step.Fail)
	}
	out, err := ir.ObjectFromGo(step.Output)
	if err != nil {
		return nil, fmt.Errorf("scripted output for %s: %w", task.Name, err)
	}
	return out, nil
}
