package monitor

import (
	"context"
	"fmt"
	"math"

	"github.com/droverhq/drover/internal/engine"
	"github.com/droverhq/drover/internal/ir"
)

// RegisterRunner installs the probe runner kind on an engine registry,
// letting pipelines gate on health checks.
//
// Params:
//
//	probe: string (required, a registered probe name)
//
// Output: {"probe": string, "value_hundredths": int, "level": string}
// A critical reading fails the task so dependent tasks are skipped and
// on_failure routes fire.
func RegisterRunner(reg *engine.Registry, probes []Probe) {
	byName := make(map[string]Probe, len(probes))
	for _, p := range probes {
		byName[p.Name()] = p
	}

	reg.Register(ir.RunnerProbe, engine.RunnerFunc(func(ctx context.Context, task ir.TaskSpec) (ir.Object, error) {
		name := task.Params.Str("probe")
		if name == "" {
			return nil, fmt.Errorf("probe task %s: missing probe param", task.Name)
		}
		probe, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("probe task %s: unknown probe %q", task.Name, name)
		}

		value, level, err := probe.Collect(ctx)
		if err != nil {
			return nil, fmt.Errorf("probe task %s: %w", task.Name, err)
		}

		// Values are stored in hundredths to keep floats out of args
		// and outputs.
		output := ir.Object{
			"probe":            ir.String(name),
			"value_hundredths": ir.Int(int64(math.Round(value * 100))),
			"level":            ir.String(level),
		}
		if level == LevelCritical {
			return output, fmt.Errorf("probe task %s: %s critical at %.1f", task.Name, name, value)
		}
		return output, nil
	}))
}
