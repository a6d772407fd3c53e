package revenue

import (
	"context"
	"fmt"

	"github.com/droverhq/drover/internal/engine"
	"github.com/droverhq/drover/internal/ir"
)

// SimRunner adapts the generator to the engine's sim runner kind.
// The CLI multiplexes sim tasks by their "sim" param; this runner
// handles "revenue".
//
// Params:
//
//	sim:       "revenue"
//	platforms: array of strings (default: all enabled registered)
//	entries:   int per platform (default 5)
//
// Output mirrors GenerateSummary with integer cents.
func SimRunner(gen *Generator) engine.Runner {
	return engine.RunnerFunc(func(ctx context.Context, task ir.TaskSpec) (ir.Object, error) {
		var platforms []string
		if raw, ok := task.Params["platforms"].(ir.Array); ok {
			for _, v := range raw {
				s, ok := v.(ir.String)
				if !ok {
					return nil, fmt.Errorf("revenue task %s: platforms must be strings", task.Name)
				}
				platforms = append(platforms, string(s))
			}
		}

		cfg := GenerateConfig{
			Platforms: platforms,
			Entries:   int(task.Params.Num("entries")),
		}

		summary, err := gen.Generate(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("revenue task %s: %w", task.Name, err)
		}

		return ir.Object{
			"platforms":      ir.Int(int64(summary.Platforms)),
			"entries":        ir.Int(int64(summary.Entries)),
			"recorded_cents": ir.Int(summary.RecordedCents),
		}, nil
	})
}
