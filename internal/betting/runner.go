package betting

import (
	"context"
	"fmt"

	"github.com/droverhq/drover/internal/engine"
	"github.com/droverhq/drover/internal/ir"
)

// SimRunner adapts the simulator to the engine's sim runner kind.
// The CLI multiplexes sim tasks by their "sim" param; this runner
// handles "betting".
//
// Params:
//
//	sim:           "betting"
//	platforms:     array of strings (required)
//	opportunities: int (default 20)
//	bankroll_cents: int (required)
//	day_seq:       int (default 0)
//
// Output mirrors CycleSummary with integer cents.
func SimRunner(sim *Simulator) engine.Runner {
	return engine.RunnerFunc(func(ctx context.Context, task ir.TaskSpec) (ir.Object, error) {
		var platforms []string
		if raw, ok := task.Params["platforms"].(ir.Array); ok {
			for _, v := range raw {
				s, ok := v.(ir.String)
				if !ok {
					return nil, fmt.Errorf("betting task %s: platforms must be strings", task.Name)
				}
				platforms = append(platforms, string(s))
			}
		}

		cfg := CycleConfig{
			Platforms:     platforms,
			Opportunities: int(task.Params.Num("opportunities")),
			Bankroll:      task.Params.Num("bankroll_cents"),
			DaySeq:        task.Params.Num("day_seq"),
		}
		if cfg.Opportunities <= 0 {
			cfg.Opportunities = 20
		}

		summary, err := sim.RunCycle(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("betting task %s: %w", task.Name, err)
		}

		return ir.Object{
			"placed":               ir.Int(int64(summary.Placed)),
			"won":                  ir.Int(int64(summary.Won)),
			"lost":                 ir.Int(int64(summary.Lost)),
			"skipped":              ir.Int(int64(summary.Skipped)),
			"staked_cents":         ir.Int(summary.Staked),
			"payout_cents":         ir.Int(summary.Payout),
			"net_cents":            ir.Int(summary.Net),
			"bankroll_after_cents": ir.Int(summary.Bankroll),
		}, nil
	})
}
