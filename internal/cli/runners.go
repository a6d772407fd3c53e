package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/droverhq/drover/internal/betting"
	"github.com/droverhq/drover/internal/engine"
	"github.com/droverhq/drover/internal/ir"
	"github.com/droverhq/drover/internal/monitor"
	"github.com/droverhq/drover/internal/revenue"
	"github.com/droverhq/drover/internal/store"
)

// defaultProbes is the probe set used when no probe config is given.
func defaultProbes(st *store.Store) []monitor.Probe {
	return []monitor.Probe{
		monitor.CPUProbe{Limits: monitor.DefaultUtilization},
		monitor.MemoryProbe{Limits: monitor.DefaultUtilization},
		monitor.DiskProbe{Path: "/", Limits: monitor.DefaultUtilization},
		monitor.PingProbe{DB: st},
	}
}

// buildRegistry wires every runner kind the manifests may name: local
// commands, HTTP requests, health probes, and the seeded simulators.
// Sim tasks carry a "sim" param selecting the simulator.
func buildRegistry(st *store.Store, probes []monitor.Probe, seed int64, clock *engine.Clock, log *slog.Logger) *engine.Registry {
	reg := engine.NewRegistry()
	reg.Register(ir.RunnerExec, engine.ExecRunner{})
	reg.Register(ir.RunnerHTTP, engine.HTTPRunner{})
	monitor.RegisterRunner(reg, probes)

	betRunner := betting.SimRunner(betting.NewSimulator(st, seed, betting.DefaultPolicy, clock, log))
	revRunner := revenue.SimRunner(revenue.NewGenerator(st, seed, clock, log))
	reg.Register(ir.RunnerSim, engine.RunnerFunc(func(ctx context.Context, task ir.TaskSpec) (ir.Object, error) {
		switch sim := task.Params.Str("sim"); sim {
		case "betting":
			return betRunner.Run(ctx, task)
		case "revenue":
			return revRunner.Run(ctx, task)
		case "":
			return nil, fmt.Errorf("sim task %s: missing sim param", task.Name)
		default:
			return nil, fmt.Errorf("sim task %s: unknown simulator %q", task.Name, sim)
		}
	}))

	return reg
}

// openClock opens the clock where the event log left off so new seq
// numbers extend history instead of colliding with it.
func openClock(ctx context.Context, st *store.Store) (*engine.Clock, error) {
	maxSeq, err := st.MaxSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("read max seq: %w", err)
	}
	return engine.NewClockAt(maxSeq), nil
}
