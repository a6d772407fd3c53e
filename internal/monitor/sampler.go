package monitor

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// HostSampler reports host CPU and memory pressure. It backs the
// engine pool's load-based worker scaling.
type HostSampler struct{}

// Load implements the engine's LoadSampler.
func (HostSampler) Load(ctx context.Context) (cpuPct, memPct float64, err error) {
	pcts, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, 0, fmt.Errorf("sample cpu: %w", err)
	}
	if len(pcts) > 0 {
		cpuPct = pcts[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("sample memory: %w", err)
	}
	return cpuPct, vm.UsedPercent, nil
}
