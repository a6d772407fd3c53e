package monitor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

// Health levels, ordered. They match the health_samples CHECK
// constraint.
const (
	LevelOK       = "ok"
	LevelWarning  = "warning"
	LevelCritical = "critical"
)

// Probe is one health check the monitor samples periodically.
type Probe interface {
	// Name identifies the probe in the health_samples table.
	Name() string
	// Interval is the sampling period; zero means the monitor default.
	Interval() time.Duration
	// Collect takes one reading.
	Collect(ctx context.Context) (value float64, level string, err error)
}

// Thresholds classify a percentage-style reading where higher is
// worse.
type Thresholds struct {
	Warn     float64
	Critical float64
}

func (t Thresholds) level(v float64) string {
	switch {
	case t.Critical > 0 && v >= t.Critical:
		return LevelCritical
	case t.Warn > 0 && v >= t.Warn:
		return LevelWarning
	default:
		return LevelOK
	}
}

// DefaultUtilization suits CPU, memory and disk percent probes.
var DefaultUtilization = Thresholds{Warn: 80, Critical: 92}

// CPUProbe samples total CPU utilization percent.
type CPUProbe struct {
	Every  time.Duration
	Limits Thresholds
}

func (CPUProbe) Name() string              { return "cpu" }
func (p CPUProbe) Interval() time.Duration { return p.Every }

func (p CPUProbe) Collect(ctx context.Context) (float64, string, error) {
	pcts, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, "", fmt.Errorf("cpu probe: %w", err)
	}
	if len(pcts) == 0 {
		return 0, "", fmt.Errorf("cpu probe: no reading")
	}
	return pcts[0], p.Limits.level(pcts[0]), nil
}

// MemoryProbe samples virtual memory utilization percent.
type MemoryProbe struct {
	Every  time.Duration
	Limits Thresholds
}

func (MemoryProbe) Name() string              { return "memory" }
func (p MemoryProbe) Interval() time.Duration { return p.Every }

func (p MemoryProbe) Collect(ctx context.Context) (float64, string, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, "", fmt.Errorf("memory probe: %w", err)
	}
	return vm.UsedPercent, p.Limits.level(vm.UsedPercent), nil
}

// DiskProbe samples used-space percent for a mount path.
type DiskProbe struct {
	Path   string
	Every  time.Duration
	Limits Thresholds
}

func (p DiskProbe) Name() string            { return "disk:" + p.Path }
func (p DiskProbe) Interval() time.Duration { return p.Every }

func (p DiskProbe) Collect(ctx context.Context) (float64, string, error) {
	usage, err := disk.UsageWithContext(ctx, p.Path)
	if err != nil {
		return 0, "", fmt.Errorf("disk probe %s: %w", p.Path, err)
	}
	return usage.UsedPercent, p.Limits.level(usage.UsedPercent), nil
}

// HTTPProbe measures endpoint latency in milliseconds. Connection
// errors and non-2xx statuses are critical; latency past the
// thresholds degrades the level.
type HTTPProbe struct {
	Tag    string // name suffix, e.g. "payments"
	URL    string
	Every  time.Duration
	Limits Thresholds // milliseconds
	Client *http.Client
}

func (p HTTPProbe) Name() string            { return "http:" + p.Tag }
func (p HTTPProbe) Interval() time.Duration { return p.Every }

func (p HTTPProbe) Collect(ctx context.Context) (float64, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return 0, "", fmt.Errorf("http probe %s: %w", p.Tag, err)
	}

	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	start := time.Now()
	resp, err := client.Do(req)
	latency := float64(time.Since(start).Milliseconds())
	if err != nil {
		return latency, LevelCritical, nil
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return latency, LevelCritical, nil
	}
	return latency, p.Limits.level(latency), nil
}

// Pinger is the store surface the ping probe needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingProbe checks that the event log answers. Value is 1 when up,
// 0 when down.
type PingProbe struct {
	DB    Pinger
	Every time.Duration
}

func (PingProbe) Name() string              { return "store" }
func (p PingProbe) Interval() time.Duration { return p.Every }

func (p PingProbe) Collect(ctx context.Context) (float64, string, error) {
	if err := p.DB.Ping(ctx); err != nil {
		return 0, LevelCritical, nil
	}
	return 1, LevelOK, nil
}
