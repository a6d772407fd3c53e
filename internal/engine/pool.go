package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// LoadSampler reports current host pressure. Implemented by the monitor
// package's gopsutil-backed sampler; tests use fixed values.
type LoadSampler interface {
	// Load returns CPU and memory utilization in percent.
	Load(ctx context.Context) (cpuPct, memPct float64, err error)
}

// Pool bounds concurrent task attempts and scales the bound with host
// pressure.
//
// Capacity moves between Min and Max workers: above the high watermark
// (cpu or memory) the pool shrinks one step per interval, below 70% of
// the watermark it grows one step. Shrinking is implemented by parking
// weight on the semaphore so in-flight attempts are never interrupted.
//
// CPU-heavy tasks additionally hold a slot in a fixed sub-pool sized at
// half of Max, so a burst of heavy tasks cannot occupy every worker.
type Pool struct {
	min, max int64
	sem      *semaphore.Weighted
	heavy    *semaphore.Weighted
	sampler  LoadSampler
	log      *slog.Logger

	// watermark in percent; scaling triggers above it
	watermark float64

	mu     sync.Mutex
	target int64
	parked int64
}

// PoolConfig configures a Pool.
type PoolConfig struct {
	MinWorkers int
	MaxWorkers int
	Watermark  float64 // percent; default 85
	Sampler    LoadSampler
	Logger     *slog.Logger
}

// NewPool creates a pool starting at MaxWorkers capacity.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.MinWorkers < 1 {
		cfg.MinWorkers = 1
	}
	if cfg.MaxWorkers < cfg.MinWorkers {
		cfg.MaxWorkers = cfg.MinWorkers
	}
	if cfg.Watermark <= 0 {
		cfg.Watermark = 85
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	heavySlots := int64(cfg.MaxWorkers) / 2
	if heavySlots < 1 {
		heavySlots = 1
	}

	return &Pool{
		min:       int64(cfg.MinWorkers),
		max:       int64(cfg.MaxWorkers),
		sem:       semaphore.NewWeighted(int64(cfg.MaxWorkers)),
		heavy:     semaphore.NewWeighted(heavySlots),
		sampler:   cfg.Sampler,
		log:       cfg.Logger,
		watermark: cfg.Watermark,
		target:    int64(cfg.MaxWorkers),
	}
}

// Acquire blocks until a worker slot is free. CPU-heavy tasks also take
// a heavy slot. Release with the returned func exactly once.
func (p *Pool) Acquire(ctx context.Context, cpuHeavy bool) (release func(), err error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if !cpuHeavy {
		return func() { p.sem.Release(1) }, nil
	}

	if err := p.heavy.Acquire(ctx, 1); err != nil {
		p.sem.Release(1)
		return nil, err
	}
	return func() {
		p.heavy.Release(1)
		p.sem.Release(1)
	}, nil
}

// Scale runs the scaling loop until ctx is done. Call in its own
// goroutine. No-op when the pool has no sampler.
func (p *Pool) Scale(ctx context.Context, interval time.Duration) {
	if p.sampler == nil {
		return
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.step(ctx)
		}
	}
}

// step samples load once and moves capacity one worker toward the
// pressure-appropriate size.
func (p *Pool) step(ctx context.Context) {
	cpu, mem, err := p.sampler.Load(ctx)
	if err != nil {
		p.log.Warn("load sample failed", "error", err)
		return
	}

	pressure := cpu
	if mem > pressure {
		pressure = mem
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case pressure > p.watermark && p.target > p.min:
		// Park one slot; takes effect as attempts finish
		if p.sem.TryAcquire(1) {
			p.parked++
			p.target--
			p.log.Info("pool scaled down", "workers", p.target, "cpu_pct", cpu, "mem_pct", mem)
		}
	case pressure < p.watermark*0.7 && p.target < p.max && p.parked > 0:
		p.sem.Release(1)
		p.parked--
		p.target++
		p.log.Info("pool scaled up", "workers", p.target, "cpu_pct", cpu, "mem_pct", mem)
	}
}

// Target returns the current worker capacity.
func (p *Pool) Target() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int(p.target)
}
