package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/droverhq/drover/internal/notify"
	"github.com/droverhq/drover/internal/store"
)

// DefaultInterval is used by probes that do not set their own.
const DefaultInterval = 30 * time.Second

// DefaultAlertWindow is how many sequence numbers back an identical
// (probe, level) alert suppresses re-raising.
const DefaultAlertWindow int64 = 200

// Sequencer hands out logical sequence numbers; the engine clock
// satisfies it.
type Sequencer interface {
	Next() int64
}

// AlertSink receives raised alerts; the notify dispatcher satisfies it.
type AlertSink interface {
	Dispatch(ctx context.Context, msg notify.Message) error
}

// Monitor drives periodic probe sampling, persistence, threshold
// alerting and notification routing.
type Monitor struct {
	store       *store.Store
	probes      []Probe
	seq         Sequencer
	sink        AlertSink
	log         *slog.Logger
	alertWindow int64
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithAlertSink routes raised alerts to a dispatcher.
func WithAlertSink(sink AlertSink) Option {
	return func(m *Monitor) { m.sink = sink }
}

// WithAlertWindow overrides the alert dedupe window in sequence
// numbers.
func WithAlertWindow(window int64) Option {
	return func(m *Monitor) { m.alertWindow = window }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Monitor) { m.log = log }
}

// New creates a Monitor over the given probes.
func New(st *store.Store, probes []Probe, seq Sequencer, opts ...Option) *Monitor {
	m := &Monitor{
		store:       st,
		probes:      probes,
		seq:         seq,
		log:         slog.Default(),
		alertWindow: DefaultAlertWindow,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run samples every probe on its interval until ctx is cancelled.
// Each probe gets its own loop; a failing probe never delays the
// others.
func (m *Monitor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, p := range m.probes {
		g.Go(func() error {
			m.loop(ctx, p)
			return nil
		})
	}
	g.Wait()
	return ctx.Err()
}

func (m *Monitor) loop(ctx context.Context, p Probe) {
	interval := p.Interval()
	if interval <= 0 {
		interval = DefaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// First reading immediately, then on the interval.
	m.Sample(ctx, p)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sample(ctx, p)
		}
	}
}

// Sample takes one reading from a probe, persists it and raises an
// alert when the level clears the thresholds.
func (m *Monitor) Sample(ctx context.Context, p Probe) {
	value, level, err := p.Collect(ctx)
	if err != nil {
		m.log.Warn("probe collection failed", "probe", p.Name(), "error", err)
		return
	}

	seq := m.seq.Next()
	sample := store.HealthSample{Probe: p.Name(), Value: value, Level: level, Seq: seq}
	if err := m.store.WriteHealthSample(ctx, sample); err != nil {
		m.log.Warn("health sample write failed", "probe", p.Name(), "error", err)
		return
	}

	if level == LevelOK {
		return
	}
	m.raise(ctx, sample)
}

// raise records an alert unless an identical one exists within the
// dedupe window, then routes it to the notification sink.
func (m *Monitor) raise(ctx context.Context, sample store.HealthSample) {
	severity := "warning"
	if sample.Level == LevelCritical {
		severity = "critical"
	}

	alert := store.Alert{
		Source:    sample.Probe,
		Severity:  severity,
		Message:   fmt.Sprintf("%s at %.1f (%s)", sample.Probe, sample.Value, sample.Level),
		DedupeKey: "probe:" + sample.Probe + ":" + sample.Level,
		Seq:       sample.Seq,
	}

	sinceSeq := sample.Seq - m.alertWindow
	if sinceSeq < 0 {
		sinceSeq = 0
	}
	inserted, err := m.store.WriteAlert(ctx, alert, sinceSeq)
	if err != nil {
		m.log.Warn("alert write failed", "probe", sample.Probe, "error", err)
		return
	}
	if !inserted {
		return
	}

	m.log.Warn("health alert raised",
		"probe", sample.Probe, "value", sample.Value, "level", sample.Level)

	if m.sink == nil {
		return
	}
	msgSeverity := notify.SeverityWarning
	if sample.Level == LevelCritical {
		msgSeverity = notify.SeverityCritical
	}
	err = m.sink.Dispatch(ctx, notify.Message{
		Subject:   fmt.Sprintf("health: %s %s", alert.Source, sample.Level),
		Body:      alert.Message,
		Severity:  msgSeverity,
		DedupeKey: alert.DedupeKey,
	})
	if err != nil {
		m.log.Warn("alert notification failed", "probe", sample.Probe, "error", err)
	}
}
