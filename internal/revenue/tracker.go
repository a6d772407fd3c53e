package revenue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/droverhq/drover/internal/notify"
	"github.com/droverhq/drover/internal/store"
)

// Performance status bands, by percent of target.
const (
	StatusExcellent = "excellent" // >= 100
	StatusGood      = "good"      // >= 75
	StatusFair      = "fair"      // >= 50
	StatusPoor      = "poor"      // < 50
)

func statusFor(percent int64) string {
	switch {
	case percent >= 100:
		return StatusExcellent
	case percent >= 75:
		return StatusGood
	case percent >= 50:
		return StatusFair
	default:
		return StatusPoor
	}
}

// DefaultAlertWindow is how many sequence numbers back an identical
// platform alert suppresses re-raising.
const DefaultAlertWindow int64 = 200

// Sequencer hands out logical sequence numbers; the engine clock
// satisfies it.
type Sequencer interface {
	Next() int64
}

// AlertSink receives underperformance alerts; the notify dispatcher
// satisfies it.
type AlertSink interface {
	Dispatch(ctx context.Context, msg notify.Message) error
}

// Performance is one platform's standing against its daily target.
type Performance struct {
	Platform      string `json:"platform"`
	Category      string `json:"category"`
	TargetCents   int64  `json:"target_cents"`
	RecordedCents int64  `json:"recorded_cents"`
	Percent       int64  `json:"percent"`
	Status        string `json:"status"`
}

// Report is the full tracking picture: per-platform breakdown sorted
// by name plus totals.
type Report struct {
	Platforms          []Performance `json:"platforms"`
	TotalTargetCents   int64         `json:"total_target_cents"`
	TotalRecordedCents int64         `json:"total_recorded_cents"`
	OverallPercent     int64         `json:"overall_percent"`
}

// Tracker measures settled revenue against platform targets and
// raises alerts for streams below half target.
type Tracker struct {
	store       *store.Store
	seq         Sequencer
	sink        AlertSink
	log         *slog.Logger
	alertWindow int64
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithAlertSink routes underperformance alerts to a dispatcher.
func WithAlertSink(sink AlertSink) Option {
	return func(t *Tracker) { t.sink = sink }
}

// WithAlertWindow overrides the alert dedupe window in sequence
// numbers.
func WithAlertWindow(window int64) Option {
	return func(t *Tracker) { t.alertWindow = window }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(t *Tracker) { t.log = log }
}

// NewTracker creates a Tracker over the registered platforms.
func NewTracker(st *store.Store, seq Sequencer, opts ...Option) *Tracker {
	t := &Tracker{
		store:       st,
		seq:         seq,
		log:         slog.Default(),
		alertWindow: DefaultAlertWindow,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track builds the performance report for every enabled platform from
// settled transactions recorded at or after sinceSeq. Platforms below
// half target raise a deduplicated alert; alert failures are logged,
// never fatal to the report.
func (t *Tracker) Track(ctx context.Context, sinceSeq int64) (Report, error) {
	platforms, err := t.store.ListPlatforms(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("track revenue: %w", err)
	}

	settled, err := t.store.ListTransactions(ctx, store.TxSettled, sinceSeq)
	if err != nil {
		return Report{}, fmt.Errorf("track revenue: %w", err)
	}
	recorded := make(map[string]int64, len(platforms))
	for _, tx := range settled {
		recorded[tx.Account] += tx.AmountCents
	}

	rep := Report{Platforms: []Performance{}}
	for _, p := range platforms {
		if !p.Enabled {
			continue
		}
		perf := Performance{
			Platform:      p.Name,
			Category:      p.Category,
			TargetCents:   p.TargetCents,
			RecordedCents: recorded[p.Name],
		}
		perf.Percent = perf.RecordedCents * 100 / p.TargetCents
		perf.Status = statusFor(perf.Percent)

		rep.Platforms = append(rep.Platforms, perf)
		rep.TotalTargetCents += perf.TargetCents
		rep.TotalRecordedCents += perf.RecordedCents

		if perf.Status == StatusPoor {
			t.raise(ctx, perf)
		}
	}
	if rep.TotalTargetCents > 0 {
		rep.OverallPercent = rep.TotalRecordedCents * 100 / rep.TotalTargetCents
	}
	return rep, nil
}

func (t *Tracker) raise(ctx context.Context, perf Performance) {
	seq := t.seq.Next()
	alert := store.Alert{
		Source:    "revenue:" + perf.Platform,
		Severity:  "warning",
		Message:   fmt.Sprintf("%s at %d%% of target", perf.Platform, perf.Percent),
		DedupeKey: "revenue:" + perf.Platform,
		Seq:       seq,
	}
	inserted, err := t.store.WriteAlert(ctx, alert, seq-t.alertWindow)
	if err != nil {
		t.log.Error("write revenue alert", "platform", perf.Platform, "error", err)
		return
	}
	if !inserted {
		return
	}
	t.log.Warn("platform underperforming",
		"platform", perf.Platform, "percent", perf.Percent)
	if t.sink == nil {
		return
	}
	msg := notify.Message{
		Subject:   fmt.Sprintf("revenue %s underperforming", perf.Platform),
		Body:      alert.Message,
		Severity:  notify.SeverityWarning,
		DedupeKey: alert.DedupeKey,
	}
	if err := t.sink.Dispatch(ctx, msg); err != nil {
		t.log.Error("dispatch revenue alert", "platform", perf.Platform, "error", err)
	}
}
