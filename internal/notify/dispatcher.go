package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/droverhq/drover/internal/ir"
	"github.com/droverhq/drover/internal/store"
)

// Recorder persists delivery outcomes; *store.Store satisfies it.
type Recorder interface {
	WriteNotification(ctx context.Context, n store.Notification) error
}

// Sequencer hands out logical sequence numbers for recorded
// notifications; the engine clock satisfies it.
type Sequencer interface {
	Next() int64
}

// channel is one configured destination with its limiter.
type channel struct {
	cfg    ChannelConfig
	sender Notifier
	bucket *tokenBucket
}

// Dispatcher routes messages to the configured channels.
//
// Reload swaps the channel set atomically, so a running dispatch uses
// the snapshot it started with. The dedupe ledger survives reloads.
type Dispatcher struct {
	rec    Recorder
	seq    Sequencer
	log    *slog.Logger
	client *http.Client
	now    func() time.Time

	mu       sync.Mutex
	channels []*channel
	window   time.Duration
	seen     map[string]time.Time
}

// NewDispatcher builds a dispatcher from a validated config.
func NewDispatcher(cfg Config, rec Recorder, seq Sequencer, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{
		rec:    rec,
		seq:    seq,
		log:    log,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
		seen:   make(map[string]time.Time),
	}
	d.Reload(cfg)
	return d
}

// Reload replaces the channel set. Called by the config watcher; safe
// against concurrent dispatches.
func (d *Dispatcher) Reload(cfg Config) {
	channels := make([]*channel, 0, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		channels = append(channels, &channel{
			cfg:    ch,
			sender: newNotifier(ch, d.client),
			bucket: newTokenBucket(ch.RatePerMinute, d.now),
		})
	}

	d.mu.Lock()
	d.channels = channels
	d.window = cfg.DedupeWindow
	d.mu.Unlock()
}

// Dispatch fans a message out to every eligible channel in parallel.
//
// Rate-limited and deduplicated channels are recorded as skipped.
// Send failures are recorded, logged and collected; they never stop
// delivery to the remaining channels. The returned error joins all
// per-channel failures.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) error {
	targets := d.eligible(msg)

	var g errgroup.Group
	errs := make([]error, len(targets))
	for i, ch := range targets {
		g.Go(func() error {
			errs[i] = d.deliver(ctx, ch, msg)
			return nil
		})
	}
	g.Wait()
	return errors.Join(errs...)
}

// eligible snapshots the channels a message should reach, consuming
// rate and dedupe budget for the ones it filters out.
func (d *Dispatcher) eligible(msg Message) []*channel {
	d.mu.Lock()
	defer d.mu.Unlock()

	var wanted map[string]bool
	if len(msg.Channels) > 0 {
		wanted = make(map[string]bool, len(msg.Channels))
		for _, name := range msg.Channels {
			wanted[name] = true
		}
	}

	var targets []*channel
	for _, ch := range d.channels {
		if !ch.cfg.enabled() {
			continue
		}
		if wanted != nil && !wanted[ch.cfg.Name] {
			continue
		}
		if msg.Severity < ch.cfg.minSeverity {
			continue
		}
		targets = append(targets, ch)
	}
	return targets
}

// deliver sends to one channel and records the outcome.
func (d *Dispatcher) deliver(ctx context.Context, ch *channel, msg Message) error {
	name := ch.cfg.Name

	if d.isDuplicate(name, msg.DedupeKey) {
		d.record(ctx, name, msg.Subject, store.NotifySkipped, "duplicate within dedupe window")
		return nil
	}
	if !ch.bucket.Allow() {
		d.record(ctx, name, msg.Subject, store.NotifySkipped, "rate limited")
		return nil
	}

	if err := ch.sender.Send(ctx, msg); err != nil {
		d.log.Warn("notification failed",
			"channel", name, "subject", msg.Subject, "error", err)
		d.record(ctx, name, msg.Subject, store.NotifyFailed, err.Error())
		return fmt.Errorf("channel %s: %w", name, err)
	}
	d.record(ctx, name, msg.Subject, store.NotifyDelivered, "")
	return nil
}

// isDuplicate checks and claims the (channel, key) dedupe slot.
func (d *Dispatcher) isDuplicate(channel, key string) bool {
	if key == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	slot := channel + "\x00" + key
	if last, ok := d.seen[slot]; ok && now.Sub(last) < d.window {
		return true
	}
	d.seen[slot] = now

	if len(d.seen) > 4096 {
		for k, t := range d.seen {
			if now.Sub(t) >= d.window {
				delete(d.seen, k)
			}
		}
	}
	return false
}

func (d *Dispatcher) record(ctx context.Context, channel, subject, status, errMsg string) {
	if d.rec == nil {
		return
	}
	var seq int64
	if d.seq != nil {
		seq = d.seq.Next()
	}
	err := d.rec.WriteNotification(ctx, store.Notification{
		Channel: channel,
		Subject: subject,
		Status:  status,
		Error:   errMsg,
		Seq:     seq,
	})
	if err != nil {
		d.log.Warn("notification record failed", "channel", channel, "error", err)
	}
}

// NotifyRun implements the engine's run-completion hook. Failed runs
// go out as critical, everything else as info.
func (d *Dispatcher) NotifyRun(ctx context.Context, run ir.Run, channels []string, message string) error {
	severity := SeverityInfo
	if run.Status == ir.RunFailed {
		severity = SeverityCritical
	}
	return d.Dispatch(ctx, Message{
		Subject:  fmt.Sprintf("run %s %s", run.Pipeline, run.Status),
		Body:     message,
		Severity: severity,
		Channels: channels,
	})
}
