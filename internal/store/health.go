package store

import (
	"context"
	"fmt"
)

// HealthSample is one recorded probe reading.
type HealthSample struct {
	Probe string
	Value float64
	Level string // ok, warning, critical
	Seq   int64
}

// Alert is a threshold breach raised by the monitor or revenue tracker.
type Alert struct {
	Source    string
	Severity  string // info, warning, critical
	Message   string
	DedupeKey string
	Seq       int64
}

// Notification status values.
const (
	NotifyDelivered = "delivered"
	NotifyFailed    = "failed"
	NotifySkipped   = "skipped"
)

// Notification records one delivery attempt to a channel.
type Notification struct {
	Channel string
	Subject string
	Status  string // delivered, failed, skipped
	Error   string
	Seq     int64
}

// WriteHealthSample appends a probe reading.
func (s *Store) WriteHealthSample(ctx context.Context, sample HealthSample) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO health_samples (probe, value, level, seq)
		VALUES (?, ?, ?, ?)
	`, sample.Probe, sample.Value, sample.Level, sample.Seq)
	if err != nil {
		return fmt.Errorf("write health sample: %w", err)
	}
	return nil
}

// ReadHealthSamples returns samples for a probe from a sequence number on,
// oldest first.
func (s *Store) ReadHealthSamples(ctx context.Context, probe string, sinceSeq int64) ([]HealthSample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT probe, value, level, seq
		FROM health_samples
		WHERE probe = ? AND seq >= ?
		ORDER BY seq ASC
	`, probe, sinceSeq)
	if err != nil {
		return nil, fmt.Errorf("query health samples: %w", err)
	}
	defer rows.Close()

	samples := []HealthSample{}
	for rows.Next() {
		var sa HealthSample
		if err := rows.Scan(&sa.Probe, &sa.Value, &sa.Level, &sa.Seq); err != nil {
			return nil, fmt.Errorf("scan health sample: %w", err)
		}
		samples = append(samples, sa)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate health samples: %w", err)
	}
	return samples, nil
}

// WriteAlert appends an alert unless one with the same dedupe key was
// raised at or after sinceSeq. Returns true if the alert was written.
func (s *Store) WriteAlert(ctx context.Context, alert Alert, sinceSeq int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (source, severity, message, dedupe_key, seq)
		SELECT ?, ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM alerts WHERE dedupe_key = ? AND seq >= ?
		)
	`, alert.Source, alert.Severity, alert.Message, alert.DedupeKey, alert.Seq,
		alert.DedupeKey, sinceSeq)
	if err != nil {
		return false, fmt.Errorf("write alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write alert: rows affected: %w", err)
	}
	return n > 0, nil
}

// ReadAlerts returns alerts from a sequence number on, oldest first.
func (s *Store) ReadAlerts(ctx context.Context, sinceSeq int64) ([]Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, severity, message, dedupe_key, seq
		FROM alerts
		WHERE seq >= ?
		ORDER BY seq ASC, id ASC
	`, sinceSeq)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []Alert{}
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.Source, &a.Severity, &a.Message, &a.DedupeKey, &a.Seq); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return alerts, nil
}

// WriteNotification records one delivery attempt.
func (s *Store) WriteNotification(ctx context.Context, n Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (channel, subject, status, error, seq)
		VALUES (?, ?, ?, ?, ?)
	`, n.Channel, n.Subject, n.Status, n.Error, n.Seq)
	if err != nil {
		return fmt.Errorf("write notification: %w", err)
	}
	return nil
}

// ReadNotifications returns delivery records from a sequence number on,
// oldest first.
func (s *Store) ReadNotifications(ctx context.Context, sinceSeq int64) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT channel, subject, status, error, seq
		FROM notifications
		WHERE seq >= ?
		ORDER BY seq ASC, id ASC
	`, sinceSeq)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	notes := []Notification{}
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.Channel, &n.Subject, &n.Status, &n.Error, &n.Seq); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return notes, nil
}
