package monitor

import (
	"context"
	"fmt"
)

// ProbeStatus is the latest reading for one probe.
type ProbeStatus struct {
	Probe string  `json:"probe"`
	Value float64 `json:"value"`
	Level string  `json:"level"`
	Seq   int64   `json:"seq"`
}

// Summary is the current health picture: last sample per probe, the
// worst level among them, and the total alert count.
type Summary struct {
	Probes     []ProbeStatus `json:"probes"`
	WorstLevel string        `json:"worst_level"`
	Alerts     int64         `json:"alerts"`
}

// Summarize builds the health summary from the store.
func (m *Monitor) Summarize(ctx context.Context) (Summary, error) {
	// SQLite resolves bare columns in a MAX() group to the max row.
	rows, err := m.store.Query(ctx, `
		SELECT probe, value, level, MAX(seq) AS seq
		FROM health_samples
		GROUP BY probe
		ORDER BY probe COLLATE BINARY ASC
	`)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize health: %w", err)
	}
	defer rows.Close()

	summary := Summary{Probes: []ProbeStatus{}, WorstLevel: LevelOK}
	for rows.Next() {
		var ps ProbeStatus
		if err := rows.Scan(&ps.Probe, &ps.Value, &ps.Level, &ps.Seq); err != nil {
			return Summary{}, fmt.Errorf("summarize health: %w", err)
		}
		summary.Probes = append(summary.Probes, ps)
		if worse(ps.Level, summary.WorstLevel) {
			summary.WorstLevel = ps.Level
		}
	}
	if err := rows.Err(); err != nil {
		return Summary{}, fmt.Errorf("summarize health: %w", err)
	}

	row, err := m.store.Query(ctx, `SELECT COUNT(*) FROM alerts`)
	if err != nil {
		return Summary{}, fmt.Errorf("count alerts: %w", err)
	}
	defer row.Close()
	if row.Next() {
		if err := row.Scan(&summary.Alerts); err != nil {
			return Summary{}, fmt.Errorf("count alerts: %w", err)
		}
	}
	return summary, row.Err()
}

func worse(a, b string) bool {
	return rank(a) > rank(b)
}

func rank(level string) int {
	switch level {
	case LevelCritical:
		return 2
	case LevelWarning:
		return 1
	default:
		return 0
	}
}
