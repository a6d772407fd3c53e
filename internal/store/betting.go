package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Bet status values.
const (
	BetPlaced = "placed"
	BetWon    = "won"
	BetLost   = "lost"
	BetVoid   = "void"
)

// Bet is one placed wager. Odds are stored in hundredths (2.15 -> 215)
// so the ledger never holds floats.
type Bet struct {
	ID             string
	Platform       string
	Market         string
	Selection      string
	OddsHundredths int64
	StakeCents     int64
	Status         string
	PayoutCents    int64
	CreatedSeq     int64
	SettledSeq     int64 // zero until settled
}

// Platform is one registered revenue platform.
type Platform struct {
	Name        string
	Category    string
	TargetCents int64
	Enabled     bool
}

// WriteBet inserts a placed bet. Idempotent on id.
func (s *Store) WriteBet(ctx context.Context, bet Bet) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bets
		(id, platform, market, selection, odds_hundredths, stake_cents, status, payout_cents, created_seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, bet.ID, bet.Platform, bet.Market, bet.Selection, bet.OddsHundredths,
		bet.StakeCents, bet.Status, bet.PayoutCents, bet.CreatedSeq)
	if err != nil {
		return fmt.Errorf("write bet: %w", err)
	}
	return nil
}

// SettleBet transitions a placed bet to won, lost or void and records the
// payout. Only placed bets settle; returns false otherwise.
func (s *Store) SettleBet(ctx context.Context, id, status string, payoutCents, seq int64) (bool, error) {
	if status != BetWon && status != BetLost && status != BetVoid {
		return false, fmt.Errorf("settle bet: invalid status %q", status)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE bets SET status = ?, payout_cents = ?, settled_seq = ?
		WHERE id = ? AND status = ?
	`, status, payoutCents, seq, id, BetPlaced)
	if err != nil {
		return false, fmt.Errorf("settle bet: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("settle bet: rows affected: %w", err)
	}
	return n > 0, nil
}

// ListBets returns bets for a platform (empty means all) created at or
// after sinceSeq, oldest first.
func (s *Store) ListBets(ctx context.Context, platform string, sinceSeq int64) ([]Bet, error) {
	query := `
		SELECT id, platform, market, selection, odds_hundredths, stake_cents,
		       status, payout_cents, created_seq, settled_seq
		FROM bets
		WHERE created_seq >= ?
	`
	args := []any{sinceSeq}
	if platform != "" {
		query += " AND platform = ?"
		args = append(args, platform)
	}
	query += " ORDER BY created_seq ASC, id COLLATE BINARY ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bets: %w", err)
	}
	defer rows.Close()

	bets := []Bet{}
	for rows.Next() {
		var b Bet
		var settledSeq sql.NullInt64
		err := rows.Scan(&b.ID, &b.Platform, &b.Market, &b.Selection, &b.OddsHundredths,
			&b.StakeCents, &b.Status, &b.PayoutCents, &b.CreatedSeq, &settledSeq)
		if err != nil {
			return nil, fmt.Errorf("scan bet: %w", err)
		}
		b.SettledSeq = settledSeq.Int64
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bets: %w", err)
	}
	return bets, nil
}

// StakedToday sums stakes placed at or after the given sequence number.
// The caller passes the seq recorded at the start of the betting day.
func (s *Store) StakedToday(ctx context.Context, platform string, daySeq int64) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(stake_cents), 0) FROM bets
		WHERE platform = ? AND created_seq >= ?
	`, platform, daySeq).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("staked today: %w", err)
	}
	return total, nil
}

// UpsertPlatform inserts or updates a platform registration.
func (s *Store) UpsertPlatform(ctx context.Context, p Platform) error {
	enabled := 0
	if p.Enabled {
		enabled = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO platforms (name, category, target_cents, enabled)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			category = excluded.category,
			target_cents = excluded.target_cents,
			enabled = excluded.enabled
	`, p.Name, p.Category, p.TargetCents, enabled)
	if err != nil {
		return fmt.Errorf("upsert platform: %w", err)
	}
	return nil
}

// ReadPlatform returns a platform by name, or ErrNotFound.
func (s *Store) ReadPlatform(ctx context.Context, name string) (Platform, error) {
	var p Platform
	var enabled int
	err := s.db.QueryRowContext(ctx, `
		SELECT name, category, target_cents, enabled FROM platforms WHERE name = ?
	`, name).Scan(&p.Name, &p.Category, &p.TargetCents, &enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return Platform{}, fmt.Errorf("read platform %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return Platform{}, fmt.Errorf("read platform: %w", err)
	}
	p.Enabled = enabled != 0
	return p, nil
}

// ListPlatforms returns all platforms in name order.
func (s *Store) ListPlatforms(ctx context.Context) ([]Platform, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, category, target_cents, enabled
		FROM platforms
		ORDER BY name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query platforms: %w", err)
	}
	defer rows.Close()

	platforms := []Platform{}
	for rows.Next() {
		var p Platform
		var enabled int
		if err := rows.Scan(&p.Name, &p.Category, &p.TargetCents, &enabled); err != nil {
			return nil, fmt.Errorf("scan platform: %w", err)
		}
		p.Enabled = enabled != 0
		platforms = append(platforms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate platforms: %w", err)
	}
	return platforms, nil
}
