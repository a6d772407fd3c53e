package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Transaction status values.
const (
	TxPending  = "pending"
	TxSettled  = "settled"
	TxFailed   = "failed"
	TxRefunded = "refunded"
)

// Transaction is one payment charge tracked through its lifecycle.
type Transaction struct {
	ID          string
	Account     string
	AmountCents int64
	Status      string
	ProviderRef string
	CreatedSeq  int64
	SettledSeq  int64 // zero until terminal
	Error       string
}

// WebhookProcessed reports whether a webhook event ID has already been
// recorded. Callers check this before applying an event's effect.
func (s *Store) WebhookProcessed(ctx context.Context, eventID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM webhook_events WHERE id = ?`, eventID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check webhook processed: %w", err)
	}
	return n > 0, nil
}

// MarkWebhookProcessed records a webhook event ID for dedupe. Callers
// record an event only after its effect is applied, so a crash between
// effect and record re-applies an idempotent effect rather than losing
// it. Returns inserted=false if the event was already recorded.
func (s *Store) MarkWebhookProcessed(ctx context.Context, eventID, eventType string, processedAt int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_events (id, type, processed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, eventID, eventType, processedAt)
	if err != nil {
		return false, fmt.Errorf("mark webhook processed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark webhook processed: rows affected: %w", err)
	}
	return n > 0, nil
}

// WriteTransaction inserts a pending transaction.
// Idempotent on id: replaying a charge creation is a no-op.
func (s *Store) WriteTransaction(ctx context.Context, tx Transaction) error {
	var providerRef any
	if tx.ProviderRef != "" {
		providerRef = tx.ProviderRef
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions
		(id, account, amount_cents, status, provider_ref, created_seq, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, tx.ID, tx.Account, tx.AmountCents, tx.Status, providerRef, tx.CreatedSeq, tx.Error)
	if err != nil {
		return fmt.Errorf("write transaction: %w", err)
	}
	return nil
}

// TransitionTransaction moves a transaction from one status to another.
// The update only applies if the current status matches from; returns
// false when the transaction was not in the expected state.
func (s *Store) TransitionTransaction(ctx context.Context, id, from, to, providerRef, errMsg string, seq int64) (bool, error) {
	var settledSeq any
	if to == TxSettled || to == TxFailed || to == TxRefunded {
		settledSeq = seq
	}
	var ref any
	if providerRef != "" {
		ref = providerRef
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = ?, provider_ref = COALESCE(?, provider_ref),
		    settled_seq = COALESCE(?, settled_seq), error = ?
		WHERE id = ? AND status = ?
	`, to, ref, settledSeq, errMsg, id, from)
	if err != nil {
		return false, fmt.Errorf("transition transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition transaction: rows affected: %w", err)
	}
	return n > 0, nil
}

// ReadTransaction returns a transaction by ID, or ErrNotFound.
func (s *Store) ReadTransaction(ctx context.Context, id string) (Transaction, error) {
	tx, err := s.scanTransactionRow(s.db.QueryRowContext(ctx, `
		SELECT id, account, amount_cents, status, provider_ref, created_seq, settled_seq, error
		FROM transactions WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Transaction{}, fmt.Errorf("read transaction %s: %w", id, ErrNotFound)
	}
	return tx, err
}

// ReadTransactionByProviderRef returns the transaction a provider charge
// maps to, or ErrNotFound. Used by webhook processing and reconciliation.
func (s *Store) ReadTransactionByProviderRef(ctx context.Context, ref string) (Transaction, error) {
	tx, err := s.scanTransactionRow(s.db.QueryRowContext(ctx, `
		SELECT id, account, amount_cents, status, provider_ref, created_seq, settled_seq, error
		FROM transactions WHERE provider_ref = ?
	`, ref))
	if errors.Is(err, sql.ErrNoRows) {
		return Transaction{}, fmt.Errorf("read transaction by ref %s: %w", ref, ErrNotFound)
	}
	return tx, err
}

// ListTransactions returns transactions created at or after sinceSeq,
// optionally filtered by status (empty means all), oldest first.
func (s *Store) ListTransactions(ctx context.Context, status string, sinceSeq int64) ([]Transaction, error) {
	query := `
		SELECT id, account, amount_cents, status, provider_ref, created_seq, settled_seq, error
		FROM transactions
		WHERE created_seq >= ?
	`
	args := []any{sinceSeq}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_seq ASC, id COLLATE BINARY ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	txs := []Transaction{}
	for rows.Next() {
		tx, err := s.scanTransactionRow(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}

func (s *Store) scanTransactionRow(row scanner) (Transaction, error) {
	var tx Transaction
	var providerRef sql.NullString
	var settledSeq sql.NullInt64

	err := row.Scan(&tx.ID, &tx.Account, &tx.AmountCents, &tx.Status,
		&providerRef, &tx.CreatedSeq, &settledSeq, &tx.Error)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Transaction{}, err
		}
		return Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	tx.ProviderRef = providerRef.String
	tx.SettledSeq = settledSeq.Int64
	return tx, nil
}
