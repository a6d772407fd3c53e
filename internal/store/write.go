package store

import (
	"context"
	"fmt"

	"github.com/droverhq/drover/internal/ir"
)

// WriteRun inserts a run record. Idempotent on token: replaying a run
// submission does not reset its status.
func (s *Store) WriteRun(ctx context.Context, run ir.Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(token, pipeline, spec_hash, status, started_seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(token) DO NOTHING
	`,
		run.Token,
		run.Pipeline,
		run.SpecHash,
		run.Status,
		run.StartedSeq,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// FinishRun transitions a run to a terminal status. Only running runs
// transition; finishing an already-terminal run is a no-op.
func (s *Store) FinishRun(ctx context.Context, token, status string) error {
	if status != ir.RunSucceeded && status != ir.RunFailed {
		return fmt.Errorf("finish run: invalid terminal status %q", status)
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ? WHERE token = ? AND status = ?
	`, status, token, ir.RunRunning)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// WriteInvocation inserts an invocation record into the store.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently
// ignored. Other constraint violations (e.g., NOT NULL) will still return errors.
//
// The invocation's Args are serialized to canonical JSON per RFC 8785
// for deterministic replay.
func (s *Store) WriteInvocation(ctx context.Context, inv ir.Invocation) error {
	argsJSON, err := marshalArgs(inv.Args)
	if err != nil {
		return fmt.Errorf("write invocation: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO invocations
		(id, run_token, task_uri, args, seq, spec_hash, engine_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		inv.ID,
		inv.RunToken,
		string(inv.TaskURI),
		argsJSON,
		inv.Seq,
		inv.SpecHash,
		inv.EngineVersion,
		inv.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("write invocation: %w", err)
	}

	return nil
}

// WriteResult inserts a result record into the store.
// Uses ON CONFLICT DO NOTHING for idempotency - duplicate writes are silently
// ignored. Each invocation can have exactly ONE result (enforced by the
// UNIQUE constraint on invocation_id).
//
// The result's Output is serialized to canonical JSON per RFC 8785.
//
// Note: The invocation referenced by InvocationID must exist (foreign key
// constraint). Attempting to write a second result for an invocation will
// silently fail (idempotent).
func (s *Store) WriteResult(ctx context.Context, res ir.Result) error {
	outputJSON, err := marshalOutput(res.Output)
	if err != nil {
		return fmt.Errorf("write result: %w", err)
	}

	// ON CONFLICT DO NOTHING handles both:
	// 1. Duplicate result ID (same result written twice)
	// 2. Duplicate invocation_id (second result for same invocation)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO results
		(id, invocation_id, status, output, error, attempts, duration_ms, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		res.ID,
		res.InvocationID,
		res.Status,
		outputJSON,
		res.Error,
		res.Attempts,
		res.DurationMS,
		res.Seq,
	)
	if err != nil {
		return fmt.Errorf("write result: %w", err)
	}

	return nil
}

// WriteAttempt records one execution attempt of an invocation.
// Attempts are keyed (invocation_id, attempt) and idempotent on that pair,
// so a replayed retry does not duplicate the record.
func (s *Store) WriteAttempt(ctx context.Context, att ir.Attempt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attempts
		(invocation_id, attempt, outcome, error, seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(invocation_id, attempt) DO NOTHING
	`,
		att.InvocationID,
		att.Attempt,
		att.Outcome,
		att.Error,
		att.Seq,
	)
	if err != nil {
		return fmt.Errorf("write attempt: %w", err)
	}
	return nil
}
