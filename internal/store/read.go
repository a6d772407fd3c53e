package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/droverhq/drover/internal/ir"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// ReadRun returns the run record for a token.
// Returns ErrNotFound if no run exists.
func (s *Store) ReadRun(ctx context.Context, token string) (ir.Run, error) {
	var run ir.Run
	err := s.db.QueryRowContext(ctx, `
		SELECT token, pipeline, spec_hash, status, started_seq
		FROM runs WHERE token = ?
	`, token).Scan(&run.Token, &run.Pipeline, &run.SpecHash, &run.Status, &run.StartedSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Run{}, fmt.Errorf("read run %s: %w", token, ErrNotFound)
	}
	if err != nil {
		return ir.Run{}, fmt.Errorf("read run: %w", err)
	}
	return run, nil
}

// ListRuns returns all runs ordered deterministically by start sequence,
// then token for ties.
func (s *Store) ListRuns(ctx context.Context) ([]ir.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token, pipeline, spec_hash, status, started_seq
		FROM runs
		ORDER BY started_seq ASC, token COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []ir.Run{}
	for rows.Next() {
		var run ir.Run
		if err := rows.Scan(&run.Token, &run.Pipeline, &run.SpecHash, &run.Status, &run.StartedSeq); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRunEvents returns all invocations and results for a run token.
// Results are ordered deterministically: ORDER BY seq ASC, id COLLATE BINARY ASC.
//
// Returns empty slices (not nil) if no records exist for the run token.
func (s *Store) ReadRunEvents(ctx context.Context, runToken string) ([]ir.Invocation, []ir.Result, error) {
	invocations, err := s.readRunInvocations(ctx, runToken)
	if err != nil {
		return nil, nil, err
	}

	results, err := s.readRunResults(ctx, runToken)
	if err != nil {
		return nil, nil, err
	}

	return invocations, results, nil
}

// readRunInvocations returns all invocations for a run token with deterministic ordering.
func (s *Store) readRunInvocations(ctx context.Context, runToken string) ([]ir.Invocation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_token, task_uri, args, seq, spec_hash, engine_version, ir_version
		FROM invocations
		WHERE run_token = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, runToken)
	if err != nil {
		return nil, fmt.Errorf("query invocations: %w", err)
	}
	defer rows.Close()

	invocations := []ir.Invocation{}
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, err
		}
		invocations = append(invocations, inv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invocations: %w", err)
	}

	return invocations, nil
}

// readRunResults returns all results for a run token with deterministic ordering.
// Joins with invocations to filter by run_token.
func (s *Store) readRunResults(ctx context.Context, runToken string) ([]ir.Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.invocation_id, r.status, r.output, r.error, r.attempts, r.duration_ms, r.seq
		FROM results r
		JOIN invocations i ON r.invocation_id = i.id
		WHERE i.run_token = ?
		ORDER BY r.seq ASC, r.id COLLATE BINARY ASC
	`, runToken)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	results := []ir.Result{}
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}

	return results, nil
}

// ReadResult returns the result for an invocation, or ErrNotFound.
func (s *Store) ReadResult(ctx context.Context, invocationID string) (ir.Result, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, invocation_id, status, output, error, attempts, duration_ms, seq
		FROM results WHERE invocation_id = ?
	`, invocationID)

	res, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Result{}, fmt.Errorf("read result for %s: %w", invocationID, ErrNotFound)
	}
	if err != nil {
		return ir.Result{}, err
	}
	return res, nil
}

// ReadAttempts returns all attempts for an invocation in attempt order.
func (s *Store) ReadAttempts(ctx context.Context, invocationID string) ([]ir.Attempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT invocation_id, attempt, outcome, error, seq
		FROM attempts
		WHERE invocation_id = ?
		ORDER BY attempt ASC
	`, invocationID)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	attempts := []ir.Attempt{}
	for rows.Next() {
		var att ir.Attempt
		if err := rows.Scan(&att.InvocationID, &att.Attempt, &att.Outcome, &att.Error, &att.Seq); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempts = append(attempts, att)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return attempts, nil
}

// MaxSeq returns the highest sequence number recorded across the event
// tables. Used to resume the logical clock after a restart.
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var max int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM (
			SELECT seq FROM invocations
			UNION ALL SELECT seq FROM results
			UNION ALL SELECT seq FROM attempts
			UNION ALL SELECT started_seq FROM runs
		)
	`).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return max, nil
}

// scanner abstracts sql.Row and sql.Rows for the scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

func scanInvocation(row scanner) (ir.Invocation, error) {
	var inv ir.Invocation
	var taskURI, argsJSON string

	err := row.Scan(
		&inv.ID,
		&inv.RunToken,
		&taskURI,
		&argsJSON,
		&inv.Seq,
		&inv.SpecHash,
		&inv.EngineVersion,
		&inv.IRVersion,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ir.Invocation{}, err
		}
		return ir.Invocation{}, fmt.Errorf("scan invocation: %w", err)
	}

	inv.TaskURI = ir.TaskRef(taskURI)
	inv.Args, err = unmarshalObject(argsJSON)
	if err != nil {
		return ir.Invocation{}, fmt.Errorf("scan invocation %s: %w", inv.ID, err)
	}
	return inv, nil
}

func scanResult(row scanner) (ir.Result, error) {
	var res ir.Result
	var outputJSON string

	err := row.Scan(
		&res.ID,
		&res.InvocationID,
		&res.Status,
		&outputJSON,
		&res.Error,
		&res.Attempts,
		&res.DurationMS,
		&res.Seq,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ir.Result{}, err
		}
		return ir.Result{}, fmt.Errorf("scan result: %w", err)
	}

	res.Output, err = unmarshalObject(outputJSON)
	if err != nil {
		return ir.Result{}, fmt.Errorf("scan result %s: %w", res.ID, err)
	}
	return res, nil
}
