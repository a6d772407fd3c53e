package store

import (
	"context"
	"fmt"

	"github.com/droverhq/drover/internal/ir"
)

// RunState represents the recorded state of a run for recovery purposes.
type RunState struct {
	Run          ir.Run
	Invocations  []ir.Invocation
	Results      []ir.Result
	LastSeq      int64
	PendingCount int  // Invocations without results
	IsComplete   bool // All invocations have results and the run is terminal
}

// GetRunState retrieves the complete recorded state of a run.
// Used by replay to decide which invocations still need dispatching.
func (s *Store) GetRunState(ctx context.Context, runToken string) (RunState, error) {
	run, err := s.ReadRun(ctx, runToken)
	if err != nil {
		return RunState{}, fmt.Errorf("get run state: %w", err)
	}

	state := RunState{Run: run, LastSeq: run.StartedSeq}

	invocations, results, err := s.ReadRunEvents(ctx, runToken)
	if err != nil {
		return state, fmt.Errorf("get run state: %w", err)
	}
	state.Invocations = invocations
	state.Results = results

	resolved := make(map[string]bool, len(results))
	for _, res := range results {
		resolved[res.InvocationID] = true
		if res.Seq > state.LastSeq {
			state.LastSeq = res.Seq
		}
	}

	for _, inv := range invocations {
		if inv.Seq > state.LastSeq {
			state.LastSeq = inv.Seq
		}
		if !resolved[inv.ID] {
			state.PendingCount++
		}
	}

	state.IsComplete = state.PendingCount == 0 && run.Status != ir.RunRunning

	return state, nil
}

// FindIncompleteRuns returns tokens of runs that need recovery attention:
// runs still marked running, or runs with invocations that never resolved.
// Ordered by start sequence for deterministic recovery order.
func (s *Store) FindIncompleteRuns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token FROM runs r
		WHERE r.status = 'running'
		   OR EXISTS (
			SELECT 1 FROM invocations i
			LEFT JOIN results res ON i.id = res.invocation_id
			WHERE i.run_token = r.token AND res.id IS NULL
		   )
		ORDER BY r.started_seq ASC, r.token COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("find incomplete runs: %w", err)
	}
	defer rows.Close()

	tokens := []string{}
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tokens: %w", err)
	}
	return tokens, nil
}
