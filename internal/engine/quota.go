package engine

// QuotaEnforcer tracks the number of executed attempts per run and
// enforces a maximum limit.
//
// Each run has its own QuotaEnforcer instance. The quota is charged for
// every attempt a worker executes, including retries.
//
// Distinction from cycle detection:
//   - Cycle detection catches recursive patterns (A dispatches A again)
//   - The quota catches linear explosions (many tasks, many retries)
//
// Together they guarantee a run terminates.
type QuotaEnforcer struct {
	maxAttempts int
	current     int
}

// NewQuotaEnforcer creates a quota enforcer with the given limit.
// Typical default: 1000 (configurable via WithMaxAttempts).
func NewQuotaEnforcer(maxAttempts int) *QuotaEnforcer {
	return &QuotaEnforcer{maxAttempts: maxAttempts}
}

// Charge adds n executed attempts and validates against the limit.
// Returns a quota RuntimeError if the limit is exceeded.
func (q *QuotaEnforcer) Charge(runToken string, n int) error {
	q.current += n
	if q.current > q.maxAttempts {
		return NewQuotaError(runToken, q.current, q.maxAttempts)
	}
	return nil
}

// Current returns the attempts charged so far.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// MaxAttempts returns the limit.
func (q *QuotaEnforcer) MaxAttempts() int {
	return q.maxAttempts
}
