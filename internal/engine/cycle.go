package engine

import "sync"

// CycleDetector tracks dispatched (task, args) pairs per run to prevent
// infinite loops at runtime.
//
// Compile-time validation already rejects cyclic after graphs; this
// detector is the second line of defense for cycles that only appear
// dynamically, when a task re-enters the queue with the same argument
// hash it already ran with in this run.
//
// The detector maintains per-run history of task:argsHash keys. Before
// each dispatch, WouldCycle() checks whether the pair has been seen.
type CycleDetector struct {
	mu      sync.Mutex
	history map[string]map[string]bool // map[run_token]map[cycle_key]bool
}

// NewCycleDetector creates a new cycle detector.
func NewCycleDetector() *CycleDetector {
	return &CycleDetector{
		history: make(map[string]map[string]bool),
	}
}

// WouldCycle reports whether (task, argsHash) has already dispatched in
// this run. Returns false for the first occurrence.
//
// Thread-safe: can be called concurrently.
func (c *CycleDetector) WouldCycle(runToken, task, argsHash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.history[runToken] == nil {
		return false
	}
	return c.history[runToken][task+":"+argsHash]
}

// Record marks (task, argsHash) as dispatched in this run.
// Called immediately after WouldCycle() returns false.
//
// Thread-safe: can be called concurrently.
func (c *CycleDetector) Record(runToken, task, argsHash string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.history[runToken] == nil {
		c.history[runToken] = make(map[string]bool)
	}
	c.history[runToken][task+":"+argsHash] = true
}

// Clear removes all history for a run token. Called when a run reaches
// a terminal status so long-lived engines do not accumulate history.
//
// Thread-safe: can be called concurrently.
func (c *CycleDetector) Clear(runToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.history, runToken)
}
