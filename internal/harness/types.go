package harness

import "github.com/droverhq/drover/internal/ir"

// TraceEvent is one entry in a scenario's event timeline, built from
// the invocations and results the engine wrote. Wall-time fields are
// left out so traces are reproducible.
type TraceEvent struct {
	Type     string    `json:"type"` // "invocation" or "result"
	Task     string    `json:"task,omitempty"`
	Args     ir.Object `json:"args,omitempty"`
	Status   string    `json:"status,omitempty"`
	Output   ir.Object `json:"output,omitempty"`
	Error    string    `json:"error,omitempty"`
	Attempts int64     `json:"attempts,omitempty"`
	Seq      int64     `json:"seq"`
}

// Result is the outcome of one scenario execution.
type Result struct {
	Pass      bool         `json:"pass"`
	RunToken  string       `json:"run_token"`
	RunStatus string       `json:"run_status"`
	Trace     []TraceEvent `json:"trace"`
	Errors    []string     `json:"errors,omitempty"`
}

// AddError records an assertion failure and marks the result failed.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}
