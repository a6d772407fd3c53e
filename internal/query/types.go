package query

import "github.com/droverhq/drover/internal/ir"

// Query selects columns from one event log table.
//
// Columns must be explicit: there is no SELECT * form, so a schema
// migration can never silently change a report's shape. Filter may be
// nil (no WHERE clause). Limit <= 0 means no limit.
type Query struct {
	Table   string
	Columns []string
	Filter  Predicate
	Limit   int
}

// Predicate is a filter condition on a Query.
//
// The interface is sealed: only types in this package implement it,
// which keeps the compiler's type switch exhaustive.
type Predicate interface {
	predicateNode()
}

// Eq matches rows where a column equals a literal value.
type Eq struct {
	Field string
	Value ir.Value
}

func (Eq) predicateNode() {}

// Ne matches rows where a column differs from a literal value.
type Ne struct {
	Field string
	Value ir.Value
}

func (Ne) predicateNode() {}

// Gt matches rows where an integer column exceeds a value.
type Gt struct {
	Field string
	Value int64
}

func (Gt) predicateNode() {}

// Lt matches rows where an integer column is below a value.
type Lt struct {
	Field string
	Value int64
}

func (Lt) predicateNode() {}

// Since matches rows at or after a logical sequence number. The
// compiler resolves the table's sequence column (seq, started_seq,
// created_seq or processed_at) so callers do not name it.
type Since struct {
	Seq int64
}

func (Since) predicateNode() {}

// And matches rows satisfying every sub-predicate. An empty And is
// always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}
