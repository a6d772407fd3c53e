package query

import "sort"

// colKind is the coarse type of a column for predicate validation.
type colKind int

const (
	colText colKind = iota
	colInt
	colReal
)

// tableSpec describes one queryable table: its columns, the stable
// ORDER BY key every compiled statement carries, and the sequence
// column Since resolves to (empty when the table has no seq axis).
type tableSpec struct {
	columns  map[string]colKind
	orderKey string
	seqCol   string
}

// tables is the registry of queryable event log tables. It mirrors
// schema.sql; a column absent here cannot be selected or filtered.
var tables = map[string]tableSpec{
	"runs": {
		columns: map[string]colKind{
			"token": colText, "pipeline": colText, "spec_hash": colText,
			"status": colText, "started_seq": colInt,
		},
		orderKey: "started_seq ASC, token COLLATE BINARY ASC",
		seqCol:   "started_seq",
	},
	"invocations": {
		columns: map[string]colKind{
			"id": colText, "run_token": colText, "task_uri": colText,
			"args": colText, "seq": colInt, "spec_hash": colText,
			"engine_version": colText, "ir_version": colText,
		},
		orderKey: "seq ASC, id COLLATE BINARY ASC",
		seqCol:   "seq",
	},
	"results": {
		columns: map[string]colKind{
			"id": colText, "invocation_id": colText, "status": colText,
			"output": colText, "error": colText, "attempts": colInt,
			"duration_ms": colInt, "seq": colInt,
		},
		orderKey: "seq ASC, id COLLATE BINARY ASC",
		seqCol:   "seq",
	},
	"attempts": {
		columns: map[string]colKind{
			"invocation_id": colText, "attempt": colInt,
			"outcome": colText, "error": colText, "seq": colInt,
		},
		orderKey: "seq ASC, invocation_id COLLATE BINARY ASC, attempt ASC",
		seqCol:   "seq",
	},
	"health_samples": {
		columns: map[string]colKind{
			"id": colInt, "probe": colText, "value": colReal,
			"level": colText, "seq": colInt,
		},
		orderKey: "seq ASC, id ASC",
		seqCol:   "seq",
	},
	"alerts": {
		columns: map[string]colKind{
			"id": colInt, "source": colText, "severity": colText,
			"message": colText, "dedupe_key": colText, "seq": colInt,
		},
		orderKey: "seq ASC, id ASC",
		seqCol:   "seq",
	},
	"notifications": {
		columns: map[string]colKind{
			"id": colInt, "channel": colText, "subject": colText,
			"status": colText, "error": colText, "seq": colInt,
		},
		orderKey: "seq ASC, id ASC",
		seqCol:   "seq",
	},
	"webhook_events": {
		columns: map[string]colKind{
			"id": colText, "type": colText, "processed_at": colInt,
		},
		orderKey: "processed_at ASC, id COLLATE BINARY ASC",
		seqCol:   "processed_at",
	},
	"transactions": {
		columns: map[string]colKind{
			"id": colText, "account": colText, "amount_cents": colInt,
			"status": colText, "provider_ref": colText,
			"created_seq": colInt, "settled_seq": colInt, "error": colText,
		},
		orderKey: "created_seq ASC, id COLLATE BINARY ASC",
		seqCol:   "created_seq",
	},
	"bets": {
		columns: map[string]colKind{
			"id": colText, "platform": colText, "market": colText,
			"selection": colText, "odds_hundredths": colInt,
			"stake_cents": colInt, "status": colText,
			"payout_cents": colInt, "created_seq": colInt,
			"settled_seq": colInt,
		},
		orderKey: "created_seq ASC, id COLLATE BINARY ASC",
		seqCol:   "created_seq",
	},
	"platforms": {
		columns: map[string]colKind{
			"name": colText, "category": colText,
			"target_cents": colInt, "enabled": colInt,
		},
		orderKey: "name COLLATE BINARY ASC",
	},
}

// Tables returns the queryable table names in sorted order.
func Tables() []string {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Columns returns a table's column names in sorted order, or nil for
// an unknown table.
func Columns(table string) []string {
	spec, ok := tables[table]
	if !ok {
		return nil
	}
	cols := make([]string, 0, len(spec.columns))
	for name := range spec.columns {
		cols = append(cols, name)
	}
	sort.Strings(cols)
	return cols
}
