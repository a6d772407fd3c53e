package query

import (
	"context"
	"database/sql"
	"fmt"
)

// Querier is the read surface exec needs; *store.Store satisfies it.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Row is one result row keyed by selected column name.
type Row map[string]any

// Exec compiles q and runs it, returning rows in the table's stable
// order. Values come back as SQLite's native scans: int64, float64,
// string or nil.
func Exec(ctx context.Context, db Querier, q Query) ([]Row, error) {
	stmt, params, err := Compile(q)
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, stmt, params...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Table, err)
	}
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		dest := make([]any, len(q.Columns))
		ptrs := make([]any, len(q.Columns))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.Table, err)
		}
		row := make(Row, len(q.Columns))
		for i, col := range q.Columns {
			if b, ok := dest[i].([]byte); ok {
				dest[i] = string(b)
			}
			row[col] = dest[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
