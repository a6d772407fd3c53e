package query

import (
	"fmt"
	"strings"

	"github.com/droverhq/drover/internal/ir"
)

// Compile validates a Query and renders it to parameterized SQL.
//
// The statement always carries the table's stable ORDER BY key, so a
// report over the same log is byte-identical across runs. Values are
// bound parameters without exception.
func Compile(q Query) (string, []any, error) {
	if err := Validate(q); err != nil {
		return "", nil, err
	}
	spec := tables[q.Table]

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(q.Columns, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(q.Table)

	var params []any
	if q.Filter != nil {
		clause, filterParams, err := compilePredicate(spec, q.Filter)
		if err != nil {
			return "", nil, err
		}
		if clause != "" {
			sb.WriteString(" WHERE ")
			sb.WriteString(clause)
			params = filterParams
		}
	}

	sb.WriteString(" ORDER BY ")
	sb.WriteString(spec.orderKey)

	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		params = append(params, q.Limit)
	}
	return sb.String(), params, nil
}

func compilePredicate(spec tableSpec, p Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case Eq:
		param, err := valueParam(pred.Value)
		if err != nil {
			return "", nil, fmt.Errorf("column %s: %w", pred.Field, err)
		}
		return pred.Field + " = ?", []any{param}, nil
	case Ne:
		param, err := valueParam(pred.Value)
		if err != nil {
			return "", nil, fmt.Errorf("column %s: %w", pred.Field, err)
		}
		return pred.Field + " != ?", []any{param}, nil
	case Gt:
		return pred.Field + " > ?", []any{pred.Value}, nil
	case Lt:
		return pred.Field + " < ?", []any{pred.Value}, nil
	case Since:
		return spec.seqCol + " >= ?", []any{pred.Seq}, nil
	case And:
		if len(pred.Predicates) == 0 {
			return "", nil, nil
		}
		var parts []string
		var params []any
		for _, sub := range pred.Predicates {
			clause, subParams, err := compilePredicate(spec, sub)
			if err != nil {
				return "", nil, err
			}
			if clause == "" {
				continue
			}
			parts = append(parts, clause)
			params = append(params, subParams...)
		}
		return strings.Join(parts, " AND "), params, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate %T", p)
	}
}

// valueParam converts a constrained value to its SQL parameter form.
func valueParam(v ir.Value) (any, error) {
	switch val := v.(type) {
	case ir.String:
		return string(val), nil
	case ir.Int:
		return int64(val), nil
	case ir.Bool:
		return bool(val), nil
	default:
		return nil, fmt.Errorf("value %T cannot be a SQL parameter", v)
	}
}
