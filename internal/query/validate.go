package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/droverhq/drover/internal/ir"
)

// Validate checks a Query against the table registry. All problems
// are collected into one error rather than stopping at the first, so
// a CLI user sees everything wrong with a filter in a single pass.
func Validate(q Query) error {
	v := &validator{}
	spec, ok := tables[q.Table]
	if !ok {
		v.addf("unknown table %q (known: %s)", q.Table, strings.Join(Tables(), ", "))
		return v.err()
	}

	if len(q.Columns) == 0 {
		v.addf("table %s: no columns selected", q.Table)
	}
	for _, col := range q.Columns {
		if _, ok := spec.columns[col]; !ok {
			v.addf("table %s: unknown column %q", q.Table, col)
		}
	}

	if q.Filter != nil {
		v.predicate(q.Table, spec, q.Filter)
	}
	return v.err()
}

type validator struct {
	problems []string
}

func (v *validator) addf(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) err() error {
	if len(v.problems) == 0 {
		return nil
	}
	return errors.New(strings.Join(v.problems, "; "))
}

func (v *validator) predicate(table string, spec tableSpec, p Predicate) {
	switch pred := p.(type) {
	case Eq:
		v.comparison(table, spec, pred.Field, pred.Value)
	case Ne:
		v.comparison(table, spec, pred.Field, pred.Value)
	case Gt:
		v.ordered(table, spec, pred.Field)
	case Lt:
		v.ordered(table, spec, pred.Field)
	case Since:
		if spec.seqCol == "" {
			v.addf("table %s: has no sequence column, since is not applicable", table)
		}
	case And:
		for _, sub := range pred.Predicates {
			v.predicate(table, spec, sub)
		}
	default:
		v.addf("table %s: unsupported predicate %T", table, p)
	}
}

func (v *validator) comparison(table string, spec tableSpec, field string, value ir.Value) {
	if _, ok := spec.columns[field]; !ok {
		v.addf("table %s: unknown column %q in filter", table, field)
		return
	}
	switch value.(type) {
	case ir.String, ir.Int, ir.Bool:
	case nil, ir.Null:
		v.addf("table %s: column %q compared to null", table, field)
	default:
		v.addf("table %s: column %q compared to non-scalar %T", table, field, value)
	}
}

func (v *validator) ordered(table string, spec tableSpec, field string) {
	kind, ok := spec.columns[field]
	if !ok {
		v.addf("table %s: unknown column %q in filter", table, field)
		return
	}
	if kind == colText {
		v.addf("table %s: column %q is text, range comparison needs an integer column", table, field)
	}
}
