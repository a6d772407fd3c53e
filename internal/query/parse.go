package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/droverhq/drover/internal/ir"
)

// ParseFilter turns CLI filter expressions into a Predicate.
//
// Each expression is field<op>value with op one of != = > <. The
// pseudo-field "since" takes a sequence number and becomes a Since
// predicate. Values that parse as integers become Int, true/false
// become Bool, everything else is String. Multiple expressions are
// conjoined.
//
//	status=failed
//	attempts>2
//	since=1000
func ParseFilter(exprs []string) (Predicate, error) {
	var preds []Predicate
	for _, expr := range exprs {
		pred, err := parseExpr(expr)
		if err != nil {
			return nil, err
		}
		preds = append(preds, pred)
	}
	switch len(preds) {
	case 0:
		return nil, nil
	case 1:
		return preds[0], nil
	default:
		return And{Predicates: preds}, nil
	}
}

func parseExpr(expr string) (Predicate, error) {
	// != must be tried before = or the bang lands in the field name.
	for _, op := range []string{"!=", "=", ">", "<"} {
		field, raw, ok := strings.Cut(expr, op)
		if !ok {
			continue
		}
		field = strings.TrimSpace(field)
		raw = strings.TrimSpace(raw)
		if field == "" || raw == "" {
			return nil, fmt.Errorf("filter %q: empty field or value", expr)
		}
		return buildPredicate(expr, field, op, raw)
	}
	return nil, fmt.Errorf("filter %q: expected field=value, field!=value, field>n or field<n", expr)
}

func buildPredicate(expr, field, op, raw string) (Predicate, error) {
	if field == "since" {
		if op != "=" {
			return nil, fmt.Errorf("filter %q: since takes =", expr)
		}
		seq, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("filter %q: since needs a sequence number", expr)
		}
		return Since{Seq: seq}, nil
	}

	switch op {
	case "=":
		return Eq{Field: field, Value: parseValue(raw)}, nil
	case "!=":
		return Ne{Field: field, Value: parseValue(raw)}, nil
	case ">", "<":
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("filter %q: range comparison needs an integer", expr)
		}
		if op == ">" {
			return Gt{Field: field, Value: n}, nil
		}
		return Lt{Field: field, Value: n}, nil
	}
	return nil, fmt.Errorf("filter %q: unknown operator %q", expr, op)
}

func parseValue(raw string) ir.Value {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return ir.Int(n)
	}
	switch raw {
	case "true":
		return ir.Bool(true)
	case "false":
		return ir.Bool(false)
	}
	return ir.String(raw)
}
