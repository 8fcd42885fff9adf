// Package querysql compiles queryir queries to parameterized SQLite SQL.
package querysql

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/tracemon/internal/ir"
	"github.com/roach88/tracemon/internal/queryir"
)

// tiebreaker is appended to every ORDER BY that does not already sort by
// it, so equal sort keys still come back in a stable order.
const tiebreaker = "id"

// SQLCompiler compiles queries against a fixed schema.
//
// Values are always bound as ? parameters, never interpolated. Identifiers
// are interpolated only after Validate has checked them against the
// schema.
type SQLCompiler struct {
	schema queryir.Schema
}

// NewSQLCompiler creates a compiler for schema.
func NewSQLCompiler(schema queryir.Schema) *SQLCompiler {
	return &SQLCompiler{schema: schema}
}

// Compile converts q to SQL and its parameters.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if problems := queryir.Validate(q, c.schema); len(problems) > 0 {
		return "", nil, fmt.Errorf("invalid query: %s", strings.Join(problems, "; "))
	}
	sel := q.(queryir.Select)

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(sel.Columns, ", "), sel.From)

	var params []any
	if sel.Filter != nil {
		where, ps, err := compilePredicate(sel.Filter)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(" WHERE " + where)
		params = ps
	}

	b.WriteString(" ORDER BY " + c.orderBy(sel))
	return b.String(), params, nil
}

func (c *SQLCompiler) orderBy(sel queryir.Select) string {
	keys := make([]string, 0, len(sel.OrderBy)+1)
	seen := false
	for _, o := range sel.OrderBy {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		keys = append(keys, o.Field+" COLLATE BINARY "+dir)
		seen = seen || o.Field == tiebreaker
	}
	if !seen {
		keys = append(keys, tiebreaker+" COLLATE BINARY ASC")
	}
	return strings.Join(keys, ", ")
}

func compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		param, err := toParam(pred.Value)
		if err != nil {
			return "", nil, fmt.Errorf("%s: %w", pred.Field, err)
		}
		return pred.Field + " = ?", []any{param}, nil

	case queryir.And:
		if len(pred.Predicates) == 0 {
			return "1 = 1", nil, nil
		}
		parts := make([]string, 0, len(pred.Predicates))
		var params []any
		for _, sub := range pred.Predicates {
			s, ps, err := compilePredicate(sub)
			if err != nil {
				return "", nil, err
			}
			if _, nested := sub.(queryir.And); nested {
				s = "(" + s + ")"
			}
			parts = append(parts, s)
			params = append(params, ps...)
		}
		return strings.Join(parts, " AND "), params, nil
	}
	return "", nil, fmt.Errorf("unsupported predicate type %T", p)
}

func toParam(v ir.Value) (any, error) {
	switch val := v.(type) {
	case ir.Str:
		return string(val), nil
	case ir.Int:
		return int64(val), nil
	case ir.Bool:
		return bool(val), nil
	}
	return nil, errors.New("unsupported value type")
}
