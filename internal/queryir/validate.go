package queryir

import (
	"fmt"
	"slices"

	"github.com/roach88/tracemon/internal/ir"
)

// Schema lists the columns of each table a query may read.
type Schema map[string][]string

func (s Schema) has(table, column string) bool {
	return slices.Contains(s[table], column)
}

// Validate reports every rule q breaks against schema. An empty result
// means q can be compiled.
func Validate(q Query, schema Schema) []string {
	v := &validator{schema: schema}
	v.query(q)
	return v.problems
}

type validator struct {
	schema   Schema
	problems []string
}

func (v *validator) addf(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) query(q Query) {
	sel, ok := q.(Select)
	if !ok {
		v.addf("unsupported query type %T", q)
		return
	}
	if _, ok := v.schema[sel.From]; !ok {
		v.addf("unknown table %q", sel.From)
		return
	}
	if len(sel.Columns) == 0 {
		v.addf("no columns selected from %s", sel.From)
	}
	for _, c := range sel.Columns {
		v.column(sel.From, c)
	}
	for _, o := range sel.OrderBy {
		v.column(sel.From, o.Field)
	}
	v.predicate(sel.From, sel.Filter)
}

func (v *validator) column(table, column string) {
	if !v.schema.has(table, column) {
		v.addf("unknown column %s.%s", table, column)
	}
}

func (v *validator) predicate(table string, p Predicate) {
	switch pred := p.(type) {
	case nil:
	case Equals:
		v.column(table, pred.Field)
		switch pred.Value.(type) {
		case ir.Str, ir.Int, ir.Bool:
		default:
			v.addf("%s compared to unsupported value %T", pred.Field, pred.Value)
		}
	case And:
		for _, sub := range pred.Predicates {
			v.predicate(table, sub)
		}
	default:
		v.addf("unsupported predicate type %T", p)
	}
}
