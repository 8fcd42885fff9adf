package queryir

import "github.com/roach88/tracemon/internal/ir"

// Query is a sealed query node.
type Query interface {
	queryNode()
}

// Predicate is a sealed filter node.
type Predicate interface {
	predicateNode()
}

// Select reads Columns from From, keeping rows that satisfy Filter, sorted
// by OrderBy. A nil Filter keeps every row.
//
//	Select{
//	  From:    "violations",
//	  Columns: []string{"id", "step"},
//	  Filter:  And{Predicates: []Predicate{
//	    Equals{Field: "monitor_id", Value: ir.Str("no-admin")},
//	    Equals{Field: "status", Value: ir.Str("UNREAD")},
//	  }},
//	  OrderBy: []Order{{Field: "step"}},
//	}
type Select struct {
	From    string
	Columns []string
	Filter  Predicate
	OrderBy []Order
}

func (Select) queryNode() {}

// Order is one sort key.
type Order struct {
	Field string
	Desc  bool
}

// Equals holds when Field equals Value.
type Equals struct {
	Field string
	Value ir.Value
}

func (Equals) predicateNode() {}

// And holds when every predicate holds; an empty And always holds.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Where builds the conjunction of the non-nil predicates, collapsing the
// trivial cases: no predicate gives nil, one gives itself.
func Where(preds ...Predicate) Predicate {
	kept := make([]Predicate, 0, len(preds))
	for _, p := range preds {
		if p != nil {
			kept = append(kept, p)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return And{Predicates: kept}
}

// EqualsIf returns Equals{field, ir.Str(value)}, or nil when value is
// empty. It turns optional string filters into predicates.
func EqualsIf(field, value string) Predicate {
	if value == "" {
		return nil
	}
	return Equals{Field: field, Value: ir.Str(value)}
}
