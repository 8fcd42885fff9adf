package formula

import (
	"slices"

	"github.com/roach88/tracemon/internal/ir"
)

// Walk visits f and its sub-formulas depth-first, parents before children.
// Returning false from fn skips the children of that node.
func Walk(f Formula, fn func(Formula) bool) {
	if !fn(f) {
		return
	}
	switch x := f.(type) {
	case Not:
		Walk(x.F, fn)
	case Always:
		Walk(x.F, fn)
	case Eventually:
		Walk(x.F, fn)
	case Next:
		Walk(x.F, fn)
	case At:
		Walk(x.F, fn)
	case And:
		Walk(x.Left, fn)
		Walk(x.Right, fn)
	case Or:
		Walk(x.Left, fn)
		Walk(x.Right, fn)
	case Imply:
		Walk(x.Left, fn)
		Walk(x.Right, fn)
	case Until:
		Walk(x.Left, fn)
		Walk(x.Right, fn)
	case Release:
		Walk(x.Left, fn)
		Walk(x.Right, fn)
	}
}

// Ats returns the @agent(...) nodes of f, outermost first. Nested @ nodes
// belong to the remote agent and are not returned.
func Ats(f Formula) []At {
	var out []At
	Walk(f, func(n Formula) bool {
		if at, ok := n.(At); ok {
			out = append(out, at)
			return false
		}
		return true
	})
	return out
}

// PredicateNames returns the sorted, distinct predicate names used by f.
func PredicateNames(f Formula) []string {
	var names []string
	Walk(f, func(n Formula) bool {
		if p, ok := n.(Pred); ok && !slices.Contains(names, p.Name) {
			names = append(names, p.Name)
		}
		return true
	})
	slices.Sort(names)
	return names
}

// BindFIDs returns a copy of f where every top-level @agent(...) node
// carries its knowledge-vector key for monitor sid.
func BindFIDs(f Formula, sid string) (Formula, error) {
	switch x := f.(type) {
	case At:
		fid, err := ir.FormulaID(sid, x.F.String())
		if err != nil {
			return nil, err
		}
		return At{Agent: x.Agent, FID: fid, F: x.F}, nil
	case Not:
		inner, err := BindFIDs(x.F, sid)
		return Not{F: inner}, err
	case Always:
		inner, err := BindFIDs(x.F, sid)
		return Always{F: inner}, err
	case Eventually:
		inner, err := BindFIDs(x.F, sid)
		return Eventually{F: inner}, err
	case Next:
		inner, err := BindFIDs(x.F, sid)
		return Next{F: inner}, err
	case And:
		l, r, err := bindPair(x.Left, x.Right, sid)
		return And{Left: l, Right: r}, err
	case Or:
		l, r, err := bindPair(x.Left, x.Right, sid)
		return Or{Left: l, Right: r}, err
	case Imply:
		l, r, err := bindPair(x.Left, x.Right, sid)
		return Imply{Left: l, Right: r}, err
	case Until:
		l, r, err := bindPair(x.Left, x.Right, sid)
		return Until{Left: l, Right: r}, err
	case Release:
		l, r, err := bindPair(x.Left, x.Right, sid)
		return Release{Left: l, Right: r}, err
	}
	return f, nil
}

func bindPair(l, r Formula, sid string) (Formula, Formula, error) {
	bl, err := BindFIDs(l, sid)
	if err != nil {
		return nil, nil, err
	}
	br, err := BindFIDs(r, sid)
	if err != nil {
		return nil, nil, err
	}
	return bl, br, nil
}
