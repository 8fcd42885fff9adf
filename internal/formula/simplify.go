package formula

import "github.com/roach88/tracemon/internal/ir"

// Conj builds the simplified conjunction of fs.
//
// Nested conjunctions are flattened, true operands dropped and duplicate
// operands (by canonical text) removed; any false operand makes the whole
// conjunction false. Without deduplication G(F(p)) would grow by one
// conjunct per event.
func Conj(fs ...Formula) Formula {
	var parts []Formula
	seen := make(map[string]bool)
	var add func(Formula) bool
	add = func(f Formula) bool {
		switch x := f.(type) {
		case True:
			return true
		case False:
			return false
		case And:
			return add(x.Left) && add(x.Right)
		}
		key := f.String()
		if !seen[key] {
			seen[key] = true
			parts = append(parts, f)
		}
		return true
	}
	for _, f := range fs {
		if !add(f) {
			return Bottom
		}
	}
	if len(parts) == 0 {
		return Top
	}
	out := parts[0]
	for _, f := range parts[1:] {
		out = And{Left: out, Right: f}
	}
	return out
}

// Disj builds the simplified disjunction of fs, dual to Conj.
func Disj(fs ...Formula) Formula {
	var parts []Formula
	seen := make(map[string]bool)
	var add func(Formula) bool
	add = func(f Formula) bool {
		switch x := f.(type) {
		case False:
			return true
		case True:
			return false
		case Or:
			return add(x.Left) && add(x.Right)
		}
		key := f.String()
		if !seen[key] {
			seen[key] = true
			parts = append(parts, f)
		}
		return true
	}
	for _, f := range fs {
		if !add(f) {
			return Top
		}
	}
	if len(parts) == 0 {
		return Bottom
	}
	out := parts[0]
	for _, f := range parts[1:] {
		out = Or{Left: out, Right: f}
	}
	return out
}

// Neg builds the simplified negation of f.
func Neg(f Formula) Formula {
	switch x := f.(type) {
	case True:
		return Bottom
	case False:
		return Top
	case Not:
		return x.F
	}
	return Not{F: f}
}

// Simplify folds literals bottom-up without consuming an event.
// A formula that is already decided reduces to true or false.
func Simplify(f Formula) Formula {
	switch x := f.(type) {
	case Not:
		return Neg(Simplify(x.F))
	case And:
		return Conj(Simplify(x.Left), Simplify(x.Right))
	case Or:
		return Disj(Simplify(x.Left), Simplify(x.Right))
	case Imply:
		return Disj(Neg(Simplify(x.Left)), Simplify(x.Right))
	case Always:
		inner := Simplify(x.F)
		if IsLiteral(inner) {
			return inner
		}
		return Always{F: inner}
	case Eventually:
		inner := Simplify(x.F)
		if IsLiteral(inner) {
			return inner
		}
		return Eventually{F: inner}
	case Next:
		inner := Simplify(x.F)
		if IsLiteral(inner) {
			return inner
		}
		return Next{F: inner}
	case Until:
		l, r := Simplify(x.Left), Simplify(x.Right)
		switch {
		case r.Kind() == KindTrue:
			return Top
		case l.Kind() == KindFalse:
			return r
		}
		return Until{Left: l, Right: r}
	case Release:
		l, r := Simplify(x.Left), Simplify(x.Right)
		switch {
		case r.Kind() == KindFalse:
			return Bottom
		case l.Kind() == KindTrue:
			return r
		}
		return Release{Left: l, Right: r}
	case At:
		return At{Agent: x.Agent, FID: x.FID, F: Simplify(x.F)}
	case Cmp:
		if isGround(x.Left) && isGround(x.Right) {
			if ok, err := compare(x, ir.Event{}, nil); err == nil {
				return literal(ok)
			}
		}
	}
	return f
}

func isGround(e Expr) bool {
	switch x := e.(type) {
	case Const:
		return true
	case Arith:
		return isGround(x.Left) && isGround(x.Right)
	}
	return false
}

func literal(b bool) Formula {
	if b {
		return Top
	}
	return Bottom
}
