package formula

import (
	"errors"
	"fmt"

	"github.com/roach88/tracemon/internal/ir"
)

// ErrUnsupported is returned when progression meets a node kind it does
// not know. This is a programming error; the caller must abort the
// evaluation that hit it.
var ErrUnsupported = errors.New("unsupported formula node")

// Knowledge resolves the verdicts of @agent(...) sub-formulas.
type Knowledge interface {
	Lookup(fid string) (ir.Verdict, bool)
}

// Progress rewrites f by one event: the result is what remains to be
// proven about the rest of the trace. It has no side effects.
//
//	prg(true) = true, prg(false) = false
//	prg(p)    = true iff the event contains p
//	prg(X φ)  = φ
//	prg(G φ)  = prg(φ) ∧ G φ
//	prg(F φ)  = prg(φ) ∨ F φ
//	prg(φ U ψ) = prg(ψ) ∨ (prg(φ) ∧ φ U ψ)
//	prg(φ R ψ) = prg(ψ) ∧ (prg(φ) ∨ φ R ψ)
//	prg(@a φ) = known verdict of φ, else @a φ
//
// kb may be nil, in which case @ sub-formulas stay pending.
func Progress(f Formula, ev ir.Event, val Valuation, kb Knowledge) (Formula, error) {
	switch x := f.(type) {
	case True, False:
		return f, nil

	case Pred:
		return literal(matches(x, ev, val)), nil

	case Cmp:
		ok, err := compare(x, ev, val)
		if err != nil {
			return nil, err
		}
		return literal(ok), nil

	case Not:
		inner, err := Progress(x.F, ev, val, kb)
		if err != nil {
			return nil, err
		}
		return Neg(inner), nil

	case And:
		l, r, err := progressPair(x.Left, x.Right, ev, val, kb)
		if err != nil {
			return nil, err
		}
		return Conj(l, r), nil

	case Or:
		l, r, err := progressPair(x.Left, x.Right, ev, val, kb)
		if err != nil {
			return nil, err
		}
		return Disj(l, r), nil

	case Imply:
		return Progress(Or{Left: Not{F: x.Left}, Right: x.Right}, ev, val, kb)

	case Next:
		return x.F, nil

	case Always:
		inner, err := Progress(x.F, ev, val, kb)
		if err != nil {
			return nil, err
		}
		return Conj(inner, x), nil

	case Eventually:
		inner, err := Progress(x.F, ev, val, kb)
		if err != nil {
			return nil, err
		}
		return Disj(inner, x), nil

	case Until:
		l, r, err := progressPair(x.Left, x.Right, ev, val, kb)
		if err != nil {
			return nil, err
		}
		return Disj(r, Conj(l, x)), nil

	case Release:
		l, r, err := progressPair(x.Left, x.Right, ev, val, kb)
		if err != nil {
			return nil, err
		}
		return Conj(r, Disj(l, x)), nil

	case At:
		if kb != nil && x.FID != "" {
			if v, ok := kb.Lookup(x.FID); ok && v.Decided() {
				return literal(v == ir.True), nil
			}
		}
		return x, nil
	}
	return nil, fmt.Errorf("progress %s (%T): %w", f.Kind(), f, ErrUnsupported)
}

func progressPair(l, r Formula, ev ir.Event, val Valuation, kb Knowledge) (Formula, Formula, error) {
	pl, err := Progress(l, ev, val, kb)
	if err != nil {
		return nil, nil, err
	}
	pr, err := Progress(r, ev, val, kb)
	if err != nil {
		return nil, nil, err
	}
	return pl, pr, nil
}

// Verdict maps a residual formula to its three-valued verdict.
func Verdict(f Formula) ir.Verdict {
	switch f.Kind() {
	case KindTrue:
		return ir.True
	case KindFalse:
		return ir.False
	}
	return ir.Unknown
}

// Evaluate progresses f over events in order and stops early once the
// verdict is decided. It returns the residual formula.
func Evaluate(f Formula, events []ir.Event, val Valuation, kb Knowledge) (Formula, error) {
	cur := Simplify(f)
	for _, ev := range events {
		if IsLiteral(cur) {
			break
		}
		next, err := Progress(cur, ev, val, kb)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", ev.Step, err)
		}
		cur = next
	}
	return cur, nil
}
