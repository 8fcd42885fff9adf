package formula

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/tracemon/internal/ir"
)

// Term is a predicate argument: Const, Var or Regexp.
type Term interface {
	term()
	String() string
}

// Expr is an arithmetic expression: Const, Var or Arith.
type Expr interface {
	expr()
	String() string
}

// Const is a literal value.
type Const struct{ Value ir.Value }

// Var is resolved from the event attributes, then the valuation.
type Var struct{ Name string }

// Regexp matches an event argument whose text starts with a match.
type Regexp struct {
	Pattern string
	re      *regexp.Regexp
}

// Arith combines two integer expressions.
type Arith struct {
	Op    ArithOp
	Left  Expr
	Right Expr
}

func (Const) term()  {}
func (Var) term()    {}
func (Regexp) term() {}
func (Const) expr()  {}
func (Var) expr()    {}
func (Arith) expr()  {}

func (c Const) String() string  { return ir.Quote(c.Value) }
func (v Var) String() string    { return v.Name }
func (r Regexp) String() string { return "r'" + strings.ReplaceAll(r.Pattern, "'", `\'`) + "'" }
func (a Arith) String() string {
	return "(" + a.Left.String() + " " + string(a.Op) + " " + a.Right.String() + ")"
}

// NewRegexp compiles pattern anchored at the start of the argument.
func NewRegexp(pattern string) (Regexp, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")")
	if err != nil {
		return Regexp{}, err
	}
	return Regexp{Pattern: pattern, re: re}, nil
}

// Match reports whether the argument text matches.
func (r Regexp) Match(s string) bool {
	if r.re == nil {
		compiled, err := NewRegexp(r.Pattern)
		if err != nil {
			return false
		}
		r = compiled
	}
	return r.re.MatchString(s)
}

// CmpOp is a comparison operator.
type CmpOp string

const (
	OpEq CmpOp = "=="
	OpNe CmpOp = "!="
	OpLt CmpOp = "<"
	OpLe CmpOp = "<="
	OpGt CmpOp = ">"
	OpGe CmpOp = ">="
)

// ArithOp is an arithmetic operator over Int values.
type ArithOp string

const (
	OpAdd ArithOp = "+"
	OpSub ArithOp = "-"
	OpMul ArithOp = "*"
	OpDiv ArithOp = "/"
	OpMod ArithOp = "%"
)

// ErrDivisionByZero is returned when an expression divides by zero.
var ErrDivisionByZero = errors.New("division by zero")

// Valuation binds variable names to constant values.
type Valuation map[string]ir.Value

// lookup resolves a variable: event attributes first, then the valuation.
func lookup(name string, ev ir.Event, val Valuation) (ir.Value, bool) {
	if v, ok := ev.Attrs[name]; ok {
		return v, true
	}
	v, ok := val[name]
	return v, ok
}

// eval computes an expression. ok is false when a variable is unresolved
// or an operand is not an Int.
func eval(e Expr, ev ir.Event, val Valuation) (ir.Value, bool, error) {
	switch x := e.(type) {
	case Const:
		return x.Value, true, nil
	case Var:
		v, ok := lookup(x.Name, ev, val)
		return v, ok, nil
	case Arith:
		l, ok, err := eval(x.Left, ev, val)
		if err != nil || !ok {
			return nil, false, err
		}
		r, ok, err := eval(x.Right, ev, val)
		if err != nil || !ok {
			return nil, false, err
		}
		li, lok := l.(ir.Int)
		ri, rok := r.(ir.Int)
		if !lok || !rok {
			return nil, false, nil
		}
		switch x.Op {
		case OpAdd:
			return li + ri, true, nil
		case OpSub:
			return li - ri, true, nil
		case OpMul:
			return li * ri, true, nil
		case OpDiv:
			if ri == 0 {
				return nil, false, fmt.Errorf("%s: %w", x, ErrDivisionByZero)
			}
			return li / ri, true, nil
		case OpMod:
			if ri == 0 {
				return nil, false, fmt.Errorf("%s: %w", x, ErrDivisionByZero)
			}
			return li % ri, true, nil
		}
		return nil, false, fmt.Errorf("arithmetic operator %q: %w", x.Op, ErrUnsupported)
	}
	return nil, false, fmt.Errorf("expression %T: %w", e, ErrUnsupported)
}

// compare evaluates a comparison. Unresolved operands and ordering across
// different value types are false.
func compare(c Cmp, ev ir.Event, val Valuation) (bool, error) {
	l, ok, err := eval(c.Left, ev, val)
	if err != nil || !ok {
		return false, err
	}
	r, ok, err := eval(c.Right, ev, val)
	if err != nil || !ok {
		return false, err
	}

	switch c.Op {
	case OpEq:
		return ir.Equal(l, r), nil
	case OpNe:
		return !ir.Equal(l, r), nil
	case OpLt, OpLe, OpGt, OpGe:
		ord, comparable := order(l, r)
		if !comparable {
			return false, nil
		}
		switch c.Op {
		case OpLt:
			return ord < 0, nil
		case OpLe:
			return ord <= 0, nil
		case OpGt:
			return ord > 0, nil
		default:
			return ord >= 0, nil
		}
	}
	return false, fmt.Errorf("comparison operator %q: %w", c.Op, ErrUnsupported)
}

func order(l, r ir.Value) (int, bool) {
	switch lv := l.(type) {
	case ir.Int:
		rv, ok := r.(ir.Int)
		if !ok {
			return 0, false
		}
		switch {
		case lv < rv:
			return -1, true
		case lv > rv:
			return 1, true
		}
		return 0, true
	case ir.Str:
		rv, ok := r.(ir.Str)
		if !ok {
			return 0, false
		}
		switch {
		case lv < rv:
			return -1, true
		case lv > rv:
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// matches reports whether the event contains p once its variables are
// instantiated. An unresolved variable never matches.
func matches(p Pred, ev ir.Event, val Valuation) bool {
	args := make([]Term, len(p.Args))
	for i, a := range p.Args {
		if v, ok := a.(Var); ok {
			bound, found := lookup(v.Name, ev, val)
			if !found {
				return false
			}
			args[i] = Const{Value: bound}
			continue
		}
		args[i] = a
	}

	for _, ep := range ev.Predicates {
		if ep.Name != p.Name || len(ep.Args) != len(args) {
			continue
		}
		if argsMatch(args, ep.Args) {
			return true
		}
	}
	return false
}

// argsMatch compares instantiated arguments by their text, so '3' and 3
// are the same constant.
func argsMatch(args []Term, values []ir.Value) bool {
	for i, a := range args {
		text := values[i].Text()
		switch t := a.(type) {
		case Const:
			if t.Value.Text() != text {
				return false
			}
		case Regexp:
			if !t.Match(text) {
				return false
			}
		default:
			return false
		}
	}
	return true
}
