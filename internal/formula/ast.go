// Package formula defines the temporal-logic formula AST, its textual
// syntax and the progression function that rewrites a formula by one
// trace event.
//
// Formulas are immutable. Every rewrite returns a new tree and shares
// unchanged subtrees with its input.
package formula

import "strings"

// Kind tags a formula node by operator.
type Kind uint8

const (
	KindTrue Kind = iota + 1
	KindFalse
	KindPred
	KindCmp
	KindNot
	KindAnd
	KindOr
	KindImply
	KindAlways
	KindEventually
	KindNext
	KindUntil
	KindRelease
	KindAt
)

var kindNames = map[Kind]string{
	KindTrue:       "true",
	KindFalse:      "false",
	KindPred:       "predicate",
	KindCmp:        "comparison",
	KindNot:        "not",
	KindAnd:        "and",
	KindOr:         "or",
	KindImply:      "imply",
	KindAlways:     "always",
	KindEventually: "eventually",
	KindNext:       "next",
	KindUntil:      "until",
	KindRelease:    "release",
	KindAt:         "at",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Formula is a node of the formula tree.
// String returns the canonical text, which parses back to an equal tree.
type Formula interface {
	Kind() Kind
	String() string
}

// True is the satisfied formula.
type True struct{}

// False is the violated formula.
type False struct{}

// Pred matches an event predicate with the same name and arguments.
type Pred struct {
	Name string
	Args []Term
}

// Cmp compares two arithmetic expressions.
type Cmp struct {
	Op    CmpOp
	Left  Expr
	Right Expr
}

// Not negates its operand.
type Not struct{ F Formula }

// And is conjunction.
type And struct{ Left, Right Formula }

// Or is disjunction.
type Or struct{ Left, Right Formula }

// Imply is material implication, progressed as !Left or Right.
type Imply struct{ Left, Right Formula }

// Always (G) holds if F holds at every step.
type Always struct{ F Formula }

// Eventually (F) holds if F holds at some step.
type Eventually struct{ F Formula }

// Next (X) holds if F holds at the following step.
type Next struct{ F Formula }

// Until holds if Right eventually holds and Left holds until then.
type Until struct{ Left, Right Formula }

// Release holds if Right holds up to and including the step where Left holds.
type Release struct{ Left, Right Formula }

// At refers to a sub-formula evaluated by another agent. Its verdict is
// looked up in the knowledge vector under FID.
type At struct {
	Agent string
	FID   string
	F     Formula
}

// Literal verdict formulas.
var (
	Top    Formula = True{}
	Bottom Formula = False{}
)

func (True) Kind() Kind       { return KindTrue }
func (False) Kind() Kind      { return KindFalse }
func (Pred) Kind() Kind       { return KindPred }
func (Cmp) Kind() Kind        { return KindCmp }
func (Not) Kind() Kind        { return KindNot }
func (And) Kind() Kind        { return KindAnd }
func (Or) Kind() Kind         { return KindOr }
func (Imply) Kind() Kind      { return KindImply }
func (Always) Kind() Kind     { return KindAlways }
func (Eventually) Kind() Kind { return KindEventually }
func (Next) Kind() Kind       { return KindNext }
func (Until) Kind() Kind      { return KindUntil }
func (Release) Kind() Kind    { return KindRelease }
func (At) Kind() Kind         { return KindAt }

func (True) String() string  { return "true" }
func (False) String() string { return "false" }

func (p Pred) String() string {
	if len(p.Args) == 0 {
		return p.Name
	}
	args := make([]string, len(p.Args))
	for i, a := range p.Args {
		args[i] = a.String()
	}
	return p.Name + "(" + strings.Join(args, ",") + ")"
}

func (c Cmp) String() string {
	return "(" + c.Left.String() + " " + string(c.Op) + " " + c.Right.String() + ")"
}

func (n Not) String() string {
	switch n.F.Kind() {
	case KindPred, KindTrue, KindFalse, KindNot, KindAt:
		return "!" + n.F.String()
	}
	return unary("!", n.F)
}

func (b And) String() string     { return binary(b.Left, "and", b.Right) }
func (b Or) String() string      { return binary(b.Left, "or", b.Right) }
func (b Imply) String() string   { return binary(b.Left, "=>", b.Right) }
func (b Until) String() string   { return binary(b.Left, "U", b.Right) }
func (b Release) String() string { return binary(b.Left, "R", b.Right) }

func (u Always) String() string     { return unary("G", u.F) }
func (u Eventually) String() string { return unary("F", u.F) }
func (u Next) String() string       { return unary("X", u.F) }
func (a At) String() string         { return unary("@"+a.Agent, a.F) }

// unary wraps the operand in parentheses unless it already renders with them.
func unary(op string, f Formula) string {
	if parenthesized(f) {
		return op + f.String()
	}
	return op + "(" + f.String() + ")"
}

func binary(l Formula, op string, r Formula) string {
	return "(" + l.String() + " " + op + " " + r.String() + ")"
}

func parenthesized(f Formula) bool {
	switch f.Kind() {
	case KindAnd, KindOr, KindImply, KindUntil, KindRelease, KindCmp:
		return true
	}
	return false
}

// IsLiteral reports whether f is True or False.
func IsLiteral(f Formula) bool {
	k := f.Kind()
	return k == KindTrue || k == KindFalse
}
