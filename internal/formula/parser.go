package formula

import (
	"errors"
	"fmt"

	"github.com/roach88/tracemon/internal/ir"
)

// ParseError reports malformed formula text.
type ParseError struct {
	Input  string
	Offset int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("formula parse error at offset %d: %s", e.Offset, e.Msg)
}

// IsParseError reports whether err wraps a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// keywords cannot be used as predicate or variable names.
var keywords = map[string]bool{
	"true": true, "false": true,
	"and": true, "or": true, "not": true,
	"G": true, "F": true, "X": true, "U": true, "R": true,
	"always": true, "future": true, "eventually": true, "next": true,
	"until": true, "release": true,
}

// Parse parses formula text into an AST.
//
// Grammar, loosest binding first:
//
//	a => b        implication (right associative), also ->
//	a or b        disjunction, also || and |
//	a and b       conjunction, also && and &
//	a U b, a R b  until / release
//	!a G a F a X a @agent(a)
//	p(x,'c',r'^re') x + 1 > 3 true false (a)
func Parse(input string) (Formula, error) {
	toks, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{input: input, toks: toks}
	f, err := p.parseImply()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, p.errorf("unexpected %s", p.peek())
	}
	return f, nil
}

// MustParse is like Parse but panics on error.
// Use only in tests or for constant formulas.
func MustParse(input string) Formula {
	f, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return f
}

type parser struct {
	input string
	toks  []token
	pos   int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) peekAt(n int) token {
	if p.pos+n < len(p.toks) {
		return p.toks[p.pos+n]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isOp(ops ...string) bool {
	t := p.peek()
	if t.kind != tokOp {
		return false
	}
	for _, op := range ops {
		if t.text == op {
			return true
		}
	}
	return false
}

func (p *parser) isKeyword(words ...string) bool {
	t := p.peek()
	if t.kind != tokIdent {
		return false
	}
	for _, w := range words {
		if t.text == w {
			return true
		}
	}
	return false
}

func (p *parser) expectOp(op string) error {
	if !p.isOp(op) {
		return p.errorf("expected %q, found %s", op, p.peek())
	}
	p.next()
	return nil
}

func (p *parser) errorf(format string, args ...any) *ParseError {
	return &ParseError{Input: p.input, Offset: p.peek().pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) parseImply() (Formula, error) {
	left, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.isOp("=>") {
		p.next()
		right, err := p.parseImply()
		if err != nil {
			return nil, err
		}
		return Imply{Left: left, Right: right}, nil
	}
	return left, nil
}

func (p *parser) parseOr() (Formula, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isOp("||") || p.isKeyword("or") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Formula, error) {
	left, err := p.parseBinary()
	if err != nil {
		return nil, err
	}
	for p.isOp("&&") || p.isKeyword("and") {
		p.next()
		right, err := p.parseBinary()
		if err != nil {
			return nil, err
		}
		left = And{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseBinary() (Formula, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	switch {
	case p.isKeyword("U", "until"):
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Until{Left: left, Right: right}, nil
	case p.isKeyword("R", "release"):
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Release{Left: left, Right: right}, nil
	}
	return left, nil
}

func (p *parser) parseUnary() (Formula, error) {
	var wrap func(Formula) Formula
	switch {
	case p.isOp("!") || p.isKeyword("not"):
		wrap = func(f Formula) Formula { return Not{F: f} }
	case p.isKeyword("G", "always"):
		wrap = func(f Formula) Formula { return Always{F: f} }
	case p.isKeyword("F", "future", "eventually"):
		wrap = func(f Formula) Formula { return Eventually{F: f} }
	case p.isKeyword("X", "next"):
		wrap = func(f Formula) Formula { return Next{F: f} }
	default:
		return p.parsePrimary()
	}
	p.next()
	inner, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return wrap(inner), nil
}

func (p *parser) parsePrimary() (Formula, error) {
	t := p.peek()
	switch {
	case p.isKeyword("true"):
		p.next()
		return Top, nil

	case p.isKeyword("false"):
		p.next()
		return Bottom, nil

	case p.isOp("@"):
		return p.parseAt()

	case t.kind == tokIdent && !keywords[t.text]:
		if nt := p.peekAt(1); nt.kind == tokOp && nt.text == "(" {
			return p.parsePredicate()
		}
		save := p.pos
		if cmp, ok, err := p.tryComparison(); ok || err != nil {
			return cmp, err
		}
		p.pos = save
		p.next()
		return Pred{Name: t.text}, nil

	case t.kind == tokInt || t.kind == tokString || p.isOp("-"):
		cmp, ok, err := p.tryComparison()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, p.errorf("expected comparison operator, found %s", p.peek())
		}
		return cmp, nil

	case p.isOp("("):
		save := p.pos
		if cmp, ok, err := p.tryComparison(); ok || err != nil {
			return cmp, err
		}
		p.pos = save
		p.next()
		f, err := p.parseImply()
		if err != nil {
			return nil, err
		}
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
		return f, nil
	}
	return nil, p.errorf("unexpected %s", t)
}

func (p *parser) parseAt() (Formula, error) {
	p.next() // @
	agent := p.peek()
	if agent.kind != tokIdent || keywords[agent.text] {
		return nil, p.errorf("expected agent name after @, found %s", agent)
	}
	p.next()
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	inner, err := p.parseImply()
	if err != nil {
		return nil, err
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	return At{Agent: agent.text, F: inner}, nil
}

func (p *parser) parsePredicate() (Formula, error) {
	name := p.next().text
	p.next() // (
	pred := Pred{Name: name}
	if p.isOp(")") {
		p.next()
		return pred, nil
	}
	for {
		arg, err := p.parseArg()
		if err != nil {
			return nil, err
		}
		pred.Args = append(pred.Args, arg)
		if p.isOp(",") {
			p.next()
			continue
		}
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
		return pred, nil
	}
}

func (p *parser) parseArg() (Term, error) {
	t := p.peek()
	switch {
	case t.kind == tokString:
		p.next()
		return Const{Value: ir.Str(t.text)}, nil
	case t.kind == tokInt:
		p.next()
		return Const{Value: ir.Int(t.num)}, nil
	case p.isOp("-") && p.peekAt(1).kind == tokInt:
		p.next()
		return Const{Value: ir.Int(-p.next().num)}, nil
	case t.kind == tokRegexp:
		re, err := NewRegexp(t.text)
		if err != nil {
			return nil, p.errorf("invalid regexp %s: %v", t, err)
		}
		p.next()
		return re, nil
	case p.isKeyword("true", "false"):
		p.next()
		return Const{Value: ir.Bool(t.text == "true")}, nil
	case t.kind == tokIdent && !keywords[t.text]:
		p.next()
		return Var{Name: t.text}, nil
	}
	return nil, p.errorf("invalid predicate argument %s", t)
}

var cmpOps = map[string]CmpOp{
	"==": OpEq, "!=": OpNe, "<": OpLt, "<=": OpLe, ">": OpGt, ">=": OpGe,
}

// tryComparison parses "expr op expr". ok is false when the input does not
// start with an expression followed by a comparison operator; the caller
// then restores its position and tries another production. Once the
// operator is seen, errors are reported.
func (p *parser) tryComparison() (Formula, bool, error) {
	left, err := p.parseExpr()
	if err != nil {
		return nil, false, nil
	}
	t := p.peek()
	op, isCmp := cmpOps[t.text]
	if t.kind != tokOp || !isCmp {
		return nil, false, nil
	}
	p.next()
	right, err := p.parseExpr()
	if err != nil {
		return nil, true, err
	}
	return Cmp{Op: op, Left: left, Right: right}, true, nil
}

func (p *parser) parseExpr() (Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.isOp("+", "-") {
		op := ArithOp(p.next().text)
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = Arith{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseTerm() (Expr, error) {
	left, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for p.isOp("*", "/", "%") {
		op := ArithOp(p.next().text)
		right, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		left = Arith{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAtom() (Expr, error) {
	t := p.peek()
	switch {
	case t.kind == tokInt:
		p.next()
		return Const{Value: ir.Int(t.num)}, nil
	case t.kind == tokString:
		p.next()
		return Const{Value: ir.Str(t.text)}, nil
	case p.isKeyword("true", "false"):
		p.next()
		return Const{Value: ir.Bool(t.text == "true")}, nil
	case t.kind == tokIdent && !keywords[t.text]:
		// a name followed by "(" is a predicate, not a variable
		if nt := p.peekAt(1); nt.kind == tokOp && nt.text == "(" {
			return nil, p.errorf("unexpected predicate %s in expression", t)
		}
		p.next()
		return Var{Name: t.text}, nil
	case p.isOp("-"):
		p.next()
		if p.peek().kind == tokInt {
			return Const{Value: ir.Int(-p.next().num)}, nil
		}
		inner, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		return Arith{Op: OpSub, Left: Const{Value: ir.Int(0)}, Right: inner}, nil
	case p.isOp("("):
		p.next()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
		return e, nil
	}
	return nil, p.errorf("unexpected %s in expression", t)
}
