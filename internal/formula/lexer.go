package formula

import (
	"fmt"
	"strconv"
	"strings"
)

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokInt
	tokString
	tokRegexp
	tokOp
)

type token struct {
	kind tokKind
	text string // identifier, operator, or unescaped string body
	num  int64
	pos  int
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokString:
		return strconv.Quote(t.text)
	case tokRegexp:
		return "r" + strconv.Quote(t.text)
	}
	return strconv.Quote(t.text)
}

// two-character operators first so that longest match wins
var operators = []string{
	"&&", "||", "=>", "->", "==", "!=", "<=", ">=",
	"!", "~", "<", ">", "+", "-", "*", "/", "%", "(", ")", ",", "@", "&", "|", "=",
}

// canonicalOp folds operator spellings.
var canonicalOp = map[string]string{
	"&": "&&",
	"|": "||",
	"=": "==",
	"->": "=>",
	"~": "!",
}

func lex(input string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(input) {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == 'r' && i+1 < len(input) && (input[i+1] == '\'' || input[i+1] == '"'):
			body, end, err := lexString(input, i+1, true)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokRegexp, text: body, pos: i})
			i = end

		case isIdentStart(c):
			start := i
			for i < len(input) && isIdentPart(input[i]) {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: input[start:i], pos: start})

		case c >= '0' && c <= '9':
			start := i
			for i < len(input) && input[i] >= '0' && input[i] <= '9' {
				i++
			}
			n, err := strconv.ParseInt(input[start:i], 10, 64)
			if err != nil {
				return nil, &ParseError{Input: input, Offset: start, Msg: fmt.Sprintf("integer %s out of range", input[start:i])}
			}
			toks = append(toks, token{kind: tokInt, text: input[start:i], num: n, pos: start})

		case c == '\'' || c == '"':
			body, end, err := lexString(input, i, false)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokString, text: body, pos: i})
			i = end

		default:
			op := ""
			for _, candidate := range operators {
				if strings.HasPrefix(input[i:], candidate) {
					op = candidate
					break
				}
			}
			if op == "" {
				return nil, &ParseError{Input: input, Offset: i, Msg: fmt.Sprintf("unexpected character %q", c)}
			}
			text := op
			if canon, ok := canonicalOp[op]; ok {
				text = canon
			}
			toks = append(toks, token{kind: tokOp, text: text, pos: i})
			i += len(op)
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(input)}), nil
}

// lexString reads a quoted string starting at input[start] and returns
// the unescaped body and the offset after the closing quote. In raw mode
// only escaped quotes are unescaped; other backslashes are kept for
// regular expressions.
func lexString(input string, start int, raw bool) (string, int, error) {
	quote := input[start]
	var b strings.Builder
	for i := start + 1; i < len(input); i++ {
		c := input[i]
		switch {
		case c == '\\' && i+1 < len(input):
			i++
			if raw && input[i] != quote {
				b.WriteByte('\\')
			}
			b.WriteByte(input[i])
		case c == quote:
			return b.String(), i + 1, nil
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, &ParseError{Input: input, Offset: start, Msg: "unterminated string"}
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9' || c == '.'
}
