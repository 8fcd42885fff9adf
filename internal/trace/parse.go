package trace

import (
	"fmt"
	"strings"

	"github.com/roach88/tracemon/internal/ir"
)

// ParseEvent parses the textual event form:
//
//	{login('alice') | status(200) | path='/admin'}
//
// Predicate arguments are constants: quoted text is a string, bare
// integers become Int, other bare tokens are strings. A bare name such as
// ping is the nullary predicate ping(). name=value entries are event
// attributes. {} is the empty event.
func ParseEvent(s string) (ir.Event, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return ir.Event{}, fmt.Errorf("invalid event %q: an event must be enclosed in {}", s)
	}
	body := strings.TrimSpace(s[1 : len(s)-1])

	ev := ir.Event{Predicates: []ir.Predicate{}, Attrs: ir.Object{}}
	if body == "" {
		return ev, nil
	}

	parts, err := splitTop(body, "|")
	if err != nil {
		return ir.Event{}, fmt.Errorf("invalid event %q: %w", s, err)
	}
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return ir.Event{}, fmt.Errorf("invalid event %q: empty entry", s)
		}
		if name, value, ok := cutAttr(part); ok {
			v, err := parseConstant(value)
			if err != nil {
				return ir.Event{}, fmt.Errorf("attribute %s: %w", name, err)
			}
			ev.Attrs[name] = v
			continue
		}
		p, err := parsePredicate(part)
		if err != nil {
			return ir.Event{}, err
		}
		ev.Predicates = append(ev.Predicates, p)
	}
	return ev, nil
}

// ParseTrace parses events separated by ";" or newlines.
// Empty entries are skipped.
func ParseTrace(s string) ([]ir.Event, error) {
	parts, err := splitTop(s, ";\n")
	if err != nil {
		return nil, fmt.Errorf("invalid trace: %w", err)
	}
	events := make([]ir.Event, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		ev, err := ParseEvent(part)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", len(events), err)
		}
		ev.Step = int64(len(events))
		events = append(events, ev)
	}
	return events, nil
}

func parsePredicate(s string) (ir.Predicate, error) {
	// A bare name is a nullary predicate, as in formulas.
	if isIdent(s) {
		return ir.Predicate{Name: s, Args: []ir.Value{}}, nil
	}
	open := strings.IndexByte(s, '(')
	if open <= 0 || !strings.HasSuffix(s, ")") {
		return ir.Predicate{}, fmt.Errorf("invalid predicate %q: expected name(args)", s)
	}
	name := strings.TrimSpace(s[:open])
	if !isIdent(name) {
		return ir.Predicate{}, fmt.Errorf("invalid predicate name %q", name)
	}

	p := ir.Predicate{Name: name, Args: []ir.Value{}}
	inner := strings.TrimSpace(s[open+1 : len(s)-1])
	if inner == "" {
		return p, nil
	}
	args, err := splitTop(inner, ",")
	if err != nil {
		return ir.Predicate{}, fmt.Errorf("predicate %s: %w", name, err)
	}
	for _, a := range args {
		v, err := parseConstant(a)
		if err != nil {
			return ir.Predicate{}, fmt.Errorf("predicate %s: %w", name, err)
		}
		p.Args = append(p.Args, v)
	}
	return p, nil
}

func parseConstant(s string) (ir.Value, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty argument")
	}
	if q := s[0]; q == '\'' || q == '"' {
		if len(s) < 2 || s[len(s)-1] != q {
			return nil, fmt.Errorf("unterminated string %s", s)
		}
		return ir.Str(unescape(s[1 : len(s)-1])), nil
	}
	return ir.ParseScalar(s), nil
}

// cutAttr splits name=value when the entry is an attribute assignment.
func cutAttr(s string) (string, string, bool) {
	name, value, ok := strings.Cut(s, "=")
	if !ok {
		return "", "", false
	}
	name = strings.TrimSpace(name)
	if !isIdent(name) {
		return "", "", false
	}
	return name, value, true
}

// splitTop splits s on any byte in seps that is outside quotes and
// parentheses.
func splitTop(s, seps string) ([]string, error) {
	var (
		parts []string
		depth int
		quote byte
		start int
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(' || c == '{':
			depth++
		case c == ')' || c == '}':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced %q at offset %d", c, i)
			}
		case depth == 0 && strings.IndexByte(seps, c) >= 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated string")
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced brackets")
	}
	return append(parts, s[start:]), nil
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '.' || r == '-'):
		default:
			return false
		}
	}
	return true
}
