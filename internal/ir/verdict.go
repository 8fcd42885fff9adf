package ir

import "fmt"

// Verdict is the three-valued result of monitoring a formula.
// The zero value is Unknown.
type Verdict int8

const (
	// Unknown means the trace so far neither satisfies nor violates the formula.
	Unknown Verdict = iota
	// True means every extension of the trace satisfies the formula.
	True
	// False means every extension of the trace violates the formula.
	False
)

// Symbol returns ?, ⊤ or ⊥.
func (v Verdict) Symbol() string {
	switch v {
	case True:
		return "⊤"
	case False:
		return "⊥"
	default:
		return "?"
	}
}

func (v Verdict) String() string {
	switch v {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}

// Decided reports whether the verdict is a boolean literal.
func (v Verdict) Decided() bool {
	return v == True || v == False
}

// VerdictOf lifts a Go bool into a decided verdict.
func VerdictOf(b bool) Verdict {
	if b {
		return True
	}
	return False
}

// ParseVerdict accepts the names and symbols produced by String and Symbol.
func ParseVerdict(s string) (Verdict, error) {
	switch s {
	case "true", "top", "⊤":
		return True, nil
	case "false", "bottom", "⊥":
		return False, nil
	case "unknown", "?", "":
		return Unknown, nil
	}
	return Unknown, fmt.Errorf("invalid verdict %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Verdict) UnmarshalText(b []byte) error {
	parsed, err := ParseVerdict(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
