package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Value is a sealed interface over the data values carried by events.
// Only Str, Int and Bool implement it.
// There is no float variant: floats break hash determinism.
type Value interface {
	irValue()
	// Text is the unquoted textual form used for predicate matching.
	Text() string
}

// Str is a string value.
type Str string

func (Str) irValue() {}

// Text returns the raw string.
func (s Str) Text() string { return string(s) }

// Int is an integer value. Always int64.
type Int int64

func (Int) irValue() {}

// Text returns the decimal form.
func (n Int) Text() string { return strconv.FormatInt(int64(n), 10) }

// Bool is a boolean value.
type Bool bool

func (Bool) irValue() {}

// Text returns "true" or "false".
func (b Bool) Text() string { return strconv.FormatBool(bool(b)) }

// Object maps attribute names to values.
// Use SortedKeys() for deterministic iteration.
type Object map[string]Value

// Clone returns a shallow copy. Values are immutable so this is a full copy.
func (obj Object) Clone() Object {
	if obj == nil {
		return Object{}
	}
	out := make(Object, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	return out
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings compares UTF-8 bytes, which orders differently.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	return len(a16) - len(b16)
}

// ParseScalar interprets an unquoted token: integers become Int,
// true/false become Bool, everything else is a Str.
func ParseScalar(tok string) Value {
	if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return Int(n)
	}
	switch tok {
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	}
	return Str(tok)
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, "'", `\'`)

// Quote renders a value the way it appears in formulas and event text:
// strings single-quoted, numbers and booleans bare.
func Quote(v Value) string {
	if s, ok := v.(Str); ok {
		return "'" + quoteEscaper.Replace(string(s)) + "'"
	}
	return v.Text()
}

// Equal compares two values by variant and content.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case Str:
		bv, ok := b.(Str)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	}
	return false
}

// MarshalJSON implements json.Marshaler with sorted keys.
// This is NOT canonical marshaling; use MarshalCanonical for hashing.
func (obj Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := MarshalValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler for Object.
func (obj *Object) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*obj = make(Object, len(raw))
	for k, v := range raw {
		val, err := UnmarshalValue(v)
		if err != nil {
			return fmt.Errorf("object key %q: %w", k, err)
		}
		(*obj)[k] = val
	}
	return nil
}

// MarshalValue marshals a Value to plain JSON.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case Str:
		return json.Marshal(string(val))
	case Int:
		return json.Marshal(int64(val))
	case Bool:
		return json.Marshal(bool(val))
	default:
		return nil, fmt.Errorf("unknown value type: %T", v)
	}
}

// UnmarshalValue decodes a JSON scalar into a Value.
// Rejects null, floats, arrays and objects.
func UnmarshalValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromGo(raw)
}

// FromGo converts a decoded Go value into a Value.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is forbidden: only string, int, bool allowed")
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return Str(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			return nil, fmt.Errorf("floats are forbidden: %s", s)
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", s)
		}
		return Int(n), nil
	case float32, float64:
		return nil, fmt.Errorf("floats are forbidden: %v", val)
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}
