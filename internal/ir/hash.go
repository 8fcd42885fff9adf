package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for algorithm migration.
const (
	DomainEvent     = "tracemon/event/v1"
	DomainViolation = "tracemon/violation/v1"
	DomainFormula   = "tracemon/formula/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EventID computes the identity of an event at a position in a trace.
// The timestamp is excluded so replays produce the same id.
func EventID(trace string, step int64, text string) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"trace": trace,
		"step":  step,
		"event": text,
	})
	if err != nil {
		return "", fmt.Errorf("EventID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}

// ViolationID computes the dedup key of a violation from the monitor id,
// the trace snapshot (canonical text of the violating event) and the step.
// The formula text is not part of the key.
func ViolationID(monitorID, snapshot string, step int64) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"monitor_id": monitorID,
		"trace":      snapshot,
		"step":       step,
	})
	if err != nil {
		return "", fmt.Errorf("ViolationID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainViolation, canonical), nil
}

// FormulaID computes the knowledge-vector key of an @agent(...) sub-formula
// declared by monitor sid.
func FormulaID(sid, formula string) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"sid":     sid,
		"formula": formula,
	})
	if err != nil {
		return "", fmt.Errorf("FormulaID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainFormula, canonical), nil
}

// MustViolationID is like ViolationID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustViolationID(monitorID, snapshot string, step int64) string {
	id, err := ViolationID(monitorID, snapshot, step)
	if err != nil {
		panic(err)
	}
	return id
}

// MustEventID is like EventID but panics on error.
func MustEventID(trace string, step int64, text string) string {
	id, err := EventID(trace, step, text)
	if err != nil {
		panic(err)
	}
	return id
}
