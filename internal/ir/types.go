package ir

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Predicate is a ground predicate carried by an event, e.g. login('alice').
type Predicate struct {
	Name string  `json:"name"`
	Args []Value `json:"args"`
}

// String renders name(arg,...) with string arguments single-quoted.
func (p Predicate) String() string {
	args := make([]string, len(p.Args))
	for i, a := range p.Args {
		args[i] = Quote(a)
	}
	return p.Name + "(" + strings.Join(args, ",") + ")"
}

// UnmarshalJSON decodes the sealed Value arguments.
func (p *Predicate) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name string            `json:"name"`
		Args []json.RawMessage `json:"args"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Name = raw.Name
	p.Args = make([]Value, len(raw.Args))
	for i, a := range raw.Args {
		v, err := UnmarshalValue(a)
		if err != nil {
			return fmt.Errorf("predicate %s arg %d: %w", raw.Name, i, err)
		}
		p.Args[i] = v
	}
	return nil
}

// Event is one element of a trace. Immutable once appended.
type Event struct {
	ID         string      `json:"id,omitempty"`
	Trace      string      `json:"trace,omitempty"`
	Step       int64       `json:"step"`
	Predicates []Predicate `json:"predicates"`
	Attrs      Object      `json:"attrs"`
	Timestamp  int64       `json:"timestamp"` // unix nanoseconds, data only
}

// String renders the canonical event text {p(a) | q(b) | k=v}.
// Attributes follow predicates in key order. The timestamp is never included.
func (e Event) String() string {
	parts := make([]string, 0, len(e.Predicates)+len(e.Attrs))
	for _, p := range e.Predicates {
		parts = append(parts, p.String())
	}
	for _, k := range e.Attrs.SortedKeys() {
		parts = append(parts, k+"="+Quote(e.Attrs[k]))
	}
	return "{" + strings.Join(parts, " | ") + "}"
}

// MonitorKind identifies where a monitor's events come from.
type MonitorKind string

const (
	KindGeneric     MonitorKind = "generic"
	KindHTTP        MonitorKind = "http"
	KindFX          MonitorKind = "fx"
	KindRemediation MonitorKind = "remediation"
	KindView        MonitorKind = "view"
	KindResponse    MonitorKind = "response"
)

// ValidKinds lists the accepted monitor kinds.
var ValidKinds = map[MonitorKind]bool{
	KindGeneric:     true,
	KindHTTP:        true,
	KindFX:          true,
	KindRemediation: true,
	KindView:        true,
	KindResponse:    true,
}

// ControlType decides whether a violation blocks the pushing request.
type ControlType string

const (
	// ControlPosteriori monitors never block.
	ControlPosteriori ControlType = "posteriori"
	// ControlRealtime monitors block the event that violated them.
	ControlRealtime ControlType = "realtime"
)

// LocationLocal marks a monitor evaluated by this process only.
// Any other location (REMOTE_<host>) publishes its verdict to the
// knowledge vector.
const LocationLocal = "LOCAL"

// DefaultTrace is the channel used when a spec names none.
const DefaultTrace = "http"

// MonitorSpec is a compiled monitor definition.
type MonitorSpec struct {
	ID               string      `json:"id"`
	Description      string      `json:"description,omitempty"`
	Trace            string      `json:"trace"`
	Kind             MonitorKind `json:"kind"`
	Formula          string      `json:"formula"`
	ViolationFormula string      `json:"violation_formula,omitempty"`
	Liveness         int64       `json:"liveness,omitempty"` // 0 disables the counter
	Control          ControlType `json:"control"`
	Location         string      `json:"location"`
	Valuation        Object      `json:"valuation,omitempty"`
}

// ReviewStatus is the reviewer verdict on a violation.
type ReviewStatus string

const (
	StatusUnread       ReviewStatus = "UNREAD"
	StatusLegitimate   ReviewStatus = "LEGITIMATE"
	StatusIllegitimate ReviewStatus = "ILLEGITIMATE"
)

// Violation records a monitor verdict becoming false.
// Only Status and Audit change after creation, and only through review.
type Violation struct {
	ID        string       `json:"id"` // content hash of monitor id, event text, step
	MonitorID string       `json:"monitor_id"`
	Trace     string       `json:"trace"`
	Step      int64        `json:"step"`
	Event     string       `json:"event"` // canonical text of the violating event
	Comment   string       `json:"comment,omitempty"`
	CreatedAt int64        `json:"created_at"`
	Status    ReviewStatus `json:"status"`
	Audit     string       `json:"audit,omitempty"`
}

// Audit is one reviewer action on a violation.
type Audit struct {
	ID          string       `json:"id"`
	ViolationID string       `json:"violation_id"`
	MonitorID   string       `json:"monitor_id"`
	Status      ReviewStatus `json:"status"`
	Comment     string       `json:"comment"`
	CreatedAt   int64        `json:"created_at"`
}

// KVEntry is a knowledge-vector entry: the last known verdict of a
// (possibly remote) sub-formula.
type KVEntry struct {
	FID       string  `json:"fid"`
	Agent     string  `json:"agent"`
	Value     Verdict `json:"value"`
	Timestamp int64   `json:"timestamp"` // logical step of the producer
}

// MonitorStatus is a read-only snapshot of a running monitor.
type MonitorStatus struct {
	ID              string      `json:"id"`
	Trace           string      `json:"trace"`
	Kind            MonitorKind `json:"kind"`
	Control         ControlType `json:"control"`
	Formula         string      `json:"formula"`
	Residual        string      `json:"residual"`
	Verdict         Verdict     `json:"verdict"`
	Enabled         bool        `json:"enabled"`
	Step            int64       `json:"step"`
	Violations      int         `json:"violations"`
	LivenessExpired int64       `json:"liveness_expired,omitempty"`
	Error           string      `json:"error,omitempty"`
}
