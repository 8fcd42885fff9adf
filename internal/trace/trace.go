// Package trace implements the append-only event log that monitors observe.
//
// A Trace is shared by every monitor watching its channel. Monitors only
// read it; the engine is the single writer.
package trace

import (
	"strings"
	"sync"

	"github.com/roach88/tracemon/internal/ir"
)

// Trace is an ordered, append-only sequence of events.
//
// Thread-safety: Append may race with readers; readers always see a
// consistent prefix. Events are never reordered or modified once appended.
type Trace struct {
	name string

	mu     sync.RWMutex
	events []ir.Event
}

// New creates an empty trace for the named channel.
func New(name string) *Trace {
	return &Trace{
		name:   name,
		events: make([]ir.Event, 0, 64),
	}
}

// FromEvents builds a trace and appends events in order.
func FromEvents(name string, events []ir.Event) *Trace {
	t := New(name)
	for _, e := range events {
		t.Append(e)
	}
	return t
}

// Name returns the channel name.
func (t *Trace) Name() string {
	return t.name
}

// Append stores a copy of ev at the end of the trace and returns it with
// Trace and Step filled in. O(1) amortized, never blocks on readers for
// longer than the slice append.
func (t *Trace) Append(ev ir.Event) ir.Event {
	stored := ir.Event{
		ID:         ev.ID,
		Trace:      t.name,
		Predicates: clonePredicates(ev.Predicates),
		Attrs:      ev.Attrs.Clone(),
		Timestamp:  ev.Timestamp,
	}

	t.mu.Lock()
	stored.Step = int64(len(t.events))
	t.events = append(t.events, stored)
	t.mu.Unlock()

	return stored
}

// Len returns the number of events.
func (t *Trace) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.events)
}

// At returns the event at index i.
func (t *Trace) At(i int) (ir.Event, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i < 0 || i >= len(t.events) {
		return ir.Event{}, false
	}
	return t.events[i], true
}

// Slice returns the events in [from, to), clamped to the current length.
//
// The result is a read-only view: its capacity is capped at its length, so
// later appends to the trace never write into it, and appends by the
// caller reallocate instead of touching the trace.
func (t *Trace) Slice(from, to int) []ir.Event {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := len(t.events)
	from = max(0, min(from, n))
	to = max(from, min(to, n))
	return t.events[from:to:to]
}

// Events returns a view of the whole trace.
func (t *Trace) Events() []ir.Event {
	return t.Slice(0, t.Len())
}

// String renders the trace as event texts joined by ";".
func (t *Trace) String() string {
	events := t.Events()
	parts := make([]string, len(events))
	for i, e := range events {
		parts[i] = e.String()
	}
	return strings.Join(parts, ";")
}

func clonePredicates(preds []ir.Predicate) []ir.Predicate {
	out := make([]ir.Predicate, len(preds))
	for i, p := range preds {
		args := make([]ir.Value, len(p.Args))
		copy(args, p.Args)
		out[i] = ir.Predicate{Name: p.Name, Args: args}
	}
	return out
}
