package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/tracemon/internal/ir"
)

// createTestStore creates a new file-backed store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestEvent creates an event with its id computed from its content.
func createTestEvent(trace string, step int64, preds ...ir.Predicate) ir.Event {
	ev := ir.Event{
		Trace:      trace,
		Step:       step,
		Predicates: preds,
		Attrs:      ir.Object{},
		Timestamp:  1000 + step,
	}
	if ev.Predicates == nil {
		ev.Predicates = []ir.Predicate{}
	}
	ev.ID = ir.MustEventID(trace, step, ev.String())
	return ev
}

// createTestViolation creates an UNREAD violation of monitorID at step.
func createTestViolation(monitorID string, step int64) ir.Violation {
	text := "{login('admin')}"
	return ir.Violation{
		ID:        ir.MustViolationID(monitorID, text, step),
		MonitorID: monitorID,
		Trace:     "http",
		Step:      step,
		Event:     text,
		CreatedAt: 5000 + step,
		Status:    ir.StatusUnread,
	}
}
