// Package violation builds, deduplicates and reviews monitor violations.
//
// A violation is content-addressed by (monitor id, violating event text,
// step), so recording the same violation twice, for example while
// restoring traces after a restart, is a no-op.
package violation

import (
	"errors"
	"fmt"

	"github.com/roach88/tracemon/internal/ir"
)

// ErrUnknownViolation is returned when a violation does not exist or does
// not belong to the given monitor.
var ErrUnknownViolation = errors.New("unknown violation")

// New builds an UNREAD violation of monitorID at ev. now is the creation
// time in unix nanoseconds and is not part of the id.
func New(monitorID, traceName string, ev ir.Event, comment string, now int64) (ir.Violation, error) {
	snapshot := ev.String()
	id, err := ir.ViolationID(monitorID, snapshot, ev.Step)
	if err != nil {
		return ir.Violation{}, fmt.Errorf("new violation: %w", err)
	}
	return ir.Violation{
		ID:        id,
		MonitorID: monitorID,
		Trace:     traceName,
		Step:      ev.Step,
		Event:     snapshot,
		Comment:   comment,
		CreatedAt: now,
		Status:    ir.StatusUnread,
	}, nil
}
