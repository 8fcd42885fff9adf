package violation

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"

	"github.com/roach88/tracemon/internal/ir"
)

// ErrInvalidTransition is returned for a review that the current status
// does not allow. LEGITIMATE and ILLEGITIMATE are terminal.
var ErrInvalidTransition = errors.New("invalid review transition")

const (
	eventLegitimate   = "legitimate"
	eventIllegitimate = "illegitimate"
)

var reviewEvents = map[ir.ReviewStatus]string{
	ir.StatusLegitimate:   eventLegitimate,
	ir.StatusIllegitimate: eventIllegitimate,
}

func newReviewFSM(current ir.ReviewStatus) *fsm.FSM {
	return fsm.NewFSM(
		string(current),
		fsm.Events{
			{Name: eventLegitimate, Src: []string{string(ir.StatusUnread)}, Dst: string(ir.StatusLegitimate)},
			{Name: eventIllegitimate, Src: []string{string(ir.StatusUnread)}, Dst: string(ir.StatusIllegitimate)},
		},
		fsm.Callbacks{},
	)
}

// Transition returns the status reached by reviewing a violation in
// status from with verdict to.
func Transition(ctx context.Context, from, to ir.ReviewStatus) (ir.ReviewStatus, error) {
	event, ok := reviewEvents[to]
	if !ok {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	machine := newReviewFSM(from)
	if err := machine.Event(ctx, event); err != nil {
		return from, fmt.Errorf("%w: %s -> %s: %v", ErrInvalidTransition, from, to, err)
	}
	return ir.ReviewStatus(machine.Current()), nil
}

// ParseStatus accepts a review verdict by name, case-sensitive as stored.
func ParseStatus(s string) (ir.ReviewStatus, error) {
	switch st := ir.ReviewStatus(s); st {
	case ir.StatusUnread, ir.StatusLegitimate, ir.StatusIllegitimate:
		return st, nil
	}
	return "", fmt.Errorf("invalid review status %q", s)
}
