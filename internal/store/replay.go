package store

import (
	"context"
	"fmt"

	"github.com/roach88/tracemon/internal/ir"
)

// TraceState summarizes a stored trace for restore and display.
type TraceState struct {
	Trace      string `json:"trace"`
	Events     int64  `json:"events"`
	LastStep   int64  `json:"last_step"` // -1 when the trace is empty
	Violations int    `json:"violations"`
}

// GetTraceState reports how far a trace has been persisted and how many
// violations reference it.
func (s *Store) GetTraceState(ctx context.Context, trace string) (TraceState, error) {
	state := TraceState{Trace: trace, LastStep: -1}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(MAX(step), -1) FROM events WHERE trace = ?
	`, trace).Scan(&state.Events, &state.LastStep)
	if err != nil {
		return state, fmt.Errorf("get trace state: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM violations WHERE trace = ?
	`, trace).Scan(&state.Violations)
	if err != nil {
		return state, fmt.Errorf("get trace state: %w", err)
	}
	return state, nil
}

// ReplayEvents calls fn for every stored event, trace by trace in name
// order and step order within a trace. fn returning an error stops the
// replay.
func (s *Store) ReplayEvents(ctx context.Context, fn func(ir.Event) error) error {
	names, err := s.TraceNames(ctx)
	if err != nil {
		return fmt.Errorf("replay events: %w", err)
	}
	for _, name := range names {
		events, err := s.ReadEvents(ctx, name, 0, -1)
		if err != nil {
			return fmt.Errorf("replay events: %w", err)
		}
		for i, ev := range events {
			if ev.Step != int64(i) {
				return fmt.Errorf("replay events: trace %s has a gap at step %d", name, i)
			}
			if err := fn(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
