package store

import (
	"context"
	"errors"
	"testing"

	"github.com/roach88/tracemon/internal/ir"
)

func writeEvents(t *testing.T, s *Store, trace string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		ev := createTestEvent(trace, int64(i), ir.Predicate{Name: "e", Args: []ir.Value{ir.Int(int64(i))}})
		if err := s.WriteEvent(context.Background(), ev); err != nil {
			t.Fatalf("WriteEvent() failed: %v", err)
		}
	}
}

func steps(events []ir.Event) []int64 {
	out := make([]int64, len(events))
	for i, e := range events {
		out[i] = e.Step
	}
	return out
}

func TestReadEvents_Range(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	writeEvents(t, s, "http", 5)
	writeEvents(t, s, "view", 2)

	tests := []struct {
		from, to int64
		want     []int64
	}{
		{0, -1, []int64{0, 1, 2, 3, 4}},
		{1, 3, []int64{1, 2}},
		{4, 10, []int64{4}},
		{5, -1, []int64{}},
	}
	for _, tt := range tests {
		got, err := s.ReadEvents(ctx, "http", tt.from, tt.to)
		if err != nil {
			t.Fatalf("ReadEvents(%d, %d) failed: %v", tt.from, tt.to, err)
		}
		if g := steps(got); len(g) != len(tt.want) {
			t.Errorf("ReadEvents(%d, %d) steps = %v, want %v", tt.from, tt.to, g, tt.want)
		} else {
			for i := range g {
				if g[i] != tt.want[i] {
					t.Errorf("ReadEvents(%d, %d) steps = %v, want %v", tt.from, tt.to, g, tt.want)
					break
				}
			}
		}
	}
}

func TestReadEvents_EmptyIsNotNil(t *testing.T) {
	s := createTestStore(t)
	events, err := s.ReadEvents(context.Background(), "none", 0, -1)
	if err != nil {
		t.Fatalf("ReadEvents() failed: %v", err)
	}
	if events == nil {
		t.Error("ReadEvents() returned nil, want empty slice")
	}
}

func TestTraceNames(t *testing.T) {
	s := createTestStore(t)
	writeEvents(t, s, "view", 1)
	writeEvents(t, s, "fx", 1)
	writeEvents(t, s, "http", 2)

	names, err := s.TraceNames(context.Background())
	if err != nil {
		t.Fatalf("TraceNames() failed: %v", err)
	}
	want := []string{"fx", "http", "view"}
	if len(names) != len(want) {
		t.Fatalf("TraceNames() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("TraceNames() = %v, want %v", names, want)
		}
	}
}

func TestReadViolations_FilterAndOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	for _, v := range []ir.Violation{
		createTestViolation("b", 2),
		createTestViolation("a", 5),
		createTestViolation("b", 1),
	} {
		if _, err := s.WriteViolation(ctx, v); err != nil {
			t.Fatalf("WriteViolation() failed: %v", err)
		}
	}

	all, err := s.ReadViolations(ctx, "")
	if err != nil {
		t.Fatalf("ReadViolations() failed: %v", err)
	}
	var got []string
	for _, v := range all {
		got = append(got, v.MonitorID)
	}
	if len(all) != 3 || all[0].MonitorID != "a" || all[1].Step != 1 || all[2].Step != 2 {
		t.Errorf("ReadViolations(\"\") order = %v", got)
	}

	onlyB, err := s.ReadViolations(ctx, "b")
	if err != nil {
		t.Fatalf("ReadViolations(b) failed: %v", err)
	}
	if len(onlyB) != 2 {
		t.Errorf("ReadViolations(b) returned %d, want 2", len(onlyB))
	}

	none, err := s.ReadViolations(ctx, "zzz")
	if err != nil {
		t.Fatalf("ReadViolations(zzz) failed: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("ReadViolations(zzz) = %v, want empty slice", none)
	}
}

func TestGetTraceState(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	state, err := s.GetTraceState(ctx, "http")
	if err != nil {
		t.Fatalf("GetTraceState() failed: %v", err)
	}
	if state.Events != 0 || state.LastStep != -1 {
		t.Errorf("empty trace state = %+v", state)
	}

	writeEvents(t, s, "http", 3)
	if _, err := s.WriteViolation(ctx, createTestViolation("m", 1)); err != nil {
		t.Fatalf("WriteViolation() failed: %v", err)
	}
	state, err = s.GetTraceState(ctx, "http")
	if err != nil {
		t.Fatalf("GetTraceState() failed: %v", err)
	}
	if state.Events != 3 || state.LastStep != 2 || state.Violations != 1 {
		t.Errorf("trace state = %+v", state)
	}
}

func TestReplayEvents(t *testing.T) {
	s := createTestStore(t)
	writeEvents(t, s, "view", 2)
	writeEvents(t, s, "http", 3)

	var seen []string
	err := s.ReplayEvents(context.Background(), func(ev ir.Event) error {
		seen = append(seen, ev.Trace)
		return nil
	})
	if err != nil {
		t.Fatalf("ReplayEvents() failed: %v", err)
	}
	want := []string{"http", "http", "http", "view", "view"}
	if len(seen) != len(want) {
		t.Fatalf("ReplayEvents() visited %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("ReplayEvents() visited %v, want %v", seen, want)
			break
		}
	}
}

func TestReplayEvents_StopsOnError(t *testing.T) {
	s := createTestStore(t)
	writeEvents(t, s, "http", 3)

	stop := errors.New("stop")
	calls := 0
	err := s.ReplayEvents(context.Background(), func(ir.Event) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Errorf("err = %v, want stop", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}

func TestFindViolations_Filters(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	other := createTestViolation("quota", 4)
	other.Trace = "fx"
	other.ID = ir.MustViolationID("quota", other.Event, 4)
	for _, v := range []ir.Violation{createTestViolation("no-admin", 1), createTestViolation("no-admin", 2), other} {
		if _, err := s.WriteViolation(ctx, v); err != nil {
			t.Fatalf("WriteViolation() failed: %v", err)
		}
	}
	reviewed := createTestViolation("no-admin", 2)
	if err := s.WriteReview(ctx, ir.Audit{ID: "a1", ViolationID: reviewed.ID, MonitorID: "no-admin", Status: ir.StatusLegitimate}); err != nil {
		t.Fatalf("WriteReview() failed: %v", err)
	}

	tests := []struct {
		name   string
		filter ViolationFilter
		want   []int64
	}{
		{"all", ViolationFilter{}, []int64{1, 2, 4}},
		{"trace", ViolationFilter{Trace: "fx"}, []int64{4}},
		{"status", ViolationFilter{Status: ir.StatusUnread}, []int64{1, 4}},
		{"monitor and status", ViolationFilter{MonitorID: "no-admin", Status: ir.StatusLegitimate}, []int64{2}},
		{"no match", ViolationFilter{Trace: "view"}, []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.FindViolations(ctx, tt.filter)
			if err != nil {
				t.Fatalf("FindViolations() failed: %v", err)
			}
			var gotSteps []int64
			for _, v := range got {
				gotSteps = append(gotSteps, v.Step)
			}
			if len(gotSteps) != len(tt.want) {
				t.Fatalf("steps = %v, want %v", gotSteps, tt.want)
			}
			for i := range gotSteps {
				if gotSteps[i] != tt.want[i] {
					t.Errorf("steps = %v, want %v", gotSteps, tt.want)
					break
				}
			}
		})
	}
}
