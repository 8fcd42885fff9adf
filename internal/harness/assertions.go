package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/tracemon/internal/ir"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Steps    []StepRecord // for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nEvents:\n")
	for _, s := range e.Steps {
		if s.Kind == "event" {
			fmt.Fprintf(&buf, "  [%s:%d] %s\n", s.Trace, s.Step, s.Event)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertVerdict:
		return assertVerdict(result, a)
	case AssertViolationCount:
		return assertViolationCount(result, a)
	case AssertViolationSteps:
		return assertViolationSteps(result, a)
	case AssertReviewStatus:
		return assertReviewStatus(result, a)
	case AssertBlockedCount:
		return assertBlockedCount(result, a)
	case AssertMonitorEnabled:
		return assertMonitorEnabled(result, a)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

func assertVerdict(result *Result, a Assertion) error {
	want, err := ir.ParseVerdict(a.Verdict)
	if err != nil {
		return err
	}
	m, ok := result.monitor(a.Monitor)
	if !ok {
		return fmt.Errorf("monitor %s not found", a.Monitor)
	}
	if m.Verdict != want {
		return &AssertionError{
			Type:     AssertVerdict,
			Expected: fmt.Sprintf("%s verdict %s", a.Monitor, want),
			Actual:   fmt.Sprintf("%s (residual %s)", m.Verdict, m.Residual),
			Steps:    result.Steps,
		}
	}
	return nil
}

func violationSteps(result *Result, monitorID string) []int64 {
	steps := []int64{}
	for _, v := range result.Violations {
		if v.MonitorID == monitorID {
			steps = append(steps, v.Step)
		}
	}
	slices.Sort(steps)
	return steps
}

func assertViolationCount(result *Result, a Assertion) error {
	got := len(violationSteps(result, a.Monitor))
	if got != a.Count {
		return &AssertionError{
			Type:     AssertViolationCount,
			Expected: fmt.Sprintf("%d violation(s) of %s", a.Count, a.Monitor),
			Actual:   fmt.Sprintf("%d", got),
			Steps:    result.Steps,
		}
	}
	return nil
}

func assertViolationSteps(result *Result, a Assertion) error {
	got := violationSteps(result, a.Monitor)
	want := slices.Clone(a.Steps)
	if want == nil {
		want = []int64{}
	}
	slices.Sort(want)
	if !slices.Equal(got, want) {
		return &AssertionError{
			Type:     AssertViolationSteps,
			Expected: fmt.Sprintf("%s violated at %v", a.Monitor, want),
			Actual:   fmt.Sprintf("%v", got),
			Steps:    result.Steps,
		}
	}
	return nil
}

func assertReviewStatus(result *Result, a Assertion) error {
	v, ok := result.violation(a.Monitor, a.Step)
	if !ok {
		return fmt.Errorf("no violation of %s at step %d", a.Monitor, a.Step)
	}
	if string(v.Status) != a.Status {
		return &AssertionError{
			Type:     AssertReviewStatus,
			Expected: fmt.Sprintf("violation of %s at step %d is %s", a.Monitor, a.Step, a.Status),
			Actual:   string(v.Status),
			Steps:    result.Steps,
		}
	}
	return nil
}

func assertBlockedCount(result *Result, a Assertion) error {
	got := 0
	for _, s := range result.Steps {
		if s.Blocked && (a.Trace == "" || s.Trace == a.Trace) {
			got++
		}
	}
	if got != a.Count {
		scope := "any trace"
		if a.Trace != "" {
			scope = a.Trace
		}
		return &AssertionError{
			Type:     AssertBlockedCount,
			Expected: fmt.Sprintf("%d blocked event(s) on %s", a.Count, scope),
			Actual:   fmt.Sprintf("%d", got),
			Steps:    result.Steps,
		}
	}
	return nil
}

func assertMonitorEnabled(result *Result, a Assertion) error {
	m, ok := result.monitor(a.Monitor)
	if !ok {
		return fmt.Errorf("monitor %s not found", a.Monitor)
	}
	if m.Enabled != *a.Enabled {
		return &AssertionError{
			Type:     AssertMonitorEnabled,
			Expected: fmt.Sprintf("%s enabled=%v", a.Monitor, *a.Enabled),
			Actual:   fmt.Sprintf("enabled=%v error=%q", m.Enabled, m.Error),
			Steps:    result.Steps,
		}
	}
	return nil
}
