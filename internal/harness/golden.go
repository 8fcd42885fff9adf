package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/tracemon/internal/ir"
)

// Snapshot renders a result as canonical JSON for golden comparison.
func Snapshot(name string, r *Result) ([]byte, error) {
	steps := make([]any, len(r.Steps))
	for i, s := range r.Steps {
		m := map[string]any{
			"index": s.Index,
			"kind":  s.Kind,
			"step":  s.Step,
		}
		if s.Kind == "event" {
			verdicts := make(map[string]any, len(s.Verdicts))
			for id, v := range s.Verdicts {
				verdicts[id] = v.String()
			}
			m["trace"] = s.Trace
			m["event"] = s.Event
			m["verdicts"] = verdicts
			m["violations"] = s.Violations
			m["blocked"] = s.Blocked
		} else {
			m["monitor"] = s.Monitor
			m["detail"] = s.Detail
		}
		steps[i] = m
	}

	monitors := make([]any, len(r.Monitors))
	for i, st := range r.Monitors {
		monitors[i] = map[string]any{
			"id":         st.ID,
			"verdict":    st.Verdict.String(),
			"residual":   st.Residual,
			"enabled":    st.Enabled,
			"step":       st.Step,
			"violations": st.Violations,
		}
	}

	violations := make([]any, len(r.Violations))
	for i, v := range r.Violations {
		m := map[string]any{
			"id":         v.ID,
			"monitor_id": v.MonitorID,
			"trace":      v.Trace,
			"step":       v.Step,
			"event":      v.Event,
			"status":     string(v.Status),
		}
		if v.Audit != "" {
			m["audit"] = v.Audit
		}
		violations[i] = m
	}

	return ir.MarshalCanonical(map[string]any{
		"scenario_name": name,
		"pass":          r.Pass,
		"steps":         steps,
		"monitors":      monitors,
		"violations":    violations,
	})
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return result, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot(name, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
