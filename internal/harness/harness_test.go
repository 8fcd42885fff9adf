package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/roach88/tracemon/internal/ir"
)

func noAdmin() MonitorDef {
	return MonitorDef{
		ID:               "no-admin",
		Trace:            "http",
		Formula:          "G(!login('admin'))",
		ViolationFormula: "F(logout('admin'))",
		Control:          "realtime",
	}
}

func ptr[T any](v T) *T { return &v }

func TestRun_EventSteps(t *testing.T) {
	s := &Scenario{
		Name:     "events",
		Monitors: []MonitorDef{noAdmin()},
		Steps: []Step{
			{Event: "{login('bob')}"},
			{Event: "{login('admin')}", Expect: &ExpectClause{
				Verdicts:   map[string]string{"no-admin": "false"},
				Blocked:    ptr(true),
				Violations: ptr([]string{"no-admin"}),
			}},
			{Event: "{login('admin')}"},
		},
	}

	result, err := RunWithLogger(s, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	require.Len(t, result.Steps, 3)
	assert.Equal(t, "http", result.Steps[0].Trace)
	assert.Equal(t, ir.Unknown, result.Steps[0].Verdicts["no-admin"])
	assert.Empty(t, result.Steps[0].Violations)
	assert.Equal(t, int64(2), result.Steps[2].Step)
	assert.True(t, result.Steps[2].Blocked, "the monitor resets and catches the second login")

	require.Len(t, result.Violations, 2)
	assert.Equal(t, int64(1), result.Violations[0].Step)
	assert.Equal(t, int64(2), result.Violations[1].Step)

	require.Len(t, result.Monitors, 1)
	assert.Equal(t, 2, result.Monitors[0].Violations)
	assert.Equal(t, ir.Unknown, result.Monitors[0].Verdict)
}

func TestRun_FailedExpectations(t *testing.T) {
	s := &Scenario{
		Name:     "wrong",
		Monitors: []MonitorDef{noAdmin()},
		Steps: []Step{
			{Event: "{login('admin')}", Expect: &ExpectClause{
				Verdicts:   map[string]string{"no-admin": "true", "ghost": "unknown"},
				Blocked:    ptr(false),
				Violations: ptr([]string{}),
			}},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, []string{
		"steps[0]: monitor ghost did not observe the event",
		"steps[0]: monitor no-admin verdict = false, want true",
		"steps[0]: blocked = true, want false",
		"steps[0]: violations = [no-admin], want []",
	}, result.Errors)
}

func TestRun_AuditAndRemediate(t *testing.T) {
	s := &Scenario{
		Name:     "review",
		Monitors: []MonitorDef{noAdmin()},
		Steps: []Step{
			{Event: "{login('admin')}"},
			{Audit: &AuditStep{ViolationRef: ViolationRef{Monitor: "no-admin", Step: 0}, Verdict: "LEGITIMATE", Comment: "test account"}},
			{Remediate: &ViolationRef{Monitor: "no-admin", Step: 0}},
			{Remediate: &ViolationRef{Monitor: "no-admin", Step: 0}},
			{Event: "{logout('admin')}"},
		},
		Assertions: []Assertion{
			{Type: AssertReviewStatus, Monitor: "no-admin", Step: 0, Status: "LEGITIMATE"},
			{Type: AssertMonitorEnabled, Monitor: "no-admin_violation_0", Enabled: ptr(false)},
			{Type: AssertVerdict, Monitor: "no-admin_violation_0", Verdict: "true"},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	assert.Equal(t, "audit", result.Steps[1].Kind)
	assert.Equal(t, "LEGITIMATE", result.Steps[1].Detail)
	assert.Equal(t, "no-admin_violation_0", result.Steps[2].Detail)
	assert.Equal(t, "no-admin_violation_0", result.Steps[3].Detail, "triggering twice returns the existing monitor")
	assert.Equal(t, ir.True, result.Steps[4].Verdicts["no-admin_violation_0"])
	assert.Equal(t, "test account", result.Violations[0].Audit)
	assert.Len(t, result.Monitors, 2)
}

func TestRun_StepErrors(t *testing.T) {
	s := &Scenario{
		Name:     "errors",
		Monitors: []MonitorDef{noAdmin()},
		Steps: []Step{
			{Audit: &AuditStep{ViolationRef: ViolationRef{Monitor: "no-admin", Step: 4}, Verdict: "LEGITIMATE"}},
			{Audit: &AuditStep{ViolationRef: ViolationRef{Monitor: "no-admin", Step: 4}, Verdict: "MAYBE"},
				Expect: &ExpectClause{Error: "MAYBE"}},
			{Reset: "ghost", Expect: &ExpectClause{Error: "UNKNOWN_MONITOR"}},
			{Reset: "no-admin", Expect: &ExpectClause{Error: "boom"}},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "steps[0]: no violation of no-admin at step 4")
	assert.Equal(t, `steps[3]: expected error containing "boom", step succeeded`, result.Errors[1])

	assert.Equal(t, "error: no violation of no-admin at step 4", result.Steps[0].Detail)
	assert.Equal(t, "error: MAYBE", result.Steps[1].Detail)
	assert.Equal(t, "error: UNKNOWN_MONITOR", result.Steps[2].Detail)
	assert.Equal(t, "G(!login('admin'))", result.Steps[3].Detail)
}

func TestRun_SetupErrors(t *testing.T) {
	tests := []struct {
		name string
		s    *Scenario
		want string
	}{
		{
			name: "bad formula",
			s: &Scenario{Name: "x",
				Monitors: []MonitorDef{{ID: "a", Formula: "G("}},
				Steps:    []Step{{Event: "{p()}"}}},
			want: "invalid monitors",
		},
		{
			name: "missing spec file",
			s: &Scenario{Name: "x",
				Specs: []string{"testdata/scenarios/missing.cue"},
				Steps: []Step{{Event: "{p()}"}}},
			want: "load testdata/scenarios/missing.cue",
		},
		{
			name: "bad event",
			s: &Scenario{Name: "x",
				Monitors: []MonitorDef{{ID: "a", Formula: "F(p)"}},
				Steps:    []Step{{Event: "p()"}}},
			want: "step 0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(tt.s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/no_admin_login.yaml")
	require.NoError(t, err)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := Snapshot(s.Name, first)
	require.NoError(t, err)
	b, err := Snapshot(s.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, first.Violations, second.Violations)
}

func TestRun_FreshStorePerRun(t *testing.T) {
	s := &Scenario{
		Name:     "fresh",
		Monitors: []MonitorDef{noAdmin()},
		Steps:    []Step{{Event: "{login('admin')}"}},
	}
	for i := 0; i < 2; i++ {
		result, err := Run(s)
		require.NoError(t, err)
		require.Len(t, result.Violations, 1)
		assert.Equal(t, int64(0), result.Steps[0].Step)
	}
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)
	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}
