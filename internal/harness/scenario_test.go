package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracemon/internal/ir"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/no_admin_login.yaml")
	require.NoError(t, err)

	assert.Equal(t, "no_admin_login", s.Name)
	require.Len(t, s.Monitors, 2)
	assert.Equal(t, "F(logout('admin'))", s.Monitors[0].ViolationFormula)
	require.Len(t, s.Steps, 7)

	assert.Equal(t, "view", s.Steps[2].Trace)
	require.NotNil(t, s.Steps[1].Expect)
	assert.Equal(t, "false", s.Steps[1].Expect.Verdicts["no-admin"])
	require.NotNil(t, s.Steps[1].Expect.Blocked)
	assert.True(t, *s.Steps[1].Expect.Blocked)

	require.NotNil(t, s.Steps[3].Audit)
	assert.Equal(t, ViolationRef{Monitor: "no-admin", Step: 1}, s.Steps[3].Audit.ViolationRef)
	assert.Equal(t, "ILLEGITIMATE", s.Steps[3].Audit.Verdict)
	assert.Equal(t, "intrusion", s.Steps[3].Audit.Comment)

	require.NotNil(t, s.Steps[5].Expect.Violations)
	assert.Empty(t, *s.Steps[5].Expect.Violations)
	assert.Len(t, s.Assertions, 6)
}

func TestLoadScenario_ResolvesSpecPaths(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/quota_reset.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("testdata", "scenarios", "quota.cue")}, s.Specs)

	s, err = LoadScenarioWithBasePath("testdata/scenarios/quota_reset.yaml", "/specs")
	require.NoError(t, err)
	assert.Equal(t, []string{"/specs/quota.cue"}, s.Specs)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/nope.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestMonitorDef_Spec(t *testing.T) {
	def := MonitorDef{
		ID:        "threshold",
		Trace:     "view",
		Formula:   "x > limit",
		Control:   "realtime",
		Valuation: map[string]any{"limit": 5, "unit": "ms", "strict": true},
	}
	spec, err := def.Spec()
	require.NoError(t, err)
	assert.Equal(t, ir.ControlRealtime, spec.Control)
	assert.Equal(t, ir.Object{"limit": ir.Int(5), "unit": ir.Str("ms"), "strict": ir.Bool(true)}, spec.Valuation)

	def.Valuation = map[string]any{"ratio": 0.5}
	_, err = def.Spec()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "valuation ratio")
}

func TestParseScenario_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "malformed",
			yaml: "name: [unclosed",
			want: "failed to parse YAML",
		},
		{
			name: "unknown field",
			yaml: "name: x\nmonitor: []\n",
			want: "field monitor not found",
		},
		{
			name: "missing name",
			yaml: "monitors: [{id: a, formula: p}]\nsteps: [{event: '{p()}'}]\n",
			want: "name is required",
		},
		{
			name: "no monitors",
			yaml: "name: x\nsteps: [{event: '{p()}'}]\n",
			want: "at least one spec file or monitor is required",
		},
		{
			name: "no steps",
			yaml: "name: x\nmonitors: [{id: a, formula: p}]\n",
			want: "steps must contain at least one step",
		},
		{
			name: "monitor without formula",
			yaml: "name: x\nmonitors: [{id: a}]\nsteps: [{event: '{p()}'}]\n",
			want: "monitors[0]: formula is required",
		},
		{
			name: "two actions",
			yaml: "name: x\nmonitors: [{id: a, formula: p}]\nsteps: [{event: '{p()}', reset: a}]\n",
			want: "steps[0]: exactly one of",
		},
		{
			name: "empty step",
			yaml: "name: x\nmonitors: [{id: a, formula: p}]\nsteps: [{trace: http}]\n",
			want: "steps[0]: exactly one of",
		},
		{
			name: "audit without verdict",
			yaml: "name: x\nmonitors: [{id: a, formula: p}]\nsteps: [{audit: {monitor: a, step: 0}}]\n",
			want: "audit.verdict is required",
		},
		{
			name: "verdict expect on reset",
			yaml: "name: x\nmonitors: [{id: a, formula: p}]\nsteps: [{reset: a, expect: {blocked: true}}]\n",
			want: "apply to event steps only",
		},
		{
			name: "unknown assertion",
			yaml: "name: x\nmonitors: [{id: a, formula: p}]\nsteps: [{event: '{p()}'}]\nassertions: [{type: trace_order}]\n",
			want: `unknown assertion type "trace_order"`,
		},
		{
			name: "monitor_enabled without enabled",
			yaml: "name: x\nmonitors: [{id: a, formula: p}]\nsteps: [{event: '{p()}'}]\nassertions: [{type: monitor_enabled, monitor: a}]\n",
			want: "monitor and enabled are required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml), "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_FromFile(t *testing.T) {
	path := writeScenario(t, `
name: inline
monitors:
  - id: a
    formula: "F(done)"
steps:
  - event: "{done()}"
    expect:
      error: "ignored for events"
`)
	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "{done()}", s.Steps[0].Event)
	assert.Equal(t, "ignored for events", s.Steps[0].Expect.Error)
}
