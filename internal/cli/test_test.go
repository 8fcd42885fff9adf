package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var harnessScenarios = filepath.Join("..", "harness", "testdata", "scenarios")

func TestTestCommandGolden(t *testing.T) {
	out, err := execute(NewTestCommand(&RootOptions{Format: "json"}), harnessScenarios)
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 2, resp.Data.Passed)
	for _, s := range resp.Data.Scenarios {
		assert.Equal(t, "matched", s.Golden, s.Name)
	}
}

func TestTestCommandFilter(t *testing.T) {
	out, err := execute(NewTestCommand(&RootOptions{Format: "text"}), harnessScenarios, "--filter", "quota*")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ quota_reset")
	assert.NotContains(t, out, "no_admin_login")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommandUpdate(t *testing.T) {
	golden := t.TempDir()

	out, err := execute(NewTestCommand(&RootOptions{Format: "text"}), harnessScenarios, "--golden", golden, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "(golden updated)")

	want, err := os.ReadFile(filepath.Join("..", "harness", "testdata", "golden", "quota_reset.golden"))
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(golden, "quota_reset.golden"))
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got))

	_, err = execute(NewTestCommand(&RootOptions{Format: "text"}), harnessScenarios, "--golden", golden)
	require.NoError(t, err)
}

func TestTestCommandGoldenMismatch(t *testing.T) {
	golden := t.TempDir()
	writeFile(t, golden, "quota_reset.golden", `{"pass":false}`)

	out, err := execute(NewTestCommand(&RootOptions{Format: "text"}), harnessScenarios, "--golden", golden, "--filter", "quota*")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ quota_reset")
	assert.Contains(t, out, "golden file mismatch")
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "monitors.cue", validSpecs)
	writeFile(t, dir, "wrong.yaml", `name: wrong
specs: [monitors.cue]
steps:
  - event: "{login('admin')}"
    expect:
      verdicts: { no-admin: "true" }
`)
	writeFile(t, dir, "broken.yml", "name: [\n")

	out, err := execute(NewTestCommand(&RootOptions{Format: "json"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Data TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 2, resp.Data.Failed)
	for _, s := range resp.Data.Scenarios {
		assert.NotEmpty(t, s.Errors, s.Name)
	}
}

func TestTestCommandNoScenarios(t *testing.T) {
	out, err := execute(NewTestCommand(&RootOptions{Format: "text"}), t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommandMissingDirectory(t *testing.T) {
	_, err := execute(NewTestCommand(&RootOptions{Format: "text"}), filepath.Join(t.TempDir(), "none"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
