package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracemon/internal/ir"
)

func TestCheckVerdicts(t *testing.T) {
	out, err := execute(NewCheckCommand(&RootOptions{Format: "json"}),
		"--formula", "G(!login('admin'))",
		"--formula", "F(logout('bob'))",
		"--formula", "G(x <= limit)",
		"--var", "limit=5",
		"--trace", "{login('bob') | x=1}; {logout('bob') | x=4}")
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   []CheckResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 3)
	assert.Equal(t, ir.Unknown, resp.Data[0].Verdict)
	assert.Equal(t, "G(!login('admin'))", resp.Data[0].Residual)
	assert.Equal(t, ir.True, resp.Data[1].Verdict)
	assert.Equal(t, ir.Unknown, resp.Data[2].Verdict)
}

func TestCheckViolated(t *testing.T) {
	out, err := execute(NewCheckCommand(&RootOptions{Format: "text"}),
		"--formula", "G(x <= limit)",
		"--var", "limit=2",
		"--trace", "{x=1}\n{x=3}")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "⊥ G(x <= limit)")
}

func TestCheckErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad formula", []string{"--formula", "G(("}},
		{"bad trace", []string{"--formula", "true", "--trace", "login"}},
		{"bad var", []string{"--formula", "true", "--var", "limit"}},
		{"no formula", []string{"--trace", "{a}"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(NewCheckCommand(&RootOptions{Format: "text"}), tt.args...)
			require.Error(t, err)
		})
	}
}

func TestParseVars(t *testing.T) {
	val, err := parseVars([]string{"limit=5", "user = admin", "on=true"})
	require.NoError(t, err)
	assert.Equal(t, ir.Int(5), val["limit"])
	assert.Equal(t, ir.Str("admin"), val["user"])
	assert.Equal(t, ir.Bool(true), val["on"])

	_, err = parseVars([]string{"=5"})
	assert.Error(t, err)
}
