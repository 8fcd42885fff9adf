package cli

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracemon/internal/ir"
	"github.com/roach88/tracemon/internal/store"
)

func violationOf(t *testing.T, vs []ir.Violation, monitorID string) ir.Violation {
	t.Helper()
	for _, v := range vs {
		if v.MonitorID == monitorID {
			return v
		}
	}
	t.Fatalf("no violation of %s", monitorID)
	return ir.Violation{}
}

func TestAuditMarksViolation(t *testing.T) {
	db, vs := seedDatabase(t, defaultEvents)
	v := violationOf(t, vs, "no-admin")

	out, err := execute(NewAuditCommand(&RootOptions{Format: "text"}),
		"--db", db, "--violation", v.ID, "--verdict", "ILLEGITIMATE", "--comment", "intrusion")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ "+v.ID+" marked ILLEGITIMATE")

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	got, err := st.ReadViolation(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.StatusIllegitimate, got.Status)
	assert.Equal(t, "intrusion", got.Audit)

	audits, err := st.ReadAudits(context.Background(), v.ID)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, "no-admin", audits[0].MonitorID)
	assert.NotEmpty(t, audits[0].ID)
}

func TestAuditJSON(t *testing.T) {
	db, vs := seedDatabase(t, defaultEvents)
	v := violationOf(t, vs, "quota")

	out, err := execute(NewAuditCommand(&RootOptions{Format: "json"}),
		"--db", db, "--violation", v.ID, "--monitor", "quota", "--verdict", "legitimate")
	require.NoError(t, err)

	var resp struct {
		Status string   `json:"status"`
		Data   ir.Audit `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, ir.StatusLegitimate, resp.Data.Status)
	assert.Equal(t, v.ID, resp.Data.ViolationID)
}

func TestAuditTwiceIsRejected(t *testing.T) {
	db, vs := seedDatabase(t, defaultEvents)
	v := violationOf(t, vs, "no-admin")
	args := []string{"--db", db, "--violation", v.ID, "--verdict", "LEGITIMATE"}

	_, err := execute(NewAuditCommand(&RootOptions{Format: "text"}), args...)
	require.NoError(t, err)

	_, err = execute(NewAuditCommand(&RootOptions{Format: "text"}), args...)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid review transition")
}

func TestAuditErrors(t *testing.T) {
	db, vs := seedDatabase(t, defaultEvents)
	v := violationOf(t, vs, "no-admin")

	tests := []struct {
		name string
		args []string
		code int
	}{
		{"unknown violation", []string{"--violation", "missing", "--verdict", "LEGITIMATE"}, ExitCommandError},
		{"wrong monitor", []string{"--violation", v.ID, "--monitor", "quota", "--verdict", "LEGITIMATE"}, ExitCommandError},
		{"bad verdict", []string{"--violation", v.ID, "--verdict", "MAYBE"}, ExitFailure},
		{"back to unread", []string{"--violation", v.ID, "--verdict", "UNREAD"}, ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(NewAuditCommand(&RootOptions{Format: "json"}), append([]string{"--db", db}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, tt.code, GetExitCode(err))
		})
	}
}
