package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracemon/internal/ir"
)

func TestViolationsTable(t *testing.T) {
	db, vs := seedDatabase(t, defaultEvents)
	require.Len(t, vs, 2)

	out, err := execute(NewViolationsCommand(&RootOptions{Format: "text"}), "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "STATUS")
	for _, v := range vs {
		assert.Contains(t, out, v.ID)
	}
	assert.Contains(t, out, "UNREAD")
	assert.Contains(t, out, "{login('admin')}")
}

func TestViolationsFilterJSON(t *testing.T) {
	db, _ := seedDatabase(t, defaultEvents)

	out, err := execute(NewViolationsCommand(&RootOptions{Format: "json"}), "--db", db, "--monitor", "quota")
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   []ir.Violation `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "quota", resp.Data[0].MonitorID)
	assert.Equal(t, "fx", resp.Data[0].Trace)
	assert.Equal(t, int64(1), resp.Data[0].Step)
	assert.Equal(t, "{x=5}", resp.Data[0].Event)
	assert.Equal(t, ir.StatusUnread, resp.Data[0].Status)
}

func TestViolationsEmpty(t *testing.T) {
	db, _ := seedDatabase(t, map[string][]string{"http": {"{login('bob')}"}})

	out, err := execute(NewViolationsCommand(&RootOptions{Format: "text"}), "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "No violations recorded.")
}

func TestViolationsStatusFilter(t *testing.T) {
	db, vs := seedDatabase(t, defaultEvents)
	v := violationOf(t, vs, "no-admin")
	_, err := execute(NewAuditCommand(&RootOptions{Format: "text"}), "--db", db, "--violation", v.ID, "--verdict", "ILLEGITIMATE")
	require.NoError(t, err)

	out, err := execute(NewViolationsCommand(&RootOptions{Format: "json"}), "--db", db, "--status", "unread")
	require.NoError(t, err)
	var resp struct {
		Data []ir.Violation `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "quota", resp.Data[0].MonitorID)

	out, err = execute(NewViolationsCommand(&RootOptions{Format: "json"}), "--db", db, "--trace", "http", "--status", "ILLEGITIMATE")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, v.ID, resp.Data[0].ID)

	_, err = execute(NewViolationsCommand(&RootOptions{Format: "text"}), "--db", db, "--status", "maybe")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
