package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracemon/internal/ir"
)

func ids(ms []*Monitor) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID()
	}
	return out
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(mustMonitor(t, ir.MonitorSpec{ID: "b", Trace: "http", Formula: "G p"})))
	require.NoError(t, r.Add(mustMonitor(t, ir.MonitorSpec{ID: "a", Trace: "view", Formula: "G p"})))
	require.NoError(t, r.Add(mustMonitor(t, ir.MonitorSpec{ID: "c", Trace: "http", Formula: "F q"})))

	assert.Error(t, r.Add(mustMonitor(t, ir.MonitorSpec{ID: "a", Formula: "p"})), "ids are unique")
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []string{"b", "a", "c"}, ids(r.All()), "insertion order")
	assert.Equal(t, []string{"b", "c"}, ids(r.ForTrace("http")))
	assert.Empty(t, r.ForTrace("fx"))

	m, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, "view", m.Spec().Trace)

	assert.True(t, r.Remove("b"))
	assert.False(t, r.Remove("b"))
	_, ok = r.Get("b")
	assert.False(t, ok)
	assert.Equal(t, []string{"a", "c"}, ids(r.All()))

	require.NoError(t, r.Add(mustMonitor(t, ir.MonitorSpec{ID: "b", Formula: "p"})), "removed id can be reused")
	assert.Equal(t, []string{"a", "c", "b"}, ids(r.All()))
}
