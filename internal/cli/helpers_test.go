package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roach88/tracemon/internal/engine"
	"github.com/roach88/tracemon/internal/ir"
	"github.com/roach88/tracemon/internal/store"
	"github.com/roach88/tracemon/internal/trace"
)

const validSpecs = `package monitors

monitor: "no-admin": {
	description:       "admin must not log in over http"
	trace:             "http"
	kind:              "http"
	formula:           "G(!login('admin'))"
	violation_formula: "F(logout('admin'))"
	control:           "realtime"
}

monitor: quota: {
	trace:   "fx"
	kind:    "fx"
	formula: "G(x <= limit)"
	valuation: limit: 2
}
`

// writeFile writes content to name under dir and returns its path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// writeSpecs writes validSpecs into a fresh directory and returns the file.
func writeSpecs(t *testing.T) string {
	t.Helper()
	return writeFile(t, t.TempDir(), "monitors.cue", validSpecs)
}

// execute runs cmd with args and returns what it wrote to stdout.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// seedDatabase records events through an engine built from validSpecs and
// returns the database path with the recorded violations.
func seedDatabase(t *testing.T, events map[string][]string) (string, []ir.Violation) {
	t.Helper()
	specs, err := compileSpecs(writeSpecs(t))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "tracemon.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	eng, err := engine.New(st, specs, engine.WithLogger(zap.NewNop()), engine.WithClock(engine.NewLogicalClock()))
	require.NoError(t, err)

	ctx := context.Background()
	for _, name := range []string{"http", "fx"} {
		for _, text := range events[name] {
			ev, err := trace.ParseEvent(text)
			require.NoError(t, err)
			_, err = eng.Process(ctx, name, ev)
			require.NoError(t, err)
		}
	}
	vs, err := st.ReadViolations(ctx, "")
	require.NoError(t, err)
	return path, vs
}

var defaultEvents = map[string][]string{
	"http": {"{login('bob')}", "{login('admin')}", "{logout('admin')}"},
	"fx":   {"{x=1}", "{x=5}"},
}
