package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracemon/internal/ir"
)

func TestScenarios_Golden(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario(path)
			require.NoError(t, err)
			require.Equal(t, name, s.Name, "scenario name must match its file")

			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, result.Errors)
		})
	}
}

func TestSnapshot_Canonical(t *testing.T) {
	r := NewResult()
	r.Steps = []StepRecord{
		{Index: 0, Kind: "event", Trace: "http", Step: 0, Event: "{p()}",
			Verdicts: map[string]ir.Verdict{"b": ir.True, "a": ir.Unknown}, Violations: []string{}},
		{Index: 1, Kind: "reset", Monitor: "a", Detail: "F(p)"},
	}

	data, err := Snapshot("tiny", r)
	require.NoError(t, err)
	assert.Equal(t,
		`{"monitors":[],"pass":true,"scenario_name":"tiny","steps":[`+
			`{"blocked":false,"event":"{p()}","index":0,"kind":"event","step":0,"trace":"http","verdicts":{"a":"unknown","b":"true"},"violations":[]},`+
			`{"detail":"F(p)","index":1,"kind":"reset","monitor":"a","step":0}],"violations":[]}`,
		string(data))
}
