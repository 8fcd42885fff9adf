package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestViolationIDDeterminism(t *testing.T) {
	id1, err := ViolationID("no-admin", "{login('admin')}", 3)
	require.NoError(t, err)

	id2, err := ViolationID("no-admin", "{login('admin')}", 3)
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "ViolationID must be deterministic")
	assert.Len(t, id1, 64, "SHA-256 hex is 64 characters")
}

func TestViolationIDChangesWithInput(t *testing.T) {
	id1 := MustViolationID("m1", "{p(1)}", 1)
	id2 := MustViolationID("m2", "{p(1)}", 1) // different monitor
	id3 := MustViolationID("m1", "{p(2)}", 1) // different snapshot
	id4 := MustViolationID("m1", "{p(1)}", 2) // different step

	assert.NotEqual(t, id1, id2)
	assert.NotEqual(t, id1, id3)
	assert.NotEqual(t, id1, id4)
}

func TestViolationIDProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		mon := rapid.StringMatching(`[a-z][a-z0-9_-]{0,12}`).Draw(t, "monitor")
		snap := rapid.String().Draw(t, "snapshot")
		step := rapid.Int64Range(0, 1<<40).Draw(t, "step")

		a := MustViolationID(mon, snap, step)
		b := MustViolationID(mon, snap, step)
		if a != b {
			t.Fatalf("hash not deterministic: %s != %s", a, b)
		}
		if c := MustViolationID(mon, snap, step+1); c == a {
			t.Fatalf("step not part of the key")
		}
	})
}

func TestDomainSeparation(t *testing.T) {
	// Same payload shape under two domains must not collide.
	ev := MustEventID("m1", 1, "{p(1)}")
	v := MustViolationID("m1", "{p(1)}", 1)
	assert.NotEqual(t, ev, v)
}

func TestFormulaID(t *testing.T) {
	a, err := FormulaID("local", "G(p)")
	require.NoError(t, err)
	b, err := FormulaID("other", "G(p)")
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "declaring monitor is part of the key")
}
