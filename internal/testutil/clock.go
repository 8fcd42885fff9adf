// Package testutil holds deterministic stand-ins for wall time and ids, so
// scenario runs and tests produce byte-identical results.
package testutil

import (
	"sync"
	"time"
)

// DefaultEpoch is the first instant a DeterministicClock reports when no
// start is given: 2024-01-01T00:00:00Z.
var DefaultEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock is a fake wall clock that advances by a fixed tick on
// every call to Now.
//
// Unlike engine.LogicalClock, DeterministicClock can be reset for test
// reuse, so the same scenario run twice stamps identical timestamps.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	start time.Time
	tick  time.Duration
	seq   int64
}

// NewDeterministicClock creates a clock at DefaultEpoch ticking by one
// second.
//
// The first call to Now() returns DefaultEpoch + 1s.
func NewDeterministicClock() *DeterministicClock {
	return NewDeterministicClockAt(DefaultEpoch, time.Second)
}

// NewDeterministicClockAt creates a clock starting at start and advancing
// by tick.
func NewDeterministicClockAt(start time.Time, tick time.Duration) *DeterministicClock {
	return &DeterministicClock{start: start, tick: tick}
}

// Next increments and returns the tick count.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the tick count without incrementing.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Now advances the clock by one tick and returns the new instant.
func (c *DeterministicClock) Now() time.Time {
	n := c.Next()
	return c.start.Add(time.Duration(n) * c.tick)
}

// Reset rewinds the clock to its start.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
