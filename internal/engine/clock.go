package engine

import (
	"sync/atomic"
	"time"
)

// Clock stamps incoming events. Timestamps are data only: ordering comes
// from the trace step, never from the clock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// LogicalClock is a monotonic clock whose Now advances by one nanosecond
// per call. Replays and scenario runs use it to get identical timestamps
// on every run.
//
// Thread-safety: LogicalClock is safe for concurrent use (atomic operations).
type LogicalClock struct {
	seq atomic.Int64
}

// NewLogicalClock creates a clock starting at 0.
func NewLogicalClock() *LogicalClock {
	return &LogicalClock{}
}

// NewLogicalClockAt creates a clock starting at a specific sequence number.
func NewLogicalClockAt(start int64) *LogicalClock {
	c := &LogicalClock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *LogicalClock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *LogicalClock) Current() int64 {
	return c.seq.Load()
}

// Now returns Next as nanoseconds since the Unix epoch.
func (c *LogicalClock) Now() time.Time {
	return time.Unix(0, c.Next()).UTC()
}
