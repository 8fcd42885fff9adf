// Package engine implements the tracemon monitoring engine.
//
// The engine owns the traces, the monitor registry and the knowledge
// vector of one process. Clients push events; the engine persists each
// event, appends it to its trace, advances every monitor watching that
// trace and records the violations they report.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// All evaluation happens in one goroutine (Run). HTTP handlers and other
// callers submit requests to a FIFO queue and wait for the reply:
//
//  1. Submit or Do enqueues a request carrying a reply channel
//  2. Run dequeues requests one at a time
//  3. Process persists the event and appends it to the trace
//  4. every enabled monitor of the trace is advanced
//  5. violations are recorded (idempotently) and exported
//  6. the Result is sent back to the caller
//
// Monitors are not safe for concurrent use, so nothing outside Run may
// touch them once Run has started. Before Run starts (startup, offline
// replay, tests) the methods may be called directly.
//
// Restart:
// Restore rebuilds the in-memory traces from the store and re-advances
// the monitors. Violation ids are content hashes of (monitor, event text,
// step), so violations found again during restore hit the existing rows
// and are not exported twice.
package engine
