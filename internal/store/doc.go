// Package store provides SQLite-backed durable storage for tracemon.
//
// The store keeps:
//   - Events: the append-only traces, one row per (trace, step)
//   - Violations: content-addressed violation records with review status
//   - Audits: the append-only log of reviewer actions
//   - KV entries: the persisted knowledge vector
//
// # Critical Patterns
//
// Idempotent writes
//   - Events and violations are keyed by content-addressed ids
//   - INSERT ... ON CONFLICT DO NOTHING; restoring a trace after a restart
//     never duplicates history
//
// Deterministic query results
//   - Events are read ORDER BY trace, step
//   - Violations ORDER BY monitor_id, step, id COLLATE BINARY
//   - Empty results are empty slices, never nil
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Content-addressed ids are computed in internal/ir/hash.go using RFC 8785
// canonical JSON and SHA-256 with domain separation.
package store
