// Package ir provides the canonical data types shared by every tracemon
// package: values, events, verdicts, monitor specs, violations and
// knowledge-vector entries.
//
// This package contains type definitions and hashing only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere - use int64 for numbers
//   - All JSON tags use snake_case
//   - Event order is the step index, never the wall-clock timestamp
//   - Identities are domain-separated SHA-256 over canonical JSON
package ir
