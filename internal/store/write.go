package store

import (
	"context"
	"fmt"

	"github.com/roach88/tracemon/internal/ir"
)

// WriteEvent inserts an event at its (trace, step) position.
// Uses ON CONFLICT DO NOTHING for idempotency: rewriting the same event is
// a no-op. The event id must be set (see ir.EventID).
func (s *Store) WriteEvent(ctx context.Context, ev ir.Event) error {
	predsJSON, err := marshalPredicates(ev.Predicates)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	attrsJSON, err := marshalAttrs(ev.Attrs)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events
		(id, trace, step, text, predicates, attrs, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		ev.ID,
		ev.Trace,
		ev.Step,
		ev.String(),
		predsJSON,
		attrsJSON,
		ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// WriteViolation inserts a violation and reports whether it was new.
// A violation whose id already exists is left untouched, including its
// review status.
func (s *Store) WriteViolation(ctx context.Context, v ir.Violation) (created bool, err error) {
	status := v.Status
	if status == "" {
		status = ir.StatusUnread
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO violations
		(id, monitor_id, trace, step, event, comment, created_at, status, audit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		v.ID,
		v.MonitorID,
		v.Trace,
		v.Step,
		v.Event,
		v.Comment,
		v.CreatedAt,
		string(status),
		v.Audit,
	)
	if err != nil {
		return false, fmt.Errorf("write violation: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write violation: rows affected: %w", err)
	}
	return n > 0, nil
}

// WriteReview applies a review in one transaction: the violation takes the
// audit status and comment, and the audit row is appended.
func (s *Store) WriteReview(ctx context.Context, a ir.Audit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write review: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `
		UPDATE violations SET status = ?, audit = ?
		WHERE id = ? AND monitor_id = ?
	`, string(a.Status), a.Comment, a.ViolationID, a.MonitorID)
	if err != nil {
		return fmt.Errorf("write review: update violation: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("write review: rows affected: %w", err)
	} else if n == 0 {
		return fmt.Errorf("write review: violation %s of monitor %s not found", a.ViolationID, a.MonitorID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audits
		(id, violation_id, monitor_id, status, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.ID, a.ViolationID, a.MonitorID, string(a.Status), a.Comment, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("write review: insert audit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write review: commit: %w", err)
	}
	return nil
}

// WriteKnowledge upserts knowledge-vector entries. An entry replaces the
// stored one only if its timestamp is newer or equal.
func (s *Store) WriteKnowledge(ctx context.Context, entries []ir.KVEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write knowledge: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, e := range entries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO kv_entries (fid, agent, value, timestamp)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(fid) DO UPDATE SET
				agent = excluded.agent,
				value = excluded.value,
				timestamp = excluded.timestamp
			WHERE excluded.timestamp >= kv_entries.timestamp
		`, e.FID, e.Agent, e.Value.String(), e.Timestamp)
		if err != nil {
			return fmt.Errorf("write knowledge %s: %w", e.FID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write knowledge: commit: %w", err)
	}
	return nil
}
