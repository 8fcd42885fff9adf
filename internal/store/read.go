package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/tracemon/internal/ir"
	"github.com/roach88/tracemon/internal/queryir"
	"github.com/roach88/tracemon/internal/querysql"
)

// ReadEvents returns the events of a trace with from <= step < to, in step
// order. A negative to reads to the end of the trace.
func (s *Store) ReadEvents(ctx context.Context, trace string, from, to int64) ([]ir.Event, error) {
	if to < 0 {
		to = 1<<63 - 1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trace, step, predicates, attrs, timestamp
		FROM events
		WHERE trace = ? AND step >= ? AND step < ?
		ORDER BY step ASC
	`, trace, from, to)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ir.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// TraceNames returns the names of all stored traces in sorted order.
func (s *Store) TraceNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT trace FROM events ORDER BY trace COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query traces: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate traces: %w", err)
	}
	return names, nil
}

// ReadViolation retrieves a single violation by id.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadViolation(ctx context.Context, id string) (ir.Violation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, monitor_id, trace, step, event, comment, created_at, status, audit
		FROM violations
		WHERE id = ?
	`, id)
	return scanViolation(row)
}

// ReadViolations returns the violations of a monitor, or of every monitor
// when monitorID is empty, ordered by monitor, step and id.
func (s *Store) ReadViolations(ctx context.Context, monitorID string) ([]ir.Violation, error) {
	return s.FindViolations(ctx, ViolationFilter{MonitorID: monitorID})
}

// ViolationFilter selects violations; empty fields match everything.
type ViolationFilter struct {
	MonitorID string
	Trace     string
	Status    ir.ReviewStatus
}

var violationColumns = []string{"id", "monitor_id", "trace", "step", "event", "comment", "created_at", "status", "audit"}

var querySchema = queryir.Schema{"violations": violationColumns}

// FindViolations returns the violations matching f, ordered by monitor,
// step and id.
func (s *Store) FindViolations(ctx context.Context, f ViolationFilter) ([]ir.Violation, error) {
	q := queryir.Select{
		From:    "violations",
		Columns: violationColumns,
		Filter: queryir.Where(
			queryir.EqualsIf("monitor_id", f.MonitorID),
			queryir.EqualsIf("trace", f.Trace),
			queryir.EqualsIf("status", string(f.Status)),
		),
		OrderBy: []queryir.Order{{Field: "monitor_id"}, {Field: "step"}},
	}
	query, params, err := querysql.NewSQLCompiler(querySchema).Compile(q)
	if err != nil {
		return nil, fmt.Errorf("query violations: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query violations: %w", err)
	}
	defer rows.Close()

	violations := []ir.Violation{}
	for rows.Next() {
		v, err := scanViolation(rows)
		if err != nil {
			return nil, err
		}
		violations = append(violations, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate violations: %w", err)
	}
	return violations, nil
}

// ReadAudits returns the audit log of a violation in the order it was written.
func (s *Store) ReadAudits(ctx context.Context, violationID string) ([]ir.Audit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, violation_id, monitor_id, status, comment, created_at
		FROM audits
		WHERE violation_id = ?
		ORDER BY seq ASC
	`, violationID)
	if err != nil {
		return nil, fmt.Errorf("query audits: %w", err)
	}
	defer rows.Close()

	audits := []ir.Audit{}
	for rows.Next() {
		var a ir.Audit
		var status string
		if err := rows.Scan(&a.ID, &a.ViolationID, &a.MonitorID, &status, &a.Comment, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		a.Status = ir.ReviewStatus(status)
		audits = append(audits, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audits: %w", err)
	}
	return audits, nil
}

// ReadKnowledge returns the persisted knowledge vector ordered by fid.
func (s *Store) ReadKnowledge(ctx context.Context) ([]ir.KVEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fid, agent, value, timestamp
		FROM kv_entries
		ORDER BY fid COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query knowledge: %w", err)
	}
	defer rows.Close()

	entries := []ir.KVEntry{}
	for rows.Next() {
		var e ir.KVEntry
		var value string
		if err := rows.Scan(&e.FID, &e.Agent, &value, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan knowledge: %w", err)
		}
		if e.Value, err = ir.ParseVerdict(value); err != nil {
			return nil, fmt.Errorf("scan knowledge %s: %w", e.FID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate knowledge: %w", err)
	}
	return entries, nil
}

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (ir.Event, error) {
	var ev ir.Event
	var predsJSON, attrsJSON string
	if err := row.Scan(&ev.ID, &ev.Trace, &ev.Step, &predsJSON, &attrsJSON, &ev.Timestamp); err != nil {
		return ir.Event{}, fmt.Errorf("scan event: %w", err)
	}

	var err error
	if ev.Predicates, err = unmarshalPredicates(predsJSON); err != nil {
		return ir.Event{}, fmt.Errorf("scan event %s: %w", ev.ID, err)
	}
	if ev.Attrs, err = unmarshalAttrs(attrsJSON); err != nil {
		return ir.Event{}, fmt.Errorf("scan event %s: %w", ev.ID, err)
	}
	return ev, nil
}

// scanViolation returns sql.ErrNoRows as is.
func scanViolation(row scanner) (ir.Violation, error) {
	var v ir.Violation
	var status string
	err := row.Scan(&v.ID, &v.MonitorID, &v.Trace, &v.Step, &v.Event, &v.Comment, &v.CreatedAt, &status, &v.Audit)
	if err == sql.ErrNoRows {
		return ir.Violation{}, err
	}
	if err != nil {
		return ir.Violation{}, fmt.Errorf("scan violation: %w", err)
	}
	v.Status = ir.ReviewStatus(status)
	return v, nil
}
