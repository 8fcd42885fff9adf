// Package sink exports recorded violations to external systems.
package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/roach88/tracemon/internal/ir"
	"github.com/roach88/tracemon/internal/violation"
)

// DefaultTable is the table violations are exported to when none is configured.
const DefaultTable = "tracemon_violations"

// undefinedTable is the Postgres SQLSTATE for a missing relation.
const undefinedTable = "42P01"

// Postgres writes violations to a Postgres table, one row per violation id.
type Postgres struct {
	db    *sql.DB
	table string
}

// NewPostgres wraps an open database handle.
func NewPostgres(db *sql.DB, table string) *Postgres {
	if table == "" {
		table = DefaultTable
	}
	return &Postgres{db: db, table: table}
}

// OpenPostgres opens a connection pool for dsn and verifies it with a ping.
func OpenPostgres(ctx context.Context, dsn, table string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgres(db, table), nil
}

func (p *Postgres) Name() string { return "postgres" }

// Close releases the connection pool.
func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) quoted() string { return pq.QuoteIdentifier(p.table) }

func (p *Postgres) createSQL() string {
	return "CREATE TABLE IF NOT EXISTS " + p.quoted() +
		" (id TEXT PRIMARY KEY, monitor_id TEXT NOT NULL, trace TEXT NOT NULL, step BIGINT NOT NULL," +
		" event TEXT NOT NULL, comment TEXT NOT NULL, created_at BIGINT NOT NULL)"
}

func (p *Postgres) insertSQL() string {
	return "INSERT INTO " + p.quoted() +
		" (id, monitor_id, trace, step, event, comment, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)" +
		" ON CONFLICT (id) DO NOTHING"
}

// EnsureTable creates the export table if it does not exist.
func (p *Postgres) EnsureTable(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, p.createSQL()); err != nil {
		return fmt.Errorf("create %s: %w", p.table, err)
	}
	return nil
}

// Export inserts v. Re-exporting the same violation is a no-op. If the
// table has been dropped it is recreated once and the insert retried.
func (p *Postgres) Export(ctx context.Context, v ir.Violation) error {
	err := p.insert(ctx, v)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == undefinedTable {
		if err := p.EnsureTable(ctx); err != nil {
			return err
		}
		err = p.insert(ctx, v)
	}
	if err != nil {
		return fmt.Errorf("export violation %s: %w", v.ID, err)
	}
	return nil
}

func (p *Postgres) insert(ctx context.Context, v ir.Violation) error {
	_, err := p.db.ExecContext(ctx, p.insertSQL(),
		v.ID, v.MonitorID, v.Trace, v.Step, v.Event, v.Comment, v.CreatedAt)
	return err
}

var _ violation.Sink = (*Postgres)(nil)
