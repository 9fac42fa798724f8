// Package sqlite persists scheduler jobs and delivery outcomes in a single
// SQLite file using the pure-Go glebarez driver. Rows are partitioned by
// tenant; every actor gets a tenant-scoped view of the shared tables.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/glebarez/go-sqlite"

	"github.com/aretw0/botflow/pkg/ports"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		tenant_id     TEXT NOT NULL,
		id            TEXT NOT NULL,
		campaign_id   TEXT NOT NULL DEFAULT '',
		channel       TEXT NOT NULL,
		payload       TEXT NOT NULL,
		scheduled_for INTEGER NOT NULL,
		attempts      INTEGER NOT NULL DEFAULT 0,
		status        TEXT NOT NULL DEFAULT 'pending',
		recurrence    TEXT,
		created_at    INTEGER NOT NULL,
		PRIMARY KEY (tenant_id, id)
	);`,
	`CREATE INDEX IF NOT EXISTS jobs_due ON jobs (tenant_id, scheduled_for);`,
	`CREATE TABLE IF NOT EXISTS outcomes (
		seq         INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id   TEXT NOT NULL,
		job_id      TEXT NOT NULL,
		campaign_id TEXT NOT NULL DEFAULT '',
		channel     TEXT NOT NULL,
		outcome     TEXT NOT NULL,
		error       TEXT NOT NULL DEFAULT '',
		error_code  TEXT NOT NULL DEFAULT '',
		attempt     INTEGER NOT NULL,
		occurred_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS outcomes_tenant ON outcomes (tenant_id, occurred_at);`,
}

// Storage implements ports.SchedulerStorage on one SQLite database.
type Storage struct {
	DB *sql.DB
}

var _ ports.SchedulerStorage = (*Storage)(nil)

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Storage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite serialises writers anyway; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	for _, q := range schema {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return &Storage{DB: db}, nil
}

// Jobs returns the tenant-scoped job table.
func (s *Storage) Jobs(tenantID string) (ports.JobStore, error) {
	return &JobStore{db: s.DB, tenant: tenantID}, nil
}

// Outcomes returns the tenant-scoped outcome log.
func (s *Storage) Outcomes(tenantID string) (ports.OutcomeLog, error) {
	return &OutcomeLog{db: s.DB, tenant: tenantID}, nil
}

// Tenants lists tenants that still have jobs.
func (s *Storage) Tenants(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT DISTINCT tenant_id FROM jobs ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var tenant string
		if err := rows.Scan(&tenant); err != nil {
			return nil, err
		}
		out = append(out, tenant)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Storage) Close() error {
	return s.DB.Close()
}
