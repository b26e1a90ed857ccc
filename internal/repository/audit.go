// Package repository provides the PostgreSQL archive for audit entries.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/filecluster/filecluster/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_entries (
    id TEXT PRIMARY KEY,
    recorded_at TIMESTAMPTZ NOT NULL,
    event TEXT NOT NULL,
    user_id TEXT,
    resource_id TEXT,
    node_id TEXT,
    outcome TEXT NOT NULL,
    details JSONB,
    checksum TEXT NOT NULL
);
`

// Open connects to PostgreSQL and bootstraps the archive schema.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return db, nil
}

// PostgresAuditArchive persists audit log flushes to a PostgreSQL table.
// Entries are immutable, so re-flushing an entry already archived is a
// no-op conflict.
type PostgresAuditArchive struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresAuditArchive creates an archive using the given database
// connection.
func NewPostgresAuditArchive(db *sql.DB) *PostgresAuditArchive {
	return &PostgresAuditArchive{DB: db}
}

// Flush archives the entries within a single transaction. It satisfies
// audit.Sink.
func (a *PostgresAuditArchive) Flush(entries []models.AuditEntry) error {
	ctx := context.Background()

	tx, err := a.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		details, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("encode details: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO audit_entries (id, recorded_at, event, user_id, resource_id, node_id, outcome, details, checksum)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO NOTHING
		`, e.ID, e.Timestamp, string(e.Event), e.UserID, e.ResourceID, e.NodeID, string(e.Outcome), details, e.Checksum)
		if err != nil {
			return fmt.Errorf("archive entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
