// Package history persists validation outcomes to a local SQLite database
// so past runs can be listed and compared. Recording is opt-in and
// append-only; the validator never reads past outcomes back into a pass.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	package_path    TEXT NOT NULL,
	package_id      TEXT NOT NULL DEFAULT '',
	package_version TEXT NOT NULL DEFAULT '',
	result          TEXT NOT NULL,
	error_message   TEXT NOT NULL DEFAULT '',
	external        INTEGER NOT NULL DEFAULT 0,
	started_at      TIMESTAMP NOT NULL,
	duration_ms     INTEGER NOT NULL DEFAULT 0
)`

const createRunsIndex = `
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC)`

// Run is one recorded validation pass.
type Run struct {
	ID             string
	PackagePath    string
	PackageID      string
	PackageVersion string
	Result         string
	ErrorMessage   string
	External       bool
	StartedAt      time.Time
	Duration       time.Duration
}

// Store is an append-only run log backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	for _, ddl := range []string{createRunsTable, createRunsIndex} {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create history schema: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends one run.
func (s *Store) Record(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, package_path, package_id, package_version, result, error_message, external, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.PackagePath, run.PackageID, run.PackageVersion,
		run.Result, run.ErrorMessage, boolToInt(run.External),
		run.StartedAt.UTC(), run.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, package_path, package_id, package_version, result, error_message, external, started_at, duration_ms
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var external int
		var durationMs int64
		if err := rows.Scan(&r.ID, &r.PackagePath, &r.PackageID, &r.PackageVersion,
			&r.Result, &r.ErrorMessage, &external, &r.StartedAt, &durationMs); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.External = external != 0
		r.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
