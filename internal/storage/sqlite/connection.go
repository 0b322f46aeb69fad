// Package sqlite implements the storage abstraction of C1 over a pure-Go
// SQLite driver. Adapted from the donor's internal/storage/sqlite
// connection/migration scaffolding: a single-connection pool (so SQLite's
// lack of row-level SKIP LOCKED doesn't matter — there is never a second
// writer to contend with) plus a PRAGMA-tuned database/sql.DB.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"

	_ "modernc.org/sqlite" // pure-Go driver, registers as "sqlite"
)

// DB wraps the single-connection *sql.DB and exposes the domain-specific
// Store methods implemented across this package's other files.
type DB struct {
	db     *sql.DB
	logger arbor.ILogger
}

// Open creates (if necessary) the database file's directory, opens the
// connection, applies PRAGMAs, and runs migrations.
func Open(ctx context.Context, path string, logger arbor.ILogger) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", dir, err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %s: %w", path, err)
	}

	// A single connection serializes every write. This is what makes the
	// atomic job-claim UPDATE in jobs.go safe without SKIP LOCKED: SQLite
	// has no such clause, but with exactly one connection no second
	// caller can ever interleave between the claim's subquery and update.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	d := &DB{db: sqlDB, logger: logger}
	if err := d.configure(ctx); err != nil {
		return nil, err
	}
	if err := d.Migrate(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *DB) configure(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA journal_mode = WAL",
	}
	for _, p := range pragmas {
		if _, err := d.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}
	return nil
}

// Close releases the underlying connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping reports whether the database is reachable, backing the
// GET /api/health endpoint of §6.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}
