// Package sqlite provides durable backends for the event store, the
// snapshotter and the saga repository on a single sqlite database file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

// DB wraps the sqlite handle shared by the stores of this package.
type DB struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens (or creates) the database at path and migrates the schema.
// sqlite allows only one writer, so the pool is limited to a single
// connection; concurrent callers serialize on it.
func Open(ctx context.Context, log *slog.Logger, path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db at %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	pragmas := `
	PRAGMA journal_mode=WAL;
	PRAGMA synchronous=NORMAL;
	PRAGMA foreign_keys=1;
	PRAGMA busy_timeout=5000;
	`
	if _, err := db.ExecContext(ctx, pragmas); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	d := &DB{
		db:  db,
		log: log.With(slog.String("component", "sqlite"), slog.String("path", path)),
	}
	if err := d.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id             INTEGER PRIMARY KEY,
		event_id       TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id   TEXT NOT NULL,
		seq            INTEGER NOT NULL,
		event_type     TEXT NOT NULL,
		revision       TEXT NOT NULL DEFAULT '',
		occurred_at    INTEGER NOT NULL,
		data           BLOB,
		metadata       TEXT,
		UNIQUE (aggregate_type, aggregate_id, seq)
	);
	CREATE INDEX IF NOT EXISTS events_stream_idx
		ON events (aggregate_type, aggregate_id, seq);

	CREATE TABLE IF NOT EXISTS snapshots (
		aggregate_type TEXT NOT NULL,
		aggregate_id   TEXT NOT NULL,
		snapshot_id    TEXT NOT NULL,
		seq            INTEGER NOT NULL,
		created_at     INTEGER NOT NULL,
		schema_version INTEGER NOT NULL,
		encoding       TEXT NOT NULL,
		data           BLOB,
		PRIMARY KEY (aggregate_type, aggregate_id)
	);

	CREATE TABLE IF NOT EXISTS sagas (
		saga_type TEXT NOT NULL,
		saga_id   TEXT NOT NULL,
		data      BLOB,
		PRIMARY KEY (saga_type, saga_id)
	);
	CREATE TABLE IF NOT EXISTS saga_associations (
		saga_type TEXT NOT NULL,
		assoc_key TEXT NOT NULL,
		assoc_val TEXT NOT NULL,
		saga_id   TEXT NOT NULL,
		PRIMARY KEY (saga_type, assoc_key, assoc_val, saga_id)
	);
	CREATE INDEX IF NOT EXISTS saga_assoc_lookup_idx
		ON saga_associations (saga_type, assoc_key, assoc_val);
	`
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (d *DB) Close() error { return d.db.Close() }
