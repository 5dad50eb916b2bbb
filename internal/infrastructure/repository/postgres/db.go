package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS sources (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	chunk_count INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL DEFAULT '',
	ordinal INTEGER NOT NULL,
	text TEXT NOT NULL,
	embedding JSONB NOT NULL,
	metadata JSONB NOT NULL
);

ALTER TABLE chunks ADD COLUMN IF NOT EXISTS source TEXT NOT NULL DEFAULT '';
UPDATE chunks SET source = metadata->>'source' WHERE source = '' AND metadata->>'source' IS NOT NULL;

DROP INDEX IF EXISTS idx_chunks_ordinal;
CREATE INDEX IF NOT EXISTS idx_chunks_source_ordinal ON chunks(source, ordinal);

CREATE TABLE IF NOT EXISTS interactions (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL DEFAULT '',
	question TEXT NOT NULL,
	answer TEXT NOT NULL,
	intent TEXT NOT NULL,
	chunk_ids JSONB NOT NULL DEFAULT '[]'::jsonb,
	model TEXT NOT NULL,
	degraded BOOLEAN NOT NULL DEFAULT FALSE,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);

ALTER TABLE interactions ADD COLUMN IF NOT EXISTS session_id TEXT NOT NULL DEFAULT '';

CREATE INDEX IF NOT EXISTS idx_interactions_created_at ON interactions(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_interactions_session ON interactions(session_id, created_at);

CREATE TABLE IF NOT EXISTS feedback (
	id TEXT PRIMARY KEY,
	interaction_id TEXT NOT NULL REFERENCES interactions(id) ON DELETE CASCADE,
	rating SMALLINT NOT NULL CHECK (rating BETWEEN 1 AND 5),
	comment TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema creates the tables the api and worker share.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}
