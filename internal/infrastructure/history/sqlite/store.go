// Package sqlite keeps the interaction and feedback log in a local SQLite
// file. It backs the CLI and single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kirillkom/statute-rag/internal/core/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS interactions (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL DEFAULT '',
	question TEXT NOT NULL,
	answer TEXT NOT NULL,
	intent TEXT NOT NULL,
	chunk_ids TEXT NOT NULL DEFAULT '[]',
	model TEXT NOT NULL,
	degraded INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_interactions_created_at ON interactions(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_interactions_session ON interactions(session_id, created_at);

CREATE TABLE IF NOT EXISTS feedback (
	id TEXT PRIMARY KEY,
	interaction_id TEXT NOT NULL REFERENCES interactions(id) ON DELETE CASCADE,
	rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
	comment TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
`

// Store serializes writes with a mutex; SQLite allows one writer at a time
// and busy errors are worse than waiting.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

func Open(path string) (*Store, error) {
	if path == "" {
		path = "./data/history.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// migrate adds columns missing from history files created by older builds
// before applying the schema, whose indexes reference them.
func migrate(db *sql.DB) error {
	var exists int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'interactions'`).Scan(&exists); err != nil {
		return fmt.Errorf("inspect history schema: %w", err)
	}
	if exists > 0 {
		hasSession, err := hasColumn(db, "interactions", "session_id")
		if err != nil {
			return err
		}
		if !hasSession {
			if _, err := db.Exec(`ALTER TABLE interactions ADD COLUMN session_id TEXT NOT NULL DEFAULT ''`); err != nil {
				return fmt.Errorf("add session_id column: %w", err)
			}
		}
	}
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create history schema: %w", err)
	}
	return nil
}

func hasColumn(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(`SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return false, fmt.Errorf("inspect %s columns: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, fmt.Errorf("scan %s column: %w", table, err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) RecordInteraction(ctx context.Context, in domain.Interaction) error {
	chunkIDs := in.ChunkIDs
	if chunkIDs == nil {
		chunkIDs = []string{}
	}
	idsJSON, err := json.Marshal(chunkIDs)
	if err != nil {
		return fmt.Errorf("marshal chunk ids: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
INSERT INTO interactions (id, session_id, question, answer, intent, chunk_ids, model, degraded, duration_ms, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, in.ID, in.SessionID, in.Question, in.Answer, string(in.Intent), string(idsJSON), in.Model, in.Degraded, in.DurationMS, formatTime(in.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}
	return nil
}

func (s *Store) RecordFeedback(ctx context.Context, fb domain.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, err := s.db.ExecContext(ctx, `
INSERT INTO feedback (id, interaction_id, rating, comment, created_at)
SELECT ?, id, ?, ?, ? FROM interactions WHERE id = ?
`, fb.ID, fb.Rating, fb.Comment, formatTime(fb.CreatedAt), fb.InteractionID)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert feedback rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrNotFound, "record feedback", fmt.Errorf("interaction id=%s", fb.InteractionID))
	}
	return nil
}

func (s *Store) ListInteractions(ctx context.Context, limit int) ([]domain.Interaction, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, question, answer, intent, chunk_ids, model, degraded, duration_ms, created_at
FROM interactions
ORDER BY created_at DESC, id ASC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Interaction, 0)
	for rows.Next() {
		var in domain.Interaction
		var intent, idsJSON, createdAt string
		if err := rows.Scan(&in.ID, &in.SessionID, &in.Question, &in.Answer, &intent, &idsJSON, &in.Model, &in.Degraded, &in.DurationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		if err := json.Unmarshal([]byte(idsJSON), &in.ChunkIDs); err != nil {
			return nil, fmt.Errorf("unmarshal chunk ids: %w", err)
		}
		in.Intent = domain.Intent(intent)
		if in.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interactions: %w", err)
	}
	return out, nil
}

// FeedbackFor returns ratings recorded for one interaction, oldest first.
func (s *Store) FeedbackFor(ctx context.Context, interactionID string) ([]domain.Feedback, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, interaction_id, rating, comment, created_at
FROM feedback
WHERE interaction_id = ?
ORDER BY created_at ASC, id ASC
`, interactionID)
	if err != nil {
		return nil, fmt.Errorf("query feedback: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Feedback, 0)
	for rows.Next() {
		var fb domain.Feedback
		var createdAt string
		if err := rows.Scan(&fb.ID, &fb.InteractionID, &fb.Rating, &fb.Comment, &createdAt); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		if fb.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, fb)
	}
	return out, rows.Err()
}

// RFC3339Nano in UTC sorts lexically in time order.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
