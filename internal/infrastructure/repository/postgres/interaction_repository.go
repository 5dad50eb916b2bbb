package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/statute-rag/internal/core/domain"
)

type InteractionRepository struct {
	db *sql.DB
}

func NewInteractionRepository(db *sql.DB) *InteractionRepository {
	return &InteractionRepository{db: db}
}

func (r *InteractionRepository) RecordInteraction(ctx context.Context, in domain.Interaction) error {
	chunkIDs := in.ChunkIDs
	if chunkIDs == nil {
		chunkIDs = []string{}
	}
	idsJSON, err := json.Marshal(chunkIDs)
	if err != nil {
		return fmt.Errorf("marshal chunk ids: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO interactions (id, session_id, question, answer, intent, chunk_ids, model, degraded, duration_ms, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`, in.ID, in.SessionID, in.Question, in.Answer, string(in.Intent), idsJSON, in.Model, in.Degraded, in.DurationMS, in.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}
	return nil
}

// RecordFeedback inserts only when the interaction exists.
func (r *InteractionRepository) RecordFeedback(ctx context.Context, fb domain.Feedback) error {
	result, err := r.db.ExecContext(ctx, `
INSERT INTO feedback (id, interaction_id, rating, comment, created_at)
SELECT $1, $2, $3, $4, $5
WHERE EXISTS (SELECT 1 FROM interactions WHERE id = $2)
`, fb.ID, fb.InteractionID, fb.Rating, fb.Comment, fb.CreatedAt)
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

func (r *InteractionRepository) ListInteractions(ctx context.Context, limit int) ([]domain.Interaction, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, session_id, question, answer, intent, chunk_ids, model, degraded, duration_ms, created_at
FROM interactions
ORDER BY created_at DESC, id ASC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Interaction, 0)
	for rows.Next() {
		in, err := scanInteraction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interactions: %w", err)
	}
	return out, nil
}

func scanInteraction(row rowScanner) (domain.Interaction, error) {
	var in domain.Interaction
	var intent string
	var idsRaw []byte
	err := row.Scan(&in.ID, &in.SessionID, &in.Question, &in.Answer, &intent, &idsRaw, &in.Model, &in.Degraded, &in.DurationMS, &in.CreatedAt)
	if err != nil {
		return domain.Interaction{}, fmt.Errorf("scan interaction: %w", err)
	}
	if err := json.Unmarshal(idsRaw, &in.ChunkIDs); err != nil {
		return domain.Interaction{}, fmt.Errorf("unmarshal chunk ids: %w", err)
	}
	in.Intent = domain.Intent(intent)
	return in, nil
}
