package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/statute-rag/internal/core/domain"
)

type SourceRepository struct {
	db *sql.DB
}

func NewSourceRepository(db *sql.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

func (r *SourceRepository) Create(ctx context.Context, src *domain.Source) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO sources (
	id, filename, mime_type, storage_path, chunk_count, status, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
		src.ID, src.Filename, src.MimeType, src.StoragePath, src.ChunkCount,
		string(src.Status), src.Error, src.CreatedAt, src.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert source: %w", err)
	}
	return nil
}

func (r *SourceRepository) GetByID(ctx context.Context, id string) (*domain.Source, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, filename, mime_type, storage_path, chunk_count, status, error_message, created_at, updated_at
FROM sources
WHERE id = $1
`, id)

	var src domain.Source
	var status string
	err := row.Scan(
		&src.ID, &src.Filename, &src.MimeType, &src.StoragePath, &src.ChunkCount,
		&status, &src.Error, &src.CreatedAt, &src.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get source", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan source: %w", err)
	}
	src.Status = domain.SourceStatus(status)
	return &src, nil
}

func (r *SourceRepository) UpdateStatus(ctx context.Context, id string, status domain.SourceStatus, chunkCount int, errMessage string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE sources
SET status = $2, chunk_count = $3, error_message = $4, updated_at = $5
WHERE id = $1
`, id, string(status), chunkCount, errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update source status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update source status rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrNotFound, "update source status", fmt.Errorf("id=%s", id))
	}
	return nil
}
