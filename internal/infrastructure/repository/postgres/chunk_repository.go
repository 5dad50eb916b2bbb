package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/statute-rag/internal/core/domain"
)

// ChunkRepository is the durable copy of the indexed corpus. The serving
// path never queries it directly; it loads everything into memory.
type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// ReplaceSource swaps the chunks of one source in one transaction.
func (r *ChunkRepository) ReplaceSource(ctx context.Context, source string, chunks []domain.Chunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE source = $1`, source); err != nil {
		return fmt.Errorf("clear chunks of %s: %w", source, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO chunks (id, source, ordinal, text, embedding, metadata)
VALUES ($1,$2,$3,$4,$5,$6)
`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range chunks {
		vectorJSON, err := json.Marshal(c.Vector)
		if err != nil {
			return fmt.Errorf("marshal embedding: %w", err)
		}
		metaJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, c.ID, source, i, c.Text, vectorJSON, metaJSON); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace tx: %w", err)
	}
	return nil
}

// LoadAll returns every source's chunks, each source in build order.
func (r *ChunkRepository) LoadAll(ctx context.Context) ([]domain.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, text, embedding, metadata
FROM chunks
ORDER BY source ASC, ordinal ASC
`)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Chunk, 0)
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}

func scanChunk(row rowScanner) (domain.Chunk, error) {
	var c domain.Chunk
	var vectorRaw, metaRaw []byte
	if err := row.Scan(&c.ID, &c.Text, &vectorRaw, &metaRaw); err != nil {
		return domain.Chunk{}, fmt.Errorf("scan chunk: %w", err)
	}
	if err := json.Unmarshal(vectorRaw, &c.Vector); err != nil {
		return domain.Chunk{}, fmt.Errorf("unmarshal embedding of %s: %w", c.ID, err)
	}
	if err := json.Unmarshal(metaRaw, &c.Metadata); err != nil {
		return domain.Chunk{}, fmt.Errorf("unmarshal metadata of %s: %w", c.ID, err)
	}
	return c, nil
}
