package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kirillkom/statute-rag/internal/core/domain"
	"github.com/kirillkom/statute-rag/internal/core/ports"
)

// CorpusIngestUseCase stores an uploaded statute document and asks the
// worker to rebuild the index from it.
type CorpusIngestUseCase struct {
	repo    ports.SourceRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
}

func NewCorpusIngestUseCase(
	repo ports.SourceRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
) *CorpusIngestUseCase {
	return &CorpusIngestUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
	}
}

func (uc *CorpusIngestUseCase) Upload(
	ctx context.Context,
	filename, mimeType string,
	body io.Reader,
) (*domain.Source, error) {
	if uc.queue == nil {
		return nil, domain.WrapError(domain.ErrTemporary, "upload source", errors.New("build queue is not configured"))
	}
	src, err := uc.Register(ctx, filename, mimeType, body)
	if err != nil {
		return nil, err
	}
	if err := uc.queue.PublishBuildRequested(ctx, src.ID); err != nil {
		return nil, fmt.Errorf("publish build request: %w", err)
	}
	return src, nil
}

// Register stores the file and records the source without requesting a
// build. statutectl builds registered sources in-process.
func (uc *CorpusIngestUseCase) Register(
	ctx context.Context,
	filename, mimeType string,
	body io.Reader,
) (*domain.Source, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload source", fmt.Errorf("filename is required"))
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	src := &domain.Source{
		ID:          id,
		Filename:    filename,
		MimeType:    mimeType,
		StoragePath: storageKey,
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := uc.repo.Create(ctx, src); err != nil {
		return nil, fmt.Errorf("create source metadata: %w", err)
	}
	return src, nil
}

func (uc *CorpusIngestUseCase) GetByID(ctx context.Context, id string) (*domain.Source, error) {
	return uc.repo.GetByID(ctx, id)
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "document.bin"
	}
	return base
}
