package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kirillkom/statute-rag/internal/core/domain"
	"github.com/kirillkom/statute-rag/internal/core/ports"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
	maxCommentRunes     = 2000
)

type FeedbackUseCase struct {
	history ports.InteractionLog
}

func NewFeedbackUseCase(history ports.InteractionLog) *FeedbackUseCase {
	return &FeedbackUseCase{history: history}
}

func (uc *FeedbackUseCase) RecordFeedback(ctx context.Context, interactionID string, rating int, comment string) (*domain.Feedback, error) {
	interactionID = strings.TrimSpace(interactionID)
	if interactionID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "record feedback", fmt.Errorf("interaction_id is required"))
	}
	if rating < domain.MinFeedbackRating || rating > domain.MaxFeedbackRating {
		return nil, domain.WrapError(domain.ErrInvalidInput, "record feedback",
			fmt.Errorf("rating must be between %d and %d, got %d", domain.MinFeedbackRating, domain.MaxFeedbackRating, rating))
	}
	comment = strings.TrimSpace(comment)
	if r := []rune(comment); len(r) > maxCommentRunes {
		comment = string(r[:maxCommentRunes])
	}

	fb := domain.Feedback{
		ID:            uuid.NewString(),
		InteractionID: interactionID,
		Rating:        rating,
		Comment:       comment,
		CreatedAt:     time.Now().UTC(),
	}
	if err := uc.history.RecordFeedback(ctx, fb); err != nil {
		return nil, fmt.Errorf("store feedback: %w", err)
	}
	return &fb, nil
}

func (uc *FeedbackUseCase) ListInteractions(ctx context.Context, limit int) ([]domain.Interaction, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return uc.history.ListInteractions(ctx, limit)
}
