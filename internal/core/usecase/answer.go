package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kirillkom/statute-rag/internal/core/domain"
	"github.com/kirillkom/statute-rag/internal/core/ports"
)

const (
	defaultAnswerPassages = 5
	fallbackModel         = "fallback"
)

// AnswerUseCase runs understand, retrieve and generate for one question and
// records the outcome in the interaction log.
type AnswerUseCase struct {
	understander ports.QueryUnderstander
	retriever    ports.Retriever
	generator    ports.AnswerGenerator
	citations    ports.CitationFormatter
	history      ports.InteractionLog
	logger       *slog.Logger
	now          func() time.Time
}

type AnswerOption func(*AnswerUseCase)

func WithInteractionLog(history ports.InteractionLog) AnswerOption {
	return func(uc *AnswerUseCase) { uc.history = history }
}

func WithAnswerLogger(logger *slog.Logger) AnswerOption {
	return func(uc *AnswerUseCase) {
		if logger != nil {
			uc.logger = logger
		}
	}
}

func NewAnswerUseCase(
	understander ports.QueryUnderstander,
	retriever ports.Retriever,
	generator ports.AnswerGenerator,
	citations ports.CitationFormatter,
	opts ...AnswerOption,
) *AnswerUseCase {
	uc := &AnswerUseCase{
		understander: understander,
		retriever:    retriever,
		generator:    generator,
		citations:    citations,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Search returns ranked passages without generation.
func (uc *AnswerUseCase) Search(ctx context.Context, question string, k int) (*domain.RetrievalResult, error) {
	if k <= 0 {
		k = defaultAnswerPassages
	}
	query, err := uc.understander.Understand(ctx, question)
	if err != nil {
		return nil, err
	}
	result, err := uc.retriever.Retrieve(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("retrieve passages: %w", err)
	}
	return result, nil
}

func (uc *AnswerUseCase) Answer(ctx context.Context, req domain.AnswerRequest) (*domain.Answer, error) {
	started := uc.now()

	result, err := uc.Search(ctx, req.Question, req.K)
	if err != nil {
		return nil, err
	}
	passages := result.Passages()

	model := uc.generator.Model()
	text, err := uc.generator.GenerateAnswer(ctx, result.Query.RawText, passages)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		uc.logger.Warn("generation_failed", "error", err.Error(), "passages", len(passages))
		text = fallbackAnswer(passages)
		model = fallbackModel
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	answer := &domain.Answer{
		SessionID:      sessionID,
		Question:       req.Question,
		Text:           text,
		FormattedText:  text,
		Model:          model,
		Intent:         result.Query.Intent,
		Passages:       passages,
		Citations:      []domain.Citation{},
		DenseDegraded:  result.DenseDegraded,
		SparseDegraded: result.SparseDegraded,
		FilterDropped:  result.FilterDropped,
	}
	if uc.citations != nil {
		answer.Citations = annotateCitations(uc.citations.Extract(text), passages)
		answer.FormattedText = uc.citations.Format(text)
	}

	uc.record(ctx, answer, started)
	return answer, nil
}

func (uc *AnswerUseCase) record(ctx context.Context, answer *domain.Answer, started time.Time) {
	if uc.history == nil {
		return
	}
	chunkIDs := make([]string, 0, len(answer.Passages))
	for _, p := range answer.Passages {
		chunkIDs = append(chunkIDs, p.ChunkID)
	}
	now := uc.now()
	in := domain.Interaction{
		ID:         uuid.NewString(),
		SessionID:  answer.SessionID,
		Question:   answer.Question,
		Answer:     answer.Text,
		Intent:     answer.Intent,
		ChunkIDs:   chunkIDs,
		Model:      answer.Model,
		Degraded:   answer.DenseDegraded || answer.SparseDegraded,
		DurationMS: now.Sub(started).Milliseconds(),
		CreatedAt:  now.UTC(),
	}
	if err := uc.history.RecordInteraction(ctx, in); err != nil {
		uc.logger.Warn("interaction_record_failed", "error", err.Error())
		return
	}
	answer.InteractionID = in.ID
}

// fallbackAnswer quotes the retrieved passages when the generator is down.
func fallbackAnswer(passages []domain.Passage) string {
	if len(passages) == 0 {
		return "No relevant statute text was found for this question."
	}
	var b strings.Builder
	b.WriteString("Based on the following relevant legal text:\n\n")
	b.WriteString(passageContext(passages))
	b.WriteString("\nFor a detailed answer, please consult an attorney.")
	return b.String()
}

// passageContext renders passages as "[section - source]" blocks.
func passageContext(passages []domain.Passage) string {
	var b strings.Builder
	for _, p := range passages {
		section := "Unknown"
		if refs := p.Metadata.SectionReferences; len(refs) > 0 {
			section = refs[0]
		}
		source := p.Metadata.Source
		if source == "" {
			source = "Unknown"
		}
		fmt.Fprintf(&b, "[%s - %s]\n%s\n\n", section, source, p.Text)
	}
	return b.String()
}

// annotateCitations attaches the page of the first passage that references
// the cited section.
func annotateCitations(citations []domain.Citation, passages []domain.Passage) []domain.Citation {
	if citations == nil {
		return []domain.Citation{}
	}
	for i := range citations {
		if citations[i].Kind != "usc" {
			continue
		}
		for _, p := range passages {
			if containsFold(p.Metadata.SectionReferences, citations[i].Section) {
				citations[i].PageNum = p.Metadata.PageNum
				break
			}
		}
	}
	return citations
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}
