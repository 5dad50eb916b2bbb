package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode"

	"github.com/kirillkom/statute-rag/internal/core/domain"
	"github.com/kirillkom/statute-rag/internal/core/legaltext"
	"github.com/kirillkom/statute-rag/internal/core/ports"
)

const uscMarker = "U.S.C."

type QueryUnderstander struct {
	extractor     ports.EntityExtractor
	maxExpansions int
	logger        *slog.Logger
}

func NewQueryUnderstander(extractor ports.EntityExtractor, maxExpansions int, logger *slog.Logger) *QueryUnderstander {
	if maxExpansions <= 0 {
		maxExpansions = defaultMaxExpansions
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryUnderstander{
		extractor:     extractor,
		maxExpansions: maxExpansions,
		logger:        logger,
	}
}

// Understand cleans and classifies one question. Input that is empty, or
// that has nothing left once punctuation is stripped (for example "?!..."),
// fails with ErrInvalidQuery.
func (u *QueryUnderstander) Understand(ctx context.Context, rawText string) (domain.StructuredQuery, error) {
	if strings.TrimSpace(rawText) == "" {
		return domain.StructuredQuery{}, domain.WrapError(domain.ErrInvalidQuery, "understand query", errors.New("query is empty"))
	}

	cleaned := cleanQuery(rawText)
	if cleaned == "" {
		return domain.StructuredQuery{}, domain.WrapError(domain.ErrInvalidQuery, "understand query", errors.New("query has no searchable text"))
	}

	keywords, entities := u.extract(ctx, cleaned)

	return domain.StructuredQuery{
		RawText:       rawText,
		CleanedText:   cleaned,
		Intent:        classifyIntent(cleaned),
		Keywords:      keywords,
		Entities:      entities,
		ExpandedTerms: expandQuery(cleaned, u.maxExpansions),
	}, nil
}

// extract asks the NLP collaborator for keywords and entities. A failing or
// silent extractor falls back to stop-word filtered query terms.
func (u *QueryUnderstander) extract(ctx context.Context, cleaned string) ([]string, []domain.Entity) {
	var (
		keywords []string
		entities []domain.Entity
	)
	if u.extractor != nil {
		var err error
		keywords, entities, err = u.extractor.Extract(ctx, cleaned)
		if err != nil {
			u.logger.Warn("keyword_extraction_failed", "error", err.Error())
			keywords, entities = nil, nil
		}
	}
	if len(keywords) == 0 {
		keywords = legaltext.UniqueTerms(cleaned)
	}
	if entities == nil {
		entities = []domain.Entity{}
	}
	return keywords, entities
}

// cleanQuery strips punctuation except statute markers and collapses
// whitespace. Case is preserved for display.
func cleanQuery(raw string) string {
	normalized := legaltext.NormalizeUSC(raw)
	parts := strings.Split(normalized, uscMarker)
	for i, part := range parts {
		parts[i] = stripPunctuation(part)
	}
	joined := strings.Join(parts, " "+uscMarker+" ")
	return strings.Join(strings.Fields(joined), " ")
}

func stripPunctuation(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '§':
			b.WriteRune(r)
		case r == '\'' || r == '’':
		default:
			b.WriteRune(' ')
		}
	}
	return b.String()
}
