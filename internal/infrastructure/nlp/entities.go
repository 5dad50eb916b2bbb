package nlp

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"github.com/kirillkom/statute-rag/internal/core/domain"
	"github.com/kirillkom/statute-rag/internal/core/legaltext"
	"github.com/kirillkom/statute-rag/internal/core/ports"
)

const (
	EntityLaw    = "LAW"
	EntityOrg    = "ORG"
	EntityPerson = "PERSON"
)

var orgSuffixes = map[string]struct{}{
	"agency": {}, "association": {}, "bank": {}, "bureau": {}, "commission": {},
	"company": {}, "corporation": {}, "department": {}, "inc": {}, "service": {},
	"administration": {}, "office": {}, "court": {}, "states": {},
}

// HeuristicExtractor implements the query-side keyword/entity contract
// without a language model.
type HeuristicExtractor struct{}

func NewHeuristicExtractor() *HeuristicExtractor {
	return &HeuristicExtractor{}
}

func (e *HeuristicExtractor) Extract(_ context.Context, text string) ([]string, []domain.Entity, error) {
	keywords := make([]string, 0, 8)
	for _, term := range legaltext.UniqueTerms(text) {
		if len(term) > 2 {
			keywords = append(keywords, term)
		}
	}
	return keywords, extractEntities(text), nil
}

// extractEntities finds statute references and runs of two or more
// capitalized words. Punctuation ends a run.
func extractEntities(text string) []domain.Entity {
	out := make([]domain.Entity, 0, 4)
	for _, number := range legaltext.SectionNumbers(text) {
		out = append(out, domain.Entity{Text: legaltext.CanonicalSection(number), Type: EntityLaw})
	}

	words := strings.Fields(text)
	var span []string
	flush := func() {
		if len(span) >= 2 {
			out = append(out, domain.Entity{Text: strings.Join(span, " "), Type: spanType(span)})
		}
		span = span[:0]
	}
	for _, raw := range words {
		word := strings.TrimFunc(raw, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if isCapitalized(word) && !legaltext.IsStopWord(strings.ToLower(word)) {
			span = append(span, word)
		} else {
			flush()
		}
		if strings.ContainsAny(raw, ".,;:?!") && !strings.HasSuffix(raw, ".C.") {
			flush()
		}
	}
	flush()
	return out
}

func spanType(span []string) string {
	last := strings.ToLower(span[len(span)-1])
	if _, ok := orgSuffixes[last]; ok {
		return EntityOrg
	}
	return EntityPerson
}

func isCapitalized(word string) bool {
	for _, r := range word {
		return unicode.IsUpper(r)
	}
	return false
}

// FallbackExtractor tries the primary extractor first and uses the fallback
// when it fails or finds nothing.
type FallbackExtractor struct {
	primary  ports.EntityExtractor
	fallback ports.EntityExtractor
	logger   *slog.Logger
}

func NewFallbackExtractor(primary, fallback ports.EntityExtractor, logger *slog.Logger) *FallbackExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackExtractor{primary: primary, fallback: fallback, logger: logger}
}

func (e *FallbackExtractor) Extract(ctx context.Context, text string) ([]string, []domain.Entity, error) {
	keywords, entities, err := e.primary.Extract(ctx, text)
	if err == nil && (len(keywords) > 0 || len(entities) > 0) {
		return keywords, entities, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		e.logger.Warn("entity_extraction_fallback", "error", err.Error())
	}
	return e.fallback.Extract(ctx, text)
}
