package usecase

import "github.com/kirillkom/statute-rag/internal/core/legaltext"

const defaultMaxExpansions = 5

// expandQuery builds the templated query variants. The cleaned text always
// comes first, duplicates are dropped case-insensitively and the list never
// exceeds maxTerms.
func expandQuery(cleaned string, maxTerms int) []string {
	if maxTerms <= 0 {
		maxTerms = defaultMaxExpansions
	}

	candidates := []string{cleaned}
	for _, number := range legaltext.SectionNumbers(cleaned) {
		candidates = append(candidates, legaltext.CanonicalSection(number))
	}
	candidates = append(candidates,
		cleaned+" law",
		cleaned+" statute",
		cleaned+" punishment",
		"federal "+cleaned,
	)

	out := legaltext.Dedupe(candidates)
	if len(out) > maxTerms {
		out = out[:maxTerms]
	}
	return out
}
