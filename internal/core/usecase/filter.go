package usecase

import "github.com/kirillkom/statute-rag/internal/core/domain"

// intentFilters maps each intent to the metadata predicate applied to the
// dense and sparse candidates. Intents without an entry are unfiltered.
var intentFilters = map[domain.Intent]domain.MetadataFilter{
	domain.IntentPunishment: {
		Kind:     domain.FilterTextTypeEquals,
		TextType: domain.TextTypePunishment,
	},
	domain.IntentCrimeDefinition: {
		Kind:     domain.FilterTextTypeEquals,
		TextType: domain.TextTypeDefinition,
	},
	domain.IntentElements: {
		Kind:     domain.FilterKeywordsIntersect,
		Keywords: []string{"elements", "requires", "prove"},
	},
	domain.IntentExceptions: {
		Kind:     domain.FilterTextTypeEquals,
		TextType: domain.TextTypeException,
	},
	domain.IntentReferences: {
		Kind: domain.FilterHasSectionReferences,
	},
}

func filterForIntent(intent domain.Intent) domain.MetadataFilter {
	f, ok := intentFilters[intent]
	if !ok {
		return domain.MetadataFilter{}
	}
	if len(f.Keywords) > 0 {
		f.Keywords = append([]string(nil), f.Keywords...)
	}
	return f
}
