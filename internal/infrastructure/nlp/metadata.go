// Package nlp provides rule-based extraction of statute metadata, keywords
// and entities. It needs no model and never fails.
package nlp

import (
	"regexp"
	"sort"
	"strings"

	"github.com/kirillkom/statute-rag/internal/core/domain"
	"github.com/kirillkom/statute-rag/internal/core/legaltext"
)

const maxChunkKeywords = 12

// stem is matched as a token prefix and reported under name.
type stem struct {
	prefix string
	name   string
}

var crimeStems = []stem{
	{"arson", "arson"}, {"assault", "assault"}, {"battery", "battery"},
	{"blackmail", "blackmail"}, {"brib", "bribery"}, {"burglar", "burglary"},
	{"conspir", "conspiracy"}, {"corrupt", "corruption"}, {"counterfeit", "counterfeiting"},
	{"drug", "drug"}, {"embezzl", "embezzlement"}, {"extort", "extortion"},
	{"forger", "forgery"}, {"forged", "forgery"}, {"fraud", "fraud"},
	{"homicid", "homicide"}, {"kidnap", "kidnapping"}, {"larcen", "larceny"},
	{"manslaughter", "manslaughter"}, {"murder", "murder"}, {"rape", "rape"},
	{"robber", "robbery"}, {"robbed", "robbery"}, {"smuggl", "smuggling"},
	{"theft", "theft"}, {"traffick", "trafficking"},
}

var punishmentStems = []stem{
	{"confine", "confinement"}, {"detention", "detention"}, {"fine", "fine"},
	{"imprison", "imprisonment"}, {"incarcerat", "incarceration"}, {"penalt", "penalty"},
	{"probation", "probation"}, {"punish", "punishment"}, {"restitution", "restitution"},
	{"sentenc", "sentence"},
}

// conceptMarkers are surfaced as chunk keywords whenever they occur, so that
// keyword predicates over metadata can find them.
var conceptMarkers = []string{
	"elements", "element", "requires", "required", "prove", "proof",
	"knowingly", "willfully", "intent", "unlawful", "prohibited", "offense",
	"violation", "guilty", "convicted",
}

var punishmentAmount = regexp.MustCompile(`(?i)\$\d+(?:,\d{3})*|\b\d+\s*(?:years?|months?|days?)\b`)

type MetadataExtractor struct{}

func NewMetadataExtractor() *MetadataExtractor {
	return &MetadataExtractor{}
}

func (e *MetadataExtractor) Extract(text string, pageNum int) domain.ChunkMetadata {
	tokens := legaltext.Tokenize(text)
	return domain.ChunkMetadata{
		SectionReferences: nonNil(legaltext.SectionNumbers(text)),
		CrimeTypes:        matchStems(tokens, crimeStems),
		PunishmentTypes:   punishmentTypes(text, tokens),
		TextType:          classifyTextType(strings.ToLower(text), tokens),
		Keywords:          chunkKeywords(text, tokens),
		PageNum:           pageNum,
		Entities:          extractEntities(text),
	}
}

func punishmentTypes(text string, tokens []string) []string {
	out := matchStems(tokens, punishmentStems)
	for _, amount := range punishmentAmount.FindAllString(text, -1) {
		out = append(out, strings.ToLower(amount))
	}
	return legaltext.Dedupe(out)
}

// classifyTextType checks the categories in a fixed order; the first hit wins.
func classifyTextType(lower string, tokens []string) domain.TextType {
	switch {
	case hasPrefix(tokens, "definition", "defined") ||
		containsAny(lower, " means ", "the term "):
		return domain.TextTypeDefinition
	case hasPrefix(tokens, "imprison", "prison", "penalt", "punish", "sentenc") ||
		hasExact(tokens, "fine", "fined", "fines"):
		return domain.TextTypePunishment
	case hasPrefix(tokens, "element", "knowingly", "willfully") ||
		containsAny(lower, "must prove", "requires that", "with intent"):
		return domain.TextTypeElements
	case hasExact(tokens, "except", "unless", "exemption", "exempt") ||
		containsAny(lower, "provided that", "shall not apply", "does not apply"):
		return domain.TextTypeException
	case containsAny(lower, "see section", "referred to in", "as defined in", "under section", "this chapter", "this title"):
		return domain.TextTypeReference
	default:
		return domain.TextTypeOther
	}
}

func chunkKeywords(text string, tokens []string) []string {
	out := make([]string, 0, maxChunkKeywords)
	present := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		present[tok] = struct{}{}
	}
	for _, marker := range conceptMarkers {
		if _, ok := present[marker]; ok {
			out = append(out, marker)
		}
	}

	freq := make(map[string]int, len(tokens))
	order := make([]string, 0, len(tokens))
	for _, term := range legaltext.Terms(text) {
		if len(term) <= 3 || isNumber(term) {
			continue
		}
		if freq[term] == 0 {
			order = append(order, term)
		}
		freq[term]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return freq[order[i]] > freq[order[j]]
	})
	out = append(out, order...)

	out = legaltext.Dedupe(out)
	if len(out) > maxChunkKeywords {
		out = out[:maxChunkKeywords]
	}
	return out
}

func matchStems(tokens []string, stems []stem) []string {
	out := make([]string, 0, 4)
	for _, st := range stems {
		if hasPrefix(tokens, st.prefix) {
			out = append(out, st.name)
		}
	}
	return legaltext.Dedupe(out)
}

func hasPrefix(tokens []string, prefixes ...string) bool {
	for _, tok := range tokens {
		for _, p := range prefixes {
			if strings.HasPrefix(tok, p) {
				return true
			}
		}
	}
	return false
}

func hasExact(tokens []string, words ...string) bool {
	for _, tok := range tokens {
		for _, w := range words {
			if tok == w {
				return true
			}
		}
	}
	return false
}

func containsAny(lower string, phrases ...string) bool {
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func isNumber(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
