package usecase

import (
	"strings"

	"github.com/kirillkom/statute-rag/internal/core/domain"
	"github.com/kirillkom/statute-rag/internal/core/legaltext"
)

// intentTriggers are matched against lowercase query tokens. Every
// occurrence counts once.
var intentTriggers = map[domain.Intent][]string{
	domain.IntentPunishment: {
		"penalty", "penalties", "sentence", "sentenced", "sentencing", "punishment",
		"punished", "punishable", "years", "fine", "fined", "fines", "imprisonment",
		"imprisoned", "prison", "jail",
	},
	domain.IntentElements: {
		"element", "elements", "require", "requires", "required", "requirement",
		"prove", "proof", "must", "necessary",
	},
	domain.IntentExceptions: {
		"except", "exception", "exceptions", "unless", "exempt", "exemption",
		"exclude", "excluded", "defense",
	},
	domain.IntentReferences: {
		"cite", "citation", "citations", "section", "sections", "statute",
		"statutes", "usc", "code", "reference", "references",
	},
	domain.IntentCrimeDefinition: {
		"define", "defined", "definition", "meaning", "means", "constitutes",
		"considered", "crime", "offense",
	},
}

// intentMarkers are counted as substrings because the tokenizer splits them.
var intentMarkers = map[domain.Intent][]string{
	domain.IntentReferences: {"u.s.c.", "§"},
}

var intentTriggerSets = func() map[domain.Intent]map[string]struct{} {
	out := make(map[domain.Intent]map[string]struct{}, len(intentTriggers))
	for intent, words := range intentTriggers {
		set := make(map[string]struct{}, len(words))
		for _, w := range words {
			set[w] = struct{}{}
		}
		out[intent] = set
	}
	return out
}()

// classifyIntent scores every bucket by trigger occurrences. The highest count
// wins, ties go to the earlier intent in domain.IntentPriority and a query
// without any trigger is general.
func classifyIntent(text string) domain.Intent {
	lower := strings.ToLower(text)
	counts := make(map[domain.Intent]int, len(intentTriggerSets))
	for _, tok := range legaltext.Tokenize(lower) {
		for intent, set := range intentTriggerSets {
			if _, ok := set[tok]; ok {
				counts[intent]++
			}
		}
	}
	for intent, markers := range intentMarkers {
		for _, marker := range markers {
			counts[intent] += strings.Count(lower, marker)
		}
	}

	best := domain.IntentGeneral
	bestCount := 0
	for _, intent := range domain.IntentPriority {
		if counts[intent] > bestCount {
			best = intent
			bestCount = counts[intent]
		}
	}
	return best
}
