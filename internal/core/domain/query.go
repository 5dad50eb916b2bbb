package domain

type Intent string

const (
	IntentPunishment      Intent = "punishment"
	IntentCrimeDefinition Intent = "crime_definition"
	IntentElements        Intent = "elements"
	IntentExceptions      Intent = "exceptions"
	IntentReferences      Intent = "references"
	IntentGeneral         Intent = "general"
)

// IntentPriority is the tie-break order used when two intents match the
// same number of trigger terms. Earlier wins.
var IntentPriority = []Intent{
	IntentPunishment,
	IntentElements,
	IntentExceptions,
	IntentReferences,
	IntentCrimeDefinition,
	IntentGeneral,
}

// StructuredQuery is derived per incoming question and never persisted.
// ExpandedTerms is never empty and starts with CleanedText.
type StructuredQuery struct {
	RawText       string   `json:"raw_text"`
	CleanedText   string   `json:"cleaned_text"`
	Intent        Intent   `json:"intent"`
	Keywords      []string `json:"keywords"`
	Entities      []Entity `json:"entities"`
	ExpandedTerms []string `json:"expanded_terms"`
}
