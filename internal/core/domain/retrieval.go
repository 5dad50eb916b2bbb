package domain

import "strings"

// FilterKind names the predicate forms the chunk store can evaluate.
type FilterKind string

const (
	FilterNone                 FilterKind = ""
	FilterTextTypeEquals       FilterKind = "text_type_equals"
	FilterKeywordsIntersect    FilterKind = "keywords_intersect"
	FilterHasSectionReferences FilterKind = "has_section_references"
)

// MetadataFilter is a declarative predicate over ChunkMetadata.
type MetadataFilter struct {
	Kind     FilterKind `json:"kind,omitempty"`
	TextType TextType   `json:"text_type,omitempty"`
	Keywords []string   `json:"keywords,omitempty"`
}

func (f MetadataFilter) IsNone() bool {
	return f.Kind == FilterNone
}

// Matches evaluates the predicate. The zero filter matches everything.
func (f MetadataFilter) Matches(meta ChunkMetadata) bool {
	switch f.Kind {
	case FilterNone:
		return true
	case FilterTextTypeEquals:
		return meta.TextType == f.TextType
	case FilterKeywordsIntersect:
		for _, want := range f.Keywords {
			for _, have := range meta.Keywords {
				if strings.EqualFold(want, have) {
					return true
				}
			}
		}
		return false
	case FilterHasSectionReferences:
		return len(meta.SectionReferences) > 0
	default:
		return false
	}
}

// RankedResult is a chunk plus its retrieval-time scoring. FusedScore is
// derived from the ranks only.
type RankedResult struct {
	ChunkID    string        `json:"chunk_id"`
	Text       string        `json:"text"`
	Metadata   ChunkMetadata `json:"metadata"`
	DenseRank  *int          `json:"dense_rank,omitempty"`
	SparseRank *int          `json:"sparse_rank,omitempty"`
	FusedScore float64       `json:"fused_score"`
}

// Passage is the shape handed to answer generation.
type Passage struct {
	ChunkID    string        `json:"chunk_id"`
	Text       string        `json:"text"`
	Metadata   ChunkMetadata `json:"metadata"`
	FusedScore float64       `json:"fused_score"`
}

func (r RankedResult) Passage() Passage {
	return Passage{
		ChunkID:    r.ChunkID,
		Text:       r.Text,
		Metadata:   r.Metadata,
		FusedScore: r.FusedScore,
	}
}

// RetrievalResult wraps a ranking with the conditions it was produced under.
type RetrievalResult struct {
	Query          StructuredQuery `json:"query"`
	Results        []RankedResult  `json:"results"`
	DenseDegraded  bool            `json:"dense_degraded"`
	SparseDegraded bool            `json:"sparse_degraded"`
	Filter         MetadataFilter  `json:"filter"`
	FilterDropped  bool            `json:"filter_dropped"`
}

// Degraded reports whether one of the signals was skipped.
func (r *RetrievalResult) Degraded() bool {
	return r.DenseDegraded || r.SparseDegraded
}

func (r *RetrievalResult) Passages() []Passage {
	out := make([]Passage, 0, len(r.Results))
	for _, res := range r.Results {
		out = append(out, res.Passage())
	}
	return out
}

type Citation struct {
	Reference string `json:"reference"`
	Title     int    `json:"title,omitempty"`
	Section   string `json:"section"`
	Kind      string `json:"kind"`
	URL       string `json:"url,omitempty"`
	PageNum   int    `json:"page_num,omitempty"`
}

// AnswerRequest is one question in a session. An empty SessionID starts a
// new session; K <= 0 uses the default passage count.
type AnswerRequest struct {
	SessionID string
	Question  string
	K         int
}

type Answer struct {
	InteractionID  string     `json:"interaction_id,omitempty"`
	SessionID      string     `json:"session_id"`
	Question       string     `json:"question"`
	Text           string     `json:"text"`
	FormattedText  string     `json:"formatted_text"`
	Model          string     `json:"model"`
	Intent         Intent     `json:"intent"`
	Passages       []Passage  `json:"passages"`
	Citations      []Citation `json:"citations"`
	DenseDegraded  bool       `json:"dense_degraded"`
	SparseDegraded bool       `json:"sparse_degraded"`
	FilterDropped  bool       `json:"filter_dropped"`
}

// CorpusStatus describes the corpus currently serving queries.
type CorpusStatus struct {
	Loaded          bool `json:"loaded"`
	Chunks          int  `json:"chunks"`
	Dimension       int  `json:"dimension"`
	LexicalTerms    int  `json:"lexical_terms"`
	DenseAvailable  bool `json:"dense_available"`
	SparseAvailable bool `json:"sparse_available"`
}
