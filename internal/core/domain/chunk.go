package domain

// TextType is the closed classification of what a chunk of statute text says.
type TextType string

const (
	TextTypeDefinition TextType = "definition"
	TextTypePunishment TextType = "punishment"
	TextTypeElements   TextType = "elements"
	TextTypeException  TextType = "exception"
	TextTypeReference  TextType = "reference"
	TextTypeOther      TextType = "other"
)

// Valid reports whether t belongs to the closed set.
func (t TextType) Valid() bool {
	switch t {
	case TextTypeDefinition, TextTypePunishment, TextTypeElements,
		TextTypeException, TextTypeReference, TextTypeOther:
		return true
	}
	return false
}

type Entity struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

type ChunkMetadata struct {
	Source            string   `json:"source,omitempty"`
	SectionReferences []string `json:"section_references"`
	CrimeTypes        []string `json:"crime_types"`
	PunishmentTypes   []string `json:"punishment_types"`
	TextType          TextType `json:"text_type"`
	Keywords          []string `json:"keywords"`
	PageNum           int      `json:"page_num"`
	Entities          []Entity `json:"entities"`
}

// Chunk is an immutable unit of retrievable statute text. Chunks are created
// by the index build and replaced wholesale, never edited in place.
type Chunk struct {
	ID       string        `json:"id"`
	Text     string        `json:"text"`
	Vector   []float32     `json:"-"`
	Metadata ChunkMetadata `json:"metadata"`
}

// ScoredID is one entry of a dense or lexical ranking.
type ScoredID struct {
	ChunkID string
	Score   float64
}
