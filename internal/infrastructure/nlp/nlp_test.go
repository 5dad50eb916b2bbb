package nlp

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/statute-rag/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataExtractorPunishmentChunk(t *testing.T) {
	text := "Whoever, by force and violence, takes from a bank any money shall be fined under this title or imprisoned not more than 20 years, or both. See 18 U.S.C. § 2113."
	meta := NewMetadataExtractor().Extract(text, 7)

	assert.Equal(t, domain.TextTypePunishment, meta.TextType)
	assert.Equal(t, []string{"2113"}, meta.SectionReferences)
	assert.Contains(t, meta.PunishmentTypes, "fine")
	assert.Contains(t, meta.PunishmentTypes, "imprisonment")
	assert.Contains(t, meta.PunishmentTypes, "20 years")
	assert.Equal(t, 7, meta.PageNum)
	require.NotEmpty(t, meta.Entities)
	assert.Equal(t, domain.Entity{Text: "18 U.S.C. § 2113", Type: EntityLaw}, meta.Entities[0])
}

func TestMetadataExtractorTextTypes(t *testing.T) {
	cases := map[string]domain.TextType{
		"As used in this chapter, the term \"bank\" means any member bank.":                    domain.TextTypeDefinition,
		"The government must prove each of the elements beyond a reasonable doubt.":            domain.TextTypeElements,
		"This section does not apply to any officer acting within the scope of his duties.": domain.TextTypeException,
		"Proceedings under this title are governed by the rules referred to in chapter 201.": domain.TextTypeReference,
		"Congress finds that interstate commerce is affected.":                                 domain.TextTypeOther,
	}
	for text, want := range cases {
		got := NewMetadataExtractor().Extract(text, 1).TextType
		assert.Equal(t, want, got, text)
	}
}

func TestMetadataExtractorSurfacesConceptMarkers(t *testing.T) {
	meta := NewMetadataExtractor().Extract("The statute requires that the defendant knowingly transported the victim.", 1)
	assert.Contains(t, meta.Keywords, "requires")
	assert.Contains(t, meta.Keywords, "knowingly")
	assert.Equal(t, domain.TextTypeElements, meta.TextType)
	assert.LessOrEqual(t, len(meta.Keywords), maxChunkKeywords)
	assert.NotNil(t, meta.SectionReferences)
}

func TestMetadataExtractorCrimeTypes(t *testing.T) {
	meta := NewMetadataExtractor().Extract("Robbery, extortion and frauds involving stolen securities.", 1)
	assert.ElementsMatch(t, []string{"extortion", "fraud", "robbery"}, meta.CrimeTypes)
}

func TestHeuristicExtractorKeywordsAndEntities(t *testing.T) {
	keywords, entities, err := NewHeuristicExtractor().Extract(context.Background(),
		"Can the Federal Reserve Bank be robbed under § 2113 by John Smith?")
	require.NoError(t, err)

	assert.Equal(t, []string{"federal", "reserve", "bank", "robbed", "2113", "john", "smith"}, keywords)
	assert.Contains(t, entities, domain.Entity{Text: "18 U.S.C. § 2113", Type: EntityLaw})
	assert.Contains(t, entities, domain.Entity{Text: "Federal Reserve Bank", Type: EntityOrg})
	assert.Contains(t, entities, domain.Entity{Text: "John Smith", Type: EntityPerson})
}

type extractorStub struct {
	keywords []string
	err      error
	calls    int
}

func (s *extractorStub) Extract(context.Context, string) ([]string, []domain.Entity, error) {
	s.calls++
	return s.keywords, nil, s.err
}

func TestFallbackExtractor(t *testing.T) {
	heuristic := NewHeuristicExtractor()

	primary := &extractorStub{keywords: []string{"robbery"}}
	keywords, _, err := NewFallbackExtractor(primary, heuristic, nil).Extract(context.Background(), "bank robbery penalty")
	require.NoError(t, err)
	assert.Equal(t, []string{"robbery"}, keywords)

	failing := &extractorStub{err: errors.New("ollama down")}
	keywords, _, err = NewFallbackExtractor(failing, heuristic, nil).Extract(context.Background(), "bank robbery penalty")
	require.NoError(t, err)
	assert.Equal(t, []string{"bank", "robbery", "penalty"}, keywords)

	silent := &extractorStub{}
	keywords, _, err = NewFallbackExtractor(silent, heuristic, nil).Extract(context.Background(), "wire fraud")
	require.NoError(t, err)
	assert.Equal(t, []string{"wire", "fraud"}, keywords)
}
