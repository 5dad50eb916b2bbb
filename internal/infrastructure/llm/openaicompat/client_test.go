package openaicompat

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/statute-rag/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type embeddingsFake struct {
	vectors [][]float32
	err     error
}

func (f embeddingsFake) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return f.vectors, f.err
}

func (f embeddingsFake) EmbedQuery(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors[0], nil
}

type modelFake struct {
	messages []llms.MessageContent
	text     string
	err      error
}

func (m *modelFake) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.text}}}, nil
}

func (m *modelFake) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestEmbedderWrapsFailuresAsTemporary(t *testing.T) {
	e := newEmbedderWith(embeddingsFake{err: errors.New("connection refused")})

	_, err := e.Embed(context.Background(), []string{"bank robbery"})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrTemporary))
}

func TestEmbedderChecksVectorCount(t *testing.T) {
	e := newEmbedderWith(embeddingsFake{vectors: [][]float32{{1, 2}}})

	_, err := e.Embed(context.Background(), []string{"a", "b"})
	require.Error(t, err)

	vec, err := e.EmbedQuery(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)
}

func TestGeneratorSendsSystemAndQuestion(t *testing.T) {
	model := &modelFake{text: "  Up to 20 years under 18 U.S.C. § 2113. "}
	g := newGeneratorWith(model, Config{ChatModel: "gpt-4o-mini"})

	answer, err := g.GenerateAnswer(context.Background(), "bank robbery punishment", []domain.Passage{{
		ChunkID: "c1", Text: "imprisoned not more than twenty years",
	}})
	require.NoError(t, err)
	assert.Equal(t, "Up to 20 years under 18 U.S.C. § 2113.", answer)
	assert.Equal(t, "gpt-4o-mini", g.Model())
	require.Len(t, model.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
}

func TestGeneratorRequiresModel(t *testing.T) {
	_, err := NewGenerator(Config{BaseURL: "http://localhost:8000/v1"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
