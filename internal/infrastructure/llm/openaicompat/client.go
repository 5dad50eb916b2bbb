// Package openaicompat talks to OpenAI-compatible embedding and chat
// endpoints (vLLM, LM Studio, llama.cpp server, OpenAI itself).
package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/statute-rag/internal/core/domain"
	"github.com/kirillkom/statute-rag/internal/infrastructure/llm/prompt"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

type Config struct {
	BaseURL        string
	APIKey         string
	ChatModel      string
	EmbeddingModel string
	Temperature    float64
	MaxTokens      int
}

func (c Config) token() string {
	if strings.TrimSpace(c.APIKey) == "" {
		// local servers accept any bearer token
		return "none"
	}
	return c.APIKey
}

type Embedder struct {
	embedder embeddings.Embedder
	logger   *slog.Logger
}

func NewEmbedder(cfg Config) (*Embedder, error) {
	if strings.TrimSpace(cfg.EmbeddingModel) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "openaicompat embedder", errors.New("embedding model is required"))
	}
	client, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(cfg.token()),
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return newEmbedderWith(embedder), nil
}

func newEmbedderWith(embedder embeddings.Embedder) *Embedder {
	return &Embedder{
		embedder: embedder,
		logger:   slog.Default().With("component", "openaicompat-embedder"),
	}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("embed_failed", "count", len(texts), "error", err)
		return nil, domain.WrapError(domain.ErrTemporary, "openaicompat embed", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("openaicompat embed: got %d vectors for %d texts", len(vectors), len(texts))
	}
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "openaicompat embed query", err)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vector, nil
}

type Generator struct {
	model       llms.Model
	name        string
	temperature float64
	maxTokens   int
}

func NewGenerator(cfg Config) (*Generator, error) {
	if strings.TrimSpace(cfg.ChatModel) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "openaicompat generator", errors.New("chat model is required"))
	}
	client, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(cfg.token()),
		openai.WithModel(cfg.ChatModel),
	)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return newGeneratorWith(client, cfg), nil
}

func newGeneratorWith(model llms.Model, cfg Config) *Generator {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	return &Generator{
		model:       model,
		name:        cfg.ChatModel,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
	}
}

func (g *Generator) GenerateAnswer(ctx context.Context, question string, passages []domain.Passage) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, prompt.LegalSystem),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt.Answer(question, passages)),
	}
	resp, err := g.model.GenerateContent(ctx, content,
		llms.WithTemperature(g.temperature),
		llms.WithMaxTokens(g.maxTokens),
	)
	if err != nil {
		return "", domain.WrapError(domain.ErrTemporary, "openaicompat generate", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New("openaicompat generate: no choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

func (g *Generator) Model() string {
	return g.name
}
