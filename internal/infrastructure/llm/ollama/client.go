package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/statute-rag/internal/core/domain"
	"github.com/kirillkom/statute-rag/internal/infrastructure/llm/prompt"
	"github.com/kirillkom/statute-rag/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Option func(*Client)

// WithExecutor routes every call through a retry/circuit-breaker executor.
func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) { c.executor = executor }
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

func New(baseURL, genModel, embedModel string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d vectors for %d texts", len(response.Embeddings), len(texts))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) GenerateAnswer(ctx context.Context, question string, passages []domain.Passage) (string, error) {
	return g.client.generateText(ctx, prompt.LegalSystem, prompt.Answer(question, passages))
}

func (g *Generator) Model() string {
	return g.client.genModel
}

// EntityExtractor asks the generation model for query keywords and named
// entities in JSON mode.
type EntityExtractor struct {
	client *Client
}

func NewEntityExtractor(client *Client) *EntityExtractor {
	return &EntityExtractor{client: client}
}

func (x *EntityExtractor) Extract(ctx context.Context, text string) ([]string, []domain.Entity, error) {
	respText, err := x.client.generateJSON(ctx, prompt.Entities(text))
	if err != nil {
		return nil, nil, err
	}

	var result struct {
		Keywords []string        `json:"keywords"`
		Entities []domain.Entity `json:"entities"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(respText)), &result); err != nil {
		return nil, nil, fmt.Errorf("parse entities json: %w", err)
	}

	keywords := make([]string, 0, len(result.Keywords))
	for _, kw := range result.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			keywords = append(keywords, kw)
		}
	}
	entities := make([]domain.Entity, 0, len(result.Entities))
	for _, ent := range result.Entities {
		ent.Text = strings.TrimSpace(ent.Text)
		if ent.Text == "" {
			continue
		}
		ent.Type = strings.ToUpper(strings.TrimSpace(ent.Type))
		entities = append(entities, ent)
	}
	return keywords, entities, nil
}

func (c *Client) generateJSON(ctx context.Context, userPrompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": userPrompt,
		"stream": false,
		"format": "json",
	}
	return c.generate(ctx, reqBody)
}

func (c *Client) generateText(ctx context.Context, system, userPrompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"system": system,
		"prompt": userPrompt,
		"stream": false,
	}
	return c.generate(ctx, reqBody)
}

func (c *Client) generate(ctx context.Context, reqBody map[string]any) (string, error) {
	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
