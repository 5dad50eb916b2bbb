package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kirillkom/statute-rag/internal/core/domain"
	"github.com/kirillkom/statute-rag/internal/infrastructure/resilience"
)

const upsertBatchSize = 256

// pointNamespace derives stable point ids from chunk ids.
var pointNamespace = uuid.MustParse("6f1c7f0e-4b7a-4c55-9a0e-18a1c2b3d4e5")

// Client is a dense index backed by one Qdrant collection.
type Client struct {
	baseURL    string
	collection string
	distance   string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Option func(*Client)

// WithDistance selects "Cosine" (default) or "Euclid".
func WithDistance(distance string) Option {
	return func(c *Client) {
		switch strings.ToLower(distance) {
		case "l2", "euclid":
			c.distance = "Euclid"
		default:
			c.distance = "Cosine"
		}
	}
}

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) { c.executor = executor }
}

func New(baseURL, collection string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		distance:   "Cosine",
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

// ReplaceSource deletes the points of one source and uploads its new chunk
// vectors. The collection is created on first use; points of other sources
// are kept.
func (c *Client) ReplaceSource(ctx context.Context, source string, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	dim := len(chunks[0].Vector)
	for _, ch := range chunks {
		if len(ch.Vector) != dim || dim == 0 {
			return domain.WrapError(domain.ErrEmbeddingDimension, "qdrant replace vectors",
				fmt.Errorf("chunk %s has dimension %d, expected %d", ch.ID, len(ch.Vector), dim))
		}
	}

	if err := c.ensureCollection(ctx, dim); err != nil {
		return err
	}
	byFilter := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{{"key": "source", "match": map[string]any{"value": source}}},
		},
	}
	if err := c.do(ctx, "qdrant.delete_points", http.MethodPost, c.collectionURL()+"/points/delete?wait=true", byFilter, nil); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}
	for start := 0; start < len(chunks); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		points := make([]point, 0, end-start)
		for _, ch := range chunks[start:end] {
			points = append(points, point{
				ID:     PointID(ch.ID),
				Vector: ch.Vector,
				Payload: map[string]any{
					"chunk_id":  ch.ID,
					"source":    source,
					"text_type": string(ch.Metadata.TextType),
					"page_num":  ch.Metadata.PageNum,
				},
			})
		}
		url := c.collectionURL() + "/points?wait=true"
		if err := c.do(ctx, "qdrant.upsert", http.MethodPut, url, map[string]any{"points": points}, nil); err != nil {
			return err
		}
	}
	return nil
}

// ensureCollection creates the collection when it is missing. An existing
// collection of another dimension is an error: every source must be embedded
// by the same model.
func (c *Client) ensureCollection(ctx context.Context, dim int) error {
	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := c.do(ctx, "qdrant.get_collection", http.MethodGet, c.collectionURL(), nil, &info, http.StatusNotFound); err != nil {
		return err
	}
	switch size := info.Result.Config.Params.Vectors.Size; {
	case size == dim:
		return nil
	case size != 0:
		return domain.WrapError(domain.ErrEmbeddingDimension, "qdrant replace vectors",
			fmt.Errorf("collection %s has dimension %d, chunks have %d", c.collection, size, dim))
	}

	create := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": c.distance,
		},
	}
	return c.do(ctx, "qdrant.create_collection", http.MethodPut, c.collectionURL(), create, nil)
}

// SearchDense returns chunk ids ordered by similarity. Backend outages are
// reported as an unavailable signal so retrieval can degrade.
func (c *Client) SearchDense(ctx context.Context, vector []float32, limit int) ([]domain.ScoredID, error) {
	if limit <= 0 {
		return []domain.ScoredID{}, nil
	}
	reqBody := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": []string{"chunk_id"},
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	err := c.do(ctx, "qdrant.search", http.MethodPost, c.collectionURL()+"/points/search", reqBody, &searchResp)
	if err != nil {
		var statusErr *statusError
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.As(err, &statusErr) && statusErr.isDimensionMismatch():
			return nil, domain.WrapError(domain.ErrEmbeddingDimension, "qdrant search", err)
		default:
			return nil, domain.WrapError(domain.ErrSignalUnavailable, "qdrant search", err)
		}
	}

	out := make([]domain.ScoredID, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		id := getStringPayload(r.Payload, "chunk_id")
		if id == "" {
			continue
		}
		out = append(out, domain.ScoredID{ChunkID: id, Score: r.Score})
	}
	return out, nil
}

func (c *Client) collectionURL() string {
	return fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
}

type statusError struct {
	operation string
	code      int
	status    string
	body      string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("%s status: %s", e.operation, e.status)
	}
	return fmt.Sprintf("%s status: %s: %s", e.operation, e.status, e.body)
}

func (e *statusError) isDimensionMismatch() bool {
	return e.code == http.StatusBadRequest && strings.Contains(strings.ToLower(e.body), "dimension")
}

func (c *Client) do(ctx context.Context, operation, method, url string, payload, out any, okStatuses ...int) error {
	var body []byte
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", operation, err)
		}
		body = raw
	}

	call := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create %s request: %w", operation, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%s request: %w", operation, err)
		}
		defer resp.Body.Close()

		for _, code := range okStatuses {
			if resp.StatusCode == code {
				return nil
			}
		}
		if resp.StatusCode >= 300 {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			return &statusError{operation: operation, code: resp.StatusCode, status: resp.Status, body: strings.TrimSpace(string(raw))}
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
		return nil
	}

	if c.executor == nil {
		return call(ctx)
	}
	return c.executor.Execute(ctx, operation, call, classifyQdrantError)
}

func classifyQdrantError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		retryable := statusErr.code == http.StatusTooManyRequests || statusErr.code >= 500
		return resilience.ErrorClassification{Retryable: retryable, RecordFailure: retryable}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
