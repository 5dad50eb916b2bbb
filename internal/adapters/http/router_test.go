package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kirillkom/statute-rag/internal/config"
	"github.com/kirillkom/statute-rag/internal/core/domain"
)

type answererFake struct {
	err         error
	lastK       int
	lastSession string
}

func (f *answererFake) Answer(_ context.Context, req domain.AnswerRequest) (*domain.Answer, error) {
	f.lastK = req.K
	f.lastSession = req.SessionID
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Answer{SessionID: req.SessionID, Question: req.Question, Text: "Bank robbery is punished under 18 U.S.C. § 2113.", Model: "llama3", Intent: domain.IntentPunishment}, nil
}

func (f *answererFake) Search(_ context.Context, _ string, k int) (*domain.RetrievalResult, error) {
	f.lastK = k
	if f.err != nil {
		return nil, f.err
	}
	return &domain.RetrievalResult{
		Results: []domain.RankedResult{{ChunkID: "title18-p1-0", Text: "§ 2113", FusedScore: 0.03}},
	}, nil
}

type ingestFake struct{}

func (ingestFake) Upload(_ context.Context, filename, mimeType string, body io.Reader) (*domain.Source, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", io.EOF)
	}
	now := time.Now().UTC()
	return &domain.Source{
		ID:          "src-1",
		Filename:    filename,
		MimeType:    mimeType,
		StoragePath: "src-1_title18.txt",
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

type sourcesFake struct{}

func (sourcesFake) GetByID(_ context.Context, id string) (*domain.Source, error) {
	if id != "src-1" {
		return nil, domain.WrapError(domain.ErrNotFound, "get source", fmt.Errorf("id=%s", id))
	}
	return &domain.Source{ID: id, Status: domain.StatusReady, ChunkCount: 12}, nil
}

type feedbackFake struct{}

func (feedbackFake) RecordFeedback(_ context.Context, interactionID string, rating int, comment string) (*domain.Feedback, error) {
	if rating < domain.MinFeedbackRating || rating > domain.MaxFeedbackRating {
		return nil, domain.WrapError(domain.ErrInvalidInput, "record feedback", errors.New("rating out of range"))
	}
	return &domain.Feedback{ID: "fb-1", InteractionID: interactionID, Rating: rating, Comment: comment}, nil
}

type historyFake struct {
	lastLimit int
}

func (f *historyFake) ListInteractions(_ context.Context, limit int) ([]domain.Interaction, error) {
	f.lastLimit = limit
	return []domain.Interaction{{ID: "int-1", Question: "q"}}, nil
}

type statusFake struct{}

func (statusFake) Status(context.Context) domain.CorpusStatus {
	return domain.CorpusStatus{Loaded: true, Chunks: 42, SparseAvailable: true}
}

func newTestRouter(answerer *answererFake, history *historyFake) http.Handler {
	return NewRouter(
		config.Config{DefaultTopK: 5},
		Services{
			Answerer: answerer,
			Ingestor: ingestFake{},
			Sources:  sourcesFake{},
			Feedback: feedbackFake{},
			History:  history,
			Status:   statusFake{},
		},
	).Handler()
}

func postJSON(t *testing.T, handler http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestHealthzEndpoint(t *testing.T) {
	handler := newTestRouter(&answererFake{}, &historyFake{})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated request id header")
	}
}

func TestStatusEndpoint(t *testing.T) {
	handler := newTestRouter(&answererFake{}, &historyFake{})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/status", nil))

	var status domain.CorpusStatus
	if err := json.NewDecoder(res.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Loaded || status.Chunks != 42 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestAskUsesDefaultK(t *testing.T) {
	answerer := &answererFake{}
	handler := newTestRouter(answerer, &historyFake{})

	res := postJSON(t, handler, "/v1/ask", map[string]any{"question": "What is the punishment for bank robbery?"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if answerer.lastK != 5 {
		t.Fatalf("expected default k 5, got %d", answerer.lastK)
	}

	var answer domain.Answer
	if err := json.NewDecoder(res.Body).Decode(&answer); err != nil {
		t.Fatalf("decode answer: %v", err)
	}
	if answer.Intent != domain.IntentPunishment {
		t.Fatalf("unexpected intent %q", answer.Intent)
	}
}

func TestAskPassesSessionID(t *testing.T) {
	answerer := &answererFake{}
	handler := newTestRouter(answerer, &historyFake{})

	res := postJSON(t, handler, "/v1/ask", map[string]any{
		"session_id": "sess-7",
		"question":   "What is the punishment for wire fraud?",
		"k":          3,
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if answerer.lastSession != "sess-7" || answerer.lastK != 3 {
		t.Fatalf("unexpected request forwarded: session=%q k=%d", answerer.lastSession, answerer.lastK)
	}

	var answer domain.Answer
	if err := json.NewDecoder(res.Body).Decode(&answer); err != nil {
		t.Fatalf("decode answer: %v", err)
	}
	if answer.SessionID != "sess-7" {
		t.Fatalf("expected session id in response, got %q", answer.SessionID)
	}
}

func TestAskRejectsInvalidRequests(t *testing.T) {
	handler := newTestRouter(&answererFake{}, &historyFake{})

	cases := []map[string]any{
		{"question": "   "},
		{"question": "bank robbery", "k": -1},
		{"question": "bank robbery", "k": maxPassages + 1},
	}
	for _, payload := range cases {
		res := postJSON(t, handler, "/v1/ask", payload)
		if res.Code != http.StatusBadRequest {
			t.Fatalf("payload %v: expected 400, got %d", payload, res.Code)
		}
	}
}

func TestRetrieveMapsDomainErrors(t *testing.T) {
	cases := []struct {
		err  error
		code int
		kind string
	}{
		{domain.WrapError(domain.ErrInvalidQuery, "understand", errors.New("empty")), http.StatusBadRequest, "invalid_query"},
		{domain.WrapError(domain.ErrEmptyIndex, "retrieve", errors.New("no chunks")), http.StatusServiceUnavailable, "empty_index"},
		{domain.WrapError(domain.ErrNoRetrievalSignal, "retrieve", errors.New("both down")), http.StatusServiceUnavailable, "no_retrieval_signal"},
		{domain.WrapError(domain.ErrEmbeddingDimension, "retrieve", errors.New("768 != 384")), http.StatusInternalServerError, "embedding_dimension"},
		{fmt.Errorf("retrieve passages: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "internal"},
	}
	for _, tc := range cases {
		handler := newTestRouter(&answererFake{err: tc.err}, &historyFake{})
		res := postJSON(t, handler, "/v1/retrieve", map[string]any{"question": "bank robbery"})
		if res.Code != tc.code {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.code, res.Code)
		}
		var body map[string]string
		if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
			t.Fatalf("decode error body: %v", err)
		}
		if body["kind"] != tc.kind {
			t.Fatalf("%v: expected kind %q, got %q", tc.err, tc.kind, body["kind"])
		}
	}
}

func TestRetrieveReturnsResults(t *testing.T) {
	handler := newTestRouter(&answererFake{}, &historyFake{})
	res := postJSON(t, handler, "/v1/retrieve", map[string]any{"question": "bank robbery", "k": 3})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var result domain.RetrievalResult
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.Results) != 1 || result.Results[0].ChunkID != "title18-p1-0" {
		t.Fatalf("unexpected results %+v", result.Results)
	}
}

func TestFeedbackEndpoint(t *testing.T) {
	handler := newTestRouter(&answererFake{}, &historyFake{})

	res := postJSON(t, handler, "/v1/feedback", map[string]any{"interaction_id": "int-1", "rating": 4})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", res.Code)
	}
	res = postJSON(t, handler, "/v1/feedback", map[string]any{"interaction_id": "int-1", "rating": 9})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-range rating, got %d", res.Code)
	}
}

func TestInteractionsLimit(t *testing.T) {
	history := &historyFake{}
	handler := newTestRouter(&answererFake{}, history)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/interactions?limit=7", nil))
	if res.Code != http.StatusOK || history.lastLimit != 7 {
		t.Fatalf("expected 200 with limit 7, got %d/%d", res.Code, history.lastLimit)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/interactions?limit=abc", nil))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed limit, got %d", res.Code)
	}
}

func TestUploadSourceSuccess(t *testing.T) {
	handler := newTestRouter(&answererFake{}, &historyFake{})

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "title18.txt")
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := part.Write([]byte("§ 2113. Bank robbery and incidental crimes")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/corpus", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.Code)
	}
	var source map[string]any
	if err := json.NewDecoder(res.Body).Decode(&source); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if source["id"] != "src-1" {
		t.Fatalf("unexpected response: %+v", source)
	}
}

func TestUploadSourceMissingMultipartField(t *testing.T) {
	handler := newTestRouter(&answererFake{}, &historyFake{})

	req := httptest.NewRequest(http.MethodPost, "/v1/corpus", bytes.NewBufferString("plain-text"))
	req.Header.Set("Content-Type", "text/plain")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestGetSourceReturns404ForNotFound(t *testing.T) {
	handler := newTestRouter(&answererFake{}, &historyFake{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/corpus/sources/missing", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/corpus/sources/src-1", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}

func TestUnconfiguredServiceReturns501(t *testing.T) {
	handler := NewRouter(config.Config{}, Services{}).Handler()
	res := postJSON(t, handler, "/v1/ask", map[string]any{"question": "bank robbery"})
	if res.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", res.Code)
	}
}
