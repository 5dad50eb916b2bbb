package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/statute-rag/internal/config"
	"github.com/kirillkom/statute-rag/internal/core/domain"
	"github.com/kirillkom/statute-rag/internal/core/ports"
	"github.com/kirillkom/statute-rag/internal/observability/metrics"
)

const (
	maxPassages      = 50
	maxUploadBytes   = 64 << 20
	backpressureWait = 50 * time.Millisecond
)

// Services are the inbound ports the router serves. Nil members disable
// their routes with 501.
type Services struct {
	Answerer ports.QuestionAnswerer
	Ingestor ports.CorpusIngestor
	Sources  ports.SourceReader
	Feedback ports.FeedbackRecorder
	History  ports.HistoryReader
	Status   ports.StatusReporter
}

type Router struct {
	cfg     config.Config
	svc     Services
	metrics *metrics.HTTPServerMetrics
	logger  *slog.Logger
}

type Option func(*Router)

func WithMetrics(m *metrics.HTTPServerMetrics) Option {
	return func(rt *Router) { rt.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(rt *Router) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

func NewRouter(cfg config.Config, svc Services, opts ...Option) *Router {
	rt := &Router{
		cfg:    cfg,
		svc:    svc,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /v1/status", rt.status)
	mux.HandleFunc("POST /v1/ask", rt.ask)
	mux.HandleFunc("POST /v1/retrieve", rt.retrieve)
	mux.HandleFunc("POST /v1/feedback", rt.feedback)
	mux.HandleFunc("GET /v1/interactions", rt.interactions)
	mux.HandleFunc("POST /v1/corpus", rt.uploadSource)
	mux.HandleFunc("GET /v1/corpus/sources/{id}", rt.getSource)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.MaxInFlight, backpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) status(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Status == nil {
		writeNotImplemented(w)
		return
	}
	writeJSON(w, http.StatusOK, rt.svc.Status.Status(r.Context()))
}

type questionRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
	K         int    `json:"k"`
}

func (rt *Router) decodeQuestion(w http.ResponseWriter, r *http.Request) (questionRequest, bool) {
	var req questionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return req, false
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return req, false
	}
	if req.K < 0 || req.K > maxPassages {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "k must be between 0 and " + strconv.Itoa(maxPassages)})
		return req, false
	}
	if req.K == 0 {
		req.K = rt.cfg.DefaultTopK
	}
	return req, true
}

func (rt *Router) ask(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Answerer == nil {
		writeNotImplemented(w)
		return
	}
	req, ok := rt.decodeQuestion(w, r)
	if !ok {
		return
	}

	answer, err := rt.svc.Answerer.Answer(r.Context(), domain.AnswerRequest{
		SessionID: req.SessionID,
		Question:  req.Question,
		K:         req.K,
	})
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordAnswer(answer.Model)
	}
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) retrieve(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Answerer == nil {
		writeNotImplemented(w)
		return
	}
	req, ok := rt.decodeQuestion(w, r)
	if !ok {
		return
	}

	result, err := rt.svc.Answerer.Search(r.Context(), req.Question, req.K)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) feedback(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Feedback == nil {
		writeNotImplemented(w)
		return
	}
	var req struct {
		InteractionID string `json:"interaction_id"`
		Rating        int    `json:"rating"`
		Comment       string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	fb, err := rt.svc.Feedback.RecordFeedback(r.Context(), req.InteractionID, req.Rating, req.Comment)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, fb)
}

func (rt *Router) interactions(w http.ResponseWriter, r *http.Request) {
	if rt.svc.History == nil {
		writeNotImplemented(w)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	items, err := rt.svc.History.ListInteractions(r.Context(), limit)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"interactions": items})
}

func (rt *Router) uploadSource(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Ingestor == nil {
		writeNotImplemented(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "source file is too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	source, err := rt.svc.Ingestor.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, source)
}

func (rt *Router) getSource(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Sources == nil {
		writeNotImplemented(w)
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "source id is required"})
		return
	}

	source, err := rt.svc.Sources.GetByID(r.Context(), id)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, source)
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		rt.logger.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err.Error(),
		)
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"kind":  errorKind(err),
	})
}

func writeNotImplemented(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "not configured"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
