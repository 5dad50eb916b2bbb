package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/statute-rag/internal/core/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker/v2"
)

const namespace = "statute"

type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	retrievalTotal    *prometheus.CounterVec
	retrievalDegraded *prometheus.CounterVec
	filterDropped     *prometheus.CounterVec
	retrievalResults  *prometheus.HistogramVec
	retrievalDuration *prometheus.HistogramVec
	answersTotal      *prometheus.CounterVec
	breakerState      *prometheus.GaugeVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	retrievalTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Total hybrid retrievals by classified intent.",
		},
		[]string{"service", "intent"},
	)
	retrievalDegraded := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "degraded_total",
			Help:      "Retrievals that ran without one of the ranking signals.",
		},
		[]string{"service", "signal"},
	)
	filterDropped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "filter_dropped_total",
			Help:      "Retrievals where the intent filter removed every candidate and was skipped.",
		},
		[]string{"service", "intent"},
	)
	retrievalResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "results",
			Help:      "Number of passages returned per retrieval.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 10, 15, 20},
		},
		[]string{"service"},
	)
	retrievalDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Hybrid retrieval duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"service", "intent"},
	)
	answersTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "answer",
			Name:      "total",
			Help:      "Total answers by generating model.",
		},
		[]string{"service", "model"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per operation (0 closed, 1 half-open, 2 open).",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		retrievalTotal,
		retrievalDegraded,
		filterDropped,
		retrievalResults,
		retrievalDuration,
		answersTotal,
		breakerState,
	)

	return &HTTPServerMetrics{
		registry:          registry,
		service:           service,
		requestTotal:      requestTotal,
		requestDuration:   requestDuration,
		requestInFlight:   requestInFlight,
		retrievalTotal:    retrievalTotal,
		retrievalDegraded: retrievalDegraded,
		filterDropped:     filterDropped,
		retrievalResults:  retrievalResults,
		retrievalDuration: retrievalDuration,
		answersTotal:      answersTotal,
		breakerState:      breakerState,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/corpus/sources/"):
		return "/v1/corpus/sources/{source_id}"
	case strings.HasPrefix(path, "/v1/interactions/"):
		return "/v1/interactions/{interaction_id}"
	default:
		return path
	}
}

// ObserveRetrieval implements ports.RetrievalObserver.
func (m *HTTPServerMetrics) ObserveRetrieval(intent domain.Intent, results int, denseDegraded, sparseDegraded, filterDropped bool, seconds float64) {
	label := string(intent)
	if label == "" {
		label = "unknown"
	}
	m.retrievalTotal.WithLabelValues(m.service, label).Inc()
	m.retrievalResults.WithLabelValues(m.service).Observe(float64(results))
	m.retrievalDuration.WithLabelValues(m.service, label).Observe(seconds)

	if denseDegraded {
		m.retrievalDegraded.WithLabelValues(m.service, "dense").Inc()
	}
	if sparseDegraded {
		m.retrievalDegraded.WithLabelValues(m.service, "sparse").Inc()
	}
	if filterDropped {
		m.filterDropped.WithLabelValues(m.service, label).Inc()
	}
}

func (m *HTTPServerMetrics) RecordAnswer(model string) {
	if model == "" {
		model = "unknown"
	}
	m.answersTotal.WithLabelValues(m.service, model).Inc()
}

// BreakerStateChanged matches resilience.StateListener.
func (m *HTTPServerMetrics) BreakerStateChanged(operation string, _, to gobreaker.State) {
	m.breakerState.WithLabelValues(m.service, operation).Set(breakerValue(to))
}

func breakerValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
