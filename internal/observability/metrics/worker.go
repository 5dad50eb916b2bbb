package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// BuildMetrics tracks index builds run by the worker and the CLI.
type BuildMetrics struct {
	registry *prometheus.Registry
	service  string

	buildTotal    *prometheus.CounterVec
	buildDuration *prometheus.HistogramVec
	buildInFlight prometheus.Gauge
	corpusChunks  prometheus.Gauge
}

func NewBuildMetrics(service string) *BuildMetrics {
	registry := prometheus.NewRegistry()

	buildTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "builds_total",
			Help:      "Total index builds by status.",
		},
		[]string{"service", "status"},
	)
	buildDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "build_duration_seconds",
			Help:      "Index build duration in seconds by status.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		},
		[]string{"service", "status"},
	)
	buildInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "index",
			Name:        "builds_in_flight",
			Help:        "Number of in-flight index builds.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	corpusChunks := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "index",
			Name:        "corpus_chunks",
			Help:        "Chunk count of the most recently built corpus.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)

	registry.MustRegister(buildTotal, buildDuration, buildInFlight, corpusChunks)

	return &BuildMetrics{
		registry:      registry,
		service:       service,
		buildTotal:    buildTotal,
		buildDuration: buildDuration,
		buildInFlight: buildInFlight,
		corpusChunks:  corpusChunks,
	}
}

func (m *BuildMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *BuildMetrics) StartBuild() {
	m.buildInFlight.Inc()
}

func (m *BuildMetrics) FinishBuild(duration time.Duration, chunks int, err error) {
	m.buildInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	} else {
		m.corpusChunks.Set(float64(chunks))
	}

	m.buildTotal.WithLabelValues(m.service, status).Inc()
	m.buildDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}
