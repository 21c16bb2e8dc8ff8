package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label used for successful attempts; failures use their category
const OutcomeSuccess = "success"

// Metrics collects router metrics.
type Metrics interface {
	RecordAttempt(ctx context.Context, labels AttemptLabels, duration time.Duration)
	RecordModelHealth(ctx context.Context, model string, healthy bool)
	RecordSkipped(ctx context.Context, model, provider string)
	RecordGeneration(ctx context.Context, status string, duration time.Duration)
}

// AttemptLabels contains metric dimensions for one provider attempt.
type AttemptLabels struct {
	Model    string
	Provider string
	Outcome  string
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordAttempt(context.Context, AttemptLabels, time.Duration) {}
func (NopMetrics) RecordModelHealth(context.Context, string, bool) {}
func (NopMetrics) RecordSkipped(context.Context, string, string) {}
func (NopMetrics) RecordGeneration(context.Context, string, time.Duration) {}

// PrometheusMetrics implements Metrics on a dedicated Prometheus registry.
//
// Metrics:
//   - <ns>_provider_attempts_total{model,provider,outcome}
//   - <ns>_provider_attempt_duration_seconds{model,provider}
//   - <ns>_model_healthy{model} (1=healthy, 0=unhealthy)
//   - <ns>_model_skipped_total{model,provider}
//   - <ns>_generations_total{status}
//   - <ns>_generation_duration_seconds{status}
type PrometheusMetrics struct {
	registry *prometheus.Registry

	attempts           *prometheus.CounterVec
	attemptDuration    *prometheus.HistogramVec
	modelHealthy       *prometheus.GaugeVec
	skipped            *prometheus.CounterVec
	generations        *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
}

// Optimized for LLM request latencies (100ms - 60s)
var latencyBuckets = []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60}

// NewPrometheusMetrics creates and registers router metrics. If registry is
// nil a fresh one is created.
func NewPrometheusMetrics(namespace string, registry *prometheus.Registry) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if namespace == "" {
		namespace = "model_router"
	}

	m := &PrometheusMetrics{
		registry: registry,
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_attempts_total",
				Help:      "Provider call attempts by model and outcome",
			},
			[]string{"model", "provider", "outcome"},
		),
		attemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_attempt_duration_seconds",
				Help:      "Provider call latency in seconds",
				Buckets:   latencyBuckets,
			},
			[]string{"model", "provider"},
		),
		modelHealthy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "model_healthy",
				Help:      "Advisory model health (1=healthy, 0=unhealthy)",
			},
			[]string{"model"},
		),
		skipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_skipped_total",
				Help:      "Models skipped because their credential is not configured",
			},
			[]string{"model", "provider"},
		),
		generations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generations_total",
				Help:      "Generate requests by final status",
			},
			[]string{"status"},
		),
		generationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_duration_seconds",
				Help:      "End-to-end generate latency in seconds",
				Buckets:   latencyBuckets,
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		m.attempts,
		m.attemptDuration,
		m.modelHealthy,
		m.skipped,
		m.generations,
		m.generationDuration,
	)

	return m
}

// Registry returns the underlying Prometheus registry
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the registry in the Prometheus text format
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PrometheusMetrics) RecordAttempt(_ context.Context, labels AttemptLabels, duration time.Duration) {
	m.attempts.WithLabelValues(labels.Model, labels.Provider, labels.Outcome).Inc()
	m.attemptDuration.WithLabelValues(labels.Model, labels.Provider).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordModelHealth(_ context.Context, model string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1
	}
	m.modelHealthy.WithLabelValues(model).Set(value)
}

func (m *PrometheusMetrics) RecordSkipped(_ context.Context, model, provider string) {
	m.skipped.WithLabelValues(model, provider).Inc()
}

func (m *PrometheusMetrics) RecordGeneration(_ context.Context, status string, duration time.Duration) {
	m.generations.WithLabelValues(status).Inc()
	m.generationDuration.WithLabelValues(status).Observe(duration.Seconds())
}
