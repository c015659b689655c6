// Package prom implements observability.Metrics on the Prometheus client.
package prom

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samzhu/ragkit/observability"
)

const namespace = "ragkit"

var labelNames = []string{
	observability.LabelComponent,
	observability.LabelOperation,
	observability.LabelProvider,
	observability.LabelStatus,
}

// Exporter is a Prometheus-backed observability.Metrics. Each exporter owns
// its registry so tests and multiple servers never collide on registration.
type Exporter struct {
	registry *prometheus.Registry

	requests   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	tokens     *prometheus.CounterVec
	errors     *prometheus.CounterVec
	embeddings *prometheus.CounterVec
	vectors    prometheus.Gauge
}

// New creates an exporter with Go runtime and process collectors registered.
func New() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total requests by component and operation",
		}, labelNames),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request latency by component and operation",
			Buckets:   prometheus.DefBuckets,
		}, labelNames),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Tokens consumed by chat completions",
		}, labelNames),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors by type",
		}, append([]string{"type"}, labelNames...)),
		embeddings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "texts_total",
			Help:      "Texts sent to an embedder",
		}, labelNames),
		vectors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vectorstore",
			Name:      "entries",
			Help:      "Entries held by the vector store",
		}),
	}
	e.registry.MustRegister(
		e.requests, e.latency, e.tokens, e.errors, e.embeddings, e.vectors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return e
}

// Registry exposes the exporter's registry for extra collectors.
func (e *Exporter) Registry() *prometheus.Registry { return e.registry }

func values(labels map[string]string) []string {
	out := make([]string, len(labelNames))
	for i, name := range labelNames {
		out[i] = labels[name]
	}
	return out
}

func (e *Exporter) IncrementRequests(labels map[string]string) {
	e.requests.WithLabelValues(values(labels)...).Inc()
}

func (e *Exporter) RecordLatency(d time.Duration, labels map[string]string) {
	e.latency.WithLabelValues(values(labels)...).Observe(d.Seconds())
}

func (e *Exporter) IncrementTokensUsed(tokens int, labels map[string]string) {
	e.tokens.WithLabelValues(values(labels)...).Add(float64(tokens))
}

func (e *Exporter) RecordError(errorType string, labels map[string]string) {
	e.errors.WithLabelValues(append([]string{errorType}, values(labels)...)...).Inc()
}

func (e *Exporter) IncrementEmbeddings(count int, labels map[string]string) {
	e.embeddings.WithLabelValues(values(labels)...).Add(float64(count))
}

func (e *Exporter) SetVectorCount(count int) { e.vectors.Set(float64(count)) }

// Handler serves the exporter's registry in the Prometheus text format.
func Handler(e *Exporter) http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{Registry: e.registry})
}

var _ observability.Metrics = (*Exporter)(nil)
