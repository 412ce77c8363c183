// Package observability exposes Prometheus metrics for the ingestion
// pipeline and the HTTP API.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every collector the application registers.
type Metrics struct {
	registry *prometheus.Registry

	ReportsReceived  *prometheus.CounterVec
	DetectionsTotal  *prometheus.CounterVec
	DuplicatesTotal  prometheus.Counter
	PipelineFailures *prometheus.CounterVec
	InferenceSeconds prometheus.Histogram
	HTTPRequests     *prometheus.CounterVec
}

// NewMetrics builds and registers all collectors on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		ReportsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roadwatch_reports_received_total",
			Help: "Reports received, by source (ai, manual, video).",
		}, []string{"source"}),
		DetectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roadwatch_detections_total",
			Help: "Detections that cleared the noise floor, by severity.",
		}, []string{"severity"}),
		DuplicatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roadwatch_duplicates_total",
			Help: "Reports merged into an existing record by proximity dedup.",
		}),
		PipelineFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roadwatch_pipeline_failures_total",
			Help: "Pipeline runs that failed, by phase.",
		}, []string{"phase"}),
		InferenceSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "roadwatch_inference_duration_seconds",
			Help:    "Model sidecar round-trip latency.",
			Buckets: prometheus.DefBuckets,
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roadwatch_http_requests_total",
			Help: "HTTP requests served, by method, path and status.",
		}, []string{"method", "path", "status"}),
	}

	registry.MustRegister(
		m.ReportsReceived,
		m.DetectionsTotal,
		m.DuplicatesTotal,
		m.PipelineFailures,
		m.InferenceSeconds,
		m.HTTPRequests,
	)
	return m
}

// Registry exposes the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
