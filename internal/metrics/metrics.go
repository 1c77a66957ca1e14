// Package metrics bundles the Prometheus collectors of the extraction pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles Prometheus collectors for the extractor. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Registry          *prometheus.Registry
	LLMRequestsTotal  *prometheus.CounterVec
	LLMDuration       prometheus.Histogram
	LLMRetriesTotal   prometheus.Counter
	LLMErrorsTotal    *prometheus.CounterVec
	PagesProcessed    *prometheus.CounterVec
	ProductsExtracted prometheus.Counter
	JobsTotal         *prometheus.CounterVec
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flyer_llm_requests_total",
			Help: "Total vision service requests by outcome status.",
		},
		[]string{"status"},
	)
	duration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flyer_llm_request_duration_seconds",
			Help:    "Vision service request latency.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 45},
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flyer_llm_retries_total",
			Help: "Total number of retry attempts scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flyer_llm_errors_total",
			Help: "Total vision service errors by type.",
		},
		[]string{"error_type"},
	)
	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flyer_pages_processed_total",
			Help: "Pages processed by outcome (products or fallback).",
		},
		[]string{"outcome"},
	)
	products := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flyer_products_extracted_total",
			Help: "Total products extracted from flyer pages.",
		},
	)
	jobs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flyer_jobs_total",
			Help: "Extraction jobs by terminal status.",
		},
		[]string{"status"},
	)

	registry.MustRegister(requests, duration, retries, errorsTotal, pages, products, jobs)

	return &Metrics{
		Registry:          registry,
		LLMRequestsTotal:  requests,
		LLMDuration:       duration,
		LLMRetriesTotal:   retries,
		LLMErrorsTotal:    errorsTotal,
		PagesProcessed:    pages,
		ProductsExtracted: products,
		JobsTotal:         jobs,
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// IncRequest increments the vision request counter.
func (m *Metrics) IncRequest(status string) {
	if m == nil {
		return
	}
	m.LLMRequestsTotal.WithLabelValues(status).Inc()
}

// ObserveDuration records a vision request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.LLMDuration.Observe(d.Seconds())
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.LLMRetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.LLMErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncPage records one processed page.
func (m *Metrics) IncPage(outcome string) {
	if m == nil {
		return
	}
	m.PagesProcessed.WithLabelValues(outcome).Inc()
}

// AddProducts adds n extracted products.
func (m *Metrics) AddProducts(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ProductsExtracted.Add(float64(n))
}

// IncJob records a job reaching a terminal status.
func (m *Metrics) IncJob(status string) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(status).Inc()
}
