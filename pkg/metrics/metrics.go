// Package metrics defines the Prometheus metric collectors used across the
// platform and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	HTTPResponseBytes    *prometheus.HistogramVec
	DocsAnalyzedTotal    *prometheus.CounterVec
	AnalysisDuration     *prometheus.HistogramVec
	LanguagesDetected    *prometheus.CounterVec
	EntitiesExtracted    *prometheus.CounterVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	StoreOpsTotal        *prometheus.CounterVec
	ExportsTotal         *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// New creates all collectors and registers them with reg. A nil reg uses
// the default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, route and status.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "route"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		HTTPResponseBytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_response_size_bytes",
				Help:    "HTTP response body size by route.",
				Buckets: prometheus.ExponentialBuckets(64, 4, 8),
			},
			[]string{"route"},
		),
		DocsAnalyzedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "documents_analyzed_total",
				Help: "Total documents analysed by source (api, upload, kafka).",
			},
			[]string{"source"},
		),
		AnalysisDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analysis_duration_seconds",
				Help:    "Time spent running the text analysis toolkit per document.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"source"},
		),
		LanguagesDetected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "languages_detected_total",
				Help: "Documents by detected language code.",
			},
			[]string{"language"},
		),
		EntitiesExtracted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entities_extracted_total",
				Help: "Entity mentions extracted by kind.",
			},
			[]string{"kind"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "analysis_cache_hits_total",
				Help: "Total number of analysis cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "analysis_cache_misses_total",
				Help: "Total number of analysis cache misses.",
			},
		),
		StoreOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analysis_store_operations_total",
				Help: "Report store operations by operation and status.",
			},
			[]string{"op", "status"},
		),
		ExportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exports_total",
				Help: "Export requests by format.",
			},
			[]string{"format"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.HTTPResponseBytes,
		m.DocsAnalyzedTotal,
		m.AnalysisDuration,
		m.LanguagesDetected,
		m.EntitiesExtracted,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.StoreOpsTotal,
		m.ExportsTotal,
		m.CircuitBreakerState,
	)

	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	} else {
		m.gatherer = prometheus.DefaultGatherer
	}
	return m
}

// Handler returns the Prometheus scrape HTTP handler for the registry the
// metrics were registered with.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
