/*
Package metrics exposes Prometheus instrumentation for searches, workflow
stages, sync runs and embedding calls.

All recording methods are safe on a nil *Metrics, so components can be built
without instrumentation in tests.
*/
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "toolhub"

// Metrics holds the collectors registered on one registry.
type Metrics struct {
	registry prometheus.Gatherer

	searchesTotal   *prometheus.CounterVec
	searchDuration  *prometheus.HistogramVec
	stageDuration   *prometheus.HistogramVec
	keywordFailures prometheus.Counter

	syncRuns      *prometheus.CounterVec
	syncTools     *prometheus.CounterVec
	syncDuration  prometheus.Histogram
	indexedTools  prometheus.Gauge
	indexedServer prometheus.Gauge

	embeddingCalls    *prometheus.CounterVec
	embeddingDuration *prometheus.HistogramVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New creates and registers the collectors on reg. Passing nil creates a
// private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		searchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "searches_total",
				Help:      "Total number of searches by mode and status",
			},
			[]string{"mode", "status"},
		),
		searchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_duration_seconds",
				Help:      "End-to-end search duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "workflow_stage_duration_seconds",
				Help:      "Workflow stage duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		keywordFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "keyword_search_failures_total",
				Help:      "Keyword provider failures that degraded hybrid search",
			},
		),
		syncRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_runs_total",
				Help:      "Total number of catalog sync runs by status",
			},
			[]string{"status"},
		),
		syncTools: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_tools_total",
				Help:      "Tools processed by sync, by outcome",
			},
			[]string{"outcome"},
		),
		syncDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sync_duration_seconds",
				Help:      "Catalog sync duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
			},
		),
		indexedTools: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "indexed_tools",
				Help:      "Number of records in the tool index",
			},
		),
		indexedServer: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "indexed_servers",
				Help:      "Number of records in the server index",
			},
		),
		embeddingCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_calls_total",
				Help:      "Embedding calls by pool and status",
			},
			[]string{"pool", "status"},
		),
		embeddingDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "embedding_duration_seconds",
				Help:      "Embedding call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"pool"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
	}
}

// ObserveSearch records a finished search.
func (m *Metrics) ObserveSearch(mode string, failed bool, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if failed {
		status = "error"
	}
	m.searchesTotal.WithLabelValues(mode, status).Inc()
	m.searchDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// ObserveStage records one workflow stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// KeywordFailure counts a degraded hybrid search.
func (m *Metrics) KeywordFailure() {
	if m == nil {
		return
	}
	m.keywordFailures.Inc()
}

// ObserveSync records a sync run. failedRun is set when the catalog fetch
// itself failed.
func (m *Metrics) ObserveSync(indexed, failed, skipped, removed int, failedRun bool, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if failedRun {
		status = "error"
	}
	m.syncRuns.WithLabelValues(status).Inc()
	m.syncTools.WithLabelValues("indexed").Add(float64(indexed))
	m.syncTools.WithLabelValues("failed").Add(float64(failed))
	m.syncTools.WithLabelValues("skipped").Add(float64(skipped))
	m.syncTools.WithLabelValues("removed").Add(float64(removed))
	m.syncDuration.Observe(d.Seconds())
}

// SetIndexSizes updates the index size gauges.
func (m *Metrics) SetIndexSizes(tools, servers int) {
	if m == nil {
		return
	}
	m.indexedTools.Set(float64(tools))
	m.indexedServer.Set(float64(servers))
}

// ObserveEmbedding records one embedding call on a pool.
func (m *Metrics) ObserveEmbedding(pool string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.embeddingCalls.WithLabelValues(pool, status).Inc()
	m.embeddingDuration.WithLabelValues(pool).Observe(d.Seconds())
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, d time.Duration) {
	if m == nil {
		return
	}

	status := "unknown"
	if statusCode >= 200 && statusCode < 300 {
		status = "2xx"
	} else if statusCode >= 300 && statusCode < 400 {
		status = "3xx"
	} else if statusCode >= 400 && statusCode < 500 {
		status = "4xx"
	} else if statusCode >= 500 {
		status = "5xx"
	}

	m.httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(d.Seconds())
}

// Handler returns the Prometheus metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
