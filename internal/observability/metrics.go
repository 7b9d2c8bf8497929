// Package observability provides Prometheus metrics for the ingestion pipeline and API.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultNamespace = "itbi"

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	// Fetch metrics
	PagesFetched    prometheus.Counter
	FeaturesFetched prometheus.Counter
	FetchErrors     *prometheus.CounterVec
	PageLatency     prometheus.Histogram

	// Snapshot metrics
	RefreshTotal     *prometheus.CounterVec
	RefreshDuration  prometheus.Histogram
	SnapshotRecords  prometheus.Gauge
	RowsSkipped      *prometheus.CounterVec
	LastRefreshEpoch prometheus.Gauge

	// Query metrics
	Queries *prometheus.CounterVec
}

// NewMetrics registers every metric on reg. A nil reg uses a fresh private registry.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		gatherer: reg,

		PagesFetched: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "pages_total",
			Help:      "Total number of source pages fetched",
		}),
		FeaturesFetched: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "features_total",
			Help:      "Total number of raw features received from the source",
		}),
		FetchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "errors_total",
			Help:      "Total number of aborted fetches by cause",
		}, []string{"cause"}),
		PageLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "page_duration_seconds",
			Help:      "Latency of a single page request",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),

		RefreshTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "refresh_total",
			Help:      "Total number of snapshot refreshes by status",
		}, []string{"status"}),
		RefreshDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of a full fetch and normalize pass",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		SnapshotRecords: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "records",
			Help:      "Number of canonical records in the current snapshot",
		}),
		RowsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "rows_skipped_total",
			Help:      "Raw rows dropped during normalization by reason",
		}, []string{"reason"}),
		LastRefreshEpoch: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "last_successful_refresh_timestamp",
			Help:      "Unix timestamp of the last successful refresh",
		}),

		Queries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "queries_total",
			Help:      "Total number of street queries by kind",
		}, []string{"kind"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordPage records one successfully decoded page.
func (m *Metrics) RecordPage(features int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.PagesFetched.Inc()
	m.FeaturesFetched.Add(float64(features))
	m.PageLatency.Observe(elapsed.Seconds())
}

// RecordFetchError records an aborted fetch.
func (m *Metrics) RecordFetchError(cause string) {
	if m == nil {
		return
	}
	m.FetchErrors.WithLabelValues(cause).Inc()
}

// RecordRefresh records the outcome of a refresh pass.
func (m *Metrics) RecordRefresh(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	} else {
		m.LastRefreshEpoch.SetToCurrentTime()
	}
	m.RefreshTotal.WithLabelValues(status).Inc()
	m.RefreshDuration.Observe(elapsed.Seconds())
}

// RecordSnapshot records the size of a new snapshot and the rows it dropped.
func (m *Metrics) RecordSnapshot(records, missingAddress, invalidPeriod int) {
	if m == nil {
		return
	}
	m.SnapshotRecords.Set(float64(records))
	m.RowsSkipped.WithLabelValues("missing_address").Add(float64(missingAddress))
	m.RowsSkipped.WithLabelValues("invalid_period").Add(float64(invalidPeriod))
}

// RecordQuery counts an API query of the given kind.
func (m *Metrics) RecordQuery(kind string) {
	if m == nil {
		return
	}
	m.Queries.WithLabelValues(kind).Inc()
}
