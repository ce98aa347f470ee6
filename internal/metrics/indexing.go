package metrics

import "github.com/prometheus/client_golang/prometheus"

// Indexing and retrieval Prometheus metrics.
var (
	IndexRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "findex",
			Name:      "index_runs_total",
			Help:      "Total indexing runs by final status",
		},
		[]string{"status"}, // "ready" / "error"
	)

	IndexRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "findex",
			Name:      "index_run_duration_seconds",
			Help:      "Wall-clock duration of a full per-company indexing run",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
	)

	FilingsIndexedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "findex",
			Name:      "filings_indexed_total",
			Help:      "Total filings processed by indexing runs",
		},
		[]string{"filing_type", "status"}, // status: "ok" / "error"
	)

	PassagesStoredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "findex",
			Name:      "passages_stored_total",
			Help:      "Total passages written to the vector index",
		},
	)

	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "findex",
			Name:      "search_requests_total",
			Help:      "Total search requests",
		},
		[]string{"status"},
	)
)

var indexMetricsRegistered bool

// RegisterIndexingMetrics registers indexing metrics. Must be called once from main.
func RegisterIndexingMetrics() {
	if indexMetricsRegistered {
		return
	}
	prometheus.MustRegister(IndexRunsTotal)
	prometheus.MustRegister(IndexRunDuration)
	prometheus.MustRegister(FilingsIndexedTotal)
	prometheus.MustRegister(PassagesStoredTotal)
	prometheus.MustRegister(SearchRequestsTotal)
	indexMetricsRegistered = true
}
