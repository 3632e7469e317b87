package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search engine Prometheus metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trialfinder",
			Name:      "search_requests_total",
			Help:      "Total number of searches by retrieval mode actually used",
		},
		[]string{"mode"},
	)

	SearchFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trialfinder",
			Name:      "search_fallbacks_total",
			Help:      "Hybrid searches that fell back to lexical retrieval",
		},
		[]string{"reason"}, // rate_limited / provider_error / empty_embedding / other
	)

	SearchCandidates = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trialfinder",
			Name:      "search_candidates",
			Help:      "Number of candidates fetched before filtering",
			Buckets:   []float64{0, 10, 50, 100, 200, 500, 1000, 5000, 20000},
		},
		[]string{"mode"},
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trialfinder",
			Name:      "search_duration_seconds",
			Help:      "Search duration in seconds, including candidate retrieval",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"mode"},
	)
)

var searchMetricsRegistered bool

// RegisterSearchMetrics registers Prometheus search metrics. Must be called once from main.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SearchFallbacksTotal)
	prometheus.MustRegister(SearchCandidates)
	prometheus.MustRegister(SearchDuration)
	searchMetricsRegistered = true
}
