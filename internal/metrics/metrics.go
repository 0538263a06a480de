// Package metrics holds the Prometheus collectors for the catalog service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stac",
			Name:      "search_duration_seconds",
			Help:      "End-to-end search duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"status"},
	)

	SearchResultsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "stac",
			Name:      "search_results_returned",
			Help:      "Items returned per search page",
			Buckets:   []float64{0, 1, 10, 50, 100, 250, 500, 1000},
		},
	)

	StoreOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stac",
			Name:      "store_op_duration_seconds",
			Help:      "Store operation duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"op"},
	)

	StoreOpErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stac",
			Name:      "store_op_errors_total",
			Help:      "Total store operation failures",
		},
		[]string{"op", "kind"},
	)
)

var registered bool

// Register registers the catalog collectors. Must be called once from main.
func Register() {
	if registered {
		return
	}
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(SearchResultsReturned)
	prometheus.MustRegister(StoreOpDuration)
	prometheus.MustRegister(StoreOpErrors)
	registered = true
}

// ObserveStoreOp records one store operation's duration and outcome.
func ObserveStoreOp(op string, start time.Time, kind string) {
	StoreOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if kind != "" {
		StoreOpErrors.WithLabelValues(op, kind).Inc()
	}
}
