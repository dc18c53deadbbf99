package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "martsearch"

// Cache layers and lookup results.
const (
	LayerIndex   = "index"
	LayerDataset = "dataset"

	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
)

// Aggregator Prometheus metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Total number of aggregated search requests",
		},
		[]string{"status"}, // ok / partial / index_error
	)

	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by layer and result",
		},
		[]string{"layer", "result"},
	)

	DatasetRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_requests_total",
			Help:      "Total number of data source requests per dataset",
		},
		[]string{"dataset", "status"}, // ok / error / timeout
	)

	DatasetRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dataset_request_duration_seconds",
			Help:      "Data source request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 60},
		},
		[]string{"dataset"},
	)
)

var registerOnce sync.Once

// Register registers all martsearch collectors with the default registry.
// Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			SearchRequestsTotal,
			CacheLookupsTotal,
			DatasetRequestsTotal,
			DatasetRequestDuration,
			httpRequestDuration,
			httpRequestsTotal,
			httpRequestsInFlight,
		)
	})
}

// ObserveCacheLookup counts a cache lookup for the given layer.
func ObserveCacheLookup(layer, result string) {
	CacheLookupsTotal.WithLabelValues(layer, result).Inc()
}

// ObserveDatasetRequest records one data source call.
func ObserveDatasetRequest(dataset, status string, d time.Duration) {
	DatasetRequestsTotal.WithLabelValues(dataset, status).Inc()
	DatasetRequestDuration.WithLabelValues(dataset).Observe(d.Seconds())
}

// ObserveSearch counts one aggregated search by outcome.
func ObserveSearch(status string) {
	SearchRequestsTotal.WithLabelValues(status).Inc()
}
