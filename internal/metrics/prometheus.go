package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the sync service
type Metrics struct {
	// Cache metrics
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	CacheEvictionsTotal prometheus.Counter
	CacheEntriesTotal   prometheus.Gauge

	// Sync metrics
	SyncTasksTotal    *prometheus.CounterVec
	SyncItemsTotal    *prometheus.CounterVec
	SyncTaskDuration  prometheus.Histogram
	SyncErrorsTotal   prometheus.Counter

	// Upstream metrics
	UpstreamRequestsTotal   *prometheus.CounterVec
	UpstreamRequestDuration prometheus.Histogram
	TokenRefreshesTotal     prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(instance string) *Metrics {
	labels := prometheus.Labels{"instance": instance}

	return &Metrics{
		CacheHitsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "marketsync",
			Subsystem:   "cache",
			Name:        "hits_total",
			Help:        "Total number of cache hits",
			ConstLabels: labels,
		}),
		CacheMissesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "marketsync",
			Subsystem:   "cache",
			Name:        "misses_total",
			Help:        "Total number of cache misses",
			ConstLabels: labels,
		}),
		CacheEvictionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "marketsync",
			Subsystem:   "cache",
			Name:        "evictions_total",
			Help:        "Total number of cache evictions",
			ConstLabels: labels,
		}),
		CacheEntriesTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   "marketsync",
			Subsystem:   "cache",
			Name:        "entries_total",
			Help:        "Current number of entries in cache",
			ConstLabels: labels,
		}),

		SyncTasksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "marketsync",
			Subsystem:   "sync",
			Name:        "tasks_total",
			Help:        "Total number of sync tasks by strategy and outcome",
			ConstLabels: labels,
		}, []string{"strategy", "status"}),
		SyncItemsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "marketsync",
			Subsystem:   "sync",
			Name:        "items_total",
			Help:        "Total number of reconciled listings by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),
		SyncTaskDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "marketsync",
			Subsystem:   "sync",
			Name:        "task_duration_seconds",
			Help:        "Histogram of sync task durations",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3.5min
		}),
		SyncErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "marketsync",
			Subsystem:   "sync",
			Name:        "errors_total",
			Help:        "Total number of per-item sync errors",
			ConstLabels: labels,
		}),

		UpstreamRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "marketsync",
			Subsystem:   "upstream",
			Name:        "requests_total",
			Help:        "Total number of marketplace API requests by endpoint and status",
			ConstLabels: labels,
		}, []string{"endpoint", "status"}),
		UpstreamRequestDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "marketsync",
			Subsystem:   "upstream",
			Name:        "request_duration_seconds",
			Help:        "Histogram of marketplace API request durations",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		TokenRefreshesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "marketsync",
			Subsystem:   "upstream",
			Name:        "token_refreshes_total",
			Help:        "Total number of OAuth token refreshes",
			ConstLabels: labels,
		}),
	}
}
