package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total number of cache hits",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total number of cache misses",
	})

	CacheStores = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_stores_total",
		Help: "Total number of cache store operations",
	})

	CacheStorageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_storage_errors_total",
		Help: "Total number of tile store failures, by operation",
	}, []string{"operation"})

	CacheSizeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cache_size_bytes",
		Help: "Total size of cached tiles as last reported by the store",
	})

	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_evictions_total",
		Help: "Total number of tiles evicted to stay within quota",
	})

	CacheEvictedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_evicted_bytes_total",
		Help: "Total bytes freed by eviction",
	})

	UpstreamRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tiles_upstream_requests_total",
		Help: "Total number of upstream tile requests",
	})

	UpstreamFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tiles_upstream_failures_total",
		Help: "Total number of upstream tile requests that did not return a tile",
	})

	UpstreamLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tiles_upstream_latency_seconds",
		Help:    "Latency of upstream tile fetches in seconds",
		Buckets: prometheus.DefBuckets,
	})

	DownloadTiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "area_download_tiles_total",
		Help: "Tiles processed by area downloads, by outcome",
	}, []string{"outcome"})

	DownloadJobsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "area_download_jobs_running",
		Help: "Number of area download jobs currently running",
	})

	// Redis metrics
	RedisOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "redis_operation_duration_seconds",
		Help:    "Duration of Redis operations in seconds",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"operation"})

	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redis_errors_total",
		Help: "Total number of Redis errors",
	}, []string{"operation"})
)
