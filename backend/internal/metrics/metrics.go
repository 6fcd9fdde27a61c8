// Package metrics holds the Prometheus collectors shared by the engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cache results
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

var (
	// SnapshotCacheRequests counts snapshot lookups by result
	SnapshotCacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ark_snapshot_cache_requests_total",
		Help: "Snapshot cache lookups by result",
	}, []string{"result"}) // hit, miss or error

	// SnapshotCacheErrors counts backend failures swallowed by the cache
	SnapshotCacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ark_snapshot_cache_backend_errors_total",
		Help: "Snapshot cache backend failures normalized to a miss",
	}, []string{"op"})

	// StageFailures counts best-effort write stages that did not complete
	StageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ark_consistency_stage_failures_total",
		Help: "Post-commit stages that failed after the record was committed",
	}, []string{"stage"})

	// GraphSyncDuration tracks how long graph propagation takes, retries included
	GraphSyncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ark_graph_sync_duration_seconds",
		Help:    "Graph index propagation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	}, []string{"mode"})

	// GraphSyncQueueDepth is the number of jobs waiting for an async worker
	GraphSyncQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ark_graph_sync_queue_depth",
		Help: "Graph propagation jobs waiting for a worker",
	})

	// ComputationDuration tracks analytics runs
	ComputationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ark_computation_duration_seconds",
		Help:    "Ancestry computation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"kind"}) // sosa, consanguinity, relationship, ancestors
)

// ObserveSince records the time elapsed since start on h
func ObserveSince(h prometheus.Observer, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
