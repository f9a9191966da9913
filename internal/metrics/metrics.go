// Package metrics provides an optional Prometheus surface for the
// restructuring engine: file/record throughput, cache churn, and lock
// contention. Disabled entirely unless Init is called.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter/gauge/histogram the engine exports.
type Metrics struct {
	FilesProcessed   *prometheus.CounterVec
	FilesSkipped     *prometheus.CounterVec
	RecordsWritten   *prometheus.CounterVec
	RecordsSkipped   *prometheus.CounterVec
	SchemaRetries    *prometheus.CounterVec
	CacheEvictions   prometheus.Counter
	CacheErrors      *prometheus.CounterVec
	LockContention   *prometheus.CounterVec
	OffsetWriteFails *prometheus.CounterVec
	TopicsInFlight   prometheus.Gauge
	FlushDuration    *prometheus.HistogramVec
}

// Config selects whether metrics are enabled and where to serve them.
type Config struct {
	Enabled bool
	Address string
}

// Init registers every metric under namespace "restructure" and returns the
// handle used to record observations.
func Init() *Metrics {
	ns := "restructure"
	return &Metrics{
		FilesProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "files_processed_total", Help: "Source files fully processed",
		}, []string{"topic"}),
		FilesSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "files_skipped_total", Help: "Source files skipped (zero-length or unparseable name)",
		}, []string{"topic", "reason"}),
		RecordsWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "records_written_total", Help: "Records written to output",
		}, []string{"topic"}),
		RecordsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "records_skipped_total", Help: "Records skipped as already-processed offsets",
		}, []string{"topic"}),
		SchemaRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "schema_retries_total", Help: "Writes retried under a suffixed path due to schema mismatch",
		}, []string{"topic"}),
		CacheEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "cache_evictions_total", Help: "File cache entries closed by ensureCapacity",
		}),
		CacheErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "cache_errors_total", Help: "File cache writes that errored",
		}, []string{"topic"}),
		LockContention: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "lock_contention_total", Help: "Topic lock acquisitions that found the lock already held",
		}, []string{"topic"}),
		OffsetWriteFails: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "offset_store_write_failures_total", Help: "Offset store durable writes that failed",
		}, []string{"topic"}),
		TopicsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "topics_in_flight", Help: "Topics currently being processed by a worker",
		}),
		FlushDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Name: "flush_duration_seconds", Help: "Time spent in a File Cache Store flush",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		}, []string{"topic"}),
	}
}

// Serve starts a blocking HTTP server exposing /metrics.
func Serve(address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(address, mux)
}
