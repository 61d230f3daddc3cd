package metrics

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docuchat"

var (
	registry = prometheus.NewRegistry()

	filesStoredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "files_total",
			Help:      "Files processed by the ingest pipeline, by outcome.",
		},
		[]string{"outcome"},
	)
	batchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "batches_total",
			Help:      "Submission batches, by result.",
		},
		[]string{"result"},
	)
	orphanedBlobsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "orphaned_blobs_total",
			Help:      "Blobs stored without a catalog row after a catalog failure.",
		},
	)
	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "jobs_total",
			Help:      "Processing jobs dispatched to the pipeline, by outcome.",
		},
		[]string{"outcome"},
	)
	dispatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Time spent on a single pipeline dispatch.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
	deletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delete",
			Name:      "requests_total",
			Help:      "Deletion requests forwarded to the pipeline, by result.",
		},
		[]string{"result"},
	)
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	redispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "redispatch_total",
			Help:      "Re-dispatch jobs handled by the worker, by result.",
		},
		[]string{"result"},
	)
)

func init() {
	registry.MustRegister(
		filesStoredTotal,
		batchesTotal,
		orphanedBlobsTotal,
		dispatchTotal,
		dispatchDuration,
		deletionsTotal,
		httpRequestsTotal,
		httpDuration,
		redispatchTotal,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
}

// Registry returns the registry all collectors are registered with.
func Registry() *prometheus.Registry {
	return registry
}

// IncFileOutcome counts one file reaching a terminal ingest outcome
// (stored, rejected, storage_failed).
func IncFileOutcome(outcome string) {
	filesStoredTotal.WithLabelValues(outcome).Inc()
}

// IncBatch counts one submission batch by result.
func IncBatch(result string) {
	batchesTotal.WithLabelValues(result).Inc()
}

// AddOrphanedBlobs records blobs left without catalog rows.
func AddOrphanedBlobs(n int) {
	if n <= 0 {
		return
	}
	orphanedBlobsTotal.Add(float64(n))
}

// ObserveDispatch records one dispatch outcome and its duration.
func ObserveDispatch(outcome string, d time.Duration) {
	dispatchTotal.WithLabelValues(outcome).Inc()
	dispatchDuration.Observe(d.Seconds())
}

// IncDeletion counts a forwarded deletion by result.
func IncDeletion(result string) {
	deletionsTotal.WithLabelValues(result).Inc()
}

// IncRedispatch counts a worker re-dispatch by result.
func IncRedispatch(result string) {
	redispatchTotal.WithLabelValues(result).Inc()
}

// ObserveHTTP records a completed HTTP request. Path should be the route
// template, not the raw URL, to keep cardinality bounded.
func ObserveHTTP(method, path string, status int, d time.Duration) {
	if strings.TrimSpace(path) == "" {
		path = "unmatched"
	}
	httpRequestsTotal.WithLabelValues(method, path, statusLabel(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	return gin.WrapH(h)
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
