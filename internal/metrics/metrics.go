// Package metrics holds the Prometheus collectors shared by the store, the
// upload workflow and the read facade. Collectors register with the default
// registry on package init and are exposed by the /metrics route.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "librarybot"

var (
	// StoreOperations counts store calls by operation and outcome.
	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Total number of catalog store operations",
		},
		[]string{"operation", "outcome"},
	)

	StoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Catalog store operation duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"operation"},
	)

	// UploadTransitions counts workflow transitions by mode, source state and event.
	UploadTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "transitions_total",
			Help:      "Total number of upload workflow transitions",
		},
		[]string{"mode", "from", "event"},
	)

	UploadCommitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "records_total",
			Help:      "Upload records committed or rejected at commit time",
		},
		[]string{"mode", "result"},
	)

	Downloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "downloads_total",
			Help:      "Total number of successful book retrievals",
		},
		[]string{"kind"},
	)

	Searches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "searches_total",
			Help:      "Total number of searches by result",
		},
		[]string{"result"},
	)

	// CacheRequests counts memo and search cache lookups.
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Cache lookups by cache name and result",
		},
		[]string{"cache", "result"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// Outcome labels for StoreOperations.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeInvalid  = "invalid"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

// ObserveStore records one store call.
func ObserveStore(operation, outcome string, started time.Time) {
	StoreOperations.WithLabelValues(operation, outcome).Inc()
	StoreDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// SessionCounter reports how many upload sessions the session store holds.
type SessionCounter func(ctx context.Context) (int, error)

// NewActiveSessions returns a gauge that asks count at scrape time, so
// sessions that expire in the store drop out of it without any bookkeeping.
// A failed count is logged and reported as -1.
func NewActiveSessions(count SessionCounter) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "sessions_active",
			Help:      "Number of unexpired upload sessions in the session store",
		},
		func() float64 {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			n, err := count(ctx)
			if err != nil {
				slog.Warn("count upload sessions", "error", err)
				return -1
			}
			return float64(n)
		},
	)
}
