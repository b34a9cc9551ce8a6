package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Worker metrics
var (
	// NotificationsProcessed counts upload notifications by outcome.
	NotificationsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vod",
			Name:      "notifications_processed_total",
			Help:      "Total number of upload notifications processed",
		},
		[]string{"outcome"},
	)

	// JobsLaunched counts transcoding job launches by outcome.
	JobsLaunched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vod",
			Name:      "jobs_launched_total",
			Help:      "Total number of transcoding job launches",
		},
		[]string{"outcome"},
	)

	// LedgerInserts counts ledger upserts by outcome.
	LedgerInserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vod",
			Name:      "ledger_inserts_total",
			Help:      "Total number of ledger insert attempts",
		},
		[]string{"outcome"},
	)
)

// Reconciler metrics
var (
	// ReconcileSweeps counts reconciliation sweeps.
	ReconcileSweeps = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vod",
			Name:      "reconcile_sweeps_total",
			Help:      "Total number of reconciliation sweeps",
		},
	)

	// ReconcileErrors counts per-video reconciliation failures.
	ReconcileErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vod",
			Name:      "reconcile_errors_total",
			Help:      "Total number of per-video reconciliation errors",
		},
	)

	// VideosCompleted counts videos flipped to COMPLETED.
	VideosCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vod",
			Name:      "videos_completed_total",
			Help:      "Total number of videos marked completed",
		},
	)

	// SweepDuration tracks the time taken by a full reconciliation sweep.
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "vod",
			Name:      "reconcile_sweep_duration_seconds",
			Help:      "Time taken by a reconciliation sweep",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60},
		},
	)
)

// API metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vod",
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request duration.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vod",
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// AuthFailures counts authentication failures by reason.
	AuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vod",
			Subsystem: "api",
			Name:      "auth_failures_total",
			Help:      "Total number of authentication failures",
		},
		[]string{"reason"},
	)

	// UploadsInitiated counts presigned upload URLs issued.
	UploadsInitiated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vod",
			Subsystem: "api",
			Name:      "uploads_initiated_total",
			Help:      "Total number of uploads initiated",
		},
	)
)
