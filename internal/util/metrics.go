package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CapturePassesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capture_passes_total",
		Help: "Total number of capture batch passes executed",
	})

	CaptureAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capture_attempts_total",
		Help: "Total number of gateway capture attempts",
	})

	CapturesSucceededTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "captures_succeeded_total",
		Help: "Total number of successful captures",
	})

	CapturesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "captures_failed_total",
		Help: "Total number of failed capture attempts",
	}, []string{"reason"})

	OrdersSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capture_orders_skipped_total",
		Help: "Total number of orders skipped during capture passes",
	}, []string{"reason"})

	OrdersDisputedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capture_orders_disputed_total",
		Help: "Total number of orders escalated to DISPUTED",
	})

	LockAcquireFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capture_lock_acquire_failed_total",
		Help: "Total number of failed idempotency lock acquisitions",
	})

	StuckOrdersReclaimedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capture_stuck_orders_reclaimed_total",
		Help: "Total number of orders swept back from CRON_CAPTURING",
	})

	CapturePassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "capture_pass_duration_seconds",
		Help:    "Duration of capture batch passes",
		Buckets: prometheus.DefBuckets,
	})

	GatewayCaptureLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_capture_latency_seconds",
		Help:    "Latency of gateway capture calls",
		Buckets: prometheus.DefBuckets,
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
