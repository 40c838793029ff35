package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for WebhooksTotal.
const (
	OutcomeAccepted     = "accepted"
	OutcomeDuplicate    = "duplicate"
	OutcomeUnauthorized = "unauthorized"
	OutcomeBadRequest   = "bad_request"
	OutcomeRateLimited  = "rate_limited"
	OutcomeError        = "error"
)

var (
	// Webhook ingestion metrics
	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_webhooks_received_total",
			Help: "Total number of webhook requests by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	WebhookBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_webhooks_payload_bytes_total",
			Help: "Total bytes of webhook payload received",
		},
		[]string{"provider"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "telhawk_webhooks_request_duration_seconds",
			Help:    "Duration of webhook handling in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// Verification metrics
	VerificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_webhooks_verification_failures_total",
			Help: "Total number of webhooks that failed signature verification",
		},
		[]string{"provider"},
	)

	// Storage metrics
	StorageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "telhawk_webhooks_storage_duration_seconds",
			Help:    "Duration of storage operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	StorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_webhooks_storage_errors_total",
			Help: "Total number of storage errors",
		},
		[]string{"operation"},
	)

	CompensationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telhawk_webhooks_compensation_failures_total",
			Help: "Total number of failed compensating blob deletes",
		},
	)

	// Notification metrics
	NotifyErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telhawk_webhooks_notify_errors_total",
			Help: "Total number of failed ingestion notifications",
		},
	)

	// Rate limiting metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_webhooks_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"provider"},
	)
)
