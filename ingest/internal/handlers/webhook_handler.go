package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/telhawk-systems/telhawk-webhooks/common/httputil"
	"github.com/telhawk-systems/telhawk-webhooks/common/logging"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/inbound"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/metrics"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/pipeline"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/providers"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/ratelimit"
)

// unknownProvider is the metrics label for requests naming no registered provider.
const unknownProvider = "unknown"

// Ingester runs an inbound event through the pipeline.
type Ingester interface {
	Ingest(ctx context.Context, provider string, evt *inbound.Event) (pipeline.Result, error)
}

// Check is a named readiness probe.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type WebhookHandler struct {
	ingester     Ingester
	registry     pipeline.Registry
	limiter      ratelimit.RateLimiter
	maxBodyBytes int64
	checks       []Check
	logger       *logging.Logger
	now          func() time.Time
}

func NewWebhookHandler(ingester Ingester, registry pipeline.Registry, limiter ratelimit.RateLimiter, maxBodyBytes int64, logger *logging.Logger, checks ...Check) *WebhookHandler {
	if limiter == nil {
		limiter = &ratelimit.NoOpRateLimiter{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		ingester:     ingester,
		registry:     registry,
		limiter:      limiter,
		maxBodyBytes: maxBodyBytes,
		checks:       checks,
		logger:       logger,
		now:          time.Now,
	}
}

// HandleWebhook serves POST /{provider}. Successful and duplicate deliveries get an
// empty 200; failures get a terse JSON error.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	arrivedAt := h.now()
	name := r.PathValue("provider")
	log := h.logger.WithContext(r.Context()).With(
		logging.Provider(name),
		logging.IP(httputil.GetClientIP(r)),
	)

	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	label := name
	if _, err := h.registry.Lookup(name); err != nil {
		label = unknownProvider
	}
	defer func() {
		metrics.RequestDuration.WithLabelValues(label).Observe(time.Since(arrivedAt).Seconds())
	}()

	if label != unknownProvider {
		allowed, err := h.limiter.Allow(r.Context(), name)
		if err != nil {
			log.Warn("rate limit check failed, allowing request", logging.Error(err))
		} else if !allowed {
			metrics.WebhooksTotal.WithLabelValues(label, metrics.OutcomeRateLimited).Inc()
			httputil.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
	}

	evt, err := inbound.FromRequest(r, h.maxBodyBytes, arrivedAt)
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues(label, metrics.OutcomeBadRequest).Inc()
		if errors.Is(err, inbound.ErrBodyTooLarge) {
			log.Warn("request body too large")
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		log.Warn("failed to read request body", logging.Error(err))
		httputil.WriteError(w, http.StatusBadRequest, "bad request")
		return
	}
	metrics.WebhookBytesTotal.WithLabelValues(label).Add(float64(evt.Len()))

	// A client hanging up must not abort storage writes midway.
	res, err := h.ingester.Ingest(context.WithoutCancel(r.Context()), name, evt)
	if err != nil {
		status, outcome, msg := statusFor(err)
		metrics.WebhooksTotal.WithLabelValues(label, outcome).Inc()
		if status >= http.StatusInternalServerError {
			log.Error("webhook ingestion failed", logging.Status(status), logging.Error(err))
		}
		httputil.WriteError(w, status, msg)
		return
	}

	if res.Duplicate {
		metrics.WebhooksTotal.WithLabelValues(label, metrics.OutcomeDuplicate).Inc()
	} else {
		metrics.WebhooksTotal.WithLabelValues(label, metrics.OutcomeAccepted).Inc()
	}
	httputil.WriteEmpty(w, http.StatusOK)
}

// statusFor maps a pipeline error to the response status, metrics outcome and body message.
func statusFor(err error) (int, string, string) {
	switch {
	case errors.Is(err, providers.ErrUnknownProvider):
		return http.StatusBadRequest, metrics.OutcomeBadRequest, "unknown provider"
	case errors.Is(err, pipeline.ErrMissingPayload):
		return http.StatusBadRequest, metrics.OutcomeBadRequest, "no payload found in request"
	case errors.Is(err, pipeline.ErrVerification):
		return http.StatusUnauthorized, metrics.OutcomeUnauthorized, "unauthorized"
	default:
		return http.StatusInternalServerError, metrics.OutcomeError, "internal server error"
	}
}

func (h *WebhookHandler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready runs every readiness check and reports 503 naming the first failure.
func (h *WebhookHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for _, c := range h.checks {
		if err := c.Ping(ctx); err != nil {
			h.logger.WarnContext(ctx, "readiness check failed", "check", c.Name, logging.Error(err))
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"check":  c.Name,
			})
			return
		}
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
