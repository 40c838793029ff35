package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/telhawk-systems/telhawk-webhooks/common/middleware"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/handlers"
)

// NewRouter constructs a ServeMux with the webhook routes registered.
func NewRouter(h *handlers.WebhookHandler) http.Handler {
	mux := http.NewServeMux()

	// Provider webhooks
	mux.HandleFunc("POST /{provider}", h.HandleWebhook)

	// Health endpoints
	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("GET /readyz", h.Ready)

	// Prometheus metrics
	mux.Handle("GET /metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}
