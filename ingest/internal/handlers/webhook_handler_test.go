package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/telhawk-systems/telhawk-webhooks/common/logging"
	"github.com/telhawk-systems/telhawk-webhooks/common/middleware"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/inbound"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/pipeline"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/providers"
)

// Mock pipeline for testing
type mockIngester struct {
	result   pipeline.Result
	err      error
	calls    int
	provider string
	body     string
	ctxErr   error
	reqID    string
}

func (m *mockIngester) Ingest(ctx context.Context, provider string, evt *inbound.Event) (pipeline.Result, error) {
	m.calls++
	m.provider = provider
	m.body = string(evt.Body())
	m.ctxErr = ctx.Err()
	m.reqID = middleware.GetRequestID(ctx)
	return m.result, m.err
}

type mockRegistry struct {
	known map[string]bool
}

func (m *mockRegistry) Lookup(name string) (*providers.Provider, error) {
	if !m.known[name] {
		return nil, fmt.Errorf("%w: %q", providers.ErrUnknownProvider, name)
	}
	return &providers.Provider{Name: name}, nil
}

type mockLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (m *mockLimiter) Allow(ctx context.Context, key string) (bool, error) {
	m.keys = append(m.keys, key)
	return m.allow, m.err
}

func (m *mockLimiter) Close() error { return nil }

func newTestHandler(ing *mockIngester, lim *mockLimiter, checks ...Check) *WebhookHandler {
	reg := &mockRegistry{known: map[string]bool{"stripe": true, "plaid": true}}
	if lim == nil {
		return NewWebhookHandler(ing, reg, nil, 1024, logging.Discard(), checks...)
	}
	return NewWebhookHandler(ing, reg, lim, 1024, logging.Discard(), checks...)
}

func post(h *WebhookHandler, provider, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/"+provider, strings.NewReader(body))
	req.SetPathValue("provider", provider)
	rr := httptest.NewRecorder()
	h.HandleWebhook(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp["error"]
}

func TestHandleWebhook_Accepted(t *testing.T) {
	ing := &mockIngester{}
	h := newTestHandler(ing, nil)

	rr := post(h, "stripe", `{"id":"evt_1"}`)

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Errorf("Expected empty body, got %q", rr.Body.String())
	}
	if ing.calls != 1 {
		t.Fatalf("Expected 1 ingest call, got %d", ing.calls)
	}
	if ing.provider != "stripe" {
		t.Errorf("Expected provider 'stripe', got '%s'", ing.provider)
	}
	if ing.body != `{"id":"evt_1"}` {
		t.Errorf("Expected body to be passed through, got '%s'", ing.body)
	}
}

func TestHandleWebhook_ClientDisconnectDoesNotCancelIngest(t *testing.T) {
	ing := &mockIngester{}
	h := newTestHandler(ing, nil)

	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), middleware.RequestIDKey, "req-gone"))
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/stripe", strings.NewReader(`{"id":"evt_1"}`)).WithContext(ctx)
	req.SetPathValue("provider", "stripe")
	rr := httptest.NewRecorder()
	h.HandleWebhook(rr, req)

	if ing.calls != 1 {
		t.Fatalf("Expected 1 ingest call, got %d", ing.calls)
	}
	if ing.ctxErr != nil {
		t.Errorf("Expected live ingest context, got %v", ing.ctxErr)
	}
	if ing.reqID != "req-gone" {
		t.Errorf("Expected request id to carry over, got %q", ing.reqID)
	}
}

func TestHandleWebhook_Duplicate(t *testing.T) {
	ing := &mockIngester{result: pipeline.Result{Duplicate: true}}
	h := newTestHandler(ing, nil)

	rr := post(h, "stripe", `{"id":"evt_1"}`)

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200 for duplicate, got %d", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Errorf("Expected empty body, got %q", rr.Body.String())
	}
}

func TestHandleWebhook_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"verification", pipeline.ErrVerification, http.StatusUnauthorized, "unauthorized"},
		{"missing payload", pipeline.ErrMissingPayload, http.StatusBadRequest, "no payload found in request"},
		{"unknown provider", providers.ErrUnknownProvider, http.StatusBadRequest, "unknown provider"},
		{"blob write", fmt.Errorf("%w: s3 down", pipeline.ErrBlobWrite), http.StatusInternalServerError, "internal server error"},
		{"record write", fmt.Errorf("%w: %w", pipeline.ErrRecordWrite, pipeline.ErrArrivalCollision), http.StatusInternalServerError, "internal server error"},
		{"record read", fmt.Errorf("%w: timeout", pipeline.ErrRecordRead), http.StatusInternalServerError, "internal server error"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(&mockIngester{err: tt.err}, nil)

			rr := post(h, "stripe", `{"id":"evt_1"}`)

			if rr.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, rr.Code)
			}
			if got := decodeError(t, rr); got != tt.wantError {
				t.Errorf("Expected error %q, got %q", tt.wantError, got)
			}
		})
	}
}

func TestHandleWebhook_InternalDetailsNotLeaked(t *testing.T) {
	h := newTestHandler(&mockIngester{err: fmt.Errorf("%w: dial tcp 10.0.0.5:6379", pipeline.ErrRecordRead)}, nil)

	rr := post(h, "stripe", `{}`)

	if strings.Contains(rr.Body.String(), "10.0.0.5") {
		t.Errorf("Response leaked internal detail: %s", rr.Body.String())
	}
}

func TestHandleWebhook_UnknownProviderSkipsRateLimit(t *testing.T) {
	lim := &mockLimiter{allow: false}
	ing := &mockIngester{err: providers.ErrUnknownProvider}
	h := newTestHandler(ing, lim)

	rr := post(h, "acme", `{}`)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
	if len(lim.keys) != 0 {
		t.Errorf("Expected no rate limit checks, got %v", lim.keys)
	}
}

func TestHandleWebhook_RateLimited(t *testing.T) {
	lim := &mockLimiter{allow: false}
	ing := &mockIngester{}
	h := newTestHandler(ing, lim)

	rr := post(h, "plaid", `{}`)

	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d", rr.Code)
	}
	if ing.calls != 0 {
		t.Errorf("Expected no ingest calls when rate limited, got %d", ing.calls)
	}
	if len(lim.keys) != 1 || lim.keys[0] != "plaid" {
		t.Errorf("Expected rate limit key 'plaid', got %v", lim.keys)
	}
}

func TestHandleWebhook_RateLimiterErrorFailsOpen(t *testing.T) {
	lim := &mockLimiter{err: errors.New("redis down")}
	ing := &mockIngester{}
	h := newTestHandler(ing, lim)

	rr := post(h, "stripe", `{}`)

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
	if ing.calls != 1 {
		t.Errorf("Expected 1 ingest call, got %d", ing.calls)
	}
}

func TestHandleWebhook_BodyTooLarge(t *testing.T) {
	ing := &mockIngester{}
	h := newTestHandler(ing, nil)

	rr := post(h, "stripe", strings.Repeat("x", 2048))

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status 413, got %d", rr.Code)
	}
	if ing.calls != 0 {
		t.Errorf("Expected no ingest calls, got %d", ing.calls)
	}
}

func TestHandleWebhook_MethodNotAllowed(t *testing.T) {
	h := newTestHandler(&mockIngester{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/stripe", nil)
	req.SetPathValue("provider", "stripe")
	rr := httptest.NewRecorder()
	h.HandleWebhook(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", rr.Code)
	}
}

func TestHealth(t *testing.T) {
	h := newTestHandler(&mockIngester{}, nil)

	rr := httptest.NewRecorder()
	h.Health(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "healthy") {
		t.Errorf("Expected healthy status, got %s", rr.Body.String())
	}
}

func TestReady(t *testing.T) {
	ok := Check{Name: "records", Ping: func(context.Context) error { return nil }}
	bad := Check{Name: "blobs", Ping: func(context.Context) error { return errors.New("no bucket") }}

	tests := []struct {
		name       string
		checks     []Check
		wantStatus int
		wantCheck  string
	}{
		{"no checks", nil, http.StatusOK, ""},
		{"all pass", []Check{ok}, http.StatusOK, ""},
		{"one fails", []Check{ok, bad}, http.StatusServiceUnavailable, "blobs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(&mockIngester{}, nil, tt.checks...)

			rr := httptest.NewRecorder()
			h.Ready(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rr.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, rr.Code)
			}
			var resp map[string]string
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if resp["check"] != tt.wantCheck {
				t.Errorf("Expected failing check %q, got %q", tt.wantCheck, resp["check"])
			}
		})
	}
}
