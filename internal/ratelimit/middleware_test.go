package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/digital-coe/agenthub/internal/model"
)

func TestMiddlewareLimitsByKey(t *testing.T) {
	m := NewMemoryLimiter(0.001, 1) // burst of one, effectively no refill
	defer closeLimiter(t, m)

	handler := Middleware(m, IPKeyFunc, func(*http.Request) string { return "req-1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}),
	)

	req := httptest.NewRequest(http.MethodPost, "/v1/usage/import", nil)
	req.RemoteAddr = "10.0.0.1:4567"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("first request: got %d, want 204", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: got %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on 429")
	}

	var resp model.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if resp.Error.Code != model.ErrCodeRateLimited {
		t.Errorf("error code: got %q, want %q", resp.Error.Code, model.ErrCodeRateLimited)
	}
	if resp.Meta.RequestID != "req-1" {
		t.Errorf("request id: got %q, want req-1", resp.Meta.RequestID)
	}

	// A different client IP has its own bucket.
	other := httptest.NewRequest(http.MethodPost, "/v1/usage/import", nil)
	other.RemoteAddr = "10.0.0.2:4567"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, other)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("other client: got %d, want 204", rec.Code)
	}
}

func TestMiddlewareSkipsEmptyKey(t *testing.T) {
	m := NewMemoryLimiter(0.001, 1)
	defer closeLimiter(t, m)

	handler := Middleware(m, func(*http.Request) string { return "" }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}),
	)

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("request %d: got %d, want 204", i, rec.Code)
		}
	}
}
