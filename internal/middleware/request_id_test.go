package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestIDGeneratedAndExposed(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/credits/balance", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if seen == "" {
		t.Fatal("expected a request id in context")
	}
	if got := w.Header().Get(RequestIDHeader); got != seen {
		t.Fatalf("expected response header %q, got %q", seen, got)
	}
}

func TestRequestIDHonorsUpstreamID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/credits/balance", nil)
	req.Header.Set(RequestIDHeader, "gw-12345")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if seen != "gw-12345" {
		t.Fatalf("expected upstream id to be kept, got %q", seen)
	}
}

func TestCORSPreflightAllowsConfiguredOrigin(t *testing.T) {
	handler := CORSHandler([]string{"https://jobdesk.test"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/credits/use", nil)
	req.Header.Set("Origin", "https://jobdesk.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://jobdesk.test" {
		t.Fatalf("expected origin allowed, got %q", got)
	}
}
