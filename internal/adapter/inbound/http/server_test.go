package http

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Desk-Guard/Deskguard/internal/adapter/outbound/memory"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	auditLog := memory.NewAuditStore()
	t.Cleanup(func() { _ = auditLog.Close() })

	reg := prometheus.NewRegistry()
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	return NewServer("127.0.0.1:0", api,
		WithHealthChecker(NewHealthChecker(memory.NewTemplateStore(), auditLog, "test")),
		WithServerMetrics(reg, NewMetrics(reg)),
		WithServerLogger(logger),
	)
}

func TestServer_Routes(t *testing.T) {
	handler := newTestServer(t).Handler()

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/healthz", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/favicon.ico", http.StatusNoContent},
		{"/api/v1/templates", http.StatusOK}, // falls through to API routes
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != tt.wantStatus {
			t.Errorf("GET %s: status = %d, want %d", tt.path, rec.Code, tt.wantStatus)
		}
	}
}

func TestServer_MetricsExposed(t *testing.T) {
	handler := newTestServer(t).Handler()

	// One API request to generate metrics.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/templates", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), "deskguard_requests_total") {
		t.Error("scrape output missing deskguard_requests_total")
	}
}

func TestServer_RequestIDPropagates(t *testing.T) {
	handler := newTestServer(t).Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/templates", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want abc-123", got)
	}
}
