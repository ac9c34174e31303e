package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"

	"github.com/Desk-Guard/Deskguard/internal/domain/audit"
	"github.com/Desk-Guard/Deskguard/internal/domain/policy"
)

// HealthResponse is the JSON response from the /healthz endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`            // "healthy" or "unhealthy"
	Checks  map[string]string `json:"checks"`            // Component check results
	Version string            `json:"version,omitempty"` // Optional version info
}

// HealthChecker verifies component health.
type HealthChecker struct {
	templates policy.TemplateStore
	auditLog  audit.Store
	version   string
}

// NewHealthChecker creates a HealthChecker with optional components.
// Pass nil for components that aren't available.
func NewHealthChecker(templates policy.TemplateStore, auditLog audit.Store, version string) *HealthChecker {
	return &HealthChecker{
		templates: templates,
		auditLog:  auditLog,
		version:   version,
	}
}

// Check performs health checks on all components.
func (h *HealthChecker) Check(ctx context.Context) HealthResponse {
	checks := make(map[string]string)
	healthy := true

	// A failing template store means no operation can succeed.
	if h.templates != nil {
		templates, err := h.templates.ListTemplates(ctx, policy.TemplateFilter{})
		if err != nil {
			checks["template_store"] = fmt.Sprintf("error: %v", err)
			healthy = false
		} else {
			checks["template_store"] = fmt.Sprintf("ok: %d templates", len(templates))
		}
	} else {
		checks["template_store"] = "not configured"
	}

	// A failing audit store blocks every mutating operation, so it is
	// a hard health failure, not a warning.
	if h.auditLog != nil {
		if _, err := h.auditLog.Query(ctx, audit.Filter{Limit: 1}); err != nil {
			checks["audit"] = fmt.Sprintf("error: %v", err)
			healthy = false
		} else {
			checks["audit"] = "ok"
		}
	} else {
		checks["audit"] = "not configured"
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return HealthResponse{
		Status:  status,
		Checks:  checks,
		Version: h.version,
	}
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable) // 503
		} else {
			w.WriteHeader(http.StatusOK) // 200
		}

		_ = json.NewEncoder(w).Encode(health)
	})
}
