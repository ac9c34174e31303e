// Package admin provides the JSON API handlers for managing Deskguard
// policy templates, versions, simulations, and the audit trail.
package admin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	deskhttp "github.com/Desk-Guard/Deskguard/internal/adapter/inbound/http"
	"github.com/Desk-Guard/Deskguard/internal/domain/auth"
	"github.com/Desk-Guard/Deskguard/internal/domain/policy"
	"github.com/Desk-Guard/Deskguard/internal/service"
)

// APIHandler provides JSON API endpoints for the policy engine.
type APIHandler struct {
	templateService   *service.TemplateService
	lifecycleService  *service.LifecycleService
	resolverService   *service.ResolverService
	simulationService *service.SimulationService
	auditService      *service.AuditService
	keyring           *auth.Keyring
	metrics           *deskhttp.Metrics
	buildInfo         *BuildInfo
	logger            *slog.Logger
	startTime         time.Time
}

// BuildInfo carries version information surfaced by the system endpoint.
type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	Date    string `json:"date,omitempty"`
}

// APIOption configures an APIHandler dependency.
type APIOption func(*APIHandler)

// WithTemplateService sets the template CRUD service.
func WithTemplateService(s *service.TemplateService) APIOption {
	return func(h *APIHandler) { h.templateService = s }
}

// WithLifecycleService sets the version lifecycle service.
func WithLifecycleService(s *service.LifecycleService) APIOption {
	return func(h *APIHandler) { h.lifecycleService = s }
}

// WithResolverService sets the scope resolution service.
func WithResolverService(s *service.ResolverService) APIOption {
	return func(h *APIHandler) { h.resolverService = s }
}

// WithSimulationService sets the simulation service.
func WithSimulationService(s *service.SimulationService) APIOption {
	return func(h *APIHandler) { h.simulationService = s }
}

// WithAuditService sets the audit query service.
func WithAuditService(s *service.AuditService) APIOption {
	return func(h *APIHandler) { h.auditService = s }
}

// WithKeyring sets the API key keyring. Without one, only localhost
// requests are accepted.
func WithKeyring(k *auth.Keyring) APIOption {
	return func(h *APIHandler) { h.keyring = k }
}

// WithMetrics sets the metrics sink for operation counters.
func WithMetrics(m *deskhttp.Metrics) APIOption {
	return func(h *APIHandler) { h.metrics = m }
}

// WithBuildInfo sets the build version information.
func WithBuildInfo(info *BuildInfo) APIOption {
	return func(h *APIHandler) { h.buildInfo = info }
}

// WithAPILogger sets the logger.
func WithAPILogger(l *slog.Logger) APIOption {
	return func(h *APIHandler) { h.logger = l }
}

// NewAPIHandler creates a new APIHandler with the given options.
func NewAPIHandler(opts ...APIOption) *APIHandler {
	h := &APIHandler{
		logger:    slog.Default(),
		startTime: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns an http.Handler with all API routes registered.
// Every /api/v1 route enforces authentication.
func (h *APIHandler) Routes() http.Handler {
	mux := http.NewServeMux()

	// System info - NOT protected (informational).
	mux.HandleFunc("GET /api/v1/system", h.handleSystemInfo)

	protectedMux := http.NewServeMux()

	// Template CRUD.
	protectedMux.HandleFunc("GET /api/v1/templates", h.handleListTemplates)
	protectedMux.HandleFunc("POST /api/v1/templates", h.handleCreateTemplate)
	protectedMux.HandleFunc("GET /api/v1/templates/{id}", h.handleGetTemplate)
	protectedMux.HandleFunc("PUT /api/v1/templates/{id}", h.handleUpdateTemplate)

	// Version lifecycle.
	protectedMux.HandleFunc("GET /api/v1/templates/{id}/versions", h.handleListVersions)
	protectedMux.HandleFunc("POST /api/v1/templates/{id}/versions", h.handleCreateVersion)
	protectedMux.HandleFunc("GET /api/v1/templates/{id}/effective", h.handleGetEffective)
	protectedMux.HandleFunc("GET /api/v1/versions/{id}", h.handleGetVersion)
	protectedMux.HandleFunc("PUT /api/v1/versions/{id}", h.handleUpdateVersion)
	protectedMux.HandleFunc("POST /api/v1/versions/{id}/publish", h.handlePublish)
	protectedMux.HandleFunc("POST /api/v1/versions/{id}/archive", h.handleArchive)
	protectedMux.HandleFunc("POST /api/v1/versions/{id}/rollback", h.handleRollback)
	protectedMux.HandleFunc("POST /api/v1/versions/{id}/simulate", h.handleSimulate)

	// Scope resolution and audit trail.
	protectedMux.HandleFunc("GET /api/v1/resolve", h.handleResolve)
	protectedMux.HandleFunc("GET /api/v1/audit", h.handleQueryAudit)

	mux.Handle("/api/v1/", h.authMiddleware(protectedMux))
	return mux
}

// --- JSON helper methods ---

// respondJSON writes a JSON response with the given status code and data.
func (h *APIHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

// respondError writes a JSON error response with the given status code and message.
func (h *APIHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps domain errors to HTTP status codes.
// Validation failures include the per-field breakdown so a client can
// show every offending field at once.
func (h *APIHandler) respondServiceError(w http.ResponseWriter, err error) {
	var ve *policy.ValidationError
	if errors.As(err, &ve) {
		h.respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":  ve.Error(),
			"fields": ve.Fields,
		})
		return
	}

	var nf *policy.NotFoundError
	if errors.As(err, &nf) {
		h.respondError(w, http.StatusNotFound, nf.Error())
		return
	}

	var se *policy.StateError
	if errors.As(err, &se) {
		h.respondError(w, http.StatusConflict, se.Error())
		return
	}

	var ce *policy.ConflictError
	if errors.As(err, &ce) {
		if h.metrics != nil {
			h.metrics.PublishConflictsTotal.Inc()
		}
		h.respondError(w, http.StatusConflict, ce.Error())
		return
	}

	var pe *policy.ProviderError
	if errors.As(err, &pe) {
		h.respondError(w, http.StatusBadGateway, pe.Error())
		return
	}

	h.logger.Error("internal error", "error", err)
	h.respondError(w, http.StatusInternalServerError, "internal error")
}

// recordOperation counts one operation outcome when metrics are wired.
func (h *APIHandler) recordOperation(operation string, err error) {
	if h.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	h.metrics.OperationsTotal.WithLabelValues(operation, status).Inc()
}

// readJSON decodes the request body into the given value.
func (h *APIHandler) readJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(v)
}

// pathParam extracts a named path parameter from the request URL.
// Uses Go 1.22+ PathValue.
func (h *APIHandler) pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// handleSystemInfo returns build and uptime information.
func (h *APIHandler) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"uptime_seconds": int(time.Since(h.startTime).Seconds()),
	}
	if h.buildInfo != nil {
		info["version"] = h.buildInfo.Version
		if h.buildInfo.Commit != "" {
			info["commit"] = h.buildInfo.Commit
		}
		if h.buildInfo.Date != "" {
			info["date"] = h.buildInfo.Date
		}
	}
	h.respondJSON(w, http.StatusOK, info)
}
