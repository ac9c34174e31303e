package admin

import (
	"net/http"
	"time"

	"github.com/Desk-Guard/Deskguard/internal/service"
)

// versionConfigRequest is the body for draft creation and replacement.
type versionConfigRequest struct {
	Config map[string]interface{} `json:"config"`
}

func (h *APIHandler) handleListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.lifecycleService.ListVersions(r.Context(), h.pathParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"versions": versions,
		"count":    len(versions),
	})
}

func (h *APIHandler) handleCreateVersion(w http.ResponseWriter, r *http.Request) {
	var req versionConfigRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	v, err := h.lifecycleService.CreateVersion(r.Context(), h.pathParam(r, "id"), req.Config, h.actor(r))
	h.recordOperation("version_create", err)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, v)
}

// handleGetEffective returns the template's published version, or 404
// when nothing is published yet.
func (h *APIHandler) handleGetEffective(w http.ResponseWriter, r *http.Request) {
	v, err := h.lifecycleService.GetEffectiveVersion(r.Context(), h.pathParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if v == nil {
		h.respondError(w, http.StatusNotFound, "template has no published version")
		return
	}
	h.respondJSON(w, http.StatusOK, v)
}

func (h *APIHandler) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	v, err := h.lifecycleService.GetVersion(r.Context(), h.pathParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, v)
}

func (h *APIHandler) handleUpdateVersion(w http.ResponseWriter, r *http.Request) {
	var req versionConfigRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	v, err := h.lifecycleService.UpdateVersion(r.Context(), h.pathParam(r, "id"), req.Config, h.actor(r))
	h.recordOperation("version_update", err)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, v)
}

func (h *APIHandler) handlePublish(w http.ResponseWriter, r *http.Request) {
	result, err := h.lifecycleService.Publish(r.Context(), h.pathParam(r, "id"), h.actor(r))
	h.recordOperation("publish", err)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	resp := map[string]interface{}{"published": result.Published}
	if result.Demoted != nil {
		resp["demoted"] = result.Demoted
	}
	h.respondJSON(w, http.StatusOK, resp)
}

func (h *APIHandler) handleArchive(w http.ResponseWriter, r *http.Request) {
	v, err := h.lifecycleService.Archive(r.Context(), h.pathParam(r, "id"), h.actor(r))
	h.recordOperation("archive", err)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, v)
}

func (h *APIHandler) handleRollback(w http.ResponseWriter, r *http.Request) {
	result, err := h.lifecycleService.Rollback(r.Context(), h.pathParam(r, "id"), h.actor(r))
	h.recordOperation("rollback", err)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	resp := map[string]interface{}{"published": result.Published}
	if result.Demoted != nil {
		resp["demoted"] = result.Demoted
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// simulateRequest is the body for a simulation run. The version id
// comes from the path.
type simulateRequest struct {
	Limit  int    `json:"limit,omitempty"`
	Filter string `json:"filter,omitempty"`
}

func (h *APIHandler) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	// An empty body is fine: defaults apply.
	if r.ContentLength != 0 {
		if err := h.readJSON(r, &req); err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
	}

	start := time.Now()
	report, err := h.simulationService.Simulate(r.Context(), service.SimulationRequest{
		VersionID: h.pathParam(r, "id"),
		Limit:     req.Limit,
		Filter:    req.Filter,
	}, h.actor(r))
	h.recordOperation("simulate", err)
	if err == nil && h.metrics != nil {
		h.metrics.SimulationDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, report)
}
