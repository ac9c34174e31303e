package admin

import (
	"net/http"

	"github.com/Desk-Guard/Deskguard/internal/domain/policy"
	"github.com/Desk-Guard/Deskguard/internal/service"
)

// handleListTemplates returns templates, optionally filtered by domain
// and active flag via ?domain= and ?active_only=true.
func (h *APIHandler) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	filter := policy.TemplateFilter{
		Domain:     policy.Domain(r.URL.Query().Get("domain")),
		ActiveOnly: r.URL.Query().Get("active_only") == "true",
	}

	templates, err := h.templateService.List(r.Context(), filter)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"templates": templates,
		"count":     len(templates),
	})
}

func (h *APIHandler) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var in service.CreateTemplateInput
	if err := h.readJSON(r, &in); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	tpl, err := h.templateService.Create(r.Context(), in, h.actor(r))
	h.recordOperation("template_create", err)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, tpl)
}

func (h *APIHandler) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := h.templateService.Get(r.Context(), h.pathParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, tpl)
}

func (h *APIHandler) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateTemplateInput
	if err := h.readJSON(r, &in); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	tpl, err := h.templateService.Update(r.Context(), h.pathParam(r, "id"), in, h.actor(r))
	h.recordOperation("template_update", err)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, tpl)
}
