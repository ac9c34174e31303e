package admin

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Desk-Guard/Deskguard/internal/domain/audit"
	"github.com/Desk-Guard/Deskguard/internal/domain/policy"
)

// handleResolve returns the effective template and published version for
// a resolution context: ?domain=chat&queue=billing&ticket_type=refund.
func (h *APIHandler) handleResolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	domain := policy.Domain(q.Get("domain"))
	rc := policy.ResolveContext{
		Queue:      q.Get("queue"),
		TicketType: q.Get("ticket_type"),
	}

	resolution, err := h.resolverService.Resolve(r.Context(), domain, rc)
	h.recordOperation("resolve", err)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if resolution == nil {
		h.respondJSON(w, http.StatusOK, map[string]interface{}{"matched": false})
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"matched":  true,
		"template": resolution.Template,
		"version":  resolution.Version,
	})
}

// handleQueryAudit returns audit entries newest-first. Filters:
// ?policy_type=, ?template_id=, ?action=, ?since=, ?until= (RFC 3339),
// ?limit=.
func (h *APIHandler) handleQueryAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		PolicyType: policy.Domain(q.Get("policy_type")),
		TemplateID: q.Get("template_id"),
		Action:     audit.Action(q.Get("action")),
	}

	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		filter.Since = t
	}
	if until := q.Get("until"); until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "until must be RFC 3339")
			return
		}
		filter.Until = t
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		filter.Limit = n
	}

	entries, err := h.auditService.Query(r.Context(), filter)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}
