package service

import (
	"context"
	"log/slog"

	"github.com/Desk-Guard/Deskguard/internal/domain/audit"
	"github.com/Desk-Guard/Deskguard/internal/domain/policy"
)

// validActions is the closed set of queryable audit actions.
var validActions = map[audit.Action]bool{
	audit.ActionCreated:    true,
	audit.ActionUpdated:    true,
	audit.ActionPublished:  true,
	audit.ActionArchived:   true,
	audit.ActionRolledBack: true,
	audit.ActionSimulated:  true,
}

// AuditService exposes the read side of the audit log. The log itself
// is append-only; no mutation operations exist here.
type AuditService struct {
	store  audit.Store
	logger *slog.Logger
}

// NewAuditService creates an AuditService.
func NewAuditService(store audit.Store, logger *slog.Logger) *AuditService {
	return &AuditService{store: store, logger: logger}
}

// Query returns audit entries matching the filter, newest first.
// The limit defaults to 100 and is capped at 1000.
func (s *AuditService) Query(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	var fields []policy.FieldError
	if f.PolicyType != "" && !policy.IsValidDomain(f.PolicyType) {
		fields = append(fields, policy.FieldError{Field: "policy_type", Reason: "must be one of sla, chat, remote_session"})
	}
	if f.Action != "" && !validActions[f.Action] {
		fields = append(fields, policy.FieldError{Field: "action", Reason: "unknown audit action"})
	}
	if f.Limit < 0 {
		fields = append(fields, policy.FieldError{Field: "limit", Reason: "must not be negative"})
	}
	if len(fields) > 0 {
		return nil, policy.NewValidationError(fields...)
	}

	if f.Limit == 0 {
		f.Limit = audit.DefaultQueryLimit
	}
	if f.Limit > audit.MaxQueryLimit {
		f.Limit = audit.MaxQueryLimit
	}
	return s.store.Query(ctx, f)
}
