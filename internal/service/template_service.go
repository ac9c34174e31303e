package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Desk-Guard/Deskguard/internal/domain/audit"
	"github.com/Desk-Guard/Deskguard/internal/domain/policy"
)

// TemplateService provides CRUD operations on policy templates with
// field validation, audit emission, and optional state persistence.
// Templates are never physically deleted; versions and audit entries
// reference them.
type TemplateService struct {
	templates policy.TemplateStore
	auditLog  audit.Store
	persister *StatePersister
	logger    *slog.Logger
}

// NewTemplateService creates a TemplateService. persister may be nil
// when the backing store is durable.
func NewTemplateService(
	templates policy.TemplateStore,
	auditLog audit.Store,
	persister *StatePersister,
	logger *slog.Logger,
) *TemplateService {
	return &TemplateService{
		templates: templates,
		auditLog:  auditLog,
		persister: persister,
		logger:    logger,
	}
}

// CreateTemplateInput holds the caller-supplied template fields.
type CreateTemplateInput struct {
	Domain      policy.Domain    `json:"domain"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	ScopeType   policy.ScopeType `json:"scope_type"`
	ScopeValue  string           `json:"scope_value"`
	IsActive    *bool            `json:"is_active"`
}

// UpdateTemplateInput holds the mutable template fields. Nil pointers
// leave the stored value unchanged. Domain and scope type are immutable
// after creation.
type UpdateTemplateInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	ScopeValue  *string `json:"scope_value"`
	IsActive    *bool   `json:"is_active"`
}

// validateScope checks the scope_type/scope_value pairing: a global
// template must not carry a scope value, a scoped one must.
func validateScope(scopeType policy.ScopeType, scopeValue string) []policy.FieldError {
	var errs []policy.FieldError
	if !policy.IsValidScopeType(scopeType) {
		errs = append(errs, policy.FieldError{Field: "scope_type", Reason: "must be one of global, queue, ticket_type"})
		return errs
	}
	if scopeType == policy.ScopeGlobal && scopeValue != "" {
		errs = append(errs, policy.FieldError{Field: "scope_value", Reason: "must be empty for global scope"})
	}
	if scopeType != policy.ScopeGlobal && scopeValue == "" {
		errs = append(errs, policy.FieldError{Field: "scope_value", Reason: fmt.Sprintf("required for %s scope", scopeType)})
	}
	return errs
}

// Create validates and persists a new template, emits audit `created`,
// and persists state. All field errors are collected before rejecting.
func (s *TemplateService) Create(ctx context.Context, in CreateTemplateInput, actor string) (*policy.Template, error) {
	var fields []policy.FieldError
	if !policy.IsValidDomain(in.Domain) {
		fields = append(fields, policy.FieldError{Field: "domain", Reason: "must be one of sla, chat, remote_session"})
	}
	if in.Name == "" {
		fields = append(fields, policy.FieldError{Field: "name", Reason: "is required"})
	}
	fields = append(fields, validateScope(in.ScopeType, in.ScopeValue)...)
	if len(fields) > 0 {
		return nil, policy.NewValidationError(fields...)
	}

	now := time.Now().UTC()
	t := &policy.Template{
		ID:          uuid.New().String(),
		Domain:      in.Domain,
		Name:        in.Name,
		Description: in.Description,
		ScopeType:   in.ScopeType,
		ScopeValue:  in.ScopeValue,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.IsActive != nil {
		t.IsActive = *in.IsActive
	}

	if err := s.templates.CreateTemplate(ctx, t, s.auditFn(t, audit.ActionCreated, actor)); err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}

	if err := persistState(ctx, s.persister, s.logger, "template create"); err != nil {
		return nil, err
	}

	s.logger.Info("template created",
		"template_id", t.ID, "domain", t.Domain,
		"scope_type", t.ScopeType, "scope_value", t.ScopeValue)
	return t, nil
}

// Update applies the mutable fields of an existing template, emits
// audit `updated`, and persists state. Returns *NotFoundError if the
// template does not exist.
func (s *TemplateService) Update(ctx context.Context, id string, in UpdateTemplateInput, actor string) (*policy.Template, error) {
	t, err := s.templates.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		if *in.Name == "" {
			return nil, policy.NewValidationError(policy.FieldError{Field: "name", Reason: "is required"})
		}
		t.Name = *in.Name
	}
	if in.Description != nil {
		t.Description = *in.Description
	}
	if in.ScopeValue != nil {
		if errs := validateScope(t.ScopeType, *in.ScopeValue); len(errs) > 0 {
			return nil, policy.NewValidationError(errs...)
		}
		t.ScopeValue = *in.ScopeValue
	}
	if in.IsActive != nil {
		t.IsActive = *in.IsActive
	}
	t.UpdatedAt = time.Now().UTC()

	if err := s.templates.UpdateTemplate(ctx, t, s.auditFn(t, audit.ActionUpdated, actor)); err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}

	if err := persistState(ctx, s.persister, s.logger, "template update"); err != nil {
		return nil, err
	}

	s.logger.Info("template updated", "template_id", t.ID, "is_active", t.IsActive)
	return t, nil
}

// Get returns a template by id.
func (s *TemplateService) Get(ctx context.Context, id string) (*policy.Template, error) {
	return s.templates.GetTemplate(ctx, id)
}

// List returns templates matching the filter.
func (s *TemplateService) List(ctx context.Context, filter policy.TemplateFilter) ([]policy.Template, error) {
	if filter.Domain != "" && !policy.IsValidDomain(filter.Domain) {
		return nil, policy.NewValidationError(policy.FieldError{Field: "domain", Reason: "must be one of sla, chat, remote_session"})
	}
	return s.templates.ListTemplates(ctx, filter)
}

func (s *TemplateService) auditFn(t *policy.Template, action audit.Action, actor string) policy.AuditFunc {
	return auditAppend(s.auditLog, s.logger, t.Domain, action, t.ID, "", actor)
}
