package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Desk-Guard/Deskguard/internal/domain/audit"
	"github.com/Desk-Guard/Deskguard/internal/domain/policy"
	"github.com/Desk-Guard/Deskguard/internal/domain/schema"
)

// LifecycleService owns the version lifecycle: draft creation and
// mutation, the atomic publish transition, archival, and rollback.
// Every config document passes schema validation before persisting;
// a rejected document is never stored, not even as a draft.
type LifecycleService struct {
	templates policy.TemplateStore
	versions  policy.VersionStore
	auditLog  audit.Store
	persister *StatePersister
	logger    *slog.Logger
}

// NewLifecycleService creates a LifecycleService. persister may be nil
// when the backing store is durable.
func NewLifecycleService(
	templates policy.TemplateStore,
	versions policy.VersionStore,
	auditLog audit.Store,
	persister *StatePersister,
	logger *slog.Logger,
) *LifecycleService {
	return &LifecycleService{
		templates: templates,
		versions:  versions,
		auditLog:  auditLog,
		persister: persister,
		logger:    logger,
	}
}

// CreateVersion validates rawConfig against the template's domain
// schema, allocates the next version number, and persists a draft.
// Emits audit `created`.
func (s *LifecycleService) CreateVersion(ctx context.Context, templateID string, rawConfig map[string]any, actor string) (*policy.Version, error) {
	t, err := s.templates.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}

	cfg, fieldErrs := schema.Validate(t.Domain, rawConfig)
	if len(fieldErrs) > 0 {
		return nil, policy.NewValidationError(fieldErrs...)
	}

	v := &policy.Version{
		ID:         uuid.New().String(),
		TemplateID: t.ID,
		Status:     policy.StatusDraft,
		Config:     cfg,
		CreatedBy:  actor,
		CreatedAt:  time.Now().UTC(),
	}
	created := auditAppend(s.auditLog, s.logger, t.Domain, audit.ActionCreated, t.ID, v.ID, actor)
	if err := s.versions.CreateVersion(ctx, v, created); err != nil {
		return nil, fmt.Errorf("create version: %w", err)
	}

	if err := persistState(ctx, s.persister, s.logger, "version create"); err != nil {
		return nil, err
	}

	s.logger.Info("draft version created",
		"template_id", t.ID, "version_id", v.ID, "version", v.Number)
	return v, nil
}

// UpdateVersion re-validates and replaces a draft version's config.
// Only legal while the version is a draft; otherwise *StateError.
// Emits audit `updated`.
func (s *LifecycleService) UpdateVersion(ctx context.Context, versionID string, rawConfig map[string]any, actor string) (*policy.Version, error) {
	v, err := s.versions.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	t, err := s.templates.GetTemplate(ctx, v.TemplateID)
	if err != nil {
		return nil, err
	}

	cfg, fieldErrs := schema.Validate(t.Domain, rawConfig)
	if len(fieldErrs) > 0 {
		return nil, policy.NewValidationError(fieldErrs...)
	}

	updatedFn := auditAppend(s.auditLog, s.logger, t.Domain, audit.ActionUpdated, t.ID, v.ID, actor)
	updated, err := s.versions.ReplaceConfig(ctx, versionID, cfg, updatedFn)
	if err != nil {
		return nil, err
	}

	if err := persistState(ctx, s.persister, s.logger, "version update"); err != nil {
		return nil, err
	}

	s.logger.Info("draft version updated", "template_id", t.ID, "version_id", v.ID)
	return updated, nil
}

// Publish makes a draft version the single effective config for its
// template, archiving the previously published version in the same
// atomic transition. The store transition is guarded by a
// compare-and-swap on the currently published version; when concurrent
// publishes race, exactly one succeeds and the rest receive
// *ConflictError to retry against the new state. Validation is strict:
// an invalid draft cannot be published. Emits audit `published` plus
// `archived` for the demoted version.
func (s *LifecycleService) Publish(ctx context.Context, versionID, actor string) (*policy.PublishResult, error) {
	v, err := s.versions.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	t, err := s.templates.GetTemplate(ctx, v.TemplateID)
	if err != nil {
		return nil, err
	}

	if _, fieldErrs := schema.Validate(t.Domain, v.Config); len(fieldErrs) > 0 {
		return nil, policy.NewValidationError(fieldErrs...)
	}

	current, err := s.versions.GetPublished(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("read published version: %w", err)
	}
	expected := ""
	if current != nil {
		expected = current.ID
	}

	// The demoted id is the CAS expectation, so both audit entries are
	// known before the transition and land atomically with it.
	auditFn := auditAppend(s.auditLog, s.logger, t.Domain, audit.ActionPublished, t.ID, versionID, actor)
	if expected != "" {
		auditFn = chainAudits(auditFn,
			auditAppend(s.auditLog, s.logger, t.Domain, audit.ActionArchived, t.ID, expected, actor))
	}
	res, err := s.versions.Publish(ctx, versionID, actor, time.Now().UTC(), expected, auditFn)
	if err != nil {
		return nil, err
	}

	if err := persistState(ctx, s.persister, s.logger, "publish"); err != nil {
		return nil, err
	}

	s.logger.Info("version published",
		"template_id", t.ID, "version_id", res.Published.ID,
		"version", res.Published.Number, "demoted", res.Demoted != nil)
	return res, nil
}

// Archive retires a draft or published version with no replacement.
// The template may end up with zero published versions. Emits audit
// `archived`.
func (s *LifecycleService) Archive(ctx context.Context, versionID, actor string) (*policy.Version, error) {
	v, err := s.versions.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	t, err := s.templates.GetTemplate(ctx, v.TemplateID)
	if err != nil {
		return nil, err
	}

	archivedFn := auditAppend(s.auditLog, s.logger, t.Domain, audit.ActionArchived, t.ID, v.ID, actor)
	archived, err := s.versions.Archive(ctx, versionID, time.Now().UTC(), archivedFn)
	if err != nil {
		return nil, err
	}

	if err := persistState(ctx, s.persister, s.logger, "archive"); err != nil {
		return nil, err
	}

	s.logger.Info("version archived", "template_id", t.ID, "version_id", v.ID)
	return archived, nil
}

// Rollback re-publishes the config of an archived or published version
// as a newly allocated version. The source config is cloned into a
// fresh draft which is immediately published through the same atomic
// transition as Publish. Version numbers stay strictly increasing: the
// rollback gets a new number, history is never rewritten. Emits audit
// `created` for the fresh draft, `rolled_back` once it is published,
// and `archived` for the demoted version.
func (s *LifecycleService) Rollback(ctx context.Context, versionID, actor string) (*policy.PublishResult, error) {
	source, err := s.versions.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if source.Status == policy.StatusDraft {
		return nil, &policy.StateError{Op: "roll back to", Status: source.Status}
	}
	t, err := s.templates.GetTemplate(ctx, source.TemplateID)
	if err != nil {
		return nil, err
	}

	// The source config was validated when it was stored, but the rule
	// tables may have tightened since.
	if _, fieldErrs := schema.Validate(t.Domain, source.Config); len(fieldErrs) > 0 {
		return nil, policy.NewValidationError(fieldErrs...)
	}

	v := &policy.Version{
		ID:         uuid.New().String(),
		TemplateID: t.ID,
		Status:     policy.StatusDraft,
		Config:     policy.CloneConfig(source.Config),
		CreatedBy:  actor,
		CreatedAt:  time.Now().UTC(),
	}
	// The fresh draft carries a `created` entry of its own: if the
	// publish below loses a race, the draft that remains is audited.
	created := auditAppend(s.auditLog, s.logger, t.Domain, audit.ActionCreated, t.ID, v.ID, actor)
	if err := s.versions.CreateVersion(ctx, v, created); err != nil {
		return nil, fmt.Errorf("create rollback version: %w", err)
	}

	current, err := s.versions.GetPublished(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("read published version: %w", err)
	}
	expected := ""
	if current != nil {
		expected = current.ID
	}

	auditFn := auditAppend(s.auditLog, s.logger, t.Domain, audit.ActionRolledBack, t.ID, v.ID, actor)
	if expected != "" {
		auditFn = chainAudits(auditFn,
			auditAppend(s.auditLog, s.logger, t.Domain, audit.ActionArchived, t.ID, expected, actor))
	}
	res, err := s.versions.Publish(ctx, v.ID, actor, time.Now().UTC(), expected, auditFn)
	if err != nil {
		return nil, err
	}

	if err := persistState(ctx, s.persister, s.logger, "rollback"); err != nil {
		return nil, err
	}

	s.logger.Info("version rolled back",
		"template_id", t.ID, "source_version_id", source.ID,
		"new_version_id", res.Published.ID, "version", res.Published.Number)
	return res, nil
}

// GetEffectiveVersion returns the template's currently published
// version, or nil when the template has none.
func (s *LifecycleService) GetEffectiveVersion(ctx context.Context, templateID string) (*policy.Version, error) {
	if _, err := s.templates.GetTemplate(ctx, templateID); err != nil {
		return nil, err
	}
	return s.versions.GetPublished(ctx, templateID)
}

// GetVersion returns a version by id.
func (s *LifecycleService) GetVersion(ctx context.Context, versionID string) (*policy.Version, error) {
	return s.versions.GetVersion(ctx, versionID)
}

// ListVersions returns all versions of a template, newest number first.
func (s *LifecycleService) ListVersions(ctx context.Context, templateID string) ([]policy.Version, error) {
	if _, err := s.templates.GetTemplate(ctx, templateID); err != nil {
		return nil, err
	}
	return s.versions.ListVersions(ctx, templateID)
}
