package policy

import (
	"context"
	"time"
)

// AuditFunc records the audit trail for a mutation. Stores invoke it
// inside the mutation's critical section: when it returns an error the
// store must leave no trace of the mutation (roll back the transaction
// or revert the in-memory change) and return that error. A nil
// AuditFunc means the mutation carries no audit entry.
type AuditFunc func(ctx context.Context) error

// TemplateFilter narrows template listings.
type TemplateFilter struct {
	// Domain restricts results to one policy domain when non-empty.
	Domain Domain
	// ActiveOnly restricts results to templates with IsActive = true.
	ActiveOnly bool
}

// TemplateStore persists policy templates.
// Interface owned by the domain per hexagonal architecture.
// Implementations must return *NotFoundError for unknown ids and hand out
// copies so callers cannot mutate stored state.
type TemplateStore interface {
	// CreateTemplate persists a new template atomically with its audit
	// entry.
	CreateTemplate(ctx context.Context, t *Template, auditFn AuditFunc) error

	// UpdateTemplate replaces the mutable fields of an existing template
	// atomically with its audit entry.
	// Returns *NotFoundError if the template does not exist.
	UpdateTemplate(ctx context.Context, t *Template, auditFn AuditFunc) error

	// GetTemplate returns a template by id.
	GetTemplate(ctx context.Context, id string) (*Template, error)

	// ListTemplates returns templates matching the filter, ordered by
	// creation time ascending.
	ListTemplates(ctx context.Context, filter TemplateFilter) ([]Template, error)

	// FindByScope returns all templates for the exact
	// (domain, scopeType, scopeValue) tuple. Used by the scope resolver;
	// more than one active result at the same tuple is a configuration
	// conflict the resolver surfaces.
	FindByScope(ctx context.Context, domain Domain, scopeType ScopeType, scopeValue string) ([]Template, error)
}

// PublishResult reports the outcome of an atomic publish.
type PublishResult struct {
	// Published is the newly published version.
	Published *Version
	// Demoted is the previously published version that was archived,
	// or nil if the template had no published version.
	Demoted *Version
}

// VersionStore persists policy versions and owns the two critical
// sections the lifecycle invariants depend on: per-template version
// number allocation and the publish transition. Both must be serialized
// per template; cross-template operations never contend.
type VersionStore interface {
	// CreateVersion persists v as a draft, assigning the next version
	// number for v.TemplateID (max existing + 1, starting at 1). Two
	// concurrent calls for the same template must never be assigned the
	// same number. The draft and its audit entry land atomically.
	CreateVersion(ctx context.Context, v *Version, auditFn AuditFunc) error

	// GetVersion returns a version by id.
	GetVersion(ctx context.Context, id string) (*Version, error)

	// ListVersions returns all versions of a template ordered by version
	// number descending.
	ListVersions(ctx context.Context, templateID string) ([]Version, error)

	// ReplaceConfig swaps the config of a draft version atomically with
	// its audit entry.
	// Returns *StateError if the version is not a draft.
	ReplaceConfig(ctx context.Context, id string, cfg Config, auditFn AuditFunc) (*Version, error)

	// Publish atomically sets the version to published (recording actor
	// and time) and archives the template's currently published version,
	// if any. Only legal from draft. expectedPublishedID is the id of the
	// version the caller believes is currently published for the template
	// (empty for none); it is the compare-and-swap guard that makes the
	// transition safe: when concurrent publishes race for the same
	// template, exactly one call's expectation holds, the rest receive
	// *ConflictError and must retry against the new state. The audit
	// entries for the transition land atomically with it.
	Publish(ctx context.Context, id, actor string, at time.Time, expectedPublishedID string, auditFn AuditFunc) (*PublishResult, error)

	// Archive retires a draft or published version with no replacement,
	// atomically with its audit entry.
	// Returns *StateError if the version is already archived.
	Archive(ctx context.Context, id string, at time.Time, auditFn AuditFunc) (*Version, error)

	// GetPublished returns the template's currently published version,
	// or nil when the template has none.
	GetPublished(ctx context.Context, templateID string) (*Version, error)
}
