// Package policy contains domain types for scoped policy templates and
// their version lifecycle.
package policy

import "time"

// Domain identifies which policy family a template configures.
type Domain string

const (
	// DomainSLA covers response/resolution time targets for tickets.
	DomainSLA Domain = "sla"
	// DomainChat covers chat message and moderation rules.
	DomainChat Domain = "chat"
	// DomainRemoteSession covers remote-session limits and consent rules.
	DomainRemoteSession Domain = "remote_session"
)

// Domains lists all known policy domains.
var Domains = []Domain{DomainSLA, DomainChat, DomainRemoteSession}

// IsValidDomain returns true if d is a known policy domain.
func IsValidDomain(d Domain) bool {
	switch d {
	case DomainSLA, DomainChat, DomainRemoteSession:
		return true
	}
	return false
}

// ScopeType identifies the context dimension a template applies to.
type ScopeType string

const (
	// ScopeGlobal applies to every context in the domain.
	ScopeGlobal ScopeType = "global"
	// ScopeQueue applies to a single queue.
	ScopeQueue ScopeType = "queue"
	// ScopeTicketType applies to a single ticket type.
	ScopeTicketType ScopeType = "ticket_type"
)

// IsValidScopeType returns true if s is a known scope type.
func IsValidScopeType(s ScopeType) bool {
	switch s {
	case ScopeGlobal, ScopeQueue, ScopeTicketType:
		return true
	}
	return false
}

// Status is the lifecycle state of a policy version.
type Status string

const (
	// StatusDraft versions are freely mutable and not yet effective.
	StatusDraft Status = "draft"
	// StatusPublished versions are the single effective config for a template.
	StatusPublished Status = "published"
	// StatusArchived is terminal; archived versions are immutable.
	StatusArchived Status = "archived"
)

// Config is a normalized, domain-typed configuration document.
// Produced by the schema validator; keys and value types match the
// per-domain field rules.
type Config map[string]any

// Template is a named, scoped container for a policy's evolving configuration.
// Templates are never physically deleted: versions and audit entries reference them.
type Template struct {
	// ID is the opaque, immutable identifier.
	ID string `json:"id"`
	// Domain is the policy family this template configures.
	Domain Domain `json:"domain"`
	// Name is a human-readable name.
	Name string `json:"name"`
	// Description provides additional operator context.
	Description string `json:"description"`
	// ScopeType selects the context dimension this template applies to.
	ScopeType ScopeType `json:"scope_type"`
	// ScopeValue is the queue or ticket type the template is scoped to.
	// Required and non-empty unless ScopeType is global, in which case it
	// must be empty.
	ScopeValue string `json:"scope_value,omitempty"`
	// IsActive soft-enables the template, independent of version status.
	IsActive bool `json:"is_active"`
	// CreatedAt is when the template was created (UTC).
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the template was last modified (UTC).
	UpdatedAt time.Time `json:"updated_at"`
}

// Version is one snapshot of a template's configuration.
// Version numbers are engine-assigned, strictly increasing per template,
// and never reused even when a draft is abandoned.
type Version struct {
	// ID is the unique identifier for this version.
	ID string `json:"id"`
	// TemplateID is the owning template.
	TemplateID string `json:"template_id"`
	// Number is the per-template sequence number, starting at 1.
	Number int `json:"version"`
	// Status is the lifecycle state.
	Status Status `json:"status"`
	// Config is the normalized, domain-typed configuration document.
	Config Config `json:"config"`
	// CreatedBy is the actor label that created this version.
	CreatedBy string `json:"created_by"`
	// PublishedBy is the actor label that published this version, if any.
	PublishedBy string `json:"published_by,omitempty"`
	// PublishedAt is when this version was published (UTC), if ever.
	PublishedAt *time.Time `json:"published_at,omitempty"`
	// CreatedAt is when this version was created (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// ResolveContext describes the context a caller wants the effective
// template for. Zero-value fields are treated as absent.
type ResolveContext struct {
	// TicketType is the ticket type of the context, if known.
	TicketType string `json:"ticket_type,omitempty"`
	// Queue is the queue of the context, if known.
	Queue string `json:"queue,omitempty"`
}

// Clone returns a deep copy of the version, including its config document.
// Stores hand out clones so callers can never mutate stored state.
func (v *Version) Clone() *Version {
	if v == nil {
		return nil
	}
	out := *v
	out.Config = CloneConfig(v.Config)
	if v.PublishedAt != nil {
		t := *v.PublishedAt
		out.PublishedAt = &t
	}
	return &out
}

// CloneConfig deep-copies a config document. Values are the JSON scalar
// types plus nested maps and []any slices produced by normalization.
func CloneConfig(c Config) Config {
	if c == nil {
		return nil
	}
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = cloneValue(e)
		}
		return m
	case Config:
		return map[string]any(CloneConfig(t))
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = cloneValue(e)
		}
		return s
	case []string:
		s := make([]string, len(t))
		copy(s, t)
		return s
	default:
		return v
	}
}
