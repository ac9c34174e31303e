// Package audit contains domain types for the append-only policy audit log.
package audit

import (
	"time"

	"github.com/Desk-Guard/Deskguard/internal/domain/policy"
)

// Action identifies what a mutating or simulating call did.
type Action string

const (
	// ActionCreated records a template or draft version creation.
	ActionCreated Action = "created"
	// ActionUpdated records a template update or draft config replacement.
	ActionUpdated Action = "updated"
	// ActionPublished records a version becoming the effective config.
	ActionPublished Action = "published"
	// ActionArchived records a version retirement, manual or automatic.
	ActionArchived Action = "archived"
	// ActionRolledBack records a prior version's config being re-published.
	ActionRolledBack Action = "rolled_back"
	// ActionSimulated records a non-mutating dry run of a version.
	ActionSimulated Action = "simulated"
)

// Entry is one immutable audit log record. Entries are created by the
// engine on every mutating or simulating call and never updated or
// deleted.
type Entry struct {
	// ID is the unique identifier for this entry.
	ID string `json:"id"`
	// PolicyType is the policy domain of the affected template.
	PolicyType policy.Domain `json:"policy_type"`
	// Action is what the call did.
	Action Action `json:"action"`
	// TemplateID is the affected template.
	TemplateID string `json:"template_id"`
	// VersionID is the affected version; empty for template-level actions.
	VersionID string `json:"version_id,omitempty"`
	// ActorLabel identifies who issued the call.
	ActorLabel string `json:"actor_label"`
	// CreatedAt is when the entry was written (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// Filter specifies query parameters for audit log reads.
type Filter struct {
	// PolicyType filters by policy domain (optional).
	PolicyType policy.Domain
	// TemplateID filters by template (optional).
	TemplateID string
	// Action filters by audit action (optional).
	Action Action
	// Since is the inclusive lower bound on CreatedAt (optional).
	Since time.Time
	// Until is the exclusive upper bound on CreatedAt (optional).
	Until time.Time
	// Limit caps the number of returned entries (default 100, max 1000).
	Limit int
}

// DefaultQueryLimit is applied when a filter has no limit.
const DefaultQueryLimit = 100

// MaxQueryLimit is the hard cap on a single audit query.
const MaxQueryLimit = 1000

// Matches reports whether an entry satisfies the filter (limit excluded).
func (f Filter) Matches(e *Entry) bool {
	if f.PolicyType != "" && e.PolicyType != f.PolicyType {
		return false
	}
	if f.TemplateID != "" && e.TemplateID != f.TemplateID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !e.CreatedAt.Before(f.Until) {
		return false
	}
	return true
}
