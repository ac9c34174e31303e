// Package deskguard provides a Go SDK for the Deskguard policy engine API.
//
// Deskguard manages versioned helpdesk policy templates (SLA targets, chat
// moderation, remote-session controls). This SDK lets Go services look up
// the effective policy for a ticket context before acting on it. It uses
// only the Go standard library (net/http) with zero external dependencies.
//
// Quick start:
//
//	// Set DESKGUARD_SERVER_ADDR and DESKGUARD_API_KEY env vars, then:
//	client := deskguard.NewClient()
//
//	res, err := client.Resolve(ctx, deskguard.ResolveRequest{
//	    Domain: "sla",
//	    Queue:  "billing",
//	})
//	if err != nil {
//	    // handle
//	}
//	if res.Matched {
//	    fmt.Printf("policy %s v%d applies\n", res.Template.Name, res.Version.Number)
//	}
package deskguard

import "time"

// Domain values accepted by the policy engine.
const (
	DomainSLA           = "sla"
	DomainChat          = "chat"
	DomainRemoteSession = "remote_session"
)

// ResolveRequest identifies the context to resolve a policy for. Domain is
// required; Queue and TicketType narrow the scope and may be empty.
type ResolveRequest struct {
	// Domain is the policy family: "sla", "chat", or "remote_session".
	Domain string

	// Queue is the ticket queue, if known.
	Queue string

	// TicketType is the ticket type, if known.
	TicketType string
}

// Template describes a policy template as returned by the server.
type Template struct {
	// ID is the opaque template identifier.
	ID string `json:"id"`

	// Domain is the policy family this template configures.
	Domain string `json:"domain"`

	// Name is the human-readable template name.
	Name string `json:"name"`

	// Description provides additional operator context.
	Description string `json:"description"`

	// ScopeType is "global", "queue", or "ticket_type".
	ScopeType string `json:"scope_type"`

	// ScopeValue is the queue or ticket type the template is scoped to.
	ScopeValue string `json:"scope_value,omitempty"`

	// IsActive reports whether the template participates in resolution.
	IsActive bool `json:"is_active"`

	// CreatedAt is when the template was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the template was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}

// Version is one published or draft configuration of a template.
type Version struct {
	// ID is the unique version identifier.
	ID string `json:"id"`

	// TemplateID is the owning template.
	TemplateID string `json:"template_id"`

	// Number is the per-template sequence number, starting at 1.
	Number int `json:"version"`

	// Status is "draft", "published", or "archived".
	Status string `json:"status"`

	// Config is the domain-specific configuration document.
	Config map[string]any `json:"config"`

	// CreatedBy is the actor that created this version.
	CreatedBy string `json:"created_by"`

	// PublishedBy is the actor that published this version, if any.
	PublishedBy string `json:"published_by,omitempty"`

	// PublishedAt is when this version was published, if ever.
	PublishedAt *time.Time `json:"published_at,omitempty"`

	// CreatedAt is when this version was created.
	CreatedAt time.Time `json:"created_at"`
}

// Resolution is the outcome of a policy lookup.
type Resolution struct {
	// Matched reports whether any published policy applies to the context.
	Matched bool `json:"matched"`

	// Template is the winning template. Nil when Matched is false.
	Template *Template `json:"template,omitempty"`

	// Version is the published version of the winning template.
	// Nil when Matched is false.
	Version *Version `json:"version,omitempty"`
}

// SimulateRequest configures a dry run of a version against sampled data.
type SimulateRequest struct {
	// Limit caps the number of sampled entities. Zero means the server
	// default.
	Limit int `json:"limit,omitempty"`

	// Filter is an optional CEL expression selecting entities, e.g.
	// `attr_string(attrs, "priority") == "urgent"`.
	Filter string `json:"filter,omitempty"`
}

// Finding is one rule evaluation against one sampled entity.
type Finding struct {
	// Rule is the config field that was checked.
	Rule string `json:"rule"`

	// Detail explains the outcome.
	Detail string `json:"detail"`

	// Violated reports whether the entity breaks the rule.
	Violated bool `json:"violated"`
}

// EntityResult is the simulation outcome for one sampled entity.
type EntityResult struct {
	// EntityID identifies the sampled entity.
	EntityID string `json:"entity_id"`

	// EntityKind is the entity type, e.g. "ticket" or "message".
	EntityKind string `json:"entity_kind"`

	// Findings are the per-rule results.
	Findings []Finding `json:"findings"`

	// Violations counts the violated findings.
	Violations int `json:"violations"`
}

// SimulationReport summarizes a dry run.
type SimulationReport struct {
	// VersionID is the simulated version.
	VersionID string `json:"version_id"`

	// TemplateID is the owning template.
	TemplateID string `json:"template_id"`

	// Domain is the policy family.
	Domain string `json:"domain"`

	// VersionStatus is the version's status at simulation time.
	VersionStatus string `json:"version_status"`

	// SampleSize is how many entities the provider returned.
	SampleSize int `json:"sample_size"`

	// Evaluated is how many entities passed the filter and were checked.
	Evaluated int `json:"evaluated"`

	// Violations is the total violation count across entities.
	Violations int `json:"violations"`

	// Results holds the per-entity outcomes.
	Results []EntityResult `json:"results"`
}
