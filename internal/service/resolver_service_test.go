package service

import (
	"errors"
	"testing"

	"github.com/Desk-Guard/Deskguard/internal/domain/policy"
)

// TestResolver_Precedence follows the scope precedence scenario:
// a ticket_type template wins over global for its own ticket type,
// while other ticket types fall back to global.
func TestResolver_Precedence(t *testing.T) {
	env := newTestEnv(t)
	global := env.mustCreateTemplate(t, policy.DomainChat, policy.ScopeGlobal, "")
	billing := env.mustCreateTemplate(t, policy.DomainChat, policy.ScopeTicketType, "billing")

	res, err := env.resolver.Resolve(t.Context(), policy.DomainChat, policy.ResolveContext{TicketType: "billing"})
	if err != nil {
		t.Fatalf("resolve billing: %v", err)
	}
	if res == nil || res.Template.ID != billing.ID {
		t.Fatalf("expected billing template, got %+v", res)
	}

	res, err = env.resolver.Resolve(t.Context(), policy.DomainChat, policy.ResolveContext{TicketType: "shipping"})
	if err != nil {
		t.Fatalf("resolve shipping: %v", err)
	}
	if res == nil || res.Template.ID != global.ID {
		t.Fatalf("expected global fallback, got %+v", res)
	}
}

func TestResolver_QueueBeatsGlobal(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreateTemplate(t, policy.DomainSLA, policy.ScopeGlobal, "")
	queue := env.mustCreateTemplate(t, policy.DomainSLA, policy.ScopeQueue, "vip")

	res, err := env.resolver.Resolve(t.Context(), policy.DomainSLA, policy.ResolveContext{Queue: "vip"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res == nil || res.Template.ID != queue.ID {
		t.Fatalf("expected queue template, got %+v", res)
	}
}

func TestResolver_TicketTypeBeatsQueue(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreateTemplate(t, policy.DomainSLA, policy.ScopeQueue, "vip")
	ticket := env.mustCreateTemplate(t, policy.DomainSLA, policy.ScopeTicketType, "refund")

	res, err := env.resolver.Resolve(t.Context(), policy.DomainSLA,
		policy.ResolveContext{TicketType: "refund", Queue: "vip"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res == nil || res.Template.ID != ticket.ID {
		t.Fatalf("expected ticket_type template to win, got %+v", res)
	}
}

func TestResolver_NoMatch(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.resolver.Resolve(t.Context(), policy.DomainChat, policy.ResolveContext{Queue: "anything"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res != nil {
		t.Fatalf("expected no applicable template, got %+v", res)
	}
}

func TestResolver_InactiveTemplatesIgnored(t *testing.T) {
	env := newTestEnv(t)
	tmpl := env.mustCreateTemplate(t, policy.DomainChat, policy.ScopeGlobal, "")
	if _, err := env.templateSvc.Update(t.Context(), tmpl.ID, UpdateTemplateInput{IsActive: boolPtr(false)}, "tester"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	res, err := env.resolver.Resolve(t.Context(), policy.DomainChat, policy.ResolveContext{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res != nil {
		t.Fatalf("inactive template must not resolve, got %+v", res)
	}
}

func TestResolver_TieIsConflict(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreateTemplate(t, policy.DomainChat, policy.ScopeQueue, "billing")
	env.mustCreateTemplate(t, policy.DomainChat, policy.ScopeQueue, "billing")

	_, err := env.resolver.Resolve(t.Context(), policy.DomainChat, policy.ResolveContext{Queue: "billing"})
	var ce *policy.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError for tied templates, got %v", err)
	}
}

func TestResolver_IncludesPublishedVersion(t *testing.T) {
	env := newTestEnv(t)
	tmpl := env.mustCreateTemplate(t, policy.DomainChat, policy.ScopeGlobal, "")
	v := env.mustCreateDraft(t, tmpl.ID, validChatConfig())
	if _, err := env.lifecycle.Publish(t.Context(), v.ID, "tester"); err != nil {
		t.Fatalf("publish: %v", err)
	}

	res, err := env.resolver.Resolve(t.Context(), policy.DomainChat, policy.ResolveContext{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Version == nil || res.Version.ID != v.ID {
		t.Fatalf("expected published version in resolution, got %+v", res.Version)
	}
}

func TestResolver_UnknownDomain(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.resolver.Resolve(t.Context(), "bogus", policy.ResolveContext{})
	var verr *policy.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
