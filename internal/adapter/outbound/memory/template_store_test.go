package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Desk-Guard/Deskguard/internal/domain/policy"
)

func chatTemplate(id string, scopeType policy.ScopeType, scopeValue string) *policy.Template {
	now := time.Now().UTC()
	return &policy.Template{
		ID:         id,
		Domain:     policy.DomainChat,
		Name:       "chat policy " + id,
		ScopeType:  scopeType,
		ScopeValue: scopeValue,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestTemplateStore_CreateGetUpdate(t *testing.T) {
	s := NewTemplateStore()
	ctx := context.Background()

	tmpl := chatTemplate("t-1", policy.ScopeGlobal, "")
	if err := s.CreateTemplate(ctx, tmpl, nil); err != nil {
		t.Fatalf("CreateTemplate() error: %v", err)
	}

	got, err := s.GetTemplate(ctx, "t-1")
	if err != nil {
		t.Fatalf("GetTemplate() error: %v", err)
	}
	if got.Name != tmpl.Name {
		t.Errorf("GetTemplate().Name = %q, want %q", got.Name, tmpl.Name)
	}

	// Mutating the returned copy must not leak into the store.
	got.Name = "mutated"
	again, _ := s.GetTemplate(ctx, "t-1")
	if again.Name == "mutated" {
		t.Error("mutating a returned template leaked into the store")
	}

	got.Name = "renamed"
	if err := s.UpdateTemplate(ctx, got, nil); err != nil {
		t.Fatalf("UpdateTemplate() error: %v", err)
	}
	updated, _ := s.GetTemplate(ctx, "t-1")
	if updated.Name != "renamed" {
		t.Errorf("UpdateTemplate() did not persist: %q", updated.Name)
	}
}

func TestTemplateStore_NotFound(t *testing.T) {
	s := NewTemplateStore()
	ctx := context.Background()

	var notFound *policy.NotFoundError
	if _, err := s.GetTemplate(ctx, "nope"); !errors.As(err, &notFound) {
		t.Errorf("GetTemplate() error = %v, want NotFoundError", err)
	}
	if err := s.UpdateTemplate(ctx, chatTemplate("nope", policy.ScopeGlobal, ""), nil); !errors.As(err, &notFound) {
		t.Errorf("UpdateTemplate() error = %v, want NotFoundError", err)
	}
}

func TestTemplateStore_ListFilters(t *testing.T) {
	s := NewTemplateStore()
	ctx := context.Background()

	active := chatTemplate("t-1", policy.ScopeGlobal, "")
	inactive := chatTemplate("t-2", policy.ScopeQueue, "billing")
	inactive.IsActive = false
	sla := chatTemplate("t-3", policy.ScopeGlobal, "")
	sla.Domain = policy.DomainSLA
	for _, tmpl := range []*policy.Template{active, inactive, sla} {
		if err := s.CreateTemplate(ctx, tmpl, nil); err != nil {
			t.Fatalf("CreateTemplate() error: %v", err)
		}
	}

	all, err := s.ListTemplates(ctx, policy.TemplateFilter{})
	if err != nil {
		t.Fatalf("ListTemplates() error: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListTemplates() = %d templates, want 3", len(all))
	}

	chat, _ := s.ListTemplates(ctx, policy.TemplateFilter{Domain: policy.DomainChat})
	if len(chat) != 2 {
		t.Errorf("ListTemplates(chat) = %d, want 2", len(chat))
	}

	activeChat, _ := s.ListTemplates(ctx, policy.TemplateFilter{Domain: policy.DomainChat, ActiveOnly: true})
	if len(activeChat) != 1 || activeChat[0].ID != "t-1" {
		t.Errorf("ListTemplates(chat, active) = %v, want only t-1", activeChat)
	}
}

func TestTemplateStore_FindByScope(t *testing.T) {
	s := NewTemplateStore()
	ctx := context.Background()

	global := chatTemplate("t-global", policy.ScopeGlobal, "")
	billing := chatTemplate("t-billing", policy.ScopeTicketType, "billing")
	for _, tmpl := range []*policy.Template{global, billing} {
		if err := s.CreateTemplate(ctx, tmpl, nil); err != nil {
			t.Fatalf("CreateTemplate() error: %v", err)
		}
	}

	found, err := s.FindByScope(ctx, policy.DomainChat, policy.ScopeTicketType, "billing")
	if err != nil {
		t.Fatalf("FindByScope() error: %v", err)
	}
	if len(found) != 1 || found[0].ID != "t-billing" {
		t.Errorf("FindByScope(ticket_type=billing) = %v, want t-billing", found)
	}

	none, _ := s.FindByScope(ctx, policy.DomainChat, policy.ScopeQueue, "vip")
	if len(none) != 0 {
		t.Errorf("FindByScope(queue=vip) = %v, want empty", none)
	}
}
