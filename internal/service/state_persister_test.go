package service

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/Desk-Guard/Deskguard/internal/adapter/outbound/memory"
	"github.com/Desk-Guard/Deskguard/internal/adapter/outbound/state"
	"github.com/Desk-Guard/Deskguard/internal/domain/policy"
)

// TestStatePersister_RoundTrip mutates through the services, then
// restores into fresh stores and verifies the engine state survives.
func TestStatePersister_RoundTrip(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := filepath.Join(t.TempDir(), "state.json")

	templates := memory.NewTemplateStore()
	versions := memory.NewVersionStore()
	auditLog := memory.NewAuditStore()
	persister := NewStatePersister(state.NewFileStateStore(path, logger), templates, versions, logger)

	templateSvc := NewTemplateService(templates, auditLog, persister, logger)
	lifecycle := NewLifecycleService(templates, versions, auditLog, persister, logger)

	tmpl, err := templateSvc.Create(t.Context(), CreateTemplateInput{
		Domain:    policy.DomainChat,
		Name:      "persisted",
		ScopeType: policy.ScopeGlobal,
	}, "tester")
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	v, err := lifecycle.CreateVersion(t.Context(), tmpl.ID, validChatConfig(), "tester")
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	if _, err := lifecycle.Publish(t.Context(), v.ID, "tester"); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// Boot a second engine from the same file.
	templates2 := memory.NewTemplateStore()
	versions2 := memory.NewVersionStore()
	persister2 := NewStatePersister(state.NewFileStateStore(path, logger), templates2, versions2, logger)
	if err := persister2.Restore(t.Context()); err != nil {
		t.Fatalf("restore: %v", err)
	}

	got, err := templates2.GetTemplate(t.Context(), tmpl.ID)
	if err != nil {
		t.Fatalf("template lost across restart: %v", err)
	}
	if got.Name != "persisted" {
		t.Errorf("unexpected template: %+v", got)
	}

	published, err := versions2.GetPublished(t.Context(), tmpl.ID)
	if err != nil {
		t.Fatalf("get published: %v", err)
	}
	if published == nil || published.ID != v.ID {
		t.Fatalf("published version lost across restart: %+v", published)
	}

	// Version numbering continues after restore, never reuses.
	lifecycle2 := NewLifecycleService(templates2, versions2, memory.NewAuditStore(), persister2, logger)
	v2, err := lifecycle2.CreateVersion(t.Context(), tmpl.ID, validChatConfig(), "tester")
	if err != nil {
		t.Fatalf("create draft after restore: %v", err)
	}
	if v2.Number != 2 {
		t.Errorf("version number after restore = %d, want 2", v2.Number)
	}
}
