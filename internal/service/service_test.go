package service

import (
	"io"
	"log/slog"
	"testing"

	celeval "github.com/Desk-Guard/Deskguard/internal/adapter/outbound/cel"
	"github.com/Desk-Guard/Deskguard/internal/adapter/outbound/memory"
	"github.com/Desk-Guard/Deskguard/internal/adapter/outbound/provider"
	"github.com/Desk-Guard/Deskguard/internal/domain/policy"
	"github.com/Desk-Guard/Deskguard/internal/domain/sample"
)

// testEnv wires the services over memory stores for tests.
type testEnv struct {
	templates   *memory.TemplateStore
	versions    *memory.VersionStore
	auditLog    *memory.AuditStore
	templateSvc *TemplateService
	lifecycle   *LifecycleService
	resolver    *ResolverService
	audits      *AuditService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	templates := memory.NewTemplateStore()
	versions := memory.NewVersionStore()
	auditLog := memory.NewAuditStore()
	return &testEnv{
		templates:   templates,
		versions:    versions,
		auditLog:    auditLog,
		templateSvc: NewTemplateService(templates, auditLog, nil, logger),
		lifecycle:   NewLifecycleService(templates, versions, auditLog, nil, logger),
		resolver:    NewResolverService(templates, versions, logger),
		audits:      NewAuditService(auditLog, logger),
	}
}

// newSimulation builds a SimulationService over the env with the given
// provider.
func (env *testEnv) newSimulation(t *testing.T, p sample.Provider, opts ...SimulationOption) *SimulationService {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ev, err := celeval.NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	return NewSimulationService(env.templates, env.versions, p, ev, env.auditLog, logger, opts...)
}

// validChatConfig is the worked-scenario chat config.
func validChatConfig() map[string]any {
	return map[string]any{
		"retention_days":           30,
		"max_message_length":       500,
		"max_attachments":          3,
		"max_attachment_size_mb":   10,
		"allowed_attachment_types": []any{"image/png"},
		"allowed_sender_roles":     []any{"customer", "support_agent"},
		"allow_edit":               true,
		"allow_delete":             false,
		"slow_mode_seconds":        0,
		"moderation": map[string]any{
			"roles":         []any{"support_agent"},
			"actions":       []any{"flagged"},
			"flag_keywords": []any{"refund"},
		},
	}
}

func validSLAConfig() map[string]any {
	return map[string]any{
		"first_response_minutes": 30,
		"resolution_minutes":     240,
		"grace_minutes":          5,
		"business_hours_only":    true,
		"priorities":             []any{"low", "normal", "urgent"},
		"pause_statuses":         []any{"waiting_on_customer"},
		"breach_actions":         []any{"notify", "escalate"},
		"notify_roles":           []any{"team_lead"},
	}
}

// mustCreateTemplate creates a chat/global template through the service.
func (env *testEnv) mustCreateTemplate(t *testing.T, domain policy.Domain, scopeType policy.ScopeType, scopeValue string) *policy.Template {
	t.Helper()
	tmpl, err := env.templateSvc.Create(t.Context(), CreateTemplateInput{
		Domain:     domain,
		Name:       "test policy",
		ScopeType:  scopeType,
		ScopeValue: scopeValue,
	}, "tester")
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	return tmpl
}

func (env *testEnv) mustCreateDraft(t *testing.T, templateID string, raw map[string]any) *policy.Version {
	t.Helper()
	v, err := env.lifecycle.CreateVersion(t.Context(), templateID, raw, "tester")
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	return v
}

func provider1(entities ...sample.Entity) *provider.StaticProvider {
	m := map[policy.Domain][]sample.Entity{}
	for _, e := range entities {
		// Kind doubles as the domain key for test fixtures.
		var d policy.Domain
		switch e.Kind {
		case "message":
			d = policy.DomainChat
		case "session":
			d = policy.DomainRemoteSession
		default:
			d = policy.DomainSLA
		}
		m[d] = append(m[d], e)
	}
	return provider.NewStaticProvider(m)
}
