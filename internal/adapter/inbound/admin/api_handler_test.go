package admin

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	celeval "github.com/Desk-Guard/Deskguard/internal/adapter/outbound/cel"
	"github.com/Desk-Guard/Deskguard/internal/adapter/outbound/memory"
	"github.com/Desk-Guard/Deskguard/internal/adapter/outbound/provider"
	"github.com/Desk-Guard/Deskguard/internal/domain/auth"
	"github.com/Desk-Guard/Deskguard/internal/domain/policy"
	"github.com/Desk-Guard/Deskguard/internal/domain/sample"
	"github.com/Desk-Guard/Deskguard/internal/service"
)

func newTestAPI(t *testing.T, opts ...APIOption) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	templates := memory.NewTemplateStore()
	versions := memory.NewVersionStore()
	auditLog := memory.NewAuditStore()
	t.Cleanup(func() { _ = auditLog.Close() })

	ev, err := celeval.NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	sampleProvider := provider.NewStaticProvider(map[policy.Domain][]sample.Entity{
		policy.DomainChat: {
			{ID: "m-1", Kind: "message", Attrs: map[string]any{
				"message_length": int64(120),
				"sender_role":    "customer",
			}},
		},
	})

	base := []APIOption{
		WithTemplateService(service.NewTemplateService(templates, auditLog, nil, logger)),
		WithLifecycleService(service.NewLifecycleService(templates, versions, auditLog, nil, logger)),
		WithResolverService(service.NewResolverService(templates, versions, logger)),
		WithSimulationService(service.NewSimulationService(templates, versions, sampleProvider, ev, auditLog, logger)),
		WithAuditService(service.NewAuditService(auditLog, logger)),
		WithAPILogger(logger),
		WithBuildInfo(&BuildInfo{Version: "test"}),
	}
	return NewAPIHandler(append(base, opts...)...).Routes()
}

// doJSON performs a request against the handler from localhost.
func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.RemoteAddr = "127.0.0.1:54321"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func chatConfigBody() map[string]interface{} {
	return map[string]interface{}{
		"config": map[string]interface{}{
			"retention_days":           30,
			"max_message_length":       500,
			"max_attachments":          3,
			"max_attachment_size_mb":   10,
			"allowed_attachment_types": []string{"image/png"},
			"allowed_sender_roles":     []string{"customer", "support_agent"},
			"allow_edit":               true,
			"allow_delete":             false,
			"slow_mode_seconds":        0,
			"moderation": map[string]interface{}{
				"roles":         []string{"support_agent"},
				"actions":       []string{"flagged"},
				"flag_keywords": []string{"refund"},
			},
		},
	}
}

func TestAPI_TemplateVersionLifecycle(t *testing.T) {
	h := newTestAPI(t)

	// Create a template.
	rec := doJSON(t, h, http.MethodPost, "/api/v1/templates", map[string]interface{}{
		"domain":     "chat",
		"name":       "support chat",
		"scope_type": "queue",
		"scope_value": "billing",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create template: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	tpl := decode[policy.Template](t, rec)
	if tpl.ID == "" {
		t.Fatal("template ID empty")
	}

	// Create a draft version.
	rec = doJSON(t, h, http.MethodPost, "/api/v1/templates/"+tpl.ID+"/versions", chatConfigBody())
	if rec.Code != http.StatusCreated {
		t.Fatalf("create version: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	v := decode[policy.Version](t, rec)
	if v.Number != 1 {
		t.Errorf("version number = %d, want 1", v.Number)
	}
	if v.Status != policy.StatusDraft {
		t.Errorf("status = %q, want draft", v.Status)
	}

	// No effective version before publish.
	rec = doJSON(t, h, http.MethodGet, "/api/v1/templates/"+tpl.ID+"/effective", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("effective before publish: status = %d", rec.Code)
	}

	// Publish.
	rec = doJSON(t, h, http.MethodPost, "/api/v1/versions/"+v.ID+"/publish", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("publish: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Effective now resolves to the published version.
	rec = doJSON(t, h, http.MethodGet, "/api/v1/templates/"+tpl.ID+"/effective", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("effective after publish: status = %d", rec.Code)
	}
	eff := decode[policy.Version](t, rec)
	if eff.ID != v.ID {
		t.Errorf("effective version = %s, want %s", eff.ID, v.ID)
	}

	// Resolve picks the queue template.
	rec = doJSON(t, h, http.MethodGet, "/api/v1/resolve?domain=chat&queue=billing", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	res := decode[map[string]json.RawMessage](t, rec)
	if string(res["matched"]) != "true" {
		t.Errorf("matched = %s, want true", res["matched"])
	}

	// Audit trail recorded the history.
	rec = doJSON(t, h, http.MethodGet, "/api/v1/audit?template_id="+tpl.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("audit query: status = %d", rec.Code)
	}
	auditResp := decode[struct {
		Count int `json:"count"`
	}](t, rec)
	if auditResp.Count < 3 { // created template, created version, published
		t.Errorf("audit count = %d, want >= 3", auditResp.Count)
	}
}

func TestAPI_ValidationErrorsIncludeFields(t *testing.T) {
	h := newTestAPI(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/templates", map[string]interface{}{
		"domain":     "bogus",
		"scope_type": "global",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	resp := decode[struct {
		Error  string              `json:"error"`
		Fields []policy.FieldError `json:"fields"`
	}](t, rec)
	if len(resp.Fields) < 2 {
		t.Errorf("fields = %v, want domain and name errors", resp.Fields)
	}
}

func TestAPI_UnknownTemplateIs404(t *testing.T) {
	h := newTestAPI(t)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/templates/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestAPI_PublishArchivedIsConflict(t *testing.T) {
	h := newTestAPI(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/templates", map[string]interface{}{
		"domain": "chat", "name": "c", "scope_type": "global",
	})
	tpl := decode[policy.Template](t, rec)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/templates/"+tpl.ID+"/versions", chatConfigBody())
	v := decode[policy.Version](t, rec)

	if rec := doJSON(t, h, http.MethodPost, "/api/v1/versions/"+v.ID+"/archive", nil); rec.Code != http.StatusOK {
		t.Fatalf("archive: status = %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodPost, "/api/v1/versions/"+v.ID+"/publish", nil); rec.Code != http.StatusConflict {
		t.Errorf("publish archived: status = %d, want 409", rec.Code)
	}
}

func TestAPI_Simulate(t *testing.T) {
	h := newTestAPI(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/templates", map[string]interface{}{
		"domain": "chat", "name": "c", "scope_type": "global",
	})
	tpl := decode[policy.Template](t, rec)
	rec = doJSON(t, h, http.MethodPost, "/api/v1/templates/"+tpl.ID+"/versions", chatConfigBody())
	v := decode[policy.Version](t, rec)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/versions/"+v.ID+"/simulate", map[string]interface{}{"limit": 10})
	if rec.Code != http.StatusOK {
		t.Fatalf("simulate: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	report := decode[service.SimulationReport](t, rec)
	if report.SampleSize != 1 {
		t.Errorf("sample size = %d, want 1", report.SampleSize)
	}
	if report.VersionStatus != policy.StatusDraft {
		t.Errorf("version status = %q, want draft (simulation never mutates)", report.VersionStatus)
	}
}

func TestAPI_RemoteWithoutKeyRejected(t *testing.T) {
	h := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/templates", nil)
	// httptest's default RemoteAddr (192.0.2.1) is not loopback.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAPI_APIKeyAuth(t *testing.T) {
	kr, err := auth.NewKeyring([]auth.KeyEntry{
		{Label: "ops", Hash: "sha256:" + auth.HashKey("sekrit")},
	})
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}
	h := newTestAPI(t, WithKeyring(kr))

	// Valid key from a remote address is accepted.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/templates", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid key: status = %d, want 200", rec.Code)
	}

	// Invalid key is rejected even from localhost.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/templates", nil)
	req.RemoteAddr = "127.0.0.1:54321"
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("invalid key: status = %d, want 401", rec.Code)
	}
}

func TestAPI_SystemInfoUnprotected(t *testing.T) {
	h := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/system", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	info := decode[map[string]interface{}](t, rec)
	if info["version"] != "test" {
		t.Errorf("version = %v, want test", info["version"])
	}
}
