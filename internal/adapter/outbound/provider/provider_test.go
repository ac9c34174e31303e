package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Desk-Guard/Deskguard/internal/domain/policy"
	"github.com/Desk-Guard/Deskguard/internal/domain/sample"
)

func TestHTTPProvider_FetchSample(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/samples" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("domain") != "sla" || q.Get("scope_type") != "queue" || q.Get("scope_value") != "billing" {
			t.Errorf("unexpected query: %v", q)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"entities":[
			{"id":"t-1","kind":"ticket","created_at":"2026-03-01T10:00:00Z","attrs":{"priority":"urgent"}},
			{"id":"","kind":"ticket"},
			{"id":"t-2","kind":"ticket","created_at":"2026-03-01T11:00:00Z","attrs":{}}
		]}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, WithAuthToken("secret"))
	scope := sample.Scope{ScopeType: policy.ScopeQueue, ScopeValue: "billing"}
	got, err := p.FetchSample(context.Background(), policy.DomainSLA, scope, 10)
	if err != nil {
		t.Fatalf("FetchSample: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entities (invalid one dropped), got %d", len(got))
	}
	if got[0].ID != "t-1" || got[0].Attrs["priority"] != "urgent" {
		t.Errorf("unexpected first entity: %+v", got[0])
	}
}

func TestHTTPProvider_LimitApplied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"entities":[
			{"id":"t-1","kind":"ticket"},
			{"id":"t-2","kind":"ticket"},
			{"id":"t-3","kind":"ticket"}
		]}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL)
	got, err := p.FetchSample(context.Background(), policy.DomainChat, sample.Scope{ScopeType: policy.ScopeGlobal}, 2)
	if err != nil {
		t.Fatalf("FetchSample: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected limit of 2 enforced, got %d", len(got))
	}
}

func TestHTTPProvider_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL)
	if _, err := p.FetchSample(context.Background(), policy.DomainSLA, sample.Scope{}, 5); err == nil {
		t.Error("expected error on 500 response")
	}
}

func TestHTTPProvider_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"entities": not json`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL)
	if _, err := p.FetchSample(context.Background(), policy.DomainSLA, sample.Scope{}, 5); err == nil {
		t.Error("expected error on malformed body")
	}
}

func TestHTTPProvider_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, WithTimeout(20*time.Millisecond))
	if _, err := p.FetchSample(context.Background(), policy.DomainSLA, sample.Scope{}, 5); err == nil {
		t.Error("expected timeout error")
	}
}

func TestStaticProvider_ScopeNarrowing(t *testing.T) {
	p := NewStaticProvider(map[policy.Domain][]sample.Entity{
		policy.DomainSLA: {
			{ID: "t-1", Kind: "ticket", Attrs: map[string]any{"queue": "billing"}},
			{ID: "t-2", Kind: "ticket", Attrs: map[string]any{"queue": "support"}},
			{ID: "t-3", Kind: "ticket", Attrs: map[string]any{}},
		},
	})

	got, err := p.FetchSample(context.Background(), policy.DomainSLA,
		sample.Scope{ScopeType: policy.ScopeQueue, ScopeValue: "billing"}, 10)
	if err != nil {
		t.Fatalf("FetchSample: %v", err)
	}
	// t-1 matches, t-3 has no queue attr so it is kept, t-2 is dropped.
	if len(got) != 2 || got[0].ID != "t-1" || got[1].ID != "t-3" {
		t.Fatalf("unexpected result: %+v", got)
	}

	got, err = p.FetchSample(context.Background(), policy.DomainSLA,
		sample.Scope{ScopeType: policy.ScopeGlobal}, 10)
	if err != nil {
		t.Fatalf("FetchSample: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected all entities for global scope, got %d", len(got))
	}
}

func TestStaticProvider_Failing(t *testing.T) {
	wantErr := errors.New("sample service unavailable")
	p := NewFailingProvider(wantErr)
	if _, err := p.FetchSample(context.Background(), policy.DomainChat, sample.Scope{}, 1); !errors.Is(err, wantErr) {
		t.Errorf("expected configured error, got %v", err)
	}
}
