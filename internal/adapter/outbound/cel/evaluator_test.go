package cel

import (
	"strings"
	"testing"
	"time"

	"github.com/Desk-Guard/Deskguard/internal/domain/policy"
	"github.com/Desk-Guard/Deskguard/internal/domain/sample"
)

func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	e, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	return e
}

func ticketEntity() *sample.Entity {
	return &sample.Entity{
		ID:        "ticket-42",
		Kind:      "ticket",
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Attrs: map[string]any{
			"priority": "urgent",
			"status":   "open",
			"queue":    "billing",
		},
	}
}

func TestEvaluator_Matches(t *testing.T) {
	e := newTestEvaluator(t)
	scope := sample.Scope{ScopeType: policy.ScopeQueue, ScopeValue: "billing"}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"kind match", `entity_kind == "ticket"`, true},
		{"kind mismatch", `entity_kind == "chat"`, false},
		{"attr string", `attr_string(attrs, "priority") == "urgent"`, true},
		{"attr missing", `attr_string(attrs, "missing") == ""`, true},
		{"attr contains", `attr_contains(attrs, "bill")`, true},
		{"attr not contains", `attr_contains(attrs, "nothing")`, false},
		{"glob id", `glob("ticket-*", entity_id)`, true},
		{"glob no match", `glob("chat-*", entity_id)`, false},
		{"scope variables", `scope_type == "queue" && scope_value == "billing"`, true},
		{"timestamp", `created_at > timestamp("2026-01-01T00:00:00Z")`, true},
		{"compound", `entity_kind == "ticket" && attr_string(attrs, "status") == "open"`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prg, err := e.Compile(tt.expr)
			if err != nil {
				t.Fatalf("Compile(%q): %v", tt.expr, err)
			}
			got, err := e.Matches(prg, ticketEntity(), scope)
			if err != nil {
				t.Fatalf("Matches: %v", err)
			}
			if got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvaluator_NilAttrs(t *testing.T) {
	e := newTestEvaluator(t)
	prg, err := e.Compile(`attr_string(attrs, "priority") == ""`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	entity := &sample.Entity{ID: "x", Kind: "chat"}
	got, err := e.Matches(prg, entity, sample.Scope{ScopeType: policy.ScopeGlobal})
	if err != nil {
		t.Fatalf("Matches: %v", err)
	}
	if !got {
		t.Error("expected missing attr to read as empty string")
	}
}

func TestEvaluator_NonBooleanResult(t *testing.T) {
	e := newTestEvaluator(t)
	prg, err := e.Compile(`entity_id`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, err := e.Matches(prg, ticketEntity(), sample.Scope{}); err == nil {
		t.Error("expected error for non-boolean expression")
	}
}

func TestEvaluator_ValidateExpression(t *testing.T) {
	e := newTestEvaluator(t)

	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"valid", `entity_kind == "ticket"`, false},
		{"empty", ``, true},
		{"too long", `entity_kind == "` + strings.Repeat("x", 2000) + `"`, true},
		{"deep nesting", strings.Repeat("(", 60) + "true" + strings.Repeat(")", 60), true},
		{"syntax error", `entity_kind ==`, true},
		{"unknown variable", `no_such_var == 1`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.ValidateExpression(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateExpression(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestEvaluator_CompileCaching(t *testing.T) {
	e := newTestEvaluator(t)
	expr := `entity_kind == "ticket"`
	if _, err := e.Compile(expr); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(e.cache) != 1 {
		t.Fatalf("expected 1 cached program, got %d", len(e.cache))
	}
	if _, err := e.Compile(expr); err != nil {
		t.Fatalf("Compile (cached): %v", err)
	}
	if len(e.cache) != 1 {
		t.Errorf("expected cache hit, got %d entries", len(e.cache))
	}
}

func TestGlobMatch(t *testing.T) {
	tests := []struct {
		pattern, s string
		want       bool
	}{
		{"ticket-*", "ticket-42", true},
		{"*", "anything", true},
		{"exact", "exact", true},
		{"exact", "other", false},
		{"a*b*c", "aXbYc", true},
		{"a*b*c", "aXcYb", false},
		{"chat-[1]", "chat-[1]", true},
	}
	for _, tt := range tests {
		if got := globMatch(tt.pattern, tt.s); got != tt.want {
			t.Errorf("globMatch(%q, %q) = %v, want %v", tt.pattern, tt.s, got, tt.want)
		}
	}
}
