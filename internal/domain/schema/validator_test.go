package schema

import (
	"reflect"
	"testing"

	"github.com/Desk-Guard/Deskguard/internal/domain/policy"
)

// validChatRaw returns a chat config document that passes every rule.
func validChatRaw() map[string]any {
	return map[string]any{
		"retention_days":           30,
		"max_message_length":       500,
		"max_attachments":          3,
		"max_attachment_size_mb":   10.0,
		"allowed_attachment_types": []any{"png", "pdf"},
		"allowed_sender_roles":     []any{"customer", "support_agent"},
		"allow_edit":               true,
		"allow_delete":             false,
		"slow_mode_seconds":        0,
		"moderation": map[string]any{
			"roles":         []any{"support_agent"},
			"actions":       []any{"flagged"},
			"flag_keywords": []any{},
		},
	}
}

func TestValidate_ChatValid(t *testing.T) {
	cfg, errs := Validate(policy.DomainChat, validChatRaw())
	if len(errs) != 0 {
		t.Fatalf("Validate() errors = %v, want none", errs)
	}
	if cfg == nil {
		t.Fatal("Validate() returned nil config without errors")
	}

	if got := cfg["retention_days"]; got != int64(30) {
		t.Errorf("retention_days = %v (%T), want int64(30)", got, got)
	}
	if got := cfg["max_attachment_size_mb"]; got != 10.0 {
		t.Errorf("max_attachment_size_mb = %v, want 10.0", got)
	}
	mod, ok := cfg["moderation"].(map[string]any)
	if !ok {
		t.Fatalf("moderation = %T, want nested map", cfg["moderation"])
	}
	if got, want := mod["roles"], []string{"support_agent"}; !reflect.DeepEqual(got, want) {
		t.Errorf("moderation.roles = %v, want %v", got, want)
	}
}

func TestValidate_ChatFieldErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(raw map[string]any)
		field  string
	}{
		{
			name:   "zero retention_days",
			mutate: func(raw map[string]any) { raw["retention_days"] = 0 },
			field:  "retention_days",
		},
		{
			name:   "negative slow_mode_seconds",
			mutate: func(raw map[string]any) { raw["slow_mode_seconds"] = -1 },
			field:  "slow_mode_seconds",
		},
		{
			name:   "fractional max_message_length",
			mutate: func(raw map[string]any) { raw["max_message_length"] = 10.5 },
			field:  "max_message_length",
		},
		{
			name:   "missing allowed_sender_roles",
			mutate: func(raw map[string]any) { delete(raw, "allowed_sender_roles") },
			field:  "allowed_sender_roles",
		},
		{
			name:   "empty allowed_sender_roles",
			mutate: func(raw map[string]any) { raw["allowed_sender_roles"] = []any{} },
			field:  "allowed_sender_roles",
		},
		{
			name: "moderation action outside enum",
			mutate: func(raw map[string]any) {
				raw["moderation"].(map[string]any)["actions"] = []any{"flagged", "deleted"}
			},
			field: "moderation.actions",
		},
		{
			name:   "non-boolean allow_edit",
			mutate: func(raw map[string]any) { raw["allow_edit"] = "yes" },
			field:  "allow_edit",
		},
		{
			name:   "list with non-string element",
			mutate: func(raw map[string]any) { raw["allowed_attachment_types"] = []any{"png", 7} },
			field:  "allowed_attachment_types",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := validChatRaw()
			tt.mutate(raw)

			cfg, errs := Validate(policy.DomainChat, raw)
			if cfg != nil {
				t.Error("Validate() returned a config despite errors")
			}
			if len(errs) == 0 {
				t.Fatal("Validate() returned no errors")
			}
			found := false
			for _, e := range errs {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("Validate() errors = %v, want one for field %q", errs, tt.field)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	raw := validChatRaw()
	raw["retention_days"] = 0
	raw["max_message_length"] = -5
	delete(raw, "allowed_sender_roles")

	_, errs := Validate(policy.DomainChat, raw)
	if len(errs) != 3 {
		t.Fatalf("Validate() collected %d errors, want 3: %v", len(errs), errs)
	}
}

func TestValidate_Deterministic(t *testing.T) {
	// Identical input must yield an identical normalized document and,
	// for invalid input, an identical error list.
	a, _ := Validate(policy.DomainChat, validChatRaw())
	b, _ := Validate(policy.DomainChat, validChatRaw())
	if !reflect.DeepEqual(a, b) {
		t.Errorf("normalized output differs between identical runs:\n%v\n%v", a, b)
	}

	bad := validChatRaw()
	bad["retention_days"] = 0
	delete(bad, "allow_edit")
	_, errsA := Validate(policy.DomainChat, bad)
	bad2 := validChatRaw()
	bad2["retention_days"] = 0
	delete(bad2, "allow_edit")
	_, errsB := Validate(policy.DomainChat, bad2)
	if !reflect.DeepEqual(errsA, errsB) {
		t.Errorf("error sets differ between identical runs:\n%v\n%v", errsA, errsB)
	}
}

func TestValidate_UnknownFieldsDropped(t *testing.T) {
	raw := validChatRaw()
	raw["shoe_size"] = 42

	cfg, errs := Validate(policy.DomainChat, raw)
	if len(errs) != 0 {
		t.Fatalf("Validate() errors = %v, want none", errs)
	}
	if _, ok := cfg["shoe_size"]; ok {
		t.Error("Validate() kept an unknown field in the normalized config")
	}
}

func TestValidate_UnknownDomain(t *testing.T) {
	_, errs := Validate(policy.Domain("billing"), map[string]any{})
	if len(errs) != 1 || errs[0].Field != "domain" {
		t.Fatalf("Validate() errors = %v, want a single domain error", errs)
	}
}

func TestValidate_SLA(t *testing.T) {
	raw := map[string]any{
		"first_response_minutes": 15,
		"resolution_minutes":     240,
		"grace_minutes":          0,
		"business_hours_only":    true,
		"priorities":             []any{"low", "high", "urgent"},
		"pause_statuses":         []any{"waiting_on_customer"},
		"breach_actions":         []any{"notify", "escalate"},
		"notify_roles":           []any{"team_lead"},
	}
	if _, errs := Validate(policy.DomainSLA, raw); len(errs) != 0 {
		t.Fatalf("Validate() errors = %v, want none", errs)
	}

	raw["breach_actions"] = []any{"page_everyone"}
	_, errs := Validate(policy.DomainSLA, raw)
	if len(errs) != 1 || errs[0].Field != "breach_actions" {
		t.Fatalf("Validate() errors = %v, want one for breach_actions", errs)
	}
}

func TestValidate_RemoteSessionRetentionGate(t *testing.T) {
	raw := map[string]any{
		"max_duration_minutes":    60,
		"idle_timeout_minutes":    10,
		"max_concurrent_sessions": 2,
		"require_consent":         true,
		"recording_enabled":       false,
		"allowed_operator_roles":  []any{"support_agent"},
		"allowed_features":        []any{"screen_view"},
	}

	// recording disabled: retention days not required.
	if _, errs := Validate(policy.DomainRemoteSession, raw); len(errs) != 0 {
		t.Fatalf("Validate() errors = %v, want none", errs)
	}

	// recording enabled: retention days becomes required.
	raw["recording_enabled"] = true
	_, errs := Validate(policy.DomainRemoteSession, raw)
	if len(errs) != 1 || errs[0].Field != "recording_retention_days" {
		t.Fatalf("Validate() errors = %v, want one for recording_retention_days", errs)
	}

	raw["recording_retention_days"] = 90
	if _, errs := Validate(policy.DomainRemoteSession, raw); len(errs) != 0 {
		t.Fatalf("Validate() errors = %v, want none", errs)
	}
}

func TestValidateJSON(t *testing.T) {
	good := []byte(`{
		"first_response_minutes": 15,
		"resolution_minutes": 240,
		"grace_minutes": 5,
		"business_hours_only": false,
		"priorities": ["normal"],
		"pause_statuses": [],
		"breach_actions": ["notify"],
		"notify_roles": ["team_lead"]
	}`)
	if _, errs := ValidateJSON(policy.DomainSLA, good); len(errs) != 0 {
		t.Fatalf("ValidateJSON() errors = %v, want none", errs)
	}

	if _, errs := ValidateJSON(policy.DomainSLA, []byte(`{not json`)); len(errs) == 0 {
		t.Fatal("ValidateJSON() accepted malformed JSON")
	}
}
