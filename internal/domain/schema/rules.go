package schema

import "github.com/Desk-Guard/Deskguard/internal/domain/policy"

// ModerationActions is the closed set of chat moderation actions.
var ModerationActions = []string{"flagged", "hidden", "visible"}

// BreachActions is the closed set of SLA breach actions.
var BreachActions = []string{"notify", "escalate", "reassign"}

// SessionFeatures is the closed set of remote-session features.
var SessionFeatures = []string{"screen_view", "remote_control", "file_transfer", "clipboard"}

// chatRules defines the chat-moderation config contract.
var chatRules = []FieldRule{
	{Path: "retention_days", Kind: KindInt, Positive: true},
	{Path: "max_message_length", Kind: KindInt, Positive: true},
	{Path: "max_attachments", Kind: KindInt, NonNegative: true},
	{Path: "max_attachment_size_mb", Kind: KindNumber, Positive: true},
	{Path: "allowed_attachment_types", Kind: KindStringList},
	{Path: "allowed_sender_roles", Kind: KindStringList, NonEmpty: true},
	{Path: "allow_edit", Kind: KindBool},
	{Path: "allow_delete", Kind: KindBool},
	{Path: "slow_mode_seconds", Kind: KindInt, NonNegative: true},
	{Path: "moderation.roles", Kind: KindStringList, NonEmpty: true},
	{Path: "moderation.actions", Kind: KindStringList, NonEmpty: true, Enum: ModerationActions},
	{Path: "moderation.flag_keywords", Kind: KindStringList},
}

// slaRules defines the SLA config contract.
var slaRules = []FieldRule{
	{Path: "first_response_minutes", Kind: KindInt, Positive: true},
	{Path: "resolution_minutes", Kind: KindInt, Positive: true},
	{Path: "grace_minutes", Kind: KindInt, NonNegative: true},
	{Path: "business_hours_only", Kind: KindBool},
	{Path: "priorities", Kind: KindStringList, NonEmpty: true},
	{Path: "pause_statuses", Kind: KindStringList},
	{Path: "breach_actions", Kind: KindStringList, NonEmpty: true, Enum: BreachActions},
	{Path: "notify_roles", Kind: KindStringList, NonEmpty: true},
}

// remoteSessionRules defines the remote-session config contract.
var remoteSessionRules = []FieldRule{
	{Path: "max_duration_minutes", Kind: KindInt, Positive: true},
	{Path: "idle_timeout_minutes", Kind: KindInt, Positive: true},
	{Path: "max_concurrent_sessions", Kind: KindInt, Positive: true},
	{Path: "require_consent", Kind: KindBool},
	{Path: "recording_enabled", Kind: KindBool},
	{Path: "recording_retention_days", Kind: KindInt, Positive: true, RequiredIf: "recording_enabled"},
	{Path: "allowed_operator_roles", Kind: KindStringList, NonEmpty: true},
	{Path: "allowed_features", Kind: KindStringList, NonEmpty: true, Enum: SessionFeatures},
}

// domainRules maps each policy domain to its field-rule table.
var domainRules = map[policy.Domain][]FieldRule{
	policy.DomainChat:          chatRules,
	policy.DomainSLA:           slaRules,
	policy.DomainRemoteSession: remoteSessionRules,
}

// RulesFor returns the field-rule table for a domain, or nil for an
// unknown domain.
func RulesFor(d policy.Domain) []FieldRule {
	return domainRules[d]
}
