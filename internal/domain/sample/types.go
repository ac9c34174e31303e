// Package sample defines the domain-data collaborator consumed by the
// simulation engine: live tickets, chat messages, and remote sessions
// fetched as bounded samples. The engine treats this input as untrusted
// and best-effort.
package sample

import (
	"context"
	"time"

	"github.com/Desk-Guard/Deskguard/internal/domain/policy"
)

// Scope narrows which entities a provider should sample.
type Scope struct {
	// ScopeType is the template's scope dimension.
	ScopeType policy.ScopeType `json:"scope_type"`
	// ScopeValue is the queue or ticket type, empty for global scope.
	ScopeValue string `json:"scope_value,omitempty"`
}

// Entity is one sampled domain object. Attrs carries the domain-specific
// fields the per-domain evaluators read (e.g. "sender_role", "body",
// "attachments" for chat messages). Attribute values use JSON types.
type Entity struct {
	// ID identifies the entity in the source system.
	ID string `json:"id"`
	// Kind names the entity type: "message", "ticket", or "session".
	Kind string `json:"kind"`
	// CreatedAt is when the entity was created in the source system.
	CreatedAt time.Time `json:"created_at"`
	// Attrs holds the domain-specific fields.
	Attrs map[string]any `json:"attrs"`
}

// Provider fetches bounded samples of live domain entities.
// Implementations must respect ctx cancellation; the simulation engine
// wraps calls in a timeout so a pathological fetch cannot stall callers.
type Provider interface {
	// FetchSample returns up to limit entities for the domain and scope.
	// Returning fewer than limit entities is not an error.
	FetchSample(ctx context.Context, domain policy.Domain, scope Scope, limit int) ([]Entity, error)
}

// Number returns a numeric attribute, tolerating JSON integer decoding.
func (e Entity) Number(key string) (float64, bool) {
	switch v := e.Attrs[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// String returns a string attribute.
func (e Entity) String(key string) (string, bool) {
	s, ok := e.Attrs[key].(string)
	return s, ok
}

// StringList returns a list-of-strings attribute, tolerating []any.
func (e Entity) StringList(key string) ([]string, bool) {
	switch v := e.Attrs[key].(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, el := range v {
			s, ok := el.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// Bool returns a boolean attribute.
func (e Entity) Bool(key string) (bool, bool) {
	b, ok := e.Attrs[key].(bool)
	return b, ok
}
