package provider

import (
	"context"

	"github.com/Desk-Guard/Deskguard/internal/domain/policy"
	"github.com/Desk-Guard/Deskguard/internal/domain/sample"
)

// StaticProvider serves a fixed set of entities per domain. It backs
// simulations in deployments without a sample service, and tests.
type StaticProvider struct {
	entities map[policy.Domain][]sample.Entity
	err      error
}

// NewStaticProvider creates a provider serving the given entities.
func NewStaticProvider(entities map[policy.Domain][]sample.Entity) *StaticProvider {
	if entities == nil {
		entities = map[policy.Domain][]sample.Entity{}
	}
	return &StaticProvider{entities: entities}
}

// NewFailingProvider creates a provider whose fetches always fail.
func NewFailingProvider(err error) *StaticProvider {
	return &StaticProvider{err: err}
}

// FetchSample returns entities for the domain, narrowed to the scope
// when entities carry a matching attribute (queue or ticket_type).
func (p *StaticProvider) FetchSample(ctx context.Context, domain policy.Domain, scope sample.Scope, limit int) ([]sample.Entity, error) {
	if p.err != nil {
		return nil, p.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []sample.Entity
	for _, e := range p.entities[domain] {
		if !scopeMatches(&e, scope) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// scopeMatches narrows entities by scope attribute. Global scope keeps
// everything; queue and ticket_type scopes keep entities whose
// corresponding attribute equals the scope value, and entities that do
// not carry the attribute at all.
func scopeMatches(e *sample.Entity, scope sample.Scope) bool {
	var key string
	switch scope.ScopeType {
	case policy.ScopeQueue:
		key = "queue"
	case policy.ScopeTicketType:
		key = "ticket_type"
	default:
		return true
	}
	v, ok := e.Attrs[key]
	if !ok {
		return true
	}
	s, ok := v.(string)
	return !ok || s == scope.ScopeValue
}
