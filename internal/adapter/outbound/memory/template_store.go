// Package memory provides in-memory store implementations.
// Thread-safe for concurrent access; suitable for development, tests,
// and single-instance deployments backed by a state snapshot.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Desk-Guard/Deskguard/internal/domain/policy"
)

// TemplateStore implements policy.TemplateStore with an in-memory map.
type TemplateStore struct {
	templates map[string]*policy.Template // ID -> Template
	mu        sync.RWMutex
}

// NewTemplateStore creates an empty in-memory template store.
func NewTemplateStore() *TemplateStore {
	return &TemplateStore{
		templates: make(map[string]*policy.Template),
	}
}

// CreateTemplate persists a new template. The audit func runs under the
// store lock before the write lands; its failure leaves the store
// untouched.
func (s *TemplateStore) CreateTemplate(ctx context.Context, t *policy.Template, auditFn policy.AuditFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if auditFn != nil {
		if err := auditFn(ctx); err != nil {
			return err
		}
	}
	cp := *t
	s.templates[t.ID] = &cp
	return nil
}

// UpdateTemplate replaces an existing template. Audit failure leaves the
// stored template unchanged.
// Returns *policy.NotFoundError if the template does not exist.
func (s *TemplateStore) UpdateTemplate(ctx context.Context, t *policy.Template, auditFn policy.AuditFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.templates[t.ID]; !ok {
		return policy.NewTemplateNotFound(t.ID)
	}
	if auditFn != nil {
		if err := auditFn(ctx); err != nil {
			return err
		}
	}
	cp := *t
	s.templates[t.ID] = &cp
	return nil
}

// GetTemplate returns a template by id.
func (s *TemplateStore) GetTemplate(ctx context.Context, id string) (*policy.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[id]
	if !ok {
		return nil, policy.NewTemplateNotFound(id)
	}
	cp := *t
	return &cp, nil
}

// ListTemplates returns templates matching the filter, ordered by
// creation time ascending.
func (s *TemplateStore) ListTemplates(ctx context.Context, filter policy.TemplateFilter) ([]policy.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []policy.Template
	for _, t := range s.templates {
		if filter.Domain != "" && t.Domain != filter.Domain {
			continue
		}
		if filter.ActiveOnly && !t.IsActive {
			continue
		}
		result = append(result, *t)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// FindByScope returns all templates for the exact scope tuple.
func (s *TemplateStore) FindByScope(ctx context.Context, domain policy.Domain, scopeType policy.ScopeType, scopeValue string) ([]policy.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []policy.Template
	for _, t := range s.templates {
		if t.Domain == domain && t.ScopeType == scopeType && t.ScopeValue == scopeValue {
			result = append(result, *t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Snapshot returns every stored template, for state persistence.
func (s *TemplateStore) Snapshot(ctx context.Context) ([]policy.Template, error) {
	return s.ListTemplates(ctx, policy.TemplateFilter{})
}

// Restore loads templates into the store, replacing existing content.
// Used at boot when loading a state snapshot.
func (s *TemplateStore) Restore(templates []policy.Template) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.templates = make(map[string]*policy.Template, len(templates))
	for i := range templates {
		cp := templates[i]
		s.templates[cp.ID] = &cp
	}
}
