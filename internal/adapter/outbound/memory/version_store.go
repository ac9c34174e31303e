package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Desk-Guard/Deskguard/internal/domain/policy"
)

// VersionStore implements policy.VersionStore with in-memory maps.
//
// The two lifecycle critical sections -- version number allocation and
// the publish transition -- are serialized with a per-template mutex, so
// operations on different templates never contend with each other.
type VersionStore struct {
	versions map[string]*policy.Version // version ID -> Version
	byTmpl   map[string][]string        // template ID -> version IDs
	mu       sync.RWMutex               // guards the maps

	tmplLocks map[string]*sync.Mutex // template ID -> critical-section lock
	lockMu    sync.Mutex             // guards tmplLocks
}

// NewVersionStore creates an empty in-memory version store.
func NewVersionStore() *VersionStore {
	return &VersionStore{
		versions:  make(map[string]*policy.Version),
		byTmpl:    make(map[string][]string),
		tmplLocks: make(map[string]*sync.Mutex),
	}
}

// lockTemplate returns the critical-section mutex for a template,
// creating it on first use.
func (s *VersionStore) lockTemplate(templateID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	l, ok := s.tmplLocks[templateID]
	if !ok {
		l = &sync.Mutex{}
		s.tmplLocks[templateID] = l
	}
	return l
}

// CreateVersion persists v as a draft, assigning the next version number
// for its template. Allocation is serialized per template so concurrent
// creates never share a number. The audit func runs inside the critical
// section; when it fails, no draft is stored.
func (s *VersionStore) CreateVersion(ctx context.Context, v *policy.Version, auditFn policy.AuditFunc) error {
	l := s.lockTemplate(v.TemplateID)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	next := 1
	for _, id := range s.byTmpl[v.TemplateID] {
		if n := s.versions[id].Number; n >= next {
			next = n + 1
		}
	}
	v.Number = next
	v.Status = policy.StatusDraft

	if auditFn != nil {
		if err := auditFn(ctx); err != nil {
			return err
		}
	}
	s.versions[v.ID] = v.Clone()
	s.byTmpl[v.TemplateID] = append(s.byTmpl[v.TemplateID], v.ID)
	return nil
}

// GetVersion returns a version by id.
func (s *VersionStore) GetVersion(ctx context.Context, id string) (*policy.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.versions[id]
	if !ok {
		return nil, policy.NewVersionNotFound(id)
	}
	return v.Clone(), nil
}

// ListVersions returns all versions of a template, version number descending.
func (s *VersionStore) ListVersions(ctx context.Context, templateID string) ([]policy.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byTmpl[templateID]
	result := make([]policy.Version, 0, len(ids))
	for _, id := range ids {
		result = append(result, *s.versions[id].Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Number > result[j].Number })
	return result, nil
}

// ReplaceConfig swaps the config of a draft version. Audit failure
// leaves the stored config unchanged.
func (s *VersionStore) ReplaceConfig(ctx context.Context, id string, cfg policy.Config, auditFn policy.AuditFunc) (*policy.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.versions[id]
	if !ok {
		return nil, policy.NewVersionNotFound(id)
	}
	if v.Status != policy.StatusDraft {
		return nil, &policy.StateError{Op: "update", Status: v.Status}
	}
	if auditFn != nil {
		if err := auditFn(ctx); err != nil {
			return nil, err
		}
	}
	v.Config = policy.CloneConfig(cfg)
	return v.Clone(), nil
}

// Publish atomically promotes a draft and archives the currently
// published version of the same template. The read-modify-write runs
// under the template's critical-section lock, and the caller's
// expectedPublishedID acts as a compare-and-swap guard: of N racing
// publishes exactly one call's expectation holds, the rest receive
// *policy.ConflictError. The audit func runs inside the critical
// section after the guard checks; when it fails, neither version
// changes status.
func (s *VersionStore) Publish(ctx context.Context, id, actor string, at time.Time, expectedPublishedID string, auditFn policy.AuditFunc) (*policy.PublishResult, error) {
	s.mu.RLock()
	v, ok := s.versions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, policy.NewVersionNotFound(id)
	}

	l := s.lockTemplate(v.TemplateID)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check under the lock: a racing publish may have won.
	v, ok = s.versions[id]
	if !ok {
		return nil, policy.NewVersionNotFound(id)
	}
	if v.Status != policy.StatusDraft {
		return nil, &policy.StateError{Op: "publish", Status: v.Status}
	}

	var current *policy.Version
	for _, otherID := range s.byTmpl[v.TemplateID] {
		if other := s.versions[otherID]; other.Status == policy.StatusPublished {
			current = other
			break
		}
	}
	currentID := ""
	if current != nil {
		currentID = current.ID
	}
	if currentID != expectedPublishedID {
		return nil, &policy.ConflictError{
			Reason: "another version was published concurrently; re-fetch and retry",
		}
	}

	if auditFn != nil {
		if err := auditFn(ctx); err != nil {
			return nil, err
		}
	}

	result := &policy.PublishResult{}
	if current != nil {
		current.Status = policy.StatusArchived
		result.Demoted = current.Clone()
	}

	v.Status = policy.StatusPublished
	v.PublishedBy = actor
	published := at
	v.PublishedAt = &published
	result.Published = v.Clone()
	return result, nil
}

// Archive retires a draft or published version. Audit failure leaves
// the status unchanged.
func (s *VersionStore) Archive(ctx context.Context, id string, at time.Time, auditFn policy.AuditFunc) (*policy.Version, error) {
	s.mu.RLock()
	v, ok := s.versions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, policy.NewVersionNotFound(id)
	}

	l := s.lockTemplate(v.TemplateID)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok = s.versions[id]
	if !ok {
		return nil, policy.NewVersionNotFound(id)
	}
	if v.Status == policy.StatusArchived {
		return nil, &policy.StateError{Op: "archive", Status: v.Status}
	}
	if auditFn != nil {
		if err := auditFn(ctx); err != nil {
			return nil, err
		}
	}
	v.Status = policy.StatusArchived
	return v.Clone(), nil
}

// GetPublished returns the template's published version, or nil.
func (s *VersionStore) GetPublished(ctx context.Context, templateID string) (*policy.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.byTmpl[templateID] {
		if v := s.versions[id]; v.Status == policy.StatusPublished {
			return v.Clone(), nil
		}
	}
	return nil, nil
}

// Snapshot returns every stored version, for state persistence.
func (s *VersionStore) Snapshot(ctx context.Context) ([]policy.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]policy.Version, 0, len(s.versions))
	for _, v := range s.versions {
		result = append(result, *v.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].TemplateID != result[j].TemplateID {
			return result[i].TemplateID < result[j].TemplateID
		}
		return result[i].Number < result[j].Number
	})
	return result, nil
}

// Restore loads versions into the store, replacing existing content.
// Used at boot when loading a state snapshot.
func (s *VersionStore) Restore(versions []policy.Version) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.versions = make(map[string]*policy.Version, len(versions))
	s.byTmpl = make(map[string][]string)
	for i := range versions {
		v := versions[i].Clone()
		s.versions[v.ID] = v
		s.byTmpl[v.TemplateID] = append(s.byTmpl[v.TemplateID], v.ID)
	}
}
