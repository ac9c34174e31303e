package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/Desk-Guard/Deskguard/internal/domain/audit"
)

// AuditStore implements audit.Store with an in-memory slice.
// Entries are append-only; there is no way to update or delete them.
type AuditStore struct {
	entries  []audit.Entry
	failNext bool
	mu       sync.RWMutex
}

// NewAuditStore creates an empty in-memory audit store.
func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

// Append stores one entry.
func (s *AuditStore) Append(ctx context.Context, e *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext {
		s.failNext = false
		return errors.New("audit append failed")
	}
	s.entries = append(s.entries, *e)
	return nil
}

// FailNext makes the next Append return an error. Lets tests exercise
// the audit-failure-aborts-operation contract.
func (s *AuditStore) FailNext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = true
}

// Query returns entries matching the filter, newest first.
func (s *AuditStore) Query(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = audit.DefaultQueryLimit
	}
	if limit > audit.MaxQueryLimit {
		limit = audit.MaxQueryLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []audit.Entry
	for i := len(s.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if f.Matches(&s.entries[i]) {
			result = append(result, s.entries[i])
		}
	}
	return result, nil
}

// Len returns the number of stored entries.
func (s *AuditStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close implements audit.Store; a memory store has nothing to release.
func (s *AuditStore) Close() error {
	return nil
}
