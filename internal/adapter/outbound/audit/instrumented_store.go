package audit

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Desk-Guard/Deskguard/internal/domain/audit"
)

// InstrumentedStore wraps a Store and counts successful appends.
// Failed appends are not counted; they surface as operation errors.
type InstrumentedStore struct {
	inner   audit.Store
	appends prometheus.Counter
}

// NewInstrumentedStore wraps inner with an append counter.
func NewInstrumentedStore(inner audit.Store, appends prometheus.Counter) *InstrumentedStore {
	return &InstrumentedStore{inner: inner, appends: appends}
}

func (s *InstrumentedStore) Append(ctx context.Context, e *audit.Entry) error {
	if err := s.inner.Append(ctx, e); err != nil {
		return err
	}
	s.appends.Inc()
	return nil
}

func (s *InstrumentedStore) Query(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	return s.inner.Query(ctx, f)
}

func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}
