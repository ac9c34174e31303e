// Package service contains application services.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Desk-Guard/Deskguard/internal/adapter/outbound/memory"
	"github.com/Desk-Guard/Deskguard/internal/adapter/outbound/state"
)

// StatePersister snapshots the memory stores to state.json after each
// mutation, so the memory backend survives restarts. It is only wired
// when the engine runs on the memory backend; services treat a nil
// persister as "durable store, nothing to do".
type StatePersister struct {
	stateStore *state.FileStateStore
	templates  *memory.TemplateStore
	versions   *memory.VersionStore
	logger     *slog.Logger
	mu         sync.Mutex // serializes state writes
	createdAt  time.Time
}

// NewStatePersister creates a persister over the given memory stores.
func NewStatePersister(
	stateStore *state.FileStateStore,
	templates *memory.TemplateStore,
	versions *memory.VersionStore,
	logger *slog.Logger,
) *StatePersister {
	return &StatePersister{
		stateStore: stateStore,
		templates:  templates,
		versions:   versions,
		logger:     logger,
	}
}

// Restore loads state.json into the memory stores. Called once at boot,
// before the engine serves requests.
func (p *StatePersister) Restore(ctx context.Context) error {
	st, err := p.stateStore.Load()
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	p.templates.Restore(st.Templates)
	p.versions.Restore(st.Versions)
	p.createdAt = st.CreatedAt
	p.logger.Info("state restored",
		"path", p.stateStore.Path(),
		"templates", len(st.Templates),
		"versions", len(st.Versions))
	return nil
}

// Persist writes the current store contents to state.json.
func (p *StatePersister) Persist(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	templates, err := p.templates.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot templates: %w", err)
	}
	versions, err := p.versions.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot versions: %w", err)
	}

	now := time.Now().UTC()
	createdAt := p.createdAt
	if createdAt.IsZero() {
		createdAt = now
		p.createdAt = now
	}

	st := &state.EngineState{
		Version:   "1",
		Templates: templates,
		Versions:  versions,
		CreatedAt: createdAt,
		UpdatedAt: now,
	}
	if err := p.stateStore.Save(st); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// persistState is the shared helper services call after a mutation.
// A nil persister means the backing store is durable on its own.
func persistState(ctx context.Context, p *StatePersister, logger *slog.Logger, op string) error {
	if p == nil {
		return nil
	}
	if err := p.Persist(ctx); err != nil {
		logger.Error("failed to persist state", "op", op, "error", err)
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}
