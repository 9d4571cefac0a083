package checkpoint

import (
	"context"
	"sync"

	"github.com/ajitpratap0/searchsync/pkg/models"
)

// MemoryStore is an in-process Store used by tests. It is concurrency
// safe but provides no durability.
type MemoryStore struct {
	mu    sync.RWMutex
	state map[models.EntityType]models.Watermark

	// FailSet, when set, makes every Set call return this error.
	FailSet error
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: make(map[models.EntityType]models.Watermark)}
}

// Get returns the stored watermark for entity, if any.
func (s *MemoryStore) Get(ctx context.Context, entity models.EntityType) (models.Watermark, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wm, ok := s.state[entity]
	return wm, ok, nil
}

// Set records the watermark for entity.
func (s *MemoryStore) Set(ctx context.Context, entity models.EntityType, wm models.Watermark) error {
	if s.FailSet != nil {
		return s.FailSet
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[entity] = wm
	return nil
}

// Reset removes the entity's watermark.
func (s *MemoryStore) Reset(ctx context.Context, entity models.EntityType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state, entity)
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
