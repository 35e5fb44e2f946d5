package memory

import (
	"context"
	"sync"

	"confsync/internal/core/domain"
	"confsync/internal/core/ports"
)

type MemorySceneRepository struct {
	mu       sync.RWMutex
	mappings map[domain.ConferenceID]domain.SceneMapping
}

func NewMemorySceneRepository() ports.SceneRepository {
	return &MemorySceneRepository{
		mappings: make(map[domain.ConferenceID]domain.SceneMapping),
	}
}

// Get returns the stored mapping by reference. Mappings are copy-on-write, so
// a handed out reference stays a consistent snapshot.
func (r *MemorySceneRepository) Get(ctx context.Context, conferenceID domain.ConferenceID) (domain.SceneMapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mapping, exists := r.mappings[conferenceID]
	if !exists {
		return nil, domain.ErrConferenceNotFound
	}
	return mapping, nil
}

func (r *MemorySceneRepository) Set(ctx context.Context, conferenceID domain.ConferenceID, mapping domain.SceneMapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.mappings[conferenceID] = mapping
	return nil
}

func (r *MemorySceneRepository) Remove(ctx context.Context, conferenceID domain.ConferenceID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.mappings, conferenceID)
	return nil
}
