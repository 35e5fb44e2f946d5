package memory

import (
	"context"
	"sync"

	"confsync/internal/core/domain"
	"confsync/internal/core/ports"
)

type MemoryObjectStore struct {
	mu sync.RWMutex
	// conference -> object key -> last pushed value
	values map[domain.ConferenceID]map[string]any
}

func NewMemoryObjectStore() ports.SynchronizedObjectStore {
	return &MemoryObjectStore{
		values: make(map[domain.ConferenceID]map[string]any),
	}
}

func (s *MemoryObjectStore) CreateOrReplace(ctx context.Context, conferenceID domain.ConferenceID, key string, value any) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conference, exists := s.values[conferenceID]
	if !exists {
		conference = make(map[string]any)
		s.values[conferenceID] = conference
	}

	previous, existed := conference[key]
	conference[key] = value
	if !existed {
		return nil, nil
	}
	return previous, nil
}

func (s *MemoryObjectStore) Get(ctx context.Context, conferenceID domain.ConferenceID, key string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.values[conferenceID][key]
	if !exists {
		return nil, domain.ErrObjectNotFound
	}
	return value, nil
}

func (s *MemoryObjectStore) RemoveConference(ctx context.Context, conferenceID domain.ConferenceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, conferenceID)
	return nil
}
