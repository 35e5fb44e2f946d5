package memory

import (
	"context"
	"sync"

	"confsync/internal/core/domain"
	"confsync/internal/core/ports"
)

type MemorySubscriptionRepository struct {
	mu sync.RWMutex
	// conference -> participant -> subscribed ids
	subs map[domain.ConferenceID]map[domain.ParticipantID]map[domain.SynchronizedObjectID]struct{}
}

func NewMemorySubscriptionRepository() ports.SubscriptionRepository {
	return &MemorySubscriptionRepository{
		subs: make(map[domain.ConferenceID]map[domain.ParticipantID]map[domain.SynchronizedObjectID]struct{}),
	}
}

func (r *MemorySubscriptionRepository) GetOfConference(ctx context.Context, conferenceID domain.ConferenceID) (ports.ConferenceSubscriptions, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(ports.ConferenceSubscriptions)
	for participantID, ids := range r.subs[conferenceID] {
		list := make([]domain.SynchronizedObjectID, 0, len(ids))
		for id := range ids {
			list = append(list, id)
		}
		out[participantID] = list
	}
	return out, nil
}

func (r *MemorySubscriptionRepository) Subscribe(ctx context.Context, conferenceID domain.ConferenceID, participantID domain.ParticipantID, id domain.SynchronizedObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conference, exists := r.subs[conferenceID]
	if !exists {
		conference = make(map[domain.ParticipantID]map[domain.SynchronizedObjectID]struct{})
		r.subs[conferenceID] = conference
	}
	participant, exists := conference[participantID]
	if !exists {
		participant = make(map[domain.SynchronizedObjectID]struct{})
		conference[participantID] = participant
	}
	participant[id] = struct{}{}
	return nil
}

func (r *MemorySubscriptionRepository) Unsubscribe(ctx context.Context, conferenceID domain.ConferenceID, participantID domain.ParticipantID, id domain.SynchronizedObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if participant, exists := r.subs[conferenceID][participantID]; exists {
		delete(participant, id)
		if len(participant) == 0 {
			delete(r.subs[conferenceID], participantID)
		}
	}
	return nil
}

func (r *MemorySubscriptionRepository) RemoveParticipant(ctx context.Context, conferenceID domain.ConferenceID, participantID domain.ParticipantID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conference, exists := r.subs[conferenceID]; exists {
		delete(conference, participantID)
		if len(conference) == 0 {
			delete(r.subs, conferenceID)
		}
	}
	return nil
}

func (r *MemorySubscriptionRepository) RemoveConference(ctx context.Context, conferenceID domain.ConferenceID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.subs, conferenceID)
	return nil
}
