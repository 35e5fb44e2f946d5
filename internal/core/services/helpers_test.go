package services

import (
	"context"
	"sync"

	"confsync/internal/core/domain"
	"confsync/internal/core/ports"
)

// fakeProvider is a SynchronizedObjectProvider with a canned value and an
// invocation counter.
type fakeProvider struct {
	kind string

	mu         sync.Mutex
	value      any
	err        error
	fetchCalls int
}

func (p *fakeProvider) Kind() string { return p.kind }

func (p *fakeProvider) FetchValue(ctx context.Context, conferenceID domain.ConferenceID, id domain.SynchronizedObjectID) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetchCalls++
	return p.value, p.err
}

func (p *fakeProvider) setValue(value any) {
	p.mu.Lock()
	p.value = value
	p.mu.Unlock()
}

func (p *fakeProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetchCalls
}

type publishRecord struct {
	conferenceID   domain.ConferenceID
	participantIDs []domain.ParticipantID
	objectKey      string
	value          any
	previousValue  any
}

// recordingFanout captures every Publish call.
type recordingFanout struct {
	mu      sync.Mutex
	records []publishRecord
	err     error
}

func (f *recordingFanout) Publish(ctx context.Context, conferenceID domain.ConferenceID, participantIDs []domain.ParticipantID, objectKey string, value, previousValue any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, publishRecord{
		conferenceID:   conferenceID,
		participantIDs: participantIDs,
		objectKey:      objectKey,
		value:          value,
		previousValue:  previousValue,
	})
	return f.err
}

func (f *recordingFanout) published() []publishRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]publishRecord, len(f.records))
	copy(out, f.records)
	return out
}

// recordingSync captures RequestUpdate calls; the other operations are inert.
type recordingSync struct {
	mu      sync.Mutex
	updates []domain.SynchronizedObjectID
}

func (s *recordingSync) RequestUpdate(ctx context.Context, conferenceID domain.ConferenceID, id domain.SynchronizedObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, id)
	return nil
}

func (s *recordingSync) SubscribeParticipant(ctx context.Context, participant domain.Participant, id domain.SynchronizedObjectID) error {
	return nil
}

func (s *recordingSync) UnsubscribeParticipant(ctx context.Context, participant domain.Participant, id domain.SynchronizedObjectID) error {
	return nil
}

func (s *recordingSync) ParticipantDisconnected(ctx context.Context, participant domain.Participant) error {
	return nil
}

func (s *recordingSync) ConferenceClosed(ctx context.Context, conferenceID domain.ConferenceID) error {
	return nil
}

func (s *recordingSync) requested() []domain.SynchronizedObjectID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SynchronizedObjectID, len(s.updates))
	copy(out, s.updates)
	return out
}

// staticPermissions evaluates every participant to the same fixed grants.
type staticPermissions struct {
	grants map[string]bool
}

func (p *staticPermissions) GetPermissions(ctx context.Context, participant domain.Participant) (*domain.ParticipantPermissions, error) {
	return domain.MergePermissionLayers([]domain.PermissionLayer{{
		Order:       domain.LayerOrderConferenceDefault,
		Name:        "test",
		Permissions: p.grants,
	}}), nil
}

func allowAll() ports.PermissionEvaluator {
	return &staticPermissions{grants: map[string]bool{
		domain.PermissionCanSetScene.Key:             true,
		domain.PermissionCanCreateAndRemoveRooms.Key: true,
	}}
}

func denyAll() ports.PermissionEvaluator {
	return &staticPermissions{grants: map[string]bool{}}
}
