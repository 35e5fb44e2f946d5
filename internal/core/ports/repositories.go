package ports

import (
	"context"

	"confsync/internal/core/domain"
)

// ConferenceSubscriptions indexes, for one conference, which synchronized
// object ids every participant currently watches.
type ConferenceSubscriptions map[domain.ParticipantID][]domain.SynchronizedObjectID

type SubscriptionRepository interface {
	GetOfConference(ctx context.Context, conferenceID domain.ConferenceID) (ConferenceSubscriptions, error)
	Subscribe(ctx context.Context, conferenceID domain.ConferenceID, participantID domain.ParticipantID, id domain.SynchronizedObjectID) error
	Unsubscribe(ctx context.Context, conferenceID domain.ConferenceID, participantID domain.ParticipantID, id domain.SynchronizedObjectID) error
	// RemoveParticipant drops all subscriptions of the participant in one
	// atomic step. Called on disconnect; must succeed even during conference
	// teardown.
	RemoveParticipant(ctx context.Context, conferenceID domain.ConferenceID, participantID domain.ParticipantID) error
	RemoveConference(ctx context.Context, conferenceID domain.ConferenceID) error
}

type SynchronizedObjectStore interface {
	// CreateOrReplace atomically replaces the stored value for
	// (conferenceID, key) wholesale and returns the complete previous value,
	// or nil on the first write.
	CreateOrReplace(ctx context.Context, conferenceID domain.ConferenceID, key string, value any) (previous any, err error)
	Get(ctx context.Context, conferenceID domain.ConferenceID, key string) (any, error)
	RemoveConference(ctx context.Context, conferenceID domain.ConferenceID) error
}

type RoomRepository interface {
	State(ctx context.Context, conferenceID domain.ConferenceID) (domain.RoomState, error)
	CreateRooms(ctx context.Context, conferenceID domain.ConferenceID, rooms []domain.Room) error
	RemoveRooms(ctx context.Context, conferenceID domain.ConferenceID, roomIDs []domain.RoomID) error
	RemoveConference(ctx context.Context, conferenceID domain.ConferenceID) error
}

type SceneRepository interface {
	Get(ctx context.Context, conferenceID domain.ConferenceID) (domain.SceneMapping, error)
	Set(ctx context.Context, conferenceID domain.ConferenceID, mapping domain.SceneMapping) error
	Remove(ctx context.Context, conferenceID domain.ConferenceID) error
}
