package ports

import (
	"context"

	"confsync/internal/core/domain"
)

// SynchronizedObjectProvider computes the current value of one kind of
// synchronized object. Exactly one provider is registered per kind at
// startup; the registry is immutable afterwards.
type SynchronizedObjectProvider interface {
	Kind() string
	// FetchValue may block on I/O. A returned error aborts the update with
	// no store write and no notification.
	FetchValue(ctx context.Context, conferenceID domain.ConferenceID, id domain.SynchronizedObjectID) (any, error)
}

type SynchronizationService interface {
	// RequestUpdate recomputes and redistributes the object's value. Any
	// subsystem calls this whenever it believes the value changed. Returns
	// once the update is committed; delivery itself is best-effort.
	RequestUpdate(ctx context.Context, conferenceID domain.ConferenceID, id domain.SynchronizedObjectID) error
	// SubscribeParticipant registers interest and pushes the current value
	// to the new subscriber immediately.
	SubscribeParticipant(ctx context.Context, participant domain.Participant, id domain.SynchronizedObjectID) error
	UnsubscribeParticipant(ctx context.Context, participant domain.Participant, id domain.SynchronizedObjectID) error
	// ParticipantDisconnected removes all of the participant's subscriptions
	// atomically.
	ParticipantDisconnected(ctx context.Context, participant domain.Participant) error
	ConferenceClosed(ctx context.Context, conferenceID domain.ConferenceID) error
}

// NotificationFanout delivers update envelopes to participant connections.
// Delivery is best-effort: unreachable participants are silently dropped and
// must request a full resync on reconnect.
type NotificationFanout interface {
	Publish(ctx context.Context, conferenceID domain.ConferenceID, participantIDs []domain.ParticipantID, objectKey string, value, previousValue any) error
}

type PermissionEvaluator interface {
	GetPermissions(ctx context.Context, participant domain.Participant) (*domain.ParticipantPermissions, error)
}

// SceneBuilderContext carries the room being composed through stack building.
type SceneBuilderContext struct {
	ConferenceID domain.ConferenceID
	RoomID       domain.RoomID
}

// SceneProvider contributes scenes of one or more types and reports how a
// scene composes with an underlying one when the render stack is built.
type SceneProvider interface {
	IsProvided(scene domain.Scene) bool
	// WrappedScene returns the scene the given one renders on top of;
	// ok=false marks a leaf.
	WrappedScene(ctx context.Context, builderCtx SceneBuilderContext, scene domain.Scene) (wrapped domain.Scene, ok bool, err error)
	// FetchPermissionsForParticipant returns the permission layers the scene
	// contributes for the participant, e.g. extra media grants for the
	// talking stick holder.
	FetchPermissionsForParticipant(ctx context.Context, scene domain.Scene, participant domain.Participant, stack []domain.Scene) ([]domain.PermissionLayer, error)
}

type SceneService interface {
	SetScene(ctx context.Context, participant domain.Participant, roomID domain.RoomID, scene domain.Scene) error
	BuildStack(ctx context.Context, builderCtx SceneBuilderContext, scene domain.Scene) ([]domain.Scene, error)
	FetchPermissionsForParticipant(ctx context.Context, participant domain.Participant, roomID domain.RoomID) ([]domain.PermissionLayer, error)
}

type RoomService interface {
	CreateRooms(ctx context.Context, participant domain.Participant, rooms []domain.Room) error
	RemoveRooms(ctx context.Context, participant domain.Participant, roomIDs []domain.RoomID) error
	State(ctx context.Context, conferenceID domain.ConferenceID) (domain.RoomState, error)
}

// ConferenceLocker serializes a read-modify-write-and-trigger sequence per
// string key. The in-process implementation is a keyed mutex; the redis one
// extends the guarantee across instances. Unlock must be called on every
// exit path.
type ConferenceLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// RoomLifecycleEvent is emitted after room state changed; exactly one of
// Rooms / RoomIDs is populated depending on Kind.
type RoomLifecycleEvent struct {
	ConferenceID domain.ConferenceID
	Kind         RoomEventKind
	Rooms        []domain.Room
	RoomIDs      []domain.RoomID
}

type RoomEventKind string

const (
	RoomsCreated RoomEventKind = "rooms.created"
	RoomsRemoved RoomEventKind = "rooms.removed"
)

// RoomLifecycleSource lets consumers attach to room lifecycle events at
// startup; the returned detach func must be called on shutdown so no handler
// reference dangles.
type RoomLifecycleSource interface {
	SubscribeRoomEvents(handler func(ctx context.Context, event RoomLifecycleEvent)) (detach func())
}
