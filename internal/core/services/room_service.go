package services

import (
	"context"
	"fmt"
	"sync"

	"confsync/internal/core/domain"
	"confsync/internal/core/ports"
	apperrors "confsync/pkg/errors"
	"confsync/pkg/utils"

	"go.uber.org/zap"
)

var roomsObjectID = domain.NewSynchronizedObjectID(domain.KindRooms)

// RoomService owns per-conference room state. It emits lifecycle events to
// attached consumers (the scene engine among them), synchronizes the room
// list as the "rooms" object, and gates mutations on rooms/canCreateAndRemove.
//
// Event handlers run synchronously on the mutating goroutine, so dependent
// state (scenes) is consistent with room state by the time a mutation
// returns.
type RoomService struct {
	repo        ports.RoomRepository
	permissions ports.PermissionEvaluator
	sync        ports.SynchronizationService
	logger      *zap.SugaredLogger

	mu            sync.Mutex
	handlers      map[int]func(ctx context.Context, event ports.RoomLifecycleEvent)
	nextHandlerID int
}

func NewRoomService(
	repo ports.RoomRepository,
	permissions ports.PermissionEvaluator,
	sync ports.SynchronizationService,
	logger *zap.SugaredLogger,
) *RoomService {
	return &RoomService{
		repo:        repo,
		permissions: permissions,
		sync:        sync,
		logger:      logger,
		handlers:    make(map[int]func(ctx context.Context, event ports.RoomLifecycleEvent)),
	}
}

// SubscribeRoomEvents implements ports.RoomLifecycleSource.
func (s *RoomService) SubscribeRoomEvents(handler func(ctx context.Context, event ports.RoomLifecycleEvent)) (detach func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextHandlerID
	s.nextHandlerID++
	s.handlers[id] = handler

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers, id)
	}
}

// Kind implements ports.SynchronizedObjectProvider.
func (s *RoomService) Kind() string { return domain.KindRooms }

// FetchValue implements ports.SynchronizedObjectProvider.
func (s *RoomService) FetchValue(ctx context.Context, conferenceID domain.ConferenceID, _ domain.SynchronizedObjectID) (any, error) {
	return s.repo.State(ctx, conferenceID)
}

// OpenConference seeds the conference with its default room. Server action,
// not permission gated.
func (s *RoomService) OpenConference(ctx context.Context, conferenceID domain.ConferenceID) error {
	defaultRoom := domain.Room{
		ID:          domain.RoomID(utils.GenerateRoomID()),
		DisplayName: "Main",
		IsDefault:   true,
	}
	if err := s.repo.CreateRooms(ctx, conferenceID, []domain.Room{defaultRoom}); err != nil {
		return fmt.Errorf("create default room of conference %s: %w", conferenceID, err)
	}

	s.emit(ctx, ports.RoomLifecycleEvent{
		ConferenceID: conferenceID,
		Kind:         ports.RoomsCreated,
		Rooms:        []domain.Room{defaultRoom},
	})
	return s.sync.RequestUpdate(ctx, conferenceID, roomsObjectID)
}

func (s *RoomService) CreateRooms(ctx context.Context, participant domain.Participant, rooms []domain.Room) error {
	if err := s.requirePermission(ctx, participant, domain.PermissionCanCreateAndRemoveRooms); err != nil {
		return err
	}
	if len(rooms) == 0 {
		return nil
	}

	created := make([]domain.Room, len(rooms))
	for i, room := range rooms {
		if room.ID == "" {
			room.ID = domain.RoomID(utils.GenerateRoomID())
		}
		room.IsDefault = false
		created[i] = room
	}

	if err := s.repo.CreateRooms(ctx, participant.ConferenceID, created); err != nil {
		return fmt.Errorf("create rooms of conference %s: %w", participant.ConferenceID, err)
	}

	s.emit(ctx, ports.RoomLifecycleEvent{
		ConferenceID: participant.ConferenceID,
		Kind:         ports.RoomsCreated,
		Rooms:        created,
	})
	return s.sync.RequestUpdate(ctx, participant.ConferenceID, roomsObjectID)
}

func (s *RoomService) RemoveRooms(ctx context.Context, participant domain.Participant, roomIDs []domain.RoomID) error {
	if err := s.requirePermission(ctx, participant, domain.PermissionCanCreateAndRemoveRooms); err != nil {
		return err
	}
	if len(roomIDs) == 0 {
		return nil
	}

	state, err := s.repo.State(ctx, participant.ConferenceID)
	if err != nil {
		return fmt.Errorf("read room state of conference %s: %w", participant.ConferenceID, err)
	}
	for _, roomID := range roomIDs {
		if roomID == state.DefaultRoomID {
			return apperrors.NewInvalidInputError("the default room cannot be removed")
		}
	}

	if err := s.repo.RemoveRooms(ctx, participant.ConferenceID, roomIDs); err != nil {
		return fmt.Errorf("remove rooms of conference %s: %w", participant.ConferenceID, err)
	}

	s.emit(ctx, ports.RoomLifecycleEvent{
		ConferenceID: participant.ConferenceID,
		Kind:         ports.RoomsRemoved,
		RoomIDs:      roomIDs,
	})
	return s.sync.RequestUpdate(ctx, participant.ConferenceID, roomsObjectID)
}

func (s *RoomService) State(ctx context.Context, conferenceID domain.ConferenceID) (domain.RoomState, error) {
	return s.repo.State(ctx, conferenceID)
}

// ConferenceClosed drops the conference's room state without emitting
// lifecycle events; dependent services tear down through their own
// ConferenceClosed path.
func (s *RoomService) ConferenceClosed(ctx context.Context, conferenceID domain.ConferenceID) error {
	return s.repo.RemoveConference(ctx, conferenceID)
}

func (s *RoomService) requirePermission(ctx context.Context, participant domain.Participant, descriptor domain.PermissionDescriptor) error {
	permissions, err := s.permissions.GetPermissions(ctx, participant)
	if err != nil {
		return fmt.Errorf("evaluate permissions of participant %s: %w", participant.ParticipantID, err)
	}
	if !permissions.GetPermissionValue(descriptor) {
		return domain.ErrPermissionDenied
	}
	return nil
}

func (s *RoomService) emit(ctx context.Context, event ports.RoomLifecycleEvent) {
	s.mu.Lock()
	handlers := make([]func(ctx context.Context, event ports.RoomLifecycleEvent), 0, len(s.handlers))
	for _, handler := range s.handlers {
		handlers = append(handlers, handler)
	}
	s.mu.Unlock()

	for _, handler := range handlers {
		handler(ctx, event)
	}
}
