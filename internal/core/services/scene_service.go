package services

import (
	"context"
	"errors"
	"fmt"

	"confsync/internal/core/domain"
	"confsync/internal/core/ports"
	apperrors "confsync/pkg/errors"

	"go.uber.org/zap"
)

// SceneOptions configures the scenes assigned to freshly created rooms.
type SceneOptions struct {
	// DefaultRoomScene is applied to the conference's default room.
	DefaultRoomScene domain.Scene
	// RoomScene is applied to every other room.
	RoomScene domain.Scene
}

func DefaultSceneOptions() SceneOptions {
	return SceneOptions{
		DefaultRoomScene: domain.Scene{Type: domain.SceneAutonomous},
		RoomScene:        domain.Scene{Type: domain.SceneGrid},
	}
}

var scenesObjectID = domain.NewSynchronizedObjectID(domain.KindScenes)

// SceneService maintains the per-room scene state of every conference. It is
// both a synchronized object provider (kind "scenes", value = the full
// roomID->scene mapping) and a trigger source: room lifecycle events and
// SetScene calls funnel through it back into the distributor.
//
// All mutations of one conference's mapping are serialized by a per-conference
// mutex held across the read-modify-write-and-trigger sequence and nothing
// else.
type SceneService struct {
	rooms       ports.RoomRepository
	scenes      ports.SceneRepository
	sync        ports.SynchronizationService
	permissions ports.PermissionEvaluator
	providers   []ports.SceneProvider
	opts        SceneOptions
	metrics     *MetricsService

	locks  ports.ConferenceLocker
	detach func()

	logger *zap.SugaredLogger
}

func NewSceneService(
	rooms ports.RoomRepository,
	scenes ports.SceneRepository,
	sync ports.SynchronizationService,
	permissions ports.PermissionEvaluator,
	providers []ports.SceneProvider,
	opts SceneOptions,
	locks ports.ConferenceLocker,
	metrics *MetricsService,
	logger *zap.SugaredLogger,
) *SceneService {
	return &SceneService{
		rooms:       rooms,
		scenes:      scenes,
		sync:        sync,
		permissions: permissions,
		providers:   providers,
		opts:        opts,
		locks:       locks,
		metrics:     metrics,
		logger:      logger,
	}
}

// Kind implements ports.SynchronizedObjectProvider.
func (s *SceneService) Kind() string { return domain.KindScenes }

// FetchValue implements ports.SynchronizedObjectProvider. It reads the
// current mapping without taking the scene lock: the distributor calls it
// from inside the mutation sequence, and the copy-on-write mapping is safe to
// hand out as-is.
func (s *SceneService) FetchValue(ctx context.Context, conferenceID domain.ConferenceID, _ domain.SynchronizedObjectID) (any, error) {
	mapping, err := s.scenes.Get(ctx, conferenceID)
	if err != nil {
		if errors.Is(err, domain.ErrConferenceNotFound) {
			return domain.SceneMapping{}, nil
		}
		return nil, err
	}
	return mapping, nil
}

// Attach subscribes to room lifecycle events. Detach happens in Close so no
// handler reference outlives the service.
func (s *SceneService) Attach(source ports.RoomLifecycleSource) {
	s.detach = source.SubscribeRoomEvents(s.onRoomEvent)
}

func (s *SceneService) Close() {
	if s.detach != nil {
		s.detach()
		s.detach = nil
	}
}

func (s *SceneService) onRoomEvent(ctx context.Context, event ports.RoomLifecycleEvent) {
	var err error
	switch event.Kind {
	case ports.RoomsCreated:
		err = s.RoomsCreated(ctx, event.ConferenceID, event.Rooms)
	case ports.RoomsRemoved:
		err = s.RoomsRemoved(ctx, event.ConferenceID, event.RoomIDs)
	}
	if err != nil {
		s.logger.Errorw("scene state update for room event failed",
			"conference_id", event.ConferenceID,
			"event", event.Kind,
			"error", err,
		)
	}
}

// InitializeConference seeds the scene mapping from the current room state:
// the default room gets the configured default-room scene, every other room
// the regular one.
func (s *SceneService) InitializeConference(ctx context.Context, conferenceID domain.ConferenceID) error {
	unlock, err := s.locks.Lock(ctx, string(conferenceID))
	if err != nil {
		return fmt.Errorf("acquire scene lock of conference %s: %w", conferenceID, err)
	}
	defer unlock()

	state, err := s.rooms.State(ctx, conferenceID)
	if err != nil {
		return fmt.Errorf("read room state of conference %s: %w", conferenceID, err)
	}

	mapping := make(domain.SceneMapping, len(state.Rooms))
	for _, room := range state.Rooms {
		mapping[room.ID] = s.defaultSceneFor(room, state.DefaultRoomID)
	}

	if err := s.scenes.Set(ctx, conferenceID, mapping); err != nil {
		return fmt.Errorf("store scene mapping of conference %s: %w", conferenceID, err)
	}
	return s.sync.RequestUpdate(ctx, conferenceID, scenesObjectID)
}

// RoomsCreated inserts default entries for each new room as one batch.
func (s *SceneService) RoomsCreated(ctx context.Context, conferenceID domain.ConferenceID, rooms []domain.Room) error {
	if len(rooms) == 0 {
		return nil
	}

	unlock, err := s.locks.Lock(ctx, string(conferenceID))
	if err != nil {
		return fmt.Errorf("acquire scene lock of conference %s: %w", conferenceID, err)
	}
	defer unlock()

	mapping, err := s.currentMapping(ctx, conferenceID)
	if err != nil {
		return err
	}

	state, err := s.rooms.State(ctx, conferenceID)
	if err != nil {
		return fmt.Errorf("read room state of conference %s: %w", conferenceID, err)
	}

	additions := make(map[domain.RoomID]domain.Scene, len(rooms))
	for _, room := range rooms {
		additions[room.ID] = s.defaultSceneFor(room, state.DefaultRoomID)
	}

	if err := s.scenes.Set(ctx, conferenceID, mapping.SetAll(additions)); err != nil {
		return fmt.Errorf("store scene mapping of conference %s: %w", conferenceID, err)
	}
	return s.sync.RequestUpdate(ctx, conferenceID, scenesObjectID)
}

// RoomsRemoved drops the entries of removed rooms as one batch. A later
// CreateRooms reusing a removed id starts over with the default scene.
func (s *SceneService) RoomsRemoved(ctx context.Context, conferenceID domain.ConferenceID, roomIDs []domain.RoomID) error {
	if len(roomIDs) == 0 {
		return nil
	}

	unlock, err := s.locks.Lock(ctx, string(conferenceID))
	if err != nil {
		return fmt.Errorf("acquire scene lock of conference %s: %w", conferenceID, err)
	}
	defer unlock()

	mapping, err := s.currentMapping(ctx, conferenceID)
	if err != nil {
		return err
	}

	if err := s.scenes.Set(ctx, conferenceID, mapping.Remove(roomIDs...)); err != nil {
		return fmt.Errorf("store scene mapping of conference %s: %w", conferenceID, err)
	}
	return s.sync.RequestUpdate(ctx, conferenceID, scenesObjectID)
}

// SetScene replaces one room's scene. Requires scenes/canSetScene; returns
// domain.ErrPermissionDenied or domain.ErrRoomNotFound as typed results.
func (s *SceneService) SetScene(ctx context.Context, participant domain.Participant, roomID domain.RoomID, scene domain.Scene) error {
	permissions, err := s.permissions.GetPermissions(ctx, participant)
	if err != nil {
		return fmt.Errorf("evaluate permissions of participant %s: %w", participant.ParticipantID, err)
	}
	if !permissions.GetPermissionValue(domain.PermissionCanSetScene) {
		return domain.ErrPermissionDenied
	}

	if s.providerFor(scene) == nil {
		return apperrors.NewInvalidInputError(fmt.Sprintf("unknown scene type %q", scene.Type))
	}

	unlock, err := s.locks.Lock(ctx, string(participant.ConferenceID))
	if err != nil {
		return fmt.Errorf("acquire scene lock of conference %s: %w", participant.ConferenceID, err)
	}
	defer unlock()

	mapping, err := s.currentMapping(ctx, participant.ConferenceID)
	if err != nil {
		return err
	}
	if _, exists := mapping[roomID]; !exists {
		return domain.ErrRoomNotFound
	}

	if err := s.scenes.Set(ctx, participant.ConferenceID, mapping.Set(roomID, scene)); err != nil {
		return fmt.Errorf("store scene mapping of conference %s: %w", participant.ConferenceID, err)
	}

	s.metrics.RecordSceneChange(participant.ConferenceID)
	return s.sync.RequestUpdate(ctx, participant.ConferenceID, scenesObjectID)
}

// BuildStack produces the innermost-to-outermost sequence of scenes rendering
// for a room, descending through wrapping providers from the requested scene.
// Descents are bounded by the registered provider count; exceeding the bound
// is a cyclic scene configuration, a fatal error rather than an infinite
// loop.
func (s *SceneService) BuildStack(ctx context.Context, builderCtx ports.SceneBuilderContext, scene domain.Scene) ([]domain.Scene, error) {
	stack := []domain.Scene{scene}
	current := scene

	for descents := 0; ; descents++ {
		provider := s.providerFor(current)
		if provider == nil {
			return nil, apperrors.NewConfigurationError(
				fmt.Sprintf("no scene provider for scene type %q", current.Type))
		}

		wrapped, ok, err := provider.WrappedScene(ctx, builderCtx, current)
		if err != nil {
			return nil, fmt.Errorf("resolve wrapped scene of %q: %w", current.Type, err)
		}
		if !ok {
			return stack, nil
		}

		if descents >= len(s.providers) {
			return nil, apperrors.NewConfigurationError(
				fmt.Sprintf("cyclic scene wrapping detected while building stack for scene %q", scene.Type))
		}

		stack = append([]domain.Scene{wrapped}, stack...)
		current = wrapped
	}
}

// FetchPermissionsForParticipant collects the permission layers every scene
// in the room's current stack contributes for the participant. The
// permission evaluator merges them by its own precedence rules.
func (s *SceneService) FetchPermissionsForParticipant(ctx context.Context, participant domain.Participant, roomID domain.RoomID) ([]domain.PermissionLayer, error) {
	mapping, err := s.currentMapping(ctx, participant.ConferenceID)
	if err != nil {
		return nil, err
	}
	scene, exists := mapping[roomID]
	if !exists {
		return nil, domain.ErrRoomNotFound
	}

	builderCtx := ports.SceneBuilderContext{ConferenceID: participant.ConferenceID, RoomID: roomID}
	stack, err := s.BuildStack(ctx, builderCtx, scene)
	if err != nil {
		return nil, err
	}

	var layers []domain.PermissionLayer
	for _, stackScene := range stack {
		provider := s.providerFor(stackScene)
		if provider == nil {
			continue
		}
		sceneLayers, err := provider.FetchPermissionsForParticipant(ctx, stackScene, participant, stack)
		if err != nil {
			return nil, fmt.Errorf("fetch scene permissions of %q: %w", stackScene.Type, err)
		}
		layers = append(layers, sceneLayers...)
	}
	return layers, nil
}

// ConferenceClosed drops the conference's scene state.
func (s *SceneService) ConferenceClosed(ctx context.Context, conferenceID domain.ConferenceID) error {
	unlock, err := s.locks.Lock(ctx, string(conferenceID))
	if err != nil {
		return fmt.Errorf("acquire scene lock of conference %s: %w", conferenceID, err)
	}
	defer unlock()
	return s.scenes.Remove(ctx, conferenceID)
}

func (s *SceneService) currentMapping(ctx context.Context, conferenceID domain.ConferenceID) (domain.SceneMapping, error) {
	mapping, err := s.scenes.Get(ctx, conferenceID)
	if err != nil {
		if errors.Is(err, domain.ErrConferenceNotFound) {
			return domain.SceneMapping{}, nil
		}
		return nil, fmt.Errorf("read scene mapping of conference %s: %w", conferenceID, err)
	}
	return mapping, nil
}

func (s *SceneService) defaultSceneFor(room domain.Room, defaultRoomID domain.RoomID) domain.Scene {
	if room.ID == defaultRoomID {
		return s.opts.DefaultRoomScene
	}
	return s.opts.RoomScene
}

func (s *SceneService) providerFor(scene domain.Scene) ports.SceneProvider {
	for _, provider := range s.providers {
		if provider.IsProvided(scene) {
			return provider
		}
	}
	return nil
}
