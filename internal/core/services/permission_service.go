package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"confsync/internal/core/domain"
	"confsync/pkg/cache"

	"go.uber.org/zap"
)

// PermissionOptions carries the static permission layers.
type PermissionOptions struct {
	// ConferenceDefaults apply to every participant.
	ConferenceDefaults map[string]bool
	// ModeratorOverrides apply on top for conference moderators.
	ModeratorOverrides map[string]bool
	// CacheTTL bounds how stale a cached permission snapshot may get; scene
	// driven grants (talking stick) converge within this window.
	CacheTTL time.Duration
}

func DefaultPermissionOptions() PermissionOptions {
	return PermissionOptions{
		ConferenceDefaults: map[string]bool{
			domain.PermissionCanSendChatMessage.Key: true,
			domain.PermissionCanShareAudio.Key:      true,
			domain.PermissionCanShareWebcam.Key:     true,
			domain.PermissionCanSwitchRoom.Key:      true,
		},
		ModeratorOverrides: map[string]bool{
			domain.PermissionCanSetScene.Key:              true,
			domain.PermissionCanOverwriteContentScene.Key: true,
			domain.PermissionCanCreateAndRemoveRooms.Key:  true,
			domain.PermissionCanKickParticipant.Key:       true,
			domain.PermissionCanShareScreen.Key:           true,
			domain.PermissionCanPassTalkingStick.Key:      true,
		},
		CacheTTL: 2 * time.Second,
	}
}

// ScenePermissionSource supplies the permission layers the current scene
// stack contributes for a participant. Implemented by the scene service and
// attached after construction, since the scene engine itself consults the
// evaluator for its mutation gate.
type ScenePermissionSource interface {
	FetchPermissionsForParticipant(ctx context.Context, participant domain.Participant, roomID domain.RoomID) ([]domain.PermissionLayer, error)
}

// PermissionService is the effective permission evaluator: it stacks the
// conference default layer, the moderator layer and the scene layers of the
// participant's current room, higher order winning.
type PermissionService struct {
	opts   PermissionOptions
	cache  *cache.Cache
	logger *zap.SugaredLogger

	mu          sync.RWMutex
	moderators  map[domain.Participant]struct{}
	rooms       map[domain.Participant]domain.RoomID
	sceneLayers ScenePermissionSource
}

func NewPermissionService(opts PermissionOptions, logger *zap.SugaredLogger) *PermissionService {
	return &PermissionService{
		opts:       opts,
		cache:      cache.NewCache(opts.CacheTTL),
		logger:     logger,
		moderators: make(map[domain.Participant]struct{}),
		rooms:      make(map[domain.Participant]domain.RoomID),
	}
}

// SetSceneLayerSource attaches the scene engine once both services exist.
func (s *PermissionService) SetSceneLayerSource(source ScenePermissionSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sceneLayers = source
}

func (s *PermissionService) SetModerator(participant domain.Participant, moderator bool) {
	s.mu.Lock()
	if moderator {
		s.moderators[participant] = struct{}{}
	} else {
		delete(s.moderators, participant)
	}
	s.mu.Unlock()
	s.cache.Delete(permissionCacheKey(participant))
}

// SetParticipantRoom tracks which room's scene layers apply to the
// participant. Called by the gateway on join and room switch.
func (s *PermissionService) SetParticipantRoom(participant domain.Participant, roomID domain.RoomID) {
	s.mu.Lock()
	s.rooms[participant] = roomID
	s.mu.Unlock()
	s.cache.Delete(permissionCacheKey(participant))
}

// ParticipantLeft drops the participant's evaluator state on disconnect.
func (s *PermissionService) ParticipantLeft(participant domain.Participant) {
	s.mu.Lock()
	delete(s.moderators, participant)
	delete(s.rooms, participant)
	s.mu.Unlock()
	s.cache.Delete(permissionCacheKey(participant))
}

func (s *PermissionService) GetPermissions(ctx context.Context, participant domain.Participant) (*domain.ParticipantPermissions, error) {
	key := permissionCacheKey(participant)
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*domain.ParticipantPermissions), nil
	}

	layers, err := s.collectLayers(ctx, participant)
	if err != nil {
		return nil, err
	}

	permissions := domain.MergePermissionLayers(layers)
	s.cache.Set(key, permissions)
	return permissions, nil
}

func (s *PermissionService) collectLayers(ctx context.Context, participant domain.Participant) ([]domain.PermissionLayer, error) {
	layers := []domain.PermissionLayer{{
		Order:       domain.LayerOrderConferenceDefault,
		Name:        "conferenceDefault",
		Permissions: s.opts.ConferenceDefaults,
	}}

	s.mu.RLock()
	_, isModerator := s.moderators[participant]
	roomID, hasRoom := s.rooms[participant]
	sceneLayers := s.sceneLayers
	s.mu.RUnlock()

	if hasRoom && sceneLayers != nil {
		contributed, err := sceneLayers.FetchPermissionsForParticipant(ctx, participant, roomID)
		switch {
		case errors.Is(err, domain.ErrRoomNotFound):
			// Room vanished between switch and evaluation; fall back to the
			// static layers.
		case err != nil:
			return nil, fmt.Errorf("fetch scene permission layers: %w", err)
		default:
			layers = append(layers, contributed...)
		}
	}

	// The moderator layer outranks every scene layer.
	if isModerator {
		layers = append(layers, domain.PermissionLayer{
			Order:       domain.LayerOrderModerator,
			Name:        "moderator",
			Permissions: s.opts.ModeratorOverrides,
		})
	}

	return layers, nil
}

func permissionCacheKey(participant domain.Participant) string {
	return "permissions:" + string(participant.ConferenceID) + ":" + string(participant.ParticipantID)
}
