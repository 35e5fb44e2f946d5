package services

import (
	"context"

	"confsync/internal/core/domain"
	"confsync/internal/core/ports"
)

// DefaultSceneProviders returns the built-in provider set covering the fixed
// scene vocabulary. Additional providers may be appended before the service
// is constructed; the set is fixed afterwards.
func DefaultSceneProviders() []ports.SceneProvider {
	return []ports.SceneProvider{
		&contentSceneProvider{},
		&autonomousSceneProvider{},
		&talkingStickSceneProvider{},
	}
}

// contentSceneProvider serves the leaf scenes: they render directly and wrap
// nothing.
type contentSceneProvider struct{}

func (p *contentSceneProvider) IsProvided(scene domain.Scene) bool {
	switch scene.Type {
	case domain.SceneGrid, domain.SceneScreenShare, domain.ScenePresenter, domain.SceneBreakoutRoom:
		return true
	}
	return false
}

func (p *contentSceneProvider) WrappedScene(ctx context.Context, builderCtx ports.SceneBuilderContext, scene domain.Scene) (domain.Scene, bool, error) {
	return domain.Scene{}, false, nil
}

func (p *contentSceneProvider) FetchPermissionsForParticipant(ctx context.Context, scene domain.Scene, participant domain.Participant, stack []domain.Scene) ([]domain.PermissionLayer, error) {
	// Presenter-bound scenes grant the presenting participant screen share.
	switch scene.Type {
	case domain.SceneScreenShare, domain.ScenePresenter:
		if scene.ParticipantID == participant.ParticipantID {
			return []domain.PermissionLayer{{
				Order: domain.LayerOrderScene,
				Name:  string(scene.Type),
				Permissions: map[string]bool{
					domain.PermissionCanShareScreen.Key: true,
				},
			}}, nil
		}
	}
	return nil, nil
}

// autonomousSceneProvider lets the server pick the content scene for a room.
// The pick currently falls back to the grid; media-driven selection (active
// screen share wins) lives with the media subsystem, which overrides via
// SetScene.
type autonomousSceneProvider struct{}

func (p *autonomousSceneProvider) IsProvided(scene domain.Scene) bool {
	return scene.Type == domain.SceneAutonomous
}

func (p *autonomousSceneProvider) WrappedScene(ctx context.Context, builderCtx ports.SceneBuilderContext, scene domain.Scene) (domain.Scene, bool, error) {
	return domain.Scene{Type: domain.SceneGrid}, true, nil
}

func (p *autonomousSceneProvider) FetchPermissionsForParticipant(ctx context.Context, scene domain.Scene, participant domain.Participant, stack []domain.Scene) ([]domain.PermissionLayer, error) {
	return nil, nil
}

// talkingStickSceneProvider renders on top of the room's content scene and
// shifts media grants to the stick holder: everyone else is muted by the base
// layer, the holder gets the grants back on a higher one.
type talkingStickSceneProvider struct{}

func (p *talkingStickSceneProvider) IsProvided(scene domain.Scene) bool {
	return scene.Type == domain.SceneTalkingStick
}

func (p *talkingStickSceneProvider) WrappedScene(ctx context.Context, builderCtx ports.SceneBuilderContext, scene domain.Scene) (domain.Scene, bool, error) {
	return domain.Scene{Type: domain.SceneGrid}, true, nil
}

func (p *talkingStickSceneProvider) FetchPermissionsForParticipant(ctx context.Context, scene domain.Scene, participant domain.Participant, stack []domain.Scene) ([]domain.PermissionLayer, error) {
	layers := []domain.PermissionLayer{{
		Order: domain.LayerOrderScene,
		Name:  "talkingStick",
		Permissions: map[string]bool{
			domain.PermissionCanShareAudio.Key:  false,
			domain.PermissionCanShareWebcam.Key: false,
			domain.PermissionCanShareScreen.Key: false,
		},
	}}

	if scene.ParticipantID != "" && scene.ParticipantID == participant.ParticipantID {
		layers = append(layers, domain.PermissionLayer{
			Order: domain.LayerOrderSceneTalkingStick,
			Name:  "talkingStickHolder",
			Permissions: map[string]bool{
				domain.PermissionCanShareAudio.Key:  true,
				domain.PermissionCanShareWebcam.Key: true,
				domain.PermissionCanShareScreen.Key: true,
			},
		})
	}
	return layers, nil
}
