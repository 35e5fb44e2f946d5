package domain

import "testing"

func TestMergePermissionLayersPrecedence(t *testing.T) {
	layers := []PermissionLayer{
		{
			Order: LayerOrderModerator,
			Name:  "moderator",
			Permissions: map[string]bool{
				PermissionCanShareScreen.Key: true,
			},
		},
		{
			Order: LayerOrderConferenceDefault,
			Name:  "conferenceDefault",
			Permissions: map[string]bool{
				PermissionCanShareAudio.Key:  true,
				PermissionCanShareScreen.Key: false,
			},
		},
		{
			Order: LayerOrderScene,
			Name:  "talkingStick",
			Permissions: map[string]bool{
				PermissionCanShareAudio.Key: false,
			},
		},
	}

	merged := MergePermissionLayers(layers)

	if merged.GetPermissionValue(PermissionCanShareAudio) {
		t.Fatal("scene layer must override the conference default")
	}
	if !merged.GetPermissionValue(PermissionCanShareScreen) {
		t.Fatal("moderator layer must override lower layers")
	}
	if merged.GetPermissionValue(PermissionCanSetScene) {
		t.Fatal("unset permissions must default to denied")
	}
}

func TestMergePermissionLayersEqualOrderIsStable(t *testing.T) {
	layers := []PermissionLayer{
		{Order: LayerOrderScene, Name: "first", Permissions: map[string]bool{"x": false}},
		{Order: LayerOrderScene, Name: "second", Permissions: map[string]bool{"x": true}},
	}

	// Layers of equal order apply in input order, the later one winning.
	merged := MergePermissionLayers(layers)
	if !merged.GetPermissionValue(PermissionDescriptor{Key: "x"}) {
		t.Fatal("later layer of equal order must win")
	}
}

func TestValuesReturnsACopy(t *testing.T) {
	merged := MergePermissionLayers([]PermissionLayer{{
		Order:       LayerOrderConferenceDefault,
		Permissions: map[string]bool{PermissionCanShareAudio.Key: true},
	}})

	values := merged.Values()
	values[PermissionCanShareAudio.Key] = false

	if !merged.GetPermissionValue(PermissionCanShareAudio) {
		t.Fatal("mutating the returned map must not affect the permission set")
	}
}
