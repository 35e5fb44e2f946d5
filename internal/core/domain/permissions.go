package domain

import "sort"

// PermissionDescriptor names one capability that may be granted to a
// participant, e.g. "scenes/canSetScene". Mutating entry points check one
// descriptor before touching state.
type PermissionDescriptor struct {
	Key string
}

var (
	PermissionCanKickParticipant = PermissionDescriptor{"conference/canKickParticipant"}

	PermissionCanSendChatMessage = PermissionDescriptor{"chat/canSendMessage"}

	PermissionCanShareAudio  = PermissionDescriptor{"media/canShareAudio"}
	PermissionCanShareScreen = PermissionDescriptor{"media/canShareScreen"}
	PermissionCanShareWebcam = PermissionDescriptor{"media/canShareWebcam"}

	PermissionCanCreateAndRemoveRooms = PermissionDescriptor{"rooms/canCreateAndRemove"}
	PermissionCanSwitchRoom           = PermissionDescriptor{"rooms/canSwitchRoom"}

	PermissionCanSetScene              = PermissionDescriptor{"scenes/canSetScene"}
	PermissionCanOverwriteContentScene = PermissionDescriptor{"scenes/canOverwriteContentScene"}
	PermissionCanPassTalkingStick      = PermissionDescriptor{"scenes/talkingStick_canPass"}
	PermissionCanTakeTalkingStick      = PermissionDescriptor{"scenes/talkingStick_canTake"}
	PermissionCanQueueForTalkingStick  = PermissionDescriptor{"scenes/talkingStick_canQueue"}
)

// Permission layer orders, ascending precedence. A value set by a higher
// order layer overrides every lower one.
const (
	LayerOrderConferenceDefault = 10
	LayerOrderBreakoutRoom      = 15
	LayerOrderScene             = 18
	LayerOrderSceneTalkingStick = 19
	LayerOrderModerator         = 30
	LayerOrderTemporary         = 100
)

// PermissionLayer is one ordered contribution to a participant's effective
// permission set. Scenes contribute layers (e.g. the talking stick holder
// gets extra media grants) on top of the conference and moderator layers.
type PermissionLayer struct {
	Order       int
	Name        string
	Permissions map[string]bool
}

// ParticipantPermissions is the merged, effective permission set of one
// participant at one point in time.
type ParticipantPermissions struct {
	values map[string]bool
}

// MergePermissionLayers flattens layers into an effective permission set,
// higher Order winning on conflicts.
func MergePermissionLayers(layers []PermissionLayer) *ParticipantPermissions {
	sorted := make([]PermissionLayer, len(layers))
	copy(sorted, layers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	values := make(map[string]bool)
	for _, layer := range sorted {
		for key, value := range layer.Permissions {
			values[key] = value
		}
	}
	return &ParticipantPermissions{values: values}
}

// GetPermissionValue reports whether the descriptor is granted.
func (p *ParticipantPermissions) GetPermissionValue(descriptor PermissionDescriptor) bool {
	return p.values[descriptor.Key]
}

// Values returns a copy of the effective permission map.
func (p *ParticipantPermissions) Values() map[string]bool {
	out := make(map[string]bool, len(p.values))
	for key, value := range p.values {
		out[key] = value
	}
	return out
}
