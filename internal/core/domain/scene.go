package domain

type SceneType string

const (
	// SceneAutonomous lets the server pick the content scene for the room.
	SceneAutonomous SceneType = "autonomous"
	SceneGrid       SceneType = "grid"
	// SceneScreenShare and ScenePresenter are bound to the presenting
	// participant via Scene.ParticipantID.
	SceneScreenShare  SceneType = "screenShare"
	ScenePresenter    SceneType = "presenter"
	SceneTalkingStick SceneType = "talkingStick"
	SceneBreakoutRoom SceneType = "breakoutRoom"
)

// Scene describes the layout/media mode a room currently presents.
// ParticipantID qualifies participant-bound scenes: the presenter for
// screenShare/presenter, the current holder for talkingStick.
type Scene struct {
	Type          SceneType     `json:"type"`
	ParticipantID ParticipantID `json:"participantId,omitempty"`
}

// SceneMapping is the conference-wide synchronized "scenes" value: exactly one
// entry per existing room. Mutating methods are copy-on-write and return a new
// mapping, so a previously handed out mapping is never observed mid-mutation.
type SceneMapping map[RoomID]Scene

func (m SceneMapping) clone() SceneMapping {
	out := make(SceneMapping, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (m SceneMapping) Set(roomID RoomID, scene Scene) SceneMapping {
	out := m.clone()
	out[roomID] = scene
	return out
}

func (m SceneMapping) SetAll(scenes map[RoomID]Scene) SceneMapping {
	out := m.clone()
	for roomID, scene := range scenes {
		out[roomID] = scene
	}
	return out
}

func (m SceneMapping) Remove(roomIDs ...RoomID) SceneMapping {
	out := m.clone()
	for _, roomID := range roomIDs {
		delete(out, roomID)
	}
	return out
}
