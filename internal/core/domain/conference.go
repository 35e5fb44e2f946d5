package domain

type ConferenceID string
type ParticipantID string
type RoomID string

// Participant identifies one attendee within one conference. All permission
// checks and subscriptions are keyed by this pair, never by ParticipantID alone.
type Participant struct {
	ConferenceID  ConferenceID
	ParticipantID ParticipantID
}

type Room struct {
	ID          RoomID `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	IsDefault   bool   `json:"isDefault"`
}

// RoomState is a point-in-time snapshot of a conference's rooms.
type RoomState struct {
	Rooms         []Room
	DefaultRoomID RoomID
}
