package domain

import "errors"

var (
	ErrConferenceNotFound  = errors.New("conference not found")
	ErrRoomNotFound        = errors.New("room not found")
	ErrObjectNotFound      = errors.New("synchronized object not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrPermissionDenied    = errors.New("permission denied")
)
