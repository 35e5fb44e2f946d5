package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateConferenceID generates a unique conference ID
func GenerateConferenceID() string {
	return uuid.New().String()
}

// GenerateParticipantID generates a unique participant ID
func GenerateParticipantID() string {
	return uuid.New().String()
}

// GenerateRoomID generates a unique room ID
func GenerateRoomID() string {
	return GenerateID("room")
}

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	timestamp := time.Now().UnixNano()
	b := make([]byte, 4)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", timestamp, hex.EncodeToString(b))
}

// GenerateTraceID generates a unique trace ID
func GenerateTraceID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// GenerateInstanceID generates the identifier one process instance uses on
// the event bus.
func GenerateInstanceID() string {
	return GenerateID("instance")
}
