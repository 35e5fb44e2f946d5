package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// IdentifierRegex validates conference, participant and room IDs
	IdentifierRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// ObjectIDRegex validates synchronized object IDs, "kind" or "kind:scope"
	ObjectIDRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*(:[a-zA-Z0-9_\-/]+)?$`)
)

// ValidateConferenceID validates conference ID format
func ValidateConferenceID(conferenceID string) error {
	return validateIdentifier(conferenceID, "conference ID")
}

// ValidateParticipantID validates participant ID format
func ValidateParticipantID(participantID string) error {
	return validateIdentifier(participantID, "participant ID")
}

// ValidateRoomID validates room ID format
func ValidateRoomID(roomID string) error {
	return validateIdentifier(roomID, "room ID")
}

// ValidateObjectID validates synchronized object ID format
func ValidateObjectID(objectID string) error {
	if objectID == "" {
		return fmt.Errorf("object ID is required")
	}
	if len(objectID) > 200 {
		return fmt.Errorf("object ID is too long (max 200 characters)")
	}
	if !ObjectIDRegex.MatchString(objectID) {
		return fmt.Errorf("invalid object ID format")
	}
	return nil
}

// ValidateDisplayName validates a room display name
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("display name is required")
	}
	if utf8.RuneCountInString(name) > 100 {
		return fmt.Errorf("display name is too long (max 100 characters)")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("display name contains invalid characters")
	}
	return nil
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateStringLength validates string length
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}

func validateIdentifier(id, fieldName string) error {
	if id == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	if len(id) > 100 {
		return fmt.Errorf("%s is too long (max 100 characters)", fieldName)
	}
	if !IdentifierRegex.MatchString(id) {
		return fmt.Errorf("invalid %s format", fieldName)
	}
	return nil
}
