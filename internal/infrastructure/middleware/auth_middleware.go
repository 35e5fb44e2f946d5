package middleware

import (
	"net/http"
	"strings"

	"confsync/internal/core/domain"
	"confsync/internal/core/services"

	"github.com/gin-gonic/gin"
)

func AuthMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		token := parts[1]
		claims, err := authService.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		// Store participant identity in context
		c.Set("conference_id", claims.ConferenceID)
		c.Set("participant_id", claims.ParticipantID)
		c.Set("moderator", claims.Moderator)
		c.Next()
	}
}

// ConferenceAccessMiddleware rejects requests whose token was issued for a
// different conference than the one addressed in the URL.
func ConferenceAccessMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		conferenceIDVal, exists := c.Get("conference_id")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			c.Abort()
			return
		}

		conferenceID, ok := conferenceIDVal.(domain.ConferenceID)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid participant context"})
			c.Abort()
			return
		}

		requested := domain.ConferenceID(c.Param("conferenceId"))
		if requested == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "conferenceId required"})
			c.Abort()
			return
		}
		if requested != conferenceID {
			c.JSON(http.StatusForbidden, gin.H{"error": "token not valid for this conference"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// ParticipantFromContext rebuilds the participant identity stored by
// AuthMiddleware. ok is false when the request was not authenticated.
func ParticipantFromContext(c *gin.Context) (domain.Participant, bool) {
	conferenceIDVal, exists := c.Get("conference_id")
	if !exists {
		return domain.Participant{}, false
	}
	participantIDVal, exists := c.Get("participant_id")
	if !exists {
		return domain.Participant{}, false
	}

	conferenceID, ok := conferenceIDVal.(domain.ConferenceID)
	if !ok {
		return domain.Participant{}, false
	}
	participantID, ok := participantIDVal.(domain.ParticipantID)
	if !ok {
		return domain.Participant{}, false
	}

	return domain.Participant{
		ConferenceID:  conferenceID,
		ParticipantID: participantID,
	}, true
}
