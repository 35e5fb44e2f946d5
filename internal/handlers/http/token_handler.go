package http

import (
	"net/http"
	"time"

	"confsync/internal/core/domain"
	"confsync/internal/core/services"
	"confsync/pkg/errors"
	"confsync/pkg/validation"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TokenHandler issues participant access tokens. In production the conference
// controller in front of this service mints tokens; this endpoint exists for
// development and operational tooling.
type TokenHandler struct {
	authService services.AuthService
}

func NewTokenHandler(authService services.AuthService) *TokenHandler {
	return &TokenHandler{
		authService: authService,
	}
}

func (h *TokenHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/auth")
	{
		api.POST("/token", h.IssueToken)
	}
}

type TokenRequest struct {
	ConferenceID  string `json:"conference_id" binding:"required,max=100"`
	ParticipantID string `json:"participant_id,omitempty"`
	Moderator     bool   `json:"moderator"`
}

func (h *TokenHandler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	if err := validation.ValidateConferenceID(req.ConferenceID); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}
	if req.ParticipantID == "" {
		req.ParticipantID = uuid.New().String()
	} else if err := validation.ValidateParticipantID(req.ParticipantID); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	participant := domain.Participant{
		ConferenceID:  domain.ConferenceID(req.ConferenceID),
		ParticipantID: domain.ParticipantID(req.ParticipantID),
	}

	accessToken, err := h.authService.GenerateToken(participant, req.Moderator)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"conference_id":  participant.ConferenceID,
		"participant_id": participant.ParticipantID,
		"moderator":      req.Moderator,
		"access_token":   accessToken,
		"expires_in":     int(15 * time.Minute / time.Second),
	})
}
