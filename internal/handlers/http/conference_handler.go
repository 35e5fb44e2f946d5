package http

import (
	"context"
	stderrors "errors"
	"net/http"

	"confsync/internal/core/domain"
	"confsync/internal/core/ports"
	"confsync/internal/infrastructure/middleware"
	"confsync/pkg/errors"
	"confsync/pkg/validation"

	"github.com/gin-gonic/gin"
)

// sceneStateReader exposes the current scene mapping of a conference.
type sceneStateReader interface {
	FetchValue(ctx context.Context, conferenceID domain.ConferenceID, id domain.SynchronizedObjectID) (any, error)
}

type ConferenceHandler struct {
	roomService  ports.RoomService
	sceneService ports.SceneService
	sceneReader  sceneStateReader
	permissions  ports.PermissionEvaluator
}

var _ ports.HTTPHandler = (*ConferenceHandler)(nil)

func NewConferenceHandler(
	roomService ports.RoomService,
	sceneService ports.SceneService,
	sceneReader sceneStateReader,
	permissions ports.PermissionEvaluator,
) *ConferenceHandler {
	return &ConferenceHandler{
		roomService:  roomService,
		sceneService: sceneService,
		sceneReader:  sceneReader,
		permissions:  permissions,
	}
}

func (h *ConferenceHandler) SetupRoutes(api *gin.RouterGroup) {
	conferences := api.Group("/conferences/:conferenceId")
	conferences.Use(middleware.ConferenceAccessMiddleware())
	{
		conferences.GET("/rooms", h.GetRoomState)
		conferences.POST("/rooms", h.CreateRooms)
		conferences.DELETE("/rooms", h.RemoveRooms)
		conferences.GET("/scenes", h.GetSceneState)
		conferences.PUT("/rooms/:roomId/scene", h.SetScene)
		conferences.GET("/permissions", h.GetOwnPermissions)
	}
}

func (h *ConferenceHandler) GetRoomState(c *gin.Context) {
	conferenceID := domain.ConferenceID(c.Param("conferenceId"))

	state, err := h.roomService.State(c.Request.Context(), conferenceID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rooms":           state.Rooms,
		"default_room_id": state.DefaultRoomID,
	})
}

func (h *ConferenceHandler) CreateRooms(c *gin.Context) {
	conferenceID := domain.ConferenceID(c.Param("conferenceId"))
	participant, ok := middleware.ParticipantFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req struct {
		Rooms []struct {
			ID          string `json:"id,omitempty"`
			DisplayName string `json:"display_name" binding:"required,max=100"`
		} `json:"rooms" binding:"required,min=1,max=50"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rooms := make([]domain.Room, 0, len(req.Rooms))
	for _, r := range req.Rooms {
		if err := validation.ValidateDisplayName(r.DisplayName); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if r.ID != "" {
			if err := validation.ValidateRoomID(r.ID); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
		rooms = append(rooms, domain.Room{
			ID:          domain.RoomID(r.ID),
			DisplayName: r.DisplayName,
		})
	}

	if err := h.roomService.CreateRooms(c.Request.Context(), participant, rooms); err != nil {
		h.writeError(c, err)
		return
	}

	state, err := h.roomService.State(c.Request.Context(), conferenceID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"rooms":           state.Rooms,
		"default_room_id": state.DefaultRoomID,
	})
}

func (h *ConferenceHandler) RemoveRooms(c *gin.Context) {
	participant, ok := middleware.ParticipantFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req struct {
		RoomIDs []domain.RoomID `json:"room_ids" binding:"required,min=1,max=50"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.roomService.RemoveRooms(c.Request.Context(), participant, req.RoomIDs); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"removed": req.RoomIDs})
}

func (h *ConferenceHandler) GetSceneState(c *gin.Context) {
	conferenceID := domain.ConferenceID(c.Param("conferenceId"))

	value, err := h.sceneReader.FetchValue(c.Request.Context(), conferenceID, domain.SynchronizedObjectID{Kind: domain.KindScenes})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"scenes": value})
}

func (h *ConferenceHandler) SetScene(c *gin.Context) {
	participant, ok := middleware.ParticipantFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	roomID := domain.RoomID(c.Param("roomId"))
	if err := validation.ValidateRoomID(string(roomID)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req struct {
		Type          domain.SceneType     `json:"type" binding:"required"`
		ParticipantID domain.ParticipantID `json:"participant_id,omitempty"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	scene := domain.Scene{
		Type:          req.Type,
		ParticipantID: req.ParticipantID,
	}
	if err := h.sceneService.SetScene(c.Request.Context(), participant, roomID, scene); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"room_id": roomID,
		"scene":   scene,
	})
}

func (h *ConferenceHandler) GetOwnPermissions(c *gin.Context) {
	participant, ok := middleware.ParticipantFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	permissions, err := h.permissions.GetPermissions(c.Request.Context(), participant)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"permissions": permissions.Values()})
}

func (h *ConferenceHandler) writeError(c *gin.Context, err error) {
	switch {
	case stderrors.Is(err, domain.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
	case stderrors.Is(err, domain.ErrConferenceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "conference not found"})
	case stderrors.Is(err, domain.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
	case stderrors.Is(err, domain.ErrObjectNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "object not found"})
	default:
		if appErr := errors.GetAppError(err); appErr != nil {
			c.JSON(appErr.HTTPStatus, gin.H{
				"error":   string(appErr.Code),
				"message": appErr.Message,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
