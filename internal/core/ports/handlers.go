package ports

import (
	"github.com/gin-gonic/gin"
)

type HTTPHandler interface {
	CreateRooms(c *gin.Context)
	RemoveRooms(c *gin.Context)
	GetRoomState(c *gin.Context)
	GetSceneState(c *gin.Context)
}
