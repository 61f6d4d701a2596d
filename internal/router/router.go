package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/markdownpro2/edit-session-service/internal/handler"
	"github.com/markdownpro2/edit-session-service/pkg/constants"
)

// New builds the HTTP router.
func New(
	sessionHandler *handler.SessionHandler,
	editWS *handler.EditWSHandler,
	health *handler.HealthHandler,
) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET(constants.PathHealth, health.Health)
	r.GET(constants.PathReady, health.Ready)

	// REST edit sessions
	sessions := r.Group(constants.PathEditSessions)
	{
		sessions.POST("", sessionHandler.CreateSession)
		sessions.DELETE("/:id", sessionHandler.DeleteSession)
	}

	// WebSocket: /ws/edit/:session_id (identity comes from the first frame)
	r.GET(constants.PathWSEdit, editWS.ServeWS)

	return r
}
