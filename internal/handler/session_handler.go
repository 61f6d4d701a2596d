package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/markdownpro2/edit-session-service/internal/auth"
	"github.com/markdownpro2/edit-session-service/internal/errs"
	"github.com/markdownpro2/edit-session-service/internal/model"
	"github.com/markdownpro2/edit-session-service/internal/service"
)

// SessionHandler is the HTTP surface for minting and ending edit sessions.
type SessionHandler struct {
	svc    *service.SessionService
	tokens auth.TokenValidator
	log    *zap.Logger
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(svc *service.SessionService, tokens auth.TokenValidator, log *zap.Logger) *SessionHandler {
	return &SessionHandler{svc: svc, tokens: tokens, log: log}
}

// CreateSession handles POST /edit-sessions: validates the bearer token from
// the "token" header, mints a session with the posted HTML as initial content
// and returns the launch link.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	token := c.GetHeader("token")
	userID, err := h.tokens.Validate(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpError(errs.CodeUnauthorized))
		return
	}

	var req model.CreateEditSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpError(errs.CodeInvalidRequest))
		return
	}

	link, err := h.svc.GenerateLaunchLink(c.Request.Context(), userID, token, req.HTML)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrEmptyContent):
			c.JSON(http.StatusBadRequest, httpError(errs.CodeInvalidRequest))
		case errors.Is(err, errs.ErrQuotaExceeded):
			c.JSON(http.StatusBadRequest, httpError(errs.CodeQuotaExceeded))
		default:
			h.log.Error("failed to generate launch link", zap.Error(err))
			c.JSON(http.StatusInternalServerError, httpError(errs.CodeConversionFailed))
		}
		return
	}

	c.JSON(http.StatusOK, model.CreateEditSessionResponse{
		Success:   true,
		Message:   "Word link generated successfully.",
		SessionID: link.SessionID,
		WordURL:   link.WordURL,
	})
}

// DeleteSession handles DELETE /edit-sessions/:id: ends the session for every
// attached peer.
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	if _, err := h.tokens.Validate(c.Request.Context(), c.GetHeader("token")); err != nil {
		c.JSON(http.StatusUnauthorized, httpError(errs.CodeUnauthorized))
		return
	}
	sessionID := c.Param("id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, httpError(errs.CodeInvalidRequest))
		return
	}
	if err := h.svc.End(sessionID); err != nil {
		if errors.Is(err, errs.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, httpError(errs.CodeSessionNotFound))
			return
		}
		h.log.Error("failed to end session", zap.String("session_id", sessionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, httpError(errs.CodeProcessingError))
		return
	}
	c.Status(http.StatusNoContent)
}

func httpError(code errs.Code) model.HTTPError {
	return model.HTTPError{
		Success:   false,
		ErrorCode: string(code),
		Message:   errs.Message(code),
	}
}
