package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/markdownpro2/edit-session-service/internal/auth"
	"github.com/markdownpro2/edit-session-service/internal/conversion"
	"github.com/markdownpro2/edit-session-service/internal/errs"
	"github.com/markdownpro2/edit-session-service/internal/model"
	"github.com/markdownpro2/edit-session-service/internal/service"
)

// connState tracks one connection's position in its lifecycle:
// connecting -> authenticating -> active -> closing -> closed.
type connState string

const (
	stateConnecting     connState = "connecting"
	stateAuthenticating connState = "authenticating"
	stateActive         connState = "active"
	stateClosing        connState = "closing"
	stateClosed         connState = "closed"
)

// EditWSHandler runs the per-connection protocol state machine for
// /ws/edit/:session_id. The very first inbound frame must carry the session
// id, a bearer token and the declared origin role; there is no separate
// handshake message type.
type EditWSHandler struct {
	registry  *service.SessionRegistry
	sessions  *service.SessionService
	converter conversion.Converter
	tokens    auth.TokenValidator
	upgrader  websocket.Upgrader
	maxMsg    int64
	log       *zap.Logger
}

// NewEditWSHandler creates the edit WebSocket handler.
func NewEditWSHandler(
	registry *service.SessionRegistry,
	sessions *service.SessionService,
	converter conversion.Converter,
	tokens auth.TokenValidator,
	readBufferSize, writeBufferSize int,
	maxMessageSize int64,
	log *zap.Logger,
) *EditWSHandler {
	return &EditWSHandler{
		registry:  registry,
		sessions:  sessions,
		converter: converter,
		tokens:    tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: writeBufferSize,
		},
		maxMsg: maxMessageSize,
		log:    log,
	}
}

// ServeWS upgrades the request and runs the connection to completion.
func (h *EditWSHandler) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	if h.maxMsg > 0 {
		conn.SetReadLimit(h.maxMsg)
	}
	h.handle(c.Request.Context(), service.NewPeer(conn, h.log))
}

func (h *EditWSHandler) handle(ctx context.Context, peer *service.Peer) {
	state := stateConnecting
	transition := func(next connState, sessionID string) {
		h.log.Debug("connection state transition",
			zap.String("session_id", sessionID),
			zap.String("from", string(state)),
			zap.String("to", string(next)))
		state = next
	}

	first, err := peer.ReadFrame()
	if err != nil {
		// An undecodable first frame still gets a structured rejection; a
		// transport error means nobody is left to read it.
		if isDecodeError(err) {
			h.reject(peer, "", errs.CodeProcessingError, "malformed initialization frame")
			return
		}
		peer.Close(nil)
		return
	}
	sessionID := first.SessionID
	transition(stateAuthenticating, sessionID)

	if _, err := h.registry.Get(sessionID); err != nil {
		h.log.Warn("session not found during initialization", zap.String("session_id", sessionID))
		h.reject(peer, sessionID, errs.CodeSessionNotFound, "")
		return
	}
	if first.Token == "" {
		h.reject(peer, sessionID, errs.CodeMissingToken, "")
		return
	}
	userID, err := h.tokens.Validate(ctx, first.Token)
	if err != nil {
		h.log.Warn("invalid token", zap.String("session_id", sessionID))
		h.reject(peer, sessionID, errs.CodeInvalidToken, "")
		return
	}

	role, err := service.RoleFromOrigin(first.Origin)
	if err != nil {
		h.reject(peer, sessionID, errs.CodeProcessingError, err.Error())
		return
	}
	peer.SessionID = sessionID
	peer.Role = role
	// The session may have vanished between validation and bind; a losing
	// race is an ordinary rejection, not a fault.
	if err := h.registry.Bind(sessionID, role, peer); err != nil {
		h.log.Warn("socket bind rejected",
			zap.String("session_id", sessionID),
			zap.String("role", string(role)),
			zap.Error(err))
		h.reject(peer, sessionID, errs.CodeProcessingError, err.Error())
		return
	}

	transition(stateActive, sessionID)
	h.log.Info("websocket connected and authenticated",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID),
		zap.String("role", string(role)))

	defer func() {
		transition(stateClosing, sessionID)
		h.registry.Unbind(sessionID, peer)
		peer.Close(model.NoticeFrame(sessionID, model.ActionSessionClosed, "", "Session closed"))
		transition(stateClosed, sessionID)
	}()

	for {
		frame, err := peer.ReadFrame()
		if err != nil {
			if isDecodeError(err) {
				h.sendError(peer, sessionID, errs.CodeProcessingError, err.Error())
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("websocket read error", zap.String("session_id", sessionID), zap.Error(err))
			}
			return
		}

		// A session may have been removed, or this socket forcibly unbound by
		// the sweeper, since the last frame; re-validate before dispatch.
		if !h.registry.Exists(frame.SessionID) {
			h.log.Warn("session expired or removed", zap.String("session_id", frame.SessionID))
			h.sendError(peer, frame.SessionID, errs.CodeSessionExpired, "")
			return
		}
		authed, err := h.registry.IsAuthenticated(frame.SessionID, peer)
		if err != nil {
			h.sendError(peer, frame.SessionID, errs.CodeSessionExpired, "")
			return
		}
		if !authed {
			h.log.Warn("unauthenticated socket attempted action",
				zap.String("session_id", frame.SessionID),
				zap.String("action", frame.Action))
			h.sendError(peer, frame.SessionID, errs.CodeNotAuthenticated, "")
			return
		}

		if !h.dispatch(ctx, peer, frame) {
			return
		}
	}
}

// dispatch routes one admitted frame to its action handler and reports
// whether the connection should keep running. Handler faults are reported to
// the sender and never terminate the connection.
func (h *EditWSHandler) dispatch(ctx context.Context, peer *service.Peer, frame *model.Frame) (alive bool) {
	alive = true
	defer func() {
		if rec := recover(); rec != nil {
			h.log.Error("panic during frame dispatch",
				zap.String("session_id", frame.SessionID),
				zap.String("action", frame.Action),
				zap.Any("panic", rec))
			h.sendError(peer, frame.SessionID, errs.CodeProcessingError, fmt.Sprint(rec))
			alive = true
		}
	}()

	switch frame.Action {
	case model.ActionContentPush:
		h.handleContentPush(ctx, peer, frame)
	case model.ActionContentPull:
		return h.handleContentPull(peer, frame)
	case model.ActionEndSession:
		h.handleEndSession(peer, frame)
	default:
		h.log.Warn("invalid websocket action",
			zap.String("session_id", frame.SessionID),
			zap.String("action", frame.Action))
		h.sendError(peer, frame.SessionID, errs.CodeInvalidAction, "")
	}
	return alive
}

// handleContentPush converts pushed raw content to display HTML, commits it,
// and broadcasts a content-available frame to every live socket of the
// session, sender included. Conversion failure only notifies the sender.
func (h *EditWSHandler) handleContentPush(ctx context.Context, peer *service.Peer, frame *model.Frame) {
	sessionID := frame.SessionID
	html, err := h.converter.ToDisplay(ctx, frame.Content)
	if err != nil {
		h.log.Error("conversion failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
		h.sendError(peer, sessionID, errs.CodeConversionError, "")
		return
	}

	h.registry.Update(sessionID, html)

	peers, err := h.registry.LiveSockets(sessionID)
	if err != nil {
		h.sendError(peer, sessionID, errs.CodeSessionNotFound, "")
		return
	}
	h.log.Info("content updated, broadcasting",
		zap.String("session_id", sessionID),
		zap.Int("sockets", len(peers)))
	broadcast := model.NoticeFrame(sessionID, model.ActionContentPull, model.PayloadHTML, html)
	for _, p := range peers {
		if err := p.WriteFrame(broadcast); err != nil {
			h.log.Warn("broadcast send failed",
				zap.String("session_id", sessionID),
				zap.String("role", string(p.Role)),
				zap.String("error_code", string(errs.CodeSendError)),
				zap.Error(err))
		}
	}
}

// handleContentPull responds to the requester only with the current content.
// A session that disappeared between re-validation and the lookup ends the
// connection, same as a failed re-validation.
func (h *EditWSHandler) handleContentPull(peer *service.Peer, frame *model.Frame) bool {
	sess, err := h.registry.Get(frame.SessionID)
	if err != nil {
		h.log.Warn("session not found for content pull", zap.String("session_id", frame.SessionID))
		h.sendError(peer, frame.SessionID, errs.CodeSessionNotFound, "")
		return false
	}
	resp := model.NoticeFrame(sess.ID, model.ActionContentPull, model.PayloadHTML, sess.Content)
	if err := peer.WriteFrame(resp); err != nil {
		h.log.Warn("content pull send failed",
			zap.String("session_id", sess.ID),
			zap.String("error_code", string(errs.CodeSendError)),
			zap.Error(err))
	}
	return true
}

// handleEndSession terminates the session for every peer, regardless of which
// peer initiated it.
func (h *EditWSHandler) handleEndSession(peer *service.Peer, frame *model.Frame) {
	if err := h.sessions.End(frame.SessionID); err != nil {
		h.sendError(peer, frame.SessionID, errs.CodeSessionNotFound, "")
	}
}

// reject reports an admission failure with one structured error frame, then
// closes the connection. No retry at this layer.
func (h *EditWSHandler) reject(peer *service.Peer, sessionID string, code errs.Code, detail string) {
	h.sendError(peer, sessionID, code, detail)
	peer.Close(model.NoticeFrame(sessionID, model.ActionSessionClosed, "", errs.Message(code)))
}

func (h *EditWSHandler) sendError(peer *service.Peer, sessionID string, code errs.Code, detail string) {
	if err := peer.WriteFrame(model.ErrorFrame(sessionID, code, detail)); err != nil {
		h.log.Warn("failed to send error frame",
			zap.String("session_id", sessionID),
			zap.String("failed_code", string(code)),
			zap.String("error_code", string(errs.CodeSendError)),
			zap.Error(err))
	}
}

// isDecodeError reports whether a read failure is a malformed frame rather
// than a transport fault; malformed frames are non-fatal.
func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
