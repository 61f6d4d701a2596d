package handler_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markdownpro2/edit-session-service/internal/errs"
	"github.com/markdownpro2/edit-session-service/internal/handler"
	"github.com/markdownpro2/edit-session-service/internal/model"
	"github.com/markdownpro2/edit-session-service/internal/router"
	"github.com/markdownpro2/edit-session-service/internal/service"
)

// identityConverter passes pushed content through unchanged.
type identityConverter struct{}

func (identityConverter) ToDisplay(_ context.Context, raw string) (string, error) {
	return raw, nil
}

func (identityConverter) ToDocument(_ context.Context, _ string, _ map[string]string) ([]byte, error) {
	return []byte("docx"), nil
}

// staticTokens resolves a fixed token set to user ids.
type staticTokens struct {
	users map[string]string
}

func (s *staticTokens) Validate(_ context.Context, token string) (string, error) {
	if userID, ok := s.users[token]; ok {
		return userID, nil
	}
	return "", errs.ErrInvalidToken
}

type wsEnv struct {
	srv      *httptest.Server
	registry *service.SessionRegistry
	sessions *service.SessionService
	sweeper  *service.CleanupSweeper
}

func newWSEnv(t *testing.T, idleTTL time.Duration) *wsEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zap.NewNop()
	registry := service.NewSessionRegistry(idleTTL, 2*time.Hour, 2, log)
	conv := identityConverter{}
	tokens := &staticTokens{users: map[string]string{"tok-u1": "u1", "tok-u2": "u2"}}
	sessions := service.NewSessionService(registry, conv, t.TempDir(), "https://files.example.com", log)

	ws := handler.NewEditWSHandler(registry, sessions, conv, tokens, 4096, 4096, 1<<20, log)
	rest := handler.NewSessionHandler(sessions, tokens, log)
	srv := httptest.NewServer(router.New(rest, ws, handler.NewHealthHandler()))
	t.Cleanup(srv.Close)

	return &wsEnv{
		srv:      srv,
		registry: registry,
		sessions: sessions,
		sweeper:  service.NewCleanupSweeper(registry, time.Minute, log),
	}
}

func (e *wsEnv) dial(t *testing.T, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws/edit/" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, f model.Frame) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(f))
}

func readFrame(t *testing.T, conn *websocket.Conn) *model.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f model.Frame
	require.NoError(t, conn.ReadJSON(&f))
	return &f
}

// admit sends the init frame and proves the bind landed by round-tripping a
// content pull.
func admit(t *testing.T, conn *websocket.Conn, sessionID, origin, token string) *model.Frame {
	t.Helper()
	sendFrame(t, conn, model.Frame{Origin: origin, SessionID: sessionID, Token: token})
	sendFrame(t, conn, model.Frame{Origin: origin, SessionID: sessionID, Action: model.ActionContentPull})
	return readFrame(t, conn)
}

func TestEditSessionEndToEnd(t *testing.T) {
	env := newWSEnv(t, 30*time.Minute)
	sessionID, err := env.registry.Create("u1", "")
	require.NoError(t, err)

	editor := env.dial(t, sessionID)
	first := admit(t, editor, sessionID, model.OriginEditor, "tok-u1")
	assert.Equal(t, model.ActionContentPull, first.Action)
	assert.Equal(t, model.OriginBroker, first.Origin)

	viewer := env.dial(t, sessionID)
	admit(t, viewer, sessionID, model.OriginViewer, "tok-u2")

	// A second editor is rejected without displacing the first binding.
	intruder := env.dial(t, sessionID)
	sendFrame(t, intruder, model.Frame{Origin: model.OriginEditor, SessionID: sessionID, Token: "tok-u1"})
	rejection := readFrame(t, intruder)
	assert.Equal(t, model.ActionError, rejection.Action)
	assert.Equal(t, errs.CodeProcessingError, rejection.ErrorCode)
	closing := readFrame(t, intruder)
	assert.Equal(t, model.ActionSessionClosed, closing.Action)
	require.NoError(t, intruder.SetReadDeadline(time.Now().Add(2*time.Second)))
	var discard model.Frame
	assert.Error(t, intruder.ReadJSON(&discard))

	// Editor pushes content: both peers receive a content-available frame.
	sendFrame(t, editor, model.Frame{Origin: model.OriginEditor, SessionID: sessionID, Action: model.ActionContentPush, Content: "X"})
	forEditor := readFrame(t, editor)
	assert.Equal(t, model.ActionContentPull, forEditor.Action)
	assert.Equal(t, "X", forEditor.Content)
	require.NotNil(t, forEditor.Success)
	assert.True(t, *forEditor.Success)
	forViewer := readFrame(t, viewer)
	assert.Equal(t, "X", forViewer.Content)

	// Viewer pulls: only the viewer gets a response.
	sendFrame(t, viewer, model.Frame{Origin: model.OriginViewer, SessionID: sessionID, Action: model.ActionContentPull})
	pulled := readFrame(t, viewer)
	assert.Equal(t, "X", pulled.Content)

	// Viewer ends the session: both peers get the termination notice. The
	// editor receiving it directly (not a pull response) proves the pull
	// reply went to the viewer alone.
	sendFrame(t, viewer, model.Frame{Origin: model.OriginViewer, SessionID: sessionID, Action: model.ActionEndSession})
	ended := readFrame(t, editor)
	assert.Equal(t, model.ActionEndSession, ended.Action)
	ended = readFrame(t, viewer)
	assert.Equal(t, model.ActionEndSession, ended.Action)

	require.Eventually(t, func() bool {
		return !env.registry.Exists(sessionID)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAdmissionRejections(t *testing.T) {
	env := newWSEnv(t, 30*time.Minute)
	sessionID, err := env.registry.Create("u1", "")
	require.NoError(t, err)

	tests := []struct {
		name     string
		frame    model.Frame
		wantCode errs.Code
	}{
		{
			name:     "unknown session",
			frame:    model.Frame{Origin: model.OriginEditor, SessionID: "nope", Token: "tok-u1"},
			wantCode: errs.CodeSessionNotFound,
		},
		{
			name:     "missing token",
			frame:    model.Frame{Origin: model.OriginEditor, SessionID: sessionID},
			wantCode: errs.CodeMissingToken,
		},
		{
			name:     "invalid token",
			frame:    model.Frame{Origin: model.OriginEditor, SessionID: sessionID, Token: "forged"},
			wantCode: errs.CodeInvalidToken,
		},
		{
			name:     "invalid origin role",
			frame:    model.Frame{Origin: "moderator", SessionID: sessionID, Token: "tok-u1"},
			wantCode: errs.CodeProcessingError,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			conn := env.dial(t, sessionID)
			sendFrame(t, conn, tc.frame)
			errFrame := readFrame(t, conn)
			assert.Equal(t, model.ActionError, errFrame.Action)
			assert.Equal(t, tc.wantCode, errFrame.ErrorCode)
			require.NotNil(t, errFrame.Success)
			assert.False(t, *errFrame.Success)

			closing := readFrame(t, conn)
			assert.Equal(t, model.ActionSessionClosed, closing.Action)
			require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
			var discard model.Frame
			assert.Error(t, conn.ReadJSON(&discard))
		})
	}
}

func TestInvalidActionIsNonFatal(t *testing.T) {
	env := newWSEnv(t, 30*time.Minute)
	sessionID, err := env.registry.Create("u1", "seed")
	require.NoError(t, err)

	conn := env.dial(t, sessionID)
	admit(t, conn, sessionID, model.OriginEditor, "tok-u1")

	sendFrame(t, conn, model.Frame{Origin: model.OriginEditor, SessionID: sessionID, Action: "reticulate-splines"})
	errFrame := readFrame(t, conn)
	assert.Equal(t, errs.CodeInvalidAction, errFrame.ErrorCode)

	// The connection is still usable.
	sendFrame(t, conn, model.Frame{Origin: model.OriginEditor, SessionID: sessionID, Action: model.ActionContentPull})
	pulled := readFrame(t, conn)
	assert.Equal(t, "seed", pulled.Content)
}

func TestMalformedFrameIsNonFatal(t *testing.T) {
	env := newWSEnv(t, 30*time.Minute)
	sessionID, err := env.registry.Create("u1", "seed")
	require.NoError(t, err)

	conn := env.dial(t, sessionID)
	admit(t, conn, sessionID, model.OriginEditor, "tok-u1")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	errFrame := readFrame(t, conn)
	assert.Equal(t, errs.CodeProcessingError, errFrame.ErrorCode)

	sendFrame(t, conn, model.Frame{Origin: model.OriginEditor, SessionID: sessionID, Action: model.ActionContentPull})
	pulled := readFrame(t, conn)
	assert.Equal(t, "seed", pulled.Content)
}

func TestMalformedFirstFrameIsRejectedWithErrorFrame(t *testing.T) {
	env := newWSEnv(t, 30*time.Minute)
	sessionID, err := env.registry.Create("u1", "")
	require.NoError(t, err)

	conn := env.dial(t, sessionID)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

	rejection := readFrame(t, conn)
	assert.Equal(t, model.ActionError, rejection.Action)
	assert.Equal(t, errs.CodeProcessingError, rejection.ErrorCode)
	closing := readFrame(t, conn)
	assert.Equal(t, model.ActionSessionClosed, closing.Action)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var discard model.Frame
	assert.Error(t, conn.ReadJSON(&discard))
}

func TestFrameAfterSessionRemovedClosesConnection(t *testing.T) {
	env := newWSEnv(t, 30*time.Minute)
	sessionID, err := env.registry.Create("u1", "")
	require.NoError(t, err)

	conn := env.dial(t, sessionID)
	admit(t, conn, sessionID, model.OriginEditor, "tok-u1")

	// The session is ended out-of-band (e.g. the other peer, or DELETE).
	require.NoError(t, env.sessions.End(sessionID))
	notice := readFrame(t, conn)
	assert.Equal(t, model.ActionEndSession, notice.Action)

	sendFrame(t, conn, model.Frame{Origin: model.OriginEditor, SessionID: sessionID, Action: model.ActionContentPull})
	errFrame := readFrame(t, conn)
	assert.Equal(t, errs.CodeSessionExpired, errFrame.ErrorCode)

	closing := readFrame(t, conn)
	assert.Equal(t, model.ActionSessionClosed, closing.Action)
}

func TestSweeperClosesSocketsOfExpiredSession(t *testing.T) {
	env := newWSEnv(t, 200*time.Millisecond)
	sessionID, err := env.registry.Create("u1", "")
	require.NoError(t, err)

	conn := env.dial(t, sessionID)
	admit(t, conn, sessionID, model.OriginEditor, "tok-u1")

	// No content change for longer than the idle TTL.
	time.Sleep(250 * time.Millisecond)
	env.sweeper.Sweep(time.Now())

	notice := readFrame(t, conn)
	assert.Equal(t, model.ActionSessionClosed, notice.Action)
	assert.Contains(t, notice.Content, "expired")
	assert.False(t, env.registry.Exists(sessionID))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var discard model.Frame
	assert.Error(t, conn.ReadJSON(&discard))
}

func TestConversionFailureOnlyNotifiesSender(t *testing.T) {
	env := newWSEnv(t, 30*time.Minute)
	sessionID, err := env.registry.Create("u1", "before")
	require.NoError(t, err)

	// Swap in a failing converter for this connection's pushes.
	gin.SetMode(gin.TestMode)
	log := zap.NewNop()
	tokens := &staticTokens{users: map[string]string{"tok-u1": "u1", "tok-u2": "u2"}}
	failing := failingConverter{}
	ws := handler.NewEditWSHandler(env.registry, env.sessions, failing, tokens, 4096, 4096, 1<<20, log)
	rest := handler.NewSessionHandler(env.sessions, tokens, log)
	srv := httptest.NewServer(router.New(rest, ws, handler.NewHealthHandler()))
	t.Cleanup(srv.Close)
	failEnv := &wsEnv{srv: srv, registry: env.registry, sessions: env.sessions}

	editor := failEnv.dial(t, sessionID)
	admit(t, editor, sessionID, model.OriginEditor, "tok-u1")
	viewer := failEnv.dial(t, sessionID)
	admit(t, viewer, sessionID, model.OriginViewer, "tok-u2")

	sendFrame(t, editor, model.Frame{Origin: model.OriginEditor, SessionID: sessionID, Action: model.ActionContentPush, Content: "broken"})
	errFrame := readFrame(t, editor)
	assert.Equal(t, errs.CodeConversionError, errFrame.ErrorCode)

	// Session content is unchanged and the viewer saw nothing: its next frame
	// is the reply to its own pull.
	sendFrame(t, viewer, model.Frame{Origin: model.OriginViewer, SessionID: sessionID, Action: model.ActionContentPull})
	pulled := readFrame(t, viewer)
	assert.Equal(t, "before", pulled.Content)
}

type failingConverter struct{}

func (failingConverter) ToDisplay(_ context.Context, _ string) (string, error) {
	return "", assert.AnError
}

func (failingConverter) ToDocument(_ context.Context, _ string, _ map[string]string) ([]byte, error) {
	return nil, assert.AnError
}
