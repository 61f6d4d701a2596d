package service

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/markdownpro2/edit-session-service/internal/errs"
	"github.com/markdownpro2/edit-session-service/internal/model"
)

// PeerRole is the editing side a socket binds as: editor (rich-editor peer)
// or viewer (browser peer).
type PeerRole string

const (
	PeerRoleEditor PeerRole = "editor"
	PeerRoleViewer PeerRole = "viewer"
)

// RoleFromOrigin maps a frame origin to a bindable role. The broker origin is
// never a bindable role.
func RoleFromOrigin(origin string) (PeerRole, error) {
	switch origin {
	case model.OriginEditor:
		return PeerRoleEditor, nil
	case model.OriginViewer:
		return PeerRoleViewer, nil
	default:
		return "", errs.ErrInvalidRole
	}
}

// ErrPeerClosed is returned by WriteFrame after the peer has been closed.
var ErrPeerClosed = errors.New("peer closed")

const (
	frameWriteTimeout = 10 * time.Second
	closeWriteTimeout = 5 * time.Second
)

// Peer owns one WebSocket transport. The registry holds *Peer only as a
// routing reference; teardown always happens here. Writes are serialized
// through a mutex since gorilla/websocket allows a single concurrent writer,
// and broadcasts arrive from other connections' goroutines. Reads are done
// only by the owning connection goroutine. Every frame write carries a
// deadline so a peer that stops reading cannot hold the write mutex forever,
// and Close never waits on that mutex: it closes the transport directly,
// which unsticks any in-flight writer.
type Peer struct {
	SessionID string
	Role      PeerRole

	conn *websocket.Conn
	log  *zap.Logger

	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewPeer wraps an upgraded connection. SessionID and Role are filled in by
// the connection handler once the first frame has been admitted.
func NewPeer(conn *websocket.Conn, log *zap.Logger) *Peer {
	return &Peer{conn: conn, log: log}
}

// ReadFrame blocks until the next inbound frame is decoded. A transport error
// (including a close frame from the peer) is returned as-is.
func (p *Peer) ReadFrame() (*model.Frame, error) {
	var f model.Frame
	if err := p.conn.ReadJSON(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

// WriteFrame sends one frame. Send failures are surfaced to the caller and
// never terminate the peer here. The write deadline bounds how long a
// non-reading peer can stall broadcasters behind the write mutex.
func (p *Peer) WriteFrame(f *model.Frame) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if p.closed.Load() {
		return ErrPeerClosed
	}
	_ = p.conn.SetWriteDeadline(time.Now().Add(frameWriteTimeout))
	return p.conn.WriteJSON(f)
}

// Open reports whether the peer has not been closed yet.
func (p *Peer) Open() bool {
	return !p.closed.Load()
}

// Close sends a best-effort final notice frame and close message, then tears
// down the transport. Idempotent; later calls are no-ops. The farewell writes
// are skipped when a writer currently holds the write mutex: waiting for it
// could block teardown behind a stalled transport, and closing the connection
// is what forces that writer out.
func (p *Peer) Close(notice *model.Frame) {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		if p.writeMu.TryLock() {
			if notice != nil {
				_ = p.conn.SetWriteDeadline(time.Now().Add(closeWriteTimeout))
				if err := p.conn.WriteJSON(notice); err != nil {
					p.log.Warn("failed to send closing notice",
						zap.String("session_id", p.SessionID),
						zap.Error(err))
				}
			}
			_ = p.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
				time.Now().Add(closeWriteTimeout))
			p.writeMu.Unlock()
		}
		_ = p.conn.Close()

		p.log.Info("websocket closed",
			zap.String("session_id", p.SessionID),
			zap.String("role", string(p.Role)))
	})
}
