package service

import (
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/markdownpro2/edit-session-service/internal/errs"
	"github.com/markdownpro2/edit-session-service/internal/model"
)

// session is the registry-internal record. Mutated only under the registry
// mutex; everything handed out is a copy or a *Peer routing reference.
type session struct {
	id                  string
	userID              string
	content             string
	createdAt           time.Time
	lastUpdated         time.Time
	lastUserInteraction time.Time
	editor              *Peer
	viewer              *Peer
	sidecarFilePath     string
}

// Expired is one evicted session with the sockets that were still open at
// eviction time, for the caller to close.
type Expired struct {
	SessionID string
	Peers     []*Peer
}

// SessionRegistry is the in-memory store of live edit sessions. It is the sole
// shared mutable resource between connection goroutines and the cleanup
// sweeper; every operation is a short atomic step under one mutex, and no
// external call happens while the lock is held.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*session

	idleTTL     time.Duration
	maxLifetime time.Duration
	maxPerUser  int
	log         *zap.Logger

	now func() time.Time
}

// NewSessionRegistry creates a registry with the given eviction bounds and
// per-user session quota.
func NewSessionRegistry(idleTTL, maxLifetime time.Duration, maxPerUser int, log *zap.Logger) *SessionRegistry {
	return &SessionRegistry{
		sessions:    make(map[string]*session),
		idleTTL:     idleTTL,
		maxLifetime: maxLifetime,
		maxPerUser:  maxPerUser,
		log:         log,
		now:         time.Now,
	}
}

// Create allocates a fresh session for userID. Fails with ErrQuotaExceeded
// when the user already holds the configured maximum of live sessions.
func (r *SessionRegistry) Create(userID, initialContent string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	live := 0
	for _, s := range r.sessions {
		if s.userID == userID {
			live++
		}
	}
	if live >= r.maxPerUser {
		return "", errs.ErrQuotaExceeded
	}

	id := uuid.New().String()
	now := r.now()
	r.sessions[id] = &session{
		id:                  id,
		userID:              userID,
		content:             initialContent,
		createdAt:           now,
		lastUpdated:         now,
		lastUserInteraction: now,
	}
	r.log.Info("session created",
		zap.String("session_id", id),
		zap.String("user_id", userID))
	return id, nil
}

// Get returns a snapshot of the session, or ErrSessionNotFound. A session past
// its idle TTL or absolute lifetime is removed on the spot and reported as not
// found; reads do not count as activity.
func (r *SessionRegistry) Get(sessionID string) (*model.Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return nil, errs.ErrSessionNotFound
	}
	now := r.now()
	if now.Sub(s.lastUserInteraction) > r.idleTTL || now.Sub(s.createdAt) > r.maxLifetime {
		delete(r.sessions, sessionID)
		sidecar := s.sidecarFilePath
		r.mu.Unlock()
		r.deleteSidecar(sessionID, sidecar)
		r.log.Info("session lazily expired on read", zap.String("session_id", sessionID))
		return nil, errs.ErrSessionNotFound
	}
	snap := snapshot(s)
	r.mu.Unlock()
	return snap, nil
}

// Exists reports whether the session is currently in the registry.
func (r *SessionRegistry) Exists(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[sessionID]
	return ok
}

// Update applies a last-write-wins content merge. Silent no-op if the session
// is gone. Only an actual content change refreshes lastUserInteraction;
// lastUpdated is refreshed on every call.
func (r *SessionRegistry) Update(sessionID, newContent string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	now := r.now()
	if s.content != newContent {
		s.content = newContent
		s.lastUserInteraction = now
	}
	s.lastUpdated = now
}

// Bind registers a socket under a role. At most one socket per role; a second
// bind for an occupied role fails with ErrRoleAlreadyBound and never displaces
// the existing binding.
func (r *SessionRegistry) Bind(sessionID string, role PeerRole, p *Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return errs.ErrSessionNotFound
	}
	switch role {
	case PeerRoleEditor:
		if s.editor != nil {
			return errs.ErrRoleAlreadyBound
		}
		s.editor = p
	case PeerRoleViewer:
		if s.viewer != nil {
			return errs.ErrRoleAlreadyBound
		}
		s.viewer = p
	default:
		return errs.ErrInvalidRole
	}
	r.log.Info("socket bound",
		zap.String("session_id", sessionID),
		zap.String("role", string(role)))
	return nil
}

// Unbind clears whichever role slot holds exactly this peer. Idempotent; no-op
// when the session or the binding is absent.
func (r *SessionRegistry) Unbind(sessionID string, p *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	switch {
	case s.editor == p:
		s.editor = nil
	case s.viewer == p:
		s.viewer = nil
	default:
		return
	}
	r.log.Info("socket unbound", zap.String("session_id", sessionID))
}

// IsAuthenticated reports whether this peer currently occupies either role
// slot of the session. ErrSessionNotFound when the session is absent, which is
// distinct from a plain false.
func (r *SessionRegistry) IsAuthenticated(sessionID string, p *Peer) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return false, errs.ErrSessionNotFound
	}
	return s.editor == p || s.viewer == p, nil
}

// LiveSockets returns every bound, still-open socket of the session, for
// broadcast fan-out.
func (r *SessionRegistry) LiveSockets(sessionID string) ([]*Peer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, errs.ErrSessionNotFound
	}
	return s.livePeers(), nil
}

// SetSidecarPath records the temporary artifact path owned by the session.
func (r *SessionRegistry) SetSidecarPath(sessionID, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		s.sidecarFilePath = path
	}
}

// Remove atomically detaches the session and returns its final snapshot.
// Exactly one of any number of concurrent callers observes ok=true. The
// sidecar file, if any, is deleted by that caller.
func (r *SessionRegistry) Remove(sessionID string) (*model.Session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return nil, false
	}
	delete(r.sessions, sessionID)
	snap := snapshot(s)
	r.mu.Unlock()

	r.deleteSidecar(sessionID, snap.SidecarFilePath)
	r.log.Info("session removed", zap.String("session_id", sessionID))
	return snap, true
}

// ExpireAll evicts every session past its idle TTL or absolute lifetime and
// returns, per evicted session, the sockets that were open at eviction time.
// The absolute cap wins even for an active user.
func (r *SessionRegistry) ExpireAll(now time.Time) []Expired {
	r.mu.Lock()
	var evicted []Expired
	var sidecars []string
	for id, s := range r.sessions {
		idle := now.Sub(s.lastUserInteraction) > r.idleTTL
		tooOld := now.Sub(s.createdAt) > r.maxLifetime
		if !idle && !tooOld {
			continue
		}
		delete(r.sessions, id)
		evicted = append(evicted, Expired{SessionID: id, Peers: s.livePeers()})
		if s.sidecarFilePath != "" {
			sidecars = append(sidecars, s.sidecarFilePath)
		}
	}
	r.mu.Unlock()

	for _, e := range evicted {
		r.log.Info("session expired", zap.String("session_id", e.SessionID))
	}
	for _, path := range sidecars {
		r.deleteSidecar("", path)
	}
	return evicted
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (s *session) livePeers() []*Peer {
	var peers []*Peer
	if s.editor != nil && s.editor.Open() {
		peers = append(peers, s.editor)
	}
	if s.viewer != nil && s.viewer.Open() {
		peers = append(peers, s.viewer)
	}
	return peers
}

func snapshot(s *session) *model.Session {
	return &model.Session{
		ID:                  s.id,
		UserID:              s.userID,
		Content:             s.content,
		CreatedAt:           s.createdAt,
		LastUpdated:         s.lastUpdated,
		LastUserInteraction: s.lastUserInteraction,
		SidecarFilePath:     s.sidecarFilePath,
	}
}

func (r *SessionRegistry) deleteSidecar(sessionID, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		r.log.Error("failed to delete sidecar file",
			zap.String("session_id", sessionID),
			zap.String("path", path),
			zap.Error(err))
	}
}
