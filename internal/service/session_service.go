package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/markdownpro2/edit-session-service/internal/conversion"
	"github.com/markdownpro2/edit-session-service/internal/errs"
	"github.com/markdownpro2/edit-session-service/internal/model"
)

// LaunchLink is the result of minting a new edit session.
type LaunchLink struct {
	SessionID string
	WordURL   string
}

// SessionService owns the session minting flow (create, render sidecar
// document, hand back a launch link) and explicit session termination.
type SessionService struct {
	registry  *SessionRegistry
	converter conversion.Converter
	tempDir   string
	publicURL string
	log       *zap.Logger
}

// NewSessionService creates a session service.
func NewSessionService(registry *SessionRegistry, converter conversion.Converter, tempDir, publicURL string, log *zap.Logger) *SessionService {
	return &SessionService{
		registry:  registry,
		converter: converter,
		tempDir:   tempDir,
		publicURL: publicURL,
		log:       log,
	}
}

// GenerateLaunchLink creates a session owned by userID with the given HTML as
// initial content, renders it to a document file with the session id and token
// embedded as custom properties, and returns an ms-word launch URL for it.
// This is the only way a session comes into existence.
func (s *SessionService) GenerateLaunchLink(ctx context.Context, userID, token, html string) (*LaunchLink, error) {
	if strings.TrimSpace(html) == "" {
		return nil, errs.ErrEmptyContent
	}

	sessionID, err := s.registry.Create(userID, html)
	if err != nil {
		return nil, err
	}

	doc, err := s.converter.ToDocument(ctx, html, map[string]string{
		"sessionId": sessionID,
		"token":     token,
	})
	if err != nil {
		s.log.Error("failed to render launch document",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return nil, fmt.Errorf("render launch document: %w", err)
	}

	if err := os.MkdirAll(s.tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	fileID := uuid.New().String()
	path := filepath.Join(s.tempDir, fileID+".docx")
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		return nil, fmt.Errorf("write launch document: %w", err)
	}
	s.registry.SetSidecarPath(sessionID, path)

	wordURL := fmt.Sprintf("ms-word:ofe|u|%s/%s.docx", strings.TrimRight(s.publicURL, "/"), fileID)
	s.log.Info("launch link generated",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID))
	return &LaunchLink{SessionID: sessionID, WordURL: wordURL}, nil
}

// End broadcasts a termination notice to every live socket of the session and
// removes it, regardless of which peer or surface initiated the end.
func (s *SessionService) End(sessionID string) error {
	peers, err := s.registry.LiveSockets(sessionID)
	if err != nil {
		return err
	}
	notice := model.NoticeFrame(sessionID, model.ActionEndSession, model.PayloadHTML, "Session ended successfully.")
	for _, p := range peers {
		if err := p.WriteFrame(notice); err != nil {
			s.log.Warn("failed to send end-session notice",
				zap.String("session_id", sessionID),
				zap.Error(err))
		}
	}
	if _, removed := s.registry.Remove(sessionID); !removed {
		return errs.ErrSessionNotFound
	}
	s.log.Info("session ended", zap.String("session_id", sessionID))
	return nil
}
