package model

import "time"

// Session is a point-in-time snapshot of a registry session, safe to use
// outside the registry lock. Socket bindings are not part of the snapshot;
// components must re-check the registry instead of caching them.
type Session struct {
	ID                  string
	UserID              string
	Content             string
	CreatedAt           time.Time
	LastUpdated         time.Time
	LastUserInteraction time.Time
	SidecarFilePath     string
}

// CreateEditSessionRequest is the body for POST /edit-sessions.
type CreateEditSessionRequest struct {
	HTML string `json:"html" binding:"required"`
}

// CreateEditSessionResponse is the success response for POST /edit-sessions.
type CreateEditSessionResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	WordURL   string `json:"word_url"`
}

// HTTPError is the structured error body for the HTTP surface.
type HTTPError struct {
	Success   bool   `json:"success"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}
