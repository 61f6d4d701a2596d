package model

import "github.com/markdownpro2/edit-session-service/internal/errs"

// Origin identifies who produced a frame.
const (
	OriginEditor = "editor"
	OriginViewer = "viewer"
	OriginBroker = "broker"
)

// Frame actions. ActionContentPull doubles as the action of content-available
// frames broadcast by the broker after a successful push.
const (
	ActionContentPush   = "content-push"
	ActionContentPull   = "content-pull"
	ActionEndSession    = "end-session"
	ActionSessionClosed = "session-closed"
	ActionError         = "error"
)

// Payload type hints.
const (
	PayloadHTML     = "html"
	PayloadDocument = "docx"
)

// Frame is the wire message exchanged over the edit WebSocket, both directions.
// Token is only honored on the very first inbound frame of a connection.
type Frame struct {
	Origin      string    `json:"origin"`
	SessionID   string    `json:"sessionId"`
	Action      string    `json:"action"`
	PayloadType string    `json:"payloadType,omitempty"`
	Content     string    `json:"content,omitempty"`
	Success     *bool     `json:"success,omitempty"`
	Token       string    `json:"token,omitempty"`
	ErrorCode   errs.Code `json:"errorCode,omitempty"`
}

// ErrorFrame builds a broker error frame for a code, with an optional detail
// appended to the localized message.
func ErrorFrame(sessionID string, code errs.Code, detail string) *Frame {
	content := errs.Message(code)
	if detail != "" {
		content = content + ": " + detail
	}
	success := false
	return &Frame{
		Origin:    OriginBroker,
		SessionID: sessionID,
		Action:    ActionError,
		Content:   content,
		Success:   &success,
		ErrorCode: code,
	}
}

// NoticeFrame builds a broker frame with success=true for the given action.
func NoticeFrame(sessionID, action, payloadType, content string) *Frame {
	success := true
	return &Frame{
		Origin:      OriginBroker,
		SessionID:   sessionID,
		Action:      action,
		PayloadType: payloadType,
		Content:     content,
		Success:     &success,
	}
}
