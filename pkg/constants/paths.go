package constants

// Route paths for health, session minting and the edit WebSocket.
const (
	PathHealth       = "/health"
	PathReady        = "/ready"
	PathEditSessions = "/edit-sessions"
	PathWSEdit       = "/ws/edit/:session_id"
)
