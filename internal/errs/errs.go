package errs

import "errors"

// Domain sentinel errors, mapped to wire error codes and HTTP statuses in handlers.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrQuotaExceeded    = errors.New("session quota exceeded for user")
	ErrRoleAlreadyBound = errors.New("role already has a bound socket")
	ErrInvalidRole      = errors.New("invalid socket role")
	ErrInvalidToken     = errors.New("invalid token")
	ErrMissingToken     = errors.New("missing token")
	ErrEmptyContent     = errors.New("content is empty")
)
