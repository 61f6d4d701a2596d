// Package auth resolves opaque bearer tokens to user identities.
package auth

import "context"

// TokenValidator is the auth gateway: it resolves a bearer token to the user
// id it belongs to, or fails with errs.ErrInvalidToken.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (userID string, err error)
}
