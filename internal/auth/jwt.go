package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/markdownpro2/edit-session-service/internal/errs"
)

// JWTValidator validates HMAC-signed JWTs and takes the user id from the
// subject claim.
type JWTValidator struct {
	signingKey []byte
}

// NewJWTValidator creates a validator for tokens signed with the given HMAC key.
func NewJWTValidator(signingKey []byte) (*JWTValidator, error) {
	if len(signingKey) == 0 {
		return nil, errors.New("auth: signing key is required")
	}
	return &JWTValidator{signingKey: signingKey}, nil
}

// Validate parses and verifies the token and returns its subject.
func (v *JWTValidator) Validate(_ context.Context, token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil || !parsed.Valid {
		return "", errs.ErrInvalidToken
	}
	subject, err := parsed.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", errs.ErrInvalidToken
	}
	return subject, nil
}
