package auth

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/markdownpro2/edit-session-service/internal/errs"
)

// DirectoryValidator checks tokens against a personnel directory database:
// the token decodes to a personnel id, which must exist in the directory.
type DirectoryValidator struct {
	db     *sql.DB
	decode func(token string) (string, error)
	log    *zap.Logger
}

// OpenDirectory opens the personnel directory and returns a validator on it.
// decode maps a bearer token to a personnel id; nil means the token is used
// as the id directly.
func OpenDirectory(dsn string, decode func(string) (string, error), log *zap.Logger) (*DirectoryValidator, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewDirectoryValidator(db, decode, log), nil
}

// NewDirectoryValidator wraps an already-open directory handle.
func NewDirectoryValidator(db *sql.DB, decode func(string) (string, error), log *zap.Logger) *DirectoryValidator {
	if decode == nil {
		decode = func(token string) (string, error) { return token, nil }
	}
	return &DirectoryValidator{db: db, decode: decode, log: log}
}

// Validate resolves the token to a personnel id and checks it exists in the
// directory. Lookup failures are logged and reported as an invalid token.
func (v *DirectoryValidator) Validate(ctx context.Context, token string) (string, error) {
	personnelID, err := v.decode(token)
	if err != nil || personnelID == "" {
		return "", errs.ErrInvalidToken
	}

	var count int
	err = v.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM personnel WHERE personnel_id = $1", personnelID).Scan(&count)
	if err != nil {
		v.log.Error("personnel directory lookup failed", zap.Error(err))
		return "", errs.ErrInvalidToken
	}
	if count == 0 {
		return "", errs.ErrInvalidToken
	}
	return personnelID, nil
}

// Close closes the directory connection.
func (v *DirectoryValidator) Close() error {
	return v.db.Close()
}
