package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markdownpro2/edit-session-service/internal/errs"
)

func newDirectoryMock(t *testing.T, decode func(string) (string, error)) (*DirectoryValidator, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewDirectoryValidator(db, decode, zap.NewNop()), mock
}

func TestDirectoryValidateKnownPersonnel(t *testing.T) {
	v, mock := newDirectoryMock(t, nil)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM personnel").
		WithArgs("p-100").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	id, err := v.Validate(context.Background(), "p-100")
	require.NoError(t, err)
	assert.Equal(t, "p-100", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectoryValidateUnknownPersonnel(t *testing.T) {
	v, mock := newDirectoryMock(t, nil)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM personnel").
		WithArgs("p-404").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, err := v.Validate(context.Background(), "p-404")
	assert.ErrorIs(t, err, errs.ErrInvalidToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectoryValidateDecodeFailure(t *testing.T) {
	decode := func(string) (string, error) { return "", errors.New("opaque token") }
	v, mock := newDirectoryMock(t, decode)

	// No query must be issued when the token cannot be decoded.
	_, err := v.Validate(context.Background(), "garbage")
	assert.ErrorIs(t, err, errs.ErrInvalidToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectoryValidateEmptyDecodedID(t *testing.T) {
	decode := func(string) (string, error) { return "", nil }
	v, mock := newDirectoryMock(t, decode)

	_, err := v.Validate(context.Background(), "anything")
	assert.ErrorIs(t, err, errs.ErrInvalidToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectoryValidateLookupError(t *testing.T) {
	v, mock := newDirectoryMock(t, nil)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM personnel").
		WithArgs("p-100").
		WillReturnError(errors.New("connection refused"))

	_, err := v.Validate(context.Background(), "p-100")
	assert.ErrorIs(t, err, errs.ErrInvalidToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectoryValidateCustomDecode(t *testing.T) {
	decode := func(token string) (string, error) { return "p-" + token, nil }
	v, mock := newDirectoryMock(t, decode)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM personnel").
		WithArgs("p-42").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	id, err := v.Validate(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "p-42", id)
}
