package accounts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/memohai/newsdesk/internal/config"
)

func TestLoginWithPlaintextPassword(t *testing.T) {
	svc, err := NewService(nil, config.AdminConfig{Username: "admin", Password: "s3cret"})
	require.NoError(t, err)

	account, err := svc.Login(context.Background(), " admin ", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "admin", account.Username)
	assert.Equal(t, RoleAdmin, account.Role)

	_, err = svc.Login(context.Background(), "admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(context.Background(), "root", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(context.Background(), "admin", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginWithHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	svc, err := NewService(nil, config.AdminConfig{Username: "editor", Password: "ignored", PasswordHash: string(hash)})
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "editor", "hashed-pass")
	require.NoError(t, err)
	_, err = svc.Login(context.Background(), "editor", "ignored")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestNewServiceValidates(t *testing.T) {
	_, err := NewService(nil, config.AdminConfig{Password: "x"})
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = NewService(nil, config.AdminConfig{Username: "admin"})
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = NewService(nil, config.AdminConfig{Username: "admin", PasswordHash: "not-bcrypt"})
	assert.Error(t, err)
}
