// Package accounts authenticates the shared editor credential.
package accounts

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/memohai/newsdesk/internal/config"
)

// Errors returned by account operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotConfigured      = errors.New("admin credential not configured")
)

// Service checks logins against the single configured credential.
type Service struct {
	username     string
	passwordHash []byte
	logger       *slog.Logger
}

// NewService builds the service from [admin]. A plaintext password is hashed
// once here so it is never compared directly.
func NewService(log *slog.Logger, cfg config.AdminConfig) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}
	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is empty", ErrNotConfigured)
	}
	var hash []byte
	switch {
	case strings.TrimSpace(cfg.PasswordHash) != "":
		hash = []byte(strings.TrimSpace(cfg.PasswordHash))
		if _, err := bcrypt.Cost(hash); err != nil {
			return nil, fmt.Errorf("admin password_hash: %w", err)
		}
	case cfg.Password != "":
		hashed, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash admin password: %w", err)
		}
		hash = hashed
	default:
		return nil, fmt.Errorf("%w: password is empty", ErrNotConfigured)
	}
	return &Service{
		username:     username,
		passwordHash: hash,
		logger:       log.With(slog.String("service", "accounts")),
	}, nil
}

// Login authenticates username and password.
func (s *Service) Login(_ context.Context, username, password string) (Account, error) {
	username = strings.TrimSpace(username)
	if username == "" || strings.TrimSpace(password) == "" {
		return Account{}, ErrInvalidCredentials
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	// the hash is compared even for an unknown username
	passErr := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password))
	if !userOK || passErr != nil {
		s.logger.Warn("login rejected", slog.String("username", username))
		return Account{}, ErrInvalidCredentials
	}
	return Account{ID: s.username, Username: s.username, Role: RoleAdmin}, nil
}
