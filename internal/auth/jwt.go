// Package auth issues and verifies the bearer tokens guarding the API.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const contextKey = "user"

var (
	ErrMissingSecret = errors.New("jwt secret is required")
	ErrRevokedToken  = errors.New("token has been revoked")
)

// Claims are carried by every issued token.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// GenerateToken signs an HS256 token for subject with a fresh jti.
func GenerateToken(subject, username, secret string, expiresIn time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, ErrMissingSecret
	}
	if expiresIn <= 0 {
		return "", time.Time{}, errors.New("jwt expiry must be positive")
	}
	now := time.Now().UTC()
	expiresAt := now.Add(expiresIn)
	jti, err := uuid.NewRandom()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token id: %w", err)
	}
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        jti.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseToken verifies raw and returns its claims.
func ParseToken(raw, secret string) (*jwt.Token, *Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, nil, err
	}
	return token, claims, nil
}

// JWTMiddleware rejects requests without a valid, unrevoked bearer token
// unless skipper returns true. revoker may be nil.
func JWTMiddleware(log *slog.Logger, secret string, revoker *Revoker, skipper middleware.Skipper) echo.MiddlewareFunc {
	if log == nil {
		log = slog.Default()
	}
	return echojwt.WithConfig(echojwt.Config{
		Skipper:    skipper,
		ContextKey: contextKey,
		ParseTokenFunc: func(c echo.Context, raw string) (any, error) {
			token, claims, err := ParseToken(raw, secret)
			if err != nil {
				return nil, err
			}
			if revoker != nil {
				revoked, err := revoker.IsRevoked(c.Request().Context(), claims.ID)
				if err != nil {
					log.Error("revocation lookup failed", slog.Any("error", err))
					return nil, err
				}
				if revoked {
					return nil, ErrRevokedToken
				}
			}
			return token, nil
		},
		ErrorHandler: func(_ echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized").SetInternal(err)
		},
	})
}

// ClaimsFromContext returns the claims of the authenticated request.
func ClaimsFromContext(c echo.Context) (*Claims, bool) {
	token, ok := c.Get(contextKey).(*jwt.Token)
	if !ok || token == nil {
		return nil, false
	}
	claims, ok := token.Claims.(*Claims)
	return claims, ok
}
