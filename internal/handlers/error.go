package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/newsdesk/internal/artifact"
	"github.com/memohai/newsdesk/internal/media"
)

// ErrorResponse is the standard API error body (message only).
type ErrorResponse struct {
	Message string `json:"message"`
}

// mediaError maps pipeline errors onto HTTP errors. Messages are generic;
// the cause is logged for server-side failures only.
func mediaError(log *slog.Logger, err error) error {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes), errors.Is(err, artifact.ErrTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file too large")
	case errors.Is(err, artifact.ErrInvalidUpload):
		return echo.NewHTTPError(http.StatusBadRequest, "invalid upload")
	case errors.Is(err, artifact.ErrUnsupportedMediaType):
		return echo.NewHTTPError(http.StatusBadRequest, "unsupported media type")
	case errors.Is(err, artifact.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "media not found")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "request cancelled")
	case errors.Is(err, media.ErrBackendUnavailable):
		log.Error("media request failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "storage not configured")
	case errors.Is(err, artifact.ErrTranscodeFailed):
		log.Error("media request failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "video processing failed")
	default:
		log.Error("media request failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "storage error")
	}
}
