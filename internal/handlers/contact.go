package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/newsdesk/internal/contact"
)

// ContactHandler serves the public contact form.
type ContactHandler struct {
	service *contact.Service
	logger  *slog.Logger
}

// NewContactHandler creates a contact handler.
func NewContactHandler(log *slog.Logger, service *contact.Service) *ContactHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ContactHandler{
		service: service,
		logger:  log.With(slog.String("handler", "contact")),
	}
}

// Register mounts POST /send-email on the Echo instance.
func (h *ContactHandler) Register(e *echo.Echo) {
	e.POST("/send-email", h.Send, throttle(contactRate, contactBurst))
}

// Send godoc
// @Summary Send contact form
// @Description Validate the contact form and relay it by mail
// @Tags contact
// @Accept json
// @Produce json
// @Param payload body contact.Message true "Contact form"
// @Success 200 {object} ErrorResponse
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /send-email [post].
func (h *ContactHandler) Send(c echo.Context) error {
	if h.service == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "mail not configured")
	}
	var msg contact.Message
	if err := c.Bind(&msg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	err := h.service.Submit(c.Request().Context(), msg)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, ErrorResponse{Message: "Email sent successfully!"})
	case errors.Is(err, contact.ErrInvalidMessage):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("contact form delivery failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to send email")
	}
}
