package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/newsdesk/internal/news"
)

// NewsHandler serves news item CRUD.
type NewsHandler struct {
	service *news.Service
	logger  *slog.Logger
}

// NewNewsHandler creates a news handler.
func NewNewsHandler(log *slog.Logger, service *news.Service) *NewsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &NewsHandler{
		service: service,
		logger:  log.With(slog.String("handler", "news")),
	}
}

// Register mounts the news routes on the Echo instance.
func (h *NewsHandler) Register(e *echo.Echo) {
	e.GET("/api/news", h.List)
	e.POST("/api/news", h.Create)
	e.DELETE("/api/news/:id", h.Delete)
}

// List godoc
// @Summary List news
// @Description List every news item, oldest first
// @Tags news
// @Produce json
// @Success 200 {array} news.Item
// @Failure 500 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/news [get].
func (h *NewsHandler) List(c echo.Context) error {
	if h.service == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "news service not configured")
	}
	items, err := h.service.List(c.Request().Context())
	if err != nil {
		h.logger.Error("list news failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list news")
	}
	return c.JSON(http.StatusOK, items)
}

// Create godoc
// @Summary Create news
// @Description Create a news item
// @Tags news
// @Accept json
// @Produce json
// @Param payload body news.CreateRequest true "News item"
// @Success 201 {object} news.Item
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/news [post].
func (h *NewsHandler) Create(c echo.Context) error {
	if h.service == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "news service not configured")
	}
	var req news.CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	item, err := h.service.Create(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, news.ErrInvalidInput) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		h.logger.Error("create news failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create news item")
	}
	return c.JSON(http.StatusCreated, item)
}

// Delete godoc
// @Summary Delete news
// @Description Delete a news item
// @Tags news
// @Param id path string true "News item ID"
// @Success 204 "No Content"
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/news/{id} [delete].
func (h *NewsHandler) Delete(c echo.Context) error {
	if h.service == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "news service not configured")
	}
	if err := h.service.Delete(c.Request().Context(), c.Param("id")); err != nil {
		if errors.Is(err, news.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "news item not found")
		}
		h.logger.Error("delete news failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete news item")
	}
	return c.NoContent(http.StatusNoContent)
}
