package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/memohai/newsdesk/internal/artifact"
	"github.com/memohai/newsdesk/internal/media"
)

// multipartOverhead is allowed on top of the file limit for boundaries and
// part headers.
const multipartOverhead = 1 << 20

// MediaHandler serves upload, listing, retrieval and deletion of media.
type MediaHandler struct {
	ingest   *media.IngestService
	catalog  *media.CatalogService
	maxBytes int64
	logger   *slog.Logger
}

// UploadResponse is the body returned for a committed upload. URL repeats
// the reference for clients of the original API.
type UploadResponse struct {
	artifact.Artifact
	URL string `json:"url"`
}

// DeleteByURLRequest is the body for the kind-specific delete routes.
type DeleteByURLRequest struct {
	URL string `json:"url"`
}

// NewMediaHandler creates a media handler.
func NewMediaHandler(log *slog.Logger, ingest *media.IngestService, catalog *media.CatalogService, maxBytes int64) *MediaHandler {
	if log == nil {
		log = slog.Default()
	}
	if maxBytes <= 0 {
		maxBytes = media.MaxUploadBytes
	}
	return &MediaHandler{
		ingest:   ingest,
		catalog:  catalog,
		maxBytes: maxBytes,
		logger:   log.With(slog.String("handler", "media")),
	}
}

// Register mounts the media routes on the Echo instance.
func (h *MediaHandler) Register(e *echo.Echo) {
	e.POST("/api/upload/image", h.UploadImage)
	e.POST("/api/upload/video", h.UploadVideo)
	e.POST("/api/upload", h.Upload)

	e.GET("/api/media", h.List)
	e.GET("/api/media/images", h.ListImages)
	e.GET("/api/media/videos", h.ListVideos)
	e.GET("/api/media/object", h.FetchByRef)
	e.GET("/api/media/:id", h.FetchByID)
	e.GET("/uploads/:kind/:name", h.FetchPublic)

	e.DELETE("/api/media/object", h.DeleteByRef)
	e.DELETE("/api/delete/media/:id", h.DeleteByID)
	e.DELETE("/api/delete/image", h.DeleteImage)
	e.DELETE("/api/delete/video", h.DeleteVideo)
}

// UploadImage godoc
// @Summary Upload image
// @Description Store the multipart field "image" as an image artifact
// @Tags media
// @Accept multipart/form-data
// @Produce json
// @Param image formData file true "Image file"
// @Success 201 {object} UploadResponse
// @Failure 400 {object} ErrorResponse
// @Failure 413 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/upload/image [post].
func (h *MediaHandler) UploadImage(c echo.Context) error {
	return h.upload(c, "image", artifact.KindImage)
}

// UploadVideo godoc
// @Summary Upload video
// @Description Transcode the multipart field "video" to mp4 and store it
// @Tags media
// @Accept multipart/form-data
// @Produce json
// @Param video formData file true "Video file"
// @Success 201 {object} UploadResponse
// @Failure 400 {object} ErrorResponse
// @Failure 413 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/upload/video [post].
func (h *MediaHandler) UploadVideo(c echo.Context) error {
	return h.upload(c, "video", artifact.KindVideo)
}

// Upload godoc
// @Summary Upload media
// @Description Store the multipart field "file", classifying it by content
// @Tags media
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Image or video file"
// @Success 201 {object} UploadResponse
// @Failure 400 {object} ErrorResponse
// @Failure 413 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/upload [post].
func (h *MediaHandler) Upload(c echo.Context) error {
	return h.upload(c, "file", "")
}

// upload streams the first file part named field into the ingest pipeline
// without buffering the form.
func (h *MediaHandler) upload(c echo.Context, field string, kind artifact.Kind) error {
	if h.ingest == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "storage not configured")
	}
	req := c.Request()
	req.Body = http.MaxBytesReader(c.Response(), req.Body, h.maxBytes+multipartOverhead)
	reader, err := req.MultipartReader()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "expected multipart/form-data")
	}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return echo.NewHTTPError(http.StatusBadRequest, "no file uploaded in field "+strconv.Quote(field))
		}
		if err != nil {
			var maxBytes *http.MaxBytesError
			if errors.As(err, &maxBytes) {
				return mediaError(h.logger, err)
			}
			return echo.NewHTTPError(http.StatusBadRequest, "invalid multipart body")
		}
		if part.FormName() != field || part.FileName() == "" {
			_ = part.Close()
			continue
		}
		a, err := h.ingest.Ingest(req.Context(), media.IngestInput{
			Kind:         kind,
			ContentType:  part.Header.Get(echo.HeaderContentType),
			OriginalName: part.FileName(),
			Reader:       part,
		})
		_ = part.Close()
		if err != nil {
			return mediaError(h.logger, err)
		}
		return c.JSON(http.StatusCreated, UploadResponse{Artifact: a, URL: a.Reference})
	}
}

// List godoc
// @Summary List media
// @Description List artifact references, images before videos when kind is omitted
// @Tags media
// @Produce json
// @Param kind query string false "Artifact kind (image, video)"
// @Success 200 {array} string
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/media [get].
func (h *MediaHandler) List(c echo.Context) error {
	raw := strings.TrimSpace(c.QueryParam("kind"))
	if raw == "" {
		refs := make([]string, 0)
		for _, kind := range artifact.Kinds {
			part, err := h.list(c, kind)
			if err != nil {
				return err
			}
			refs = append(refs, part...)
		}
		return c.JSON(http.StatusOK, refs)
	}
	kind, err := artifact.ParseKind(raw)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "kind must be image or video")
	}
	refs, err := h.list(c, kind)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, refs)
}

// ListImages godoc
// @Summary List images
// @Description List image references, oldest first
// @Tags media
// @Produce json
// @Success 200 {array} string
// @Failure 500 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/media/images [get].
func (h *MediaHandler) ListImages(c echo.Context) error {
	refs, err := h.list(c, artifact.KindImage)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, refs)
}

// ListVideos godoc
// @Summary List videos
// @Description List video references, oldest first
// @Tags media
// @Produce json
// @Success 200 {array} string
// @Failure 500 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/media/videos [get].
func (h *MediaHandler) ListVideos(c echo.Context) error {
	refs, err := h.list(c, artifact.KindVideo)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, refs)
}

func (h *MediaHandler) list(c echo.Context, kind artifact.Kind) ([]string, error) {
	if h.catalog == nil {
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, "storage not configured")
	}
	refs, err := h.catalog.List(c.Request().Context(), kind)
	if err != nil {
		return nil, mediaError(h.logger, err)
	}
	return refs, nil
}

// FetchByRef godoc
// @Summary Fetch media by reference
// @Description Stream the artifact behind a reference
// @Tags media
// @Produce octet-stream
// @Param ref query string true "Artifact reference"
// @Success 200 {file} binary
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/media/object [get].
func (h *MediaHandler) FetchByRef(c echo.Context) error {
	return h.fetch(c, c.QueryParam("ref"))
}

// FetchByID godoc
// @Summary Fetch media by ID
// @Description Stream the artifact with the given ID
// @Tags media
// @Produce octet-stream
// @Param id path string true "Artifact ID"
// @Success 200 {file} binary
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/media/{id} [get].
func (h *MediaHandler) FetchByID(c echo.Context) error {
	return h.fetch(c, c.Param("id"))
}

// FetchPublic godoc
// @Summary Fetch public upload
// @Description Serve a filesystem artifact by its public URL
// @Tags media
// @Produce octet-stream
// @Param kind path string true "Kind directory (images, videos)"
// @Param name path string true "Stored file name"
// @Success 200 {file} binary
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /uploads/{kind}/{name} [get].
func (h *MediaHandler) FetchPublic(c echo.Context) error {
	return h.fetch(c, "/uploads/"+c.Param("kind")+"/"+c.Param("name"))
}

func (h *MediaHandler) fetch(c echo.Context, ref string) error {
	if h.catalog == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "storage not configured")
	}
	if strings.TrimSpace(ref) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "reference is required")
	}
	rc, a, err := h.catalog.Fetch(c.Request().Context(), ref)
	if err != nil {
		return mediaError(h.logger, err)
	}
	defer func() { _ = rc.Close() }()

	header := c.Response().Header()
	header.Set("X-Content-Type-Options", "nosniff")
	header.Set(echo.HeaderCacheControl, "public, max-age=31536000, immutable")
	if a.SizeBytes > 0 {
		header.Set(echo.HeaderContentLength, strconv.FormatInt(a.SizeBytes, 10))
	}
	return c.Stream(http.StatusOK, a.ContentType, rc)
}

// DeleteByRef godoc
// @Summary Delete media by reference
// @Description Remove the artifact behind a reference
// @Tags media
// @Param ref query string true "Artifact reference"
// @Success 204 "No Content"
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/media/object [delete].
func (h *MediaHandler) DeleteByRef(c echo.Context) error {
	return h.remove(c, "", c.QueryParam("ref"))
}

// DeleteByID godoc
// @Summary Delete media by ID
// @Description Remove the artifact with the given ID
// @Tags media
// @Param id path string true "Artifact ID"
// @Success 204 "No Content"
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/delete/media/{id} [delete].
func (h *MediaHandler) DeleteByID(c echo.Context) error {
	return h.remove(c, "", c.Param("id"))
}

// DeleteImage godoc
// @Summary Delete image
// @Description Remove the image named by url
// @Tags media
// @Accept json
// @Param payload body DeleteByURLRequest true "Image reference"
// @Success 204 "No Content"
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/delete/image [delete].
func (h *MediaHandler) DeleteImage(c echo.Context) error {
	return h.removeByBody(c, artifact.KindImage)
}

// DeleteVideo godoc
// @Summary Delete video
// @Description Remove the video named by url
// @Tags media
// @Accept json
// @Param payload body DeleteByURLRequest true "Video reference"
// @Success 204 "No Content"
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/delete/video [delete].
func (h *MediaHandler) DeleteVideo(c echo.Context) error {
	return h.removeByBody(c, artifact.KindVideo)
}

func (h *MediaHandler) removeByBody(c echo.Context, kind artifact.Kind) error {
	var req DeleteByURLRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return h.remove(c, kind, req.URL)
}

func (h *MediaHandler) remove(c echo.Context, kind artifact.Kind, ref string) error {
	if h.catalog == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "storage not configured")
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "reference is required")
	}
	ctx := c.Request().Context()
	var err error
	if kind == "" {
		err = h.catalog.Remove(ctx, ref)
	} else {
		err = h.catalog.RemoveKind(ctx, kind, ref)
	}
	if err != nil {
		return mediaError(h.logger, err)
	}
	return c.NoContent(http.StatusNoContent)
}
