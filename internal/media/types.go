package media

import (
	"context"
	"errors"
	"io"

	"github.com/memohai/newsdesk/internal/artifact"
	"github.com/memohai/newsdesk/internal/transcode"
)

// MaxUploadBytes is the default size limit for one upload (512 MiB).
const MaxUploadBytes int64 = 512 << 20

// ErrBackendUnavailable is returned when no storage backend is configured.
var ErrBackendUnavailable = errors.New("storage backend not configured")

// IngestInput carries one upload.
type IngestInput struct {
	// Kind optionally declares the expected kind; empty accepts either.
	Kind         artifact.Kind
	ContentType  string
	OriginalName string
	// Reader provides the raw bytes; caller is responsible for closing.
	Reader io.Reader
}

// Transcoder normalizes a video file to the delivery format. On success the
// input is consumed; on failure it is left in place.
type Transcoder interface {
	Transcode(ctx context.Context, job transcode.Job) (transcode.Result, error)
}
