// Package artifact defines the persisted media unit shared by the storage
// backends and the media services.
package artifact

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an artifact.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Kinds lists every supported kind in display order.
var Kinds = []Kind{KindImage, KindVideo}

// ParseKind accepts the singular and plural spelling ("image", "images").
func ParseKind(value string) (Kind, error) {
	switch value {
	case "image", "images":
		return KindImage, nil
	case "video", "videos":
		return KindVideo, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrUnsupportedMediaType, value)
	}
}

// Dir returns the directory (or key segment) the kind is stored under.
func (k Kind) Dir() string {
	switch k {
	case KindImage:
		return "images"
	case KindVideo:
		return "videos"
	default:
		return ""
	}
}

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool {
	return k == KindImage || k == KindVideo
}

// Artifact is a committed media object. ID and CreatedAt are assigned by the
// storage backend at write time and never change afterwards.
type Artifact struct {
	ID           string    `json:"id"`
	Kind         Kind      `json:"kind"`
	ContentType  string    `json:"content_type"`
	OriginalName string    `json:"original_name,omitempty"`
	SizeBytes    int64     `json:"size_bytes"`
	Checksum     string    `json:"checksum,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	// Reference is the handle callers use to fetch or delete the artifact.
	Reference string `json:"reference"`
}

// Errors returned across the media pipeline.
var (
	ErrInvalidUpload        = errors.New("invalid upload")
	ErrTooLarge             = fmt.Errorf("%w: payload too large", ErrInvalidUpload)
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrTranscodeFailed      = errors.New("transcode failed")
	ErrNotFound             = errors.New("artifact not found")
	ErrStorage              = errors.New("storage error")
)
