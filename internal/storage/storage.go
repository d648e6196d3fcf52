// Package storage defines the Backend interface for artifact persistence.
package storage

import (
	"context"
	"io"

	"github.com/memohai/newsdesk/internal/artifact"
)

// WriteInput carries a fully validated artifact ready to persist.
type WriteInput struct {
	Kind         artifact.Kind
	ContentType  string
	OriginalName string
	// Body provides the raw bytes; caller is responsible for closing.
	Body io.Reader
}

// Backend abstracts artifact persistence. Implementations must make Write
// atomic: readers either see the whole artifact or nothing.
type Backend interface {
	// Write persists a new artifact and returns the committed record.
	Write(ctx context.Context, in WriteInput) (artifact.Artifact, error)
	// List returns the references of every artifact of kind, oldest first.
	List(ctx context.Context, kind artifact.Kind) ([]string, error)
	// Open returns a reader for the artifact behind ref.
	// It returns artifact.ErrNotFound when ref does not resolve.
	Open(ctx context.Context, ref string) (io.ReadCloser, artifact.Artifact, error)
	// Delete removes the artifact behind ref, or returns artifact.ErrNotFound.
	Delete(ctx context.Context, ref string) error
}

// Pinger is implemented by backends with a remote dependency worth probing.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Stater is implemented by backends that can describe an artifact without
// reading its bytes.
type Stater interface {
	// Stat returns the metadata behind ref, or artifact.ErrNotFound.
	Stat(ctx context.Context, ref string) (artifact.Artifact, error)
}
