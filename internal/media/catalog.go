package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/memohai/newsdesk/internal/artifact"
	"github.com/memohai/newsdesk/internal/storage"
)

// CatalogService lists, fetches and removes committed artifacts.
type CatalogService struct {
	backend storage.Backend
	logger  *slog.Logger
}

// NewCatalogService creates a catalog over backend.
func NewCatalogService(log *slog.Logger, backend storage.Backend) *CatalogService {
	if log == nil {
		log = slog.Default()
	}
	return &CatalogService{
		backend: backend,
		logger:  log.With(slog.String("service", "media_catalog")),
	}
}

// List returns every reference of kind, oldest first.
func (s *CatalogService) List(ctx context.Context, kind artifact.Kind) ([]string, error) {
	if s.backend == nil {
		return nil, ErrBackendUnavailable
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: kind %q", artifact.ErrUnsupportedMediaType, kind)
	}
	refs, err := s.backend.List(ctx, kind)
	if err != nil {
		return nil, s.wrap("list", err)
	}
	return refs, nil
}

// Fetch opens the artifact behind ref. The caller closes the reader.
func (s *CatalogService) Fetch(ctx context.Context, ref string) (io.ReadCloser, artifact.Artifact, error) {
	if s.backend == nil {
		return nil, artifact.Artifact{}, ErrBackendUnavailable
	}
	rc, a, err := s.backend.Open(ctx, ref)
	if err != nil {
		return nil, artifact.Artifact{}, s.wrap("fetch", err)
	}
	return rc, a, nil
}

// Remove deletes the artifact behind ref.
func (s *CatalogService) Remove(ctx context.Context, ref string) error {
	if s.backend == nil {
		return ErrBackendUnavailable
	}
	if err := s.backend.Delete(ctx, ref); err != nil {
		return s.wrap("remove", err)
	}
	s.logger.Info("artifact removed", slog.String("reference", ref))
	return nil
}

// RemoveKind deletes ref only if it resolves to an artifact of kind. A
// reference of another kind is reported as not found.
func (s *CatalogService) RemoveKind(ctx context.Context, kind artifact.Kind, ref string) error {
	a, err := s.stat(ctx, ref)
	if err != nil {
		return err
	}
	if a.Kind != kind {
		return artifact.ErrNotFound
	}
	return s.Remove(ctx, ref)
}

// stat prefers the backend's metadata lookup and falls back to opening ref.
func (s *CatalogService) stat(ctx context.Context, ref string) (artifact.Artifact, error) {
	if s.backend == nil {
		return artifact.Artifact{}, ErrBackendUnavailable
	}
	if st, ok := s.backend.(storage.Stater); ok {
		a, err := st.Stat(ctx, ref)
		if err != nil {
			return artifact.Artifact{}, s.wrap("stat", err)
		}
		return a, nil
	}
	rc, a, err := s.Fetch(ctx, ref)
	if err != nil {
		return artifact.Artifact{}, err
	}
	_ = rc.Close()
	return a, nil
}

// Ping probes backends with a remote dependency.
func (s *CatalogService) Ping(ctx context.Context) error {
	if s.backend == nil {
		return ErrBackendUnavailable
	}
	if p, ok := s.backend.(storage.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *CatalogService) wrap(op string, err error) error {
	switch {
	case errors.Is(err, artifact.ErrNotFound),
		errors.Is(err, artifact.ErrUnsupportedMediaType),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	s.logger.Error("backend "+op+" failed", slog.Any("error", err))
	return fmt.Errorf("%w: %s: %w", artifact.ErrStorage, op, err)
}
