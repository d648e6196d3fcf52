package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/memohai/newsdesk/internal/artifact"
	"github.com/memohai/newsdesk/internal/storage"
	"github.com/memohai/newsdesk/internal/transcode"
)

const sniffLen = 512

// IngestConfig tunes the ingest pipeline.
type IngestConfig struct {
	MaxBytes int64
	// WorkDir holds spooled uploads and transcode output. Defaults to os.TempDir().
	WorkDir string
	// FailedDir receives uploads that could not be transcoded. Empty discards them.
	FailedDir string
}

// IngestService turns an upload into a committed artifact:
// spool, classify, transcode (video), persist.
type IngestService struct {
	backend    storage.Backend
	transcoder Transcoder
	namer      *artifact.Namer
	cfg        IngestConfig
	logger     *slog.Logger
}

// NewIngestService creates an ingest service writing to backend. A nil namer
// uses artifact.NewNamer.
func NewIngestService(log *slog.Logger, backend storage.Backend, transcoder Transcoder, namer *artifact.Namer, cfg IngestConfig) *IngestService {
	if log == nil {
		log = slog.Default()
	}
	if namer == nil {
		namer = artifact.NewNamer()
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = MaxUploadBytes
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	return &IngestService{
		backend:    backend,
		transcoder: transcoder,
		namer:      namer,
		cfg:        cfg,
		logger:     log.With(slog.String("service", "media_ingest")),
	}
}

// Ingest persists one upload. Every temporary file it creates is gone when
// it returns, whatever the outcome.
func (s *IngestService) Ingest(ctx context.Context, in IngestInput) (artifact.Artifact, error) {
	if s.backend == nil {
		return artifact.Artifact{}, ErrBackendUnavailable
	}
	if in.Reader == nil {
		return artifact.Artifact{}, fmt.Errorf("%w: reader is required", artifact.ErrInvalidUpload)
	}
	start := time.Now()

	spooled, size, err := spoolWithLimit(in.Reader, s.cfg.WorkDir, s.cfg.MaxBytes)
	if err != nil {
		return artifact.Artifact{}, err
	}
	released := false
	defer func() {
		if !released {
			_ = os.Remove(spooled)
		}
	}()

	head, err := readHead(spooled)
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("%w: %w", artifact.ErrStorage, err)
	}
	kind, contentType, err := artifact.Classify(in.ContentType, head)
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("%w: %q", artifact.ErrUnsupportedMediaType, contentType)
	}
	if in.Kind != "" && in.Kind != kind {
		return artifact.Artifact{}, fmt.Errorf("%w: expected %s, got %s", artifact.ErrUnsupportedMediaType, in.Kind, contentType)
	}

	payload := spooled
	if kind == artifact.KindVideo {
		res, err := s.transcodeVideo(ctx, spooled, in.OriginalName)
		if err != nil {
			if !errors.Is(err, artifact.ErrInvalidUpload) {
				s.quarantine(spooled, in.OriginalName)
				released = true
			}
			return artifact.Artifact{}, err
		}
		// the transcoder consumed the spooled input
		released = true
		payload = res.OutputPath
		defer func() { _ = os.Remove(res.OutputPath) }()
		contentType = res.ContentType
		size = res.SizeBytes
	}

	if err := ctx.Err(); err != nil {
		return artifact.Artifact{}, err
	}

	f, err := os.Open(payload)
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("%w: %w", artifact.ErrStorage, err)
	}
	defer func() { _ = f.Close() }()

	a, err := s.backend.Write(ctx, storage.WriteInput{
		Kind:         kind,
		ContentType:  contentType,
		OriginalName: in.OriginalName,
		Body:         f,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return artifact.Artifact{}, ctxErr
		}
		s.logger.Error("store artifact failed", slog.String("kind", string(kind)), slog.Any("error", err))
		return artifact.Artifact{}, fmt.Errorf("%w: %w", artifact.ErrStorage, err)
	}

	s.logger.Info("artifact ingested",
		slog.String("id", a.ID),
		slog.String("kind", string(kind)),
		slog.String("content_type", a.ContentType),
		slog.Int64("size", size),
		slog.Duration("elapsed", time.Since(start)),
	)
	return a, nil
}

func (s *IngestService) transcodeVideo(ctx context.Context, input, originalName string) (transcode.Result, error) {
	if s.transcoder == nil {
		return transcode.Result{}, fmt.Errorf("%w: no transcoder configured", artifact.ErrTranscodeFailed)
	}
	res, err := s.transcoder.Transcode(ctx, transcode.Job{
		InputPath: input,
		OutputDir: s.cfg.WorkDir,
		BaseName:  originalName,
	})
	if err != nil {
		if errors.Is(err, artifact.ErrTranscodeFailed) || errors.Is(err, artifact.ErrInvalidUpload) {
			return transcode.Result{}, err
		}
		return transcode.Result{}, fmt.Errorf("%w: %w", artifact.ErrTranscodeFailed, err)
	}
	return res, nil
}

// quarantine moves an input that failed to transcode into FailedDir, or
// removes it when no FailedDir is configured.
func (s *IngestService) quarantine(path, originalName string) {
	if s.cfg.FailedDir == "" {
		_ = os.Remove(path)
		return
	}
	dest := filepath.Join(s.cfg.FailedDir, s.namer.Name(originalName, filepath.Ext(originalName)))
	err := os.MkdirAll(s.cfg.FailedDir, 0o750)
	if err == nil {
		err = os.Rename(path, dest)
	}
	if err != nil {
		s.logger.Warn("keep failed upload", slog.Any("error", err))
		_ = os.Remove(path)
		return
	}
	s.logger.Info("failed upload kept", slog.String("path", dest))
}

// spoolWithLimit copies reader into a temp file under dir. The file is
// removed on error.
func spoolWithLimit(reader io.Reader, dir string, maxBytes int64) (string, int64, error) {
	tempFile, err := os.CreateTemp(dir, "newsdesk-upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("%w: create temp file: %w", artifact.ErrStorage, err)
	}
	tempPath := tempFile.Name()
	keepFile := false
	defer func() {
		_ = tempFile.Close()
		if !keepFile {
			_ = os.Remove(tempPath)
		}
	}()

	limited := &io.LimitedReader{R: reader, N: maxBytes + 1}
	written, err := io.Copy(tempFile, limited)
	if err != nil {
		return "", 0, fmt.Errorf("%w: read upload: %w", artifact.ErrInvalidUpload, err)
	}
	if written > maxBytes {
		return "", 0, fmt.Errorf("%w: max %d bytes", artifact.ErrTooLarge, maxBytes)
	}
	if written == 0 {
		return "", 0, fmt.Errorf("%w: payload is empty", artifact.ErrInvalidUpload)
	}
	if err := tempFile.Close(); err != nil {
		return "", 0, fmt.Errorf("%w: close temp file: %w", artifact.ErrStorage, err)
	}
	keepFile = true
	return tempPath, written, nil
}

func readHead(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return head[:n], nil
}
