// Package transcode normalizes uploaded video to the delivery format with ffmpeg.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/memohai/newsdesk/internal/artifact"
)

const (
	stderrTail = 4 << 10
	waitDelay  = 5 * time.Second
)

// Job describes one transcode.
type Job struct {
	InputPath string
	OutputDir string
	// BaseName seeds the temp output name; it is not the stored name.
	BaseName string
}

// Result is the transcoded file. The caller owns OutputPath.
type Result struct {
	OutputPath  string
	ContentType string
	SizeBytes   int64
}

// Config holds the ffmpeg binary and its limits.
type Config struct {
	FFmpegPath    string
	Timeout       time.Duration
	MaxConcurrent int
}

// FFmpeg runs the ffmpeg binary, at most MaxConcurrent at a time.
type FFmpeg struct {
	path    string
	timeout time.Duration
	sem     *semaphore.Weighted
	logger  *slog.Logger
}

// New returns an FFmpeg transcoder.
func New(log *slog.Logger, cfg Config) *FFmpeg {
	if log == nil {
		log = slog.Default()
	}
	path := strings.TrimSpace(cfg.FFmpegPath)
	if path == "" {
		path = "ffmpeg"
	}
	limit := cfg.MaxConcurrent
	if limit <= 0 {
		limit = 1
	}
	return &FFmpeg{
		path:    path,
		timeout: cfg.Timeout,
		sem:     semaphore.NewWeighted(int64(limit)),
		logger:  log.With(slog.String("service", "transcode")),
	}
}

// Transcode converts job.InputPath to H.264/AAC MP4. On success the input is
// removed and the output returned. On any failure the input is left in place,
// no output remains, and the error wraps artifact.ErrTranscodeFailed.
func (f *FFmpeg) Transcode(ctx context.Context, job Job) (Result, error) {
	info, err := os.Stat(job.InputPath)
	if err != nil {
		return Result{}, fmt.Errorf("%w: input: %w", artifact.ErrInvalidUpload, err)
	}
	if !info.Mode().IsRegular() || info.Size() == 0 {
		return Result{}, fmt.Errorf("%w: empty video", artifact.ErrInvalidUpload)
	}

	if err := f.sem.Acquire(ctx, 1); err != nil {
		return Result{}, fmt.Errorf("%w: waiting for a slot: %w", artifact.ErrTranscodeFailed, err)
	}
	defer f.sem.Release(1)

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	dir := job.OutputDir
	if dir == "" {
		dir = filepath.Dir(job.InputPath)
	}
	out, err := os.CreateTemp(dir, outputPattern(job.BaseName))
	if err != nil {
		return Result{}, fmt.Errorf("%w: create output: %w", artifact.ErrTranscodeFailed, err)
	}
	outputPath := out.Name()
	_ = out.Close()

	start := time.Now()
	tail := &tailBuffer{limit: stderrTail}
	//nolint:gosec // binary path comes from operator config
	cmd := exec.CommandContext(ctx, f.path, Args(job.InputPath, outputPath)...)
	cmd.Stderr = tail
	cmd.WaitDelay = waitDelay
	runErr := cmd.Run()

	var size int64
	if runErr == nil {
		if outInfo, statErr := os.Stat(outputPath); statErr != nil {
			runErr = statErr
		} else if outInfo.Size() == 0 {
			runErr = errors.New("ffmpeg produced no output")
		} else {
			size = outInfo.Size()
		}
	}
	if runErr != nil {
		_ = os.Remove(outputPath)
		if ctxErr := ctx.Err(); ctxErr != nil {
			runErr = fmt.Errorf("%w (%w)", runErr, ctxErr)
		}
		f.logger.Warn("transcode failed",
			slog.String("input", filepath.Base(job.InputPath)),
			slog.Duration("elapsed", time.Since(start)),
			slog.Any("error", runErr),
			slog.String("stderr", tail.String()),
		)
		return Result{}, fmt.Errorf("%w: %w", artifact.ErrTranscodeFailed, runErr)
	}

	if err := os.Remove(job.InputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		f.logger.Warn("remove transcode input failed", slog.Any("error", err))
	}
	f.logger.Info("transcode complete",
		slog.Int64("input_bytes", info.Size()),
		slog.Int64("output_bytes", size),
		slog.Duration("elapsed", time.Since(start)),
	)
	return Result{OutputPath: outputPath, ContentType: artifact.DeliveryContentType, SizeBytes: size}, nil
}

// Args returns the ffmpeg command line for one transcode.
func Args(input, output string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-y",
		"-i", input,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-movflags", "+faststart",
		"-f", "mp4",
		output,
	}
}

func outputPattern(base string) string {
	base = strings.TrimSuffix(filepath.Base(base), filepath.Ext(base))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "transcode"
	}
	return base + ".*.mp4"
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	return strings.TrimSpace(string(b.buf))
}
