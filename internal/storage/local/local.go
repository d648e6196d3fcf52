// Package local stores artifacts as plain files, one directory per kind.
package local

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/memohai/newsdesk/internal/artifact"
	"github.com/memohai/newsdesk/internal/storage"
)

const (
	// PublicPrefix is the URL path the kind directories are served under.
	PublicPrefix = "/uploads/"
	stagingDir   = ".staging"
)

var (
	_ storage.Backend = (*Store)(nil)
	_ storage.Stater  = (*Store)(nil)
)

// Store keeps artifacts under root/images and root/videos. References are
// public URLs: <public base>/uploads/<kind dir>/<file name>.
type Store struct {
	root    string
	baseURL string
	namer   *artifact.Namer
	logger  *slog.Logger
}

// New creates the directory layout under root.
func New(log *slog.Logger, root, publicBaseURL string, namer *artifact.Namer) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage root is required")
	}
	if namer == nil {
		namer = artifact.NewNamer()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	for _, dir := range []string{stagingDir, artifact.KindImage.Dir(), artifact.KindVideo.Dir()} {
		//nolint:gosec // media directories are served publicly
		if err := os.MkdirAll(filepath.Join(abs, dir), 0o755); err != nil {
			return nil, fmt.Errorf("create %s dir: %w", dir, err)
		}
	}
	return &Store{
		root:    abs,
		baseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/") + PublicPrefix,
		namer:   namer,
		logger:  log.With(slog.String("backend", "filesystem")),
	}, nil
}

// Write stages the body under .staging and links it into the kind directory
// once fully synced, so a half-written file is never listed.
func (s *Store) Write(ctx context.Context, in storage.WriteInput) (artifact.Artifact, error) {
	if !in.Kind.Valid() {
		return artifact.Artifact{}, fmt.Errorf("%w: kind %q", artifact.ErrUnsupportedMediaType, in.Kind)
	}
	if in.Body == nil {
		return artifact.Artifact{}, fmt.Errorf("%w: body is required", artifact.ErrInvalidUpload)
	}
	if err := ctx.Err(); err != nil {
		return artifact.Artifact{}, err
	}

	name := s.namer.Name(in.OriginalName, artifact.ExtensionFor(in.ContentType))
	staged, err := os.CreateTemp(filepath.Join(s.root, stagingDir), name+".*.part")
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("create staging file: %w", err)
	}
	stagedPath := staged.Name()
	committed := false
	defer func() {
		_ = staged.Close()
		if !committed {
			_ = os.Remove(stagedPath)
		}
	}()

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(staged, hasher), in.Body)
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("write staging file: %w", err)
	}
	if err := staged.Sync(); err != nil {
		return artifact.Artifact{}, fmt.Errorf("sync staging file: %w", err)
	}
	if err := staged.Close(); err != nil {
		return artifact.Artifact{}, fmt.Errorf("close staging file: %w", err)
	}

	final := filepath.Join(s.root, in.Kind.Dir(), name)
	if err := commit(stagedPath, final); err != nil {
		return artifact.Artifact{}, err
	}
	committed = true

	a := s.describe(in.Kind, name, size)
	a.ContentType = artifact.ContentTypeFor(name)
	a.OriginalName = in.OriginalName
	a.Checksum = hex.EncodeToString(hasher.Sum(nil))
	s.logger.Debug("artifact stored", slog.String("id", a.ID), slog.Int64("size", size))
	return a, nil
}

// commit moves staged to final without ever replacing an existing file.
func commit(staged, final string) error {
	err := os.Link(staged, final)
	if err == nil {
		_ = os.Remove(staged)
		return nil
	}
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("artifact name collision: %s", filepath.Base(final))
	}
	// filesystems without hard links
	if _, statErr := os.Lstat(final); statErr == nil {
		return fmt.Errorf("artifact name collision: %s", filepath.Base(final))
	}
	if err := os.Rename(staged, final); err != nil {
		return fmt.Errorf("commit artifact: %w", err)
	}
	return nil
}

// List returns references for every committed file of kind, oldest first.
func (s *Store) List(ctx context.Context, kind artifact.Kind) ([]string, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: kind %q", artifact.ErrUnsupportedMediaType, kind)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(s.root, kind.Dir()))
	if err != nil {
		return nil, fmt.Errorf("read %s dir: %w", kind.Dir(), err)
	}
	refs := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || strings.HasPrefix(name, ".") || !artifact.Listable(kind, name) {
			continue
		}
		refs = append(refs, s.baseURL+kind.Dir()+"/"+name)
	}
	return refs, nil
}

// Open resolves ref to a file under root and opens it.
func (s *Store) Open(_ context.Context, ref string) (io.ReadCloser, artifact.Artifact, error) {
	kind, name, full, err := s.resolve(ref)
	if err != nil {
		return nil, artifact.Artifact{}, err
	}
	//nolint:gosec // path is bounded by resolve
	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, artifact.Artifact{}, artifact.ErrNotFound
		}
		return nil, artifact.Artifact{}, fmt.Errorf("open artifact: %w", err)
	}
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, artifact.Artifact{}, artifact.ErrNotFound
	}
	return f, s.describeFile(kind, name, info), nil
}

// Stat describes the file behind ref without opening it.
func (s *Store) Stat(_ context.Context, ref string) (artifact.Artifact, error) {
	kind, name, full, err := s.resolve(ref)
	if err != nil {
		return artifact.Artifact{}, err
	}
	info, err := os.Lstat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return artifact.Artifact{}, artifact.ErrNotFound
		}
		return artifact.Artifact{}, fmt.Errorf("stat artifact: %w", err)
	}
	if !info.Mode().IsRegular() {
		return artifact.Artifact{}, artifact.ErrNotFound
	}
	return s.describeFile(kind, name, info), nil
}

// Delete removes the file behind ref.
func (s *Store) Delete(_ context.Context, ref string) error {
	_, name, full, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return artifact.ErrNotFound
		}
		return fmt.Errorf("delete artifact: %w", err)
	}
	s.logger.Debug("artifact deleted", slog.String("id", name))
	return nil
}

// resolve maps a reference back onto disk. Anything that does not name a
// plain file directly inside one of the kind directories is reported as not
// found, so a crafted reference can never reach outside root.
func (s *Store) resolve(ref string) (artifact.Kind, string, string, error) {
	rest, ok := strings.CutPrefix(ref, s.baseURL)
	if !ok {
		rest, ok = strings.CutPrefix(ref, PublicPrefix)
	}
	if !ok {
		return "", "", "", artifact.ErrNotFound
	}
	dir, name, ok := strings.Cut(rest, "/")
	if !ok {
		return "", "", "", artifact.ErrNotFound
	}
	kind, err := artifact.ParseKind(dir)
	if err != nil || kind.Dir() != dir {
		return "", "", "", artifact.ErrNotFound
	}
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, "/\\\x00") {
		return "", "", "", artifact.ErrNotFound
	}
	kindDir := filepath.Join(s.root, dir)
	full := filepath.Join(kindDir, name)
	if rel, err := filepath.Rel(kindDir, full); err != nil || rel != name {
		return "", "", "", artifact.ErrNotFound
	}
	return kind, name, full, nil
}

func (s *Store) describeFile(kind artifact.Kind, name string, info fs.FileInfo) artifact.Artifact {
	a := s.describe(kind, name, info.Size())
	if a.CreatedAt.IsZero() {
		a.CreatedAt = info.ModTime().UTC()
	}
	return a
}

func (s *Store) describe(kind artifact.Kind, name string, size int64) artifact.Artifact {
	a := artifact.Artifact{
		ID:           name,
		Kind:         kind,
		ContentType:  artifact.ContentTypeFor(name),
		OriginalName: originalFromName(name),
		SizeBytes:    size,
		Reference:    s.baseURL + kind.Dir() + "/" + name,
	}
	if created, ok := artifact.CreatedAtFromName(name); ok {
		a.CreatedAt = created
	}
	return a
}

// originalFromName strips the "<uuid>-" prefix the namer adds.
func originalFromName(name string) string {
	if len(name) > 37 && name[36] == '-' {
		return name[37:]
	}
	return name
}
