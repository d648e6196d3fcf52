// Package blob stores artifact bytes and metadata together in one SQL row.
package blob

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/memohai/newsdesk/internal/artifact"
	"github.com/memohai/newsdesk/internal/db"
	"github.com/memohai/newsdesk/internal/storage"
)

const (
	table          = "media_artifacts"
	insertAttempts = 3
)

var (
	_ storage.Backend = (*Store)(nil)
	_ storage.Stater  = (*Store)(nil)
)

var metaColumns = []string{"id", "kind", "content_type", "original_name", "size_bytes", "checksum", "created_at"}

// Store keeps artifacts in the media_artifacts table. References are the row IDs.
type Store struct {
	sql    *db.SQL
	namer  *artifact.Namer
	logger *slog.Logger
	now    func() time.Time
}

// New returns a Store over conn. The schema must already exist.
func New(log *slog.Logger, conn *db.SQL, namer *artifact.Namer) *Store {
	if log == nil {
		log = slog.Default()
	}
	if namer == nil {
		namer = artifact.NewNamer()
	}
	return &Store{
		sql:    conn,
		namer:  namer,
		logger: log.With(slog.String("backend", "blob")),
		now:    time.Now,
	}
}

// Write reads the whole body before inserting, so a failed read never
// produces a row.
func (s *Store) Write(ctx context.Context, in storage.WriteInput) (artifact.Artifact, error) {
	if !in.Kind.Valid() {
		return artifact.Artifact{}, fmt.Errorf("%w: kind %q", artifact.ErrUnsupportedMediaType, in.Kind)
	}
	if in.Body == nil {
		return artifact.Artifact{}, fmt.Errorf("%w: body is required", artifact.ErrInvalidUpload)
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("read body: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return artifact.Artifact{}, err
	}
	sum := sha256.Sum256(data)
	a := artifact.Artifact{
		Kind:         in.Kind,
		ContentType:  artifact.NormalizeContentType(in.ContentType),
		OriginalName: in.OriginalName,
		SizeBytes:    int64(len(data)),
		Checksum:     hex.EncodeToString(sum[:]),
		CreatedAt:    s.now().UTC(),
	}
	if a.ContentType == "" {
		a.ContentType = "application/octet-stream"
	}

	for attempt := 1; ; attempt++ {
		a.ID = s.namer.ID()
		err = s.insert(ctx, a, data)
		if err == nil {
			break
		}
		if !db.IsUniqueViolation(err) || attempt == insertAttempts {
			return artifact.Artifact{}, fmt.Errorf("insert artifact: %w", err)
		}
		s.logger.Warn("artifact id collision, retrying", slog.String("id", a.ID))
	}
	a.Reference = a.ID
	s.logger.Debug("artifact stored", slog.String("id", a.ID), slog.Int64("size", a.SizeBytes))
	return a, nil
}

func (s *Store) insert(ctx context.Context, a artifact.Artifact, data []byte) error {
	query, args, err := s.sql.Builder().
		Insert(table).
		Columns("id", "kind", "content_type", "original_name", "size_bytes", "checksum", "data", "created_at").
		Values(a.ID, string(a.Kind), a.ContentType, a.OriginalName, a.SizeBytes, a.Checksum, data, a.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}
	s.logSQL("Insert", query, a.ID)

	start := time.Now()
	if _, err := s.sql.DB.ExecContext(ctx, query, args...); err != nil {
		return err
	}
	s.logger.Debug("insert ok", slog.Duration("elapsed", time.Since(start)))
	return nil
}

// List returns the IDs of every artifact of kind, oldest first.
func (s *Store) List(ctx context.Context, kind artifact.Kind) ([]string, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: kind %q", artifact.ErrUnsupportedMediaType, kind)
	}
	query, args, err := s.sql.Builder().
		Select("id").
		From(table).
		Where("kind = ?", string(kind)).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, err
	}
	s.logSQL("List", query, string(kind))

	rows, err := s.sql.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	refs := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan artifact id: %w", err)
		}
		refs = append(refs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	return refs, nil
}

// Open fetches the row behind ref. The bytes are fully loaded, so a delete
// after Open returns does not affect the reader.
func (s *Store) Open(ctx context.Context, ref string) (io.ReadCloser, artifact.Artifact, error) {
	id := strings.TrimSpace(ref)
	if id == "" {
		return nil, artifact.Artifact{}, artifact.ErrNotFound
	}
	query, args, err := s.sql.Builder().
		Select("id", "kind", "content_type", "original_name", "size_bytes", "checksum", "data", "created_at").
		From(table).
		Where("id = ?", id).
		ToSql()
	if err != nil {
		return nil, artifact.Artifact{}, err
	}
	s.logSQL("Open", query, id)

	var (
		a    artifact.Artifact
		kind string
		data []byte
	)
	row := s.sql.DB.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&a.ID, &kind, &a.ContentType, &a.OriginalName, &a.SizeBytes, &a.Checksum, &data, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, artifact.Artifact{}, artifact.ErrNotFound
		}
		return nil, artifact.Artifact{}, fmt.Errorf("open artifact: %w", err)
	}
	a.Kind = artifact.Kind(kind)
	a.CreatedAt = a.CreatedAt.UTC()
	a.Reference = a.ID
	return io.NopCloser(bytes.NewReader(data)), a, nil
}

// Stat reads the metadata columns behind ref, leaving data untouched.
func (s *Store) Stat(ctx context.Context, ref string) (artifact.Artifact, error) {
	id := strings.TrimSpace(ref)
	if id == "" {
		return artifact.Artifact{}, artifact.ErrNotFound
	}
	query, args, err := s.sql.Builder().
		Select(metaColumns...).
		From(table).
		Where("id = ?", id).
		ToSql()
	if err != nil {
		return artifact.Artifact{}, err
	}
	s.logSQL("Stat", query, id)

	var (
		a    artifact.Artifact
		kind string
	)
	row := s.sql.DB.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&a.ID, &kind, &a.ContentType, &a.OriginalName, &a.SizeBytes, &a.Checksum, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return artifact.Artifact{}, artifact.ErrNotFound
		}
		return artifact.Artifact{}, fmt.Errorf("stat artifact: %w", err)
	}
	a.Kind = artifact.Kind(kind)
	a.CreatedAt = a.CreatedAt.UTC()
	a.Reference = a.ID
	return a, nil
}

// Delete removes the row behind ref.
func (s *Store) Delete(ctx context.Context, ref string) error {
	id := strings.TrimSpace(ref)
	if id == "" {
		return artifact.ErrNotFound
	}
	query, args, err := s.sql.Builder().
		Delete(table).
		Where("id = ?", id).
		ToSql()
	if err != nil {
		return err
	}
	s.logSQL("Delete", query, id)

	res, err := s.sql.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	if n == 0 {
		return artifact.ErrNotFound
	}
	s.logger.Debug("artifact deleted", slog.String("id", id))
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.sql.DB.PingContext(ctx)
}

func (s *Store) logSQL(op, query, key string) {
	s.logger.Debug("sql", slog.String("op", op), slog.String("query", query), slog.String("key", key))
}
