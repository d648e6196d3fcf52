// Package s3 stores artifacts as objects in an S3-compatible bucket.
package s3

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/memohai/newsdesk/internal/artifact"
	"github.com/memohai/newsdesk/internal/storage"
)

// Object metadata keys.
const (
	metaOriginalName = "original-name"
	metaChecksum     = "sha256"
	metaKind         = "kind"
)

var (
	_ storage.Backend = (*Store)(nil)
	_ storage.Stater  = (*Store)(nil)
)

// API is the subset of the S3 client the store uses.
type API interface {
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *awss3.HeadObjectInput, optFns ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
	HeadBucket(ctx context.Context, params *awss3.HeadBucketInput, optFns ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error)
}

// Config holds bucket parameters.
type Config struct {
	Bucket   string
	Region   string
	Endpoint string // optional, for MinIO or LocalStack
	Prefix   string
}

// Store keeps artifacts under <prefix><kind dir>/<name>. References are the
// keys relative to the prefix.
type Store struct {
	client API
	bucket string
	prefix string
	namer  *artifact.Namer
	logger *slog.Logger
}

// NewClient builds an S3 client from the default AWS credential chain.
func NewClient(ctx context.Context, cfg Config) (*awss3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// New returns a Store using client.
func New(log *slog.Logger, client API, cfg Config, namer *artifact.Namer) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if client == nil {
		return nil, errors.New("s3 client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("s3 bucket is required")
	}
	if namer == nil {
		namer = artifact.NewNamer()
	}
	prefix := strings.Trim(strings.TrimSpace(cfg.Prefix), "/")
	if prefix != "" {
		prefix += "/"
	}
	return &Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: prefix,
		namer:  namer,
		logger: log.With(slog.String("backend", "s3"), slog.String("bucket", cfg.Bucket)),
	}, nil
}

// Write uploads the body in a single PutObject guarded by If-None-Match, so
// an existing key is never replaced.
func (s *Store) Write(ctx context.Context, in storage.WriteInput) (artifact.Artifact, error) {
	if !in.Kind.Valid() {
		return artifact.Artifact{}, fmt.Errorf("%w: kind %q", artifact.ErrUnsupportedMediaType, in.Kind)
	}
	if in.Body == nil {
		return artifact.Artifact{}, fmt.Errorf("%w: body is required", artifact.ErrInvalidUpload)
	}
	body, size, sum, err := prepareBody(in.Body)
	if err != nil {
		return artifact.Artifact{}, err
	}
	if err := ctx.Err(); err != nil {
		return artifact.Artifact{}, err
	}

	contentType := artifact.NormalizeContentType(in.ContentType)
	name := s.namer.Name(in.OriginalName, artifact.ExtensionFor(contentType))
	ref := in.Kind.Dir() + "/" + name
	_, err = s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.prefix + ref),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(artifact.ContentTypeFor(name)),
		IfNoneMatch:   aws.String("*"),
		Metadata: map[string]string{
			metaOriginalName: url.QueryEscape(in.OriginalName),
			metaChecksum:     sum,
			metaKind:         string(in.Kind),
		},
	})
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("s3 put %s: %w", ref, err)
	}

	a := describe(in.Kind, name, size)
	a.Reference = ref
	a.OriginalName = in.OriginalName
	a.Checksum = sum
	s.logger.Debug("artifact stored", slog.String("key", ref), slog.Int64("size", size))
	return a, nil
}

// prepareBody hashes the body. Seekable bodies are rewound and streamed;
// anything else is buffered.
func prepareBody(r io.Reader) (io.Reader, int64, string, error) {
	h := sha256.New()
	if rs, ok := r.(io.ReadSeeker); ok {
		size, err := io.Copy(h, rs)
		if err != nil {
			return nil, 0, "", fmt.Errorf("read body: %w", err)
		}
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return nil, 0, "", fmt.Errorf("rewind body: %w", err)
		}
		return rs, size, hexSum(h), nil
	}
	var buf bytes.Buffer
	size, err := io.Copy(io.MultiWriter(&buf, h), r)
	if err != nil {
		return nil, 0, "", fmt.Errorf("read body: %w", err)
	}
	return bytes.NewReader(buf.Bytes()), size, hexSum(h), nil
}

func hexSum(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}

// List returns the keys of kind, oldest first.
func (s *Store) List(ctx context.Context, kind artifact.Kind) ([]string, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: kind %q", artifact.ErrUnsupportedMediaType, kind)
	}
	dirPrefix := s.prefix + kind.Dir() + "/"
	pager := awss3.NewListObjectsV2Paginator(s.client, &awss3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(dirPrefix),
	})
	refs := make([]string, 0)
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list: %w", err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), dirPrefix)
			if name == "" || strings.Contains(name, "/") || strings.HasPrefix(name, ".") || !artifact.Listable(kind, name) {
				continue
			}
			refs = append(refs, kind.Dir()+"/"+name)
		}
	}
	sort.Strings(refs)
	return refs, nil
}

// Open downloads the object behind ref.
func (s *Store) Open(ctx context.Context, ref string) (io.ReadCloser, artifact.Artifact, error) {
	kind, name, err := resolve(ref)
	if err != nil {
		return nil, artifact.Artifact{}, err
	}
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + ref),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, artifact.Artifact{}, artifact.ErrNotFound
		}
		return nil, artifact.Artifact{}, fmt.Errorf("s3 get %s: %w", ref, err)
	}
	a := describeObject(kind, name, ref, out.ContentLength, out.ContentType, out.Metadata, out.LastModified)
	return out.Body, a, nil
}

// Stat reads the object headers behind ref.
func (s *Store) Stat(ctx context.Context, ref string) (artifact.Artifact, error) {
	kind, name, err := resolve(ref)
	if err != nil {
		return artifact.Artifact{}, err
	}
	out, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + ref),
	})
	if err != nil {
		if isNotFound(err) {
			return artifact.Artifact{}, artifact.ErrNotFound
		}
		return artifact.Artifact{}, fmt.Errorf("s3 head %s: %w", ref, err)
	}
	return describeObject(kind, name, ref, out.ContentLength, out.ContentType, out.Metadata, out.LastModified), nil
}

// Delete removes the object behind ref. S3 deletes are idempotent, so the
// object is probed first to report missing keys.
func (s *Store) Delete(ctx context.Context, ref string) error {
	if _, _, err := resolve(ref); err != nil {
		return err
	}
	key := aws.String(s.prefix + ref)
	if _, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: key}); err != nil {
		if isNotFound(err) {
			return artifact.ErrNotFound
		}
		return fmt.Errorf("s3 head %s: %w", ref, err)
	}
	if _, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: key}); err != nil {
		return fmt.Errorf("s3 delete %s: %w", ref, err)
	}
	s.logger.Debug("artifact deleted", slog.String("key", ref))
	return nil
}

// Ping checks the bucket is reachable.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &awss3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}

// resolve accepts only "<kind dir>/<name>" with a plain name.
func resolve(ref string) (artifact.Kind, string, error) {
	dir, name, ok := strings.Cut(ref, "/")
	if !ok {
		return "", "", artifact.ErrNotFound
	}
	kind, err := artifact.ParseKind(dir)
	if err != nil || kind.Dir() != dir {
		return "", "", artifact.ErrNotFound
	}
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, "/\\\x00") {
		return "", "", artifact.ErrNotFound
	}
	return kind, name, nil
}

func describeObject(kind artifact.Kind, name, ref string, size *int64, contentType *string, meta map[string]string, modified *time.Time) artifact.Artifact {
	a := describe(kind, name, aws.ToInt64(size))
	a.Reference = ref
	if ct := aws.ToString(contentType); ct != "" {
		a.ContentType = artifact.NormalizeContentType(ct)
	}
	if original, err := url.QueryUnescape(meta[metaOriginalName]); err == nil && original != "" {
		a.OriginalName = original
	}
	a.Checksum = meta[metaChecksum]
	if a.CreatedAt.IsZero() && modified != nil {
		a.CreatedAt = modified.UTC()
	}
	return a
}

func describe(kind artifact.Kind, name string, size int64) artifact.Artifact {
	a := artifact.Artifact{
		ID:          name,
		Kind:        kind,
		ContentType: artifact.ContentTypeFor(name),
		SizeBytes:   size,
	}
	if created, ok := artifact.CreatedAtFromName(name); ok {
		a.CreatedAt = created
	}
	return a
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
