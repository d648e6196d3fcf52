package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	schema "github.com/memohai/newsdesk/db"
	"github.com/memohai/newsdesk/internal/artifact"
	"github.com/memohai/newsdesk/internal/db"
	"github.com/memohai/newsdesk/internal/storage"
	"github.com/memohai/newsdesk/internal/storage/blob"
	"github.com/memohai/newsdesk/internal/storage/local"
	"github.com/memohai/newsdesk/internal/transcode"
)

// fakeTranscoder prefixes the input with "mp4:" and fails on inputs
// containing UNDECODABLE, following the Transcoder contract.
type fakeTranscoder struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeTranscoder) Transcode(_ context.Context, job transcode.Job) (transcode.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	data, err := os.ReadFile(job.InputPath)
	if err != nil {
		return transcode.Result{}, err
	}
	if bytes.Contains(data, []byte("UNDECODABLE")) {
		return transcode.Result{}, fmt.Errorf("%w: invalid data", artifact.ErrTranscodeFailed)
	}
	out, err := os.CreateTemp(job.OutputDir, "out-*.mp4")
	if err != nil {
		return transcode.Result{}, err
	}
	defer out.Close()
	payload := append([]byte("mp4:"), data...)
	if _, err := out.Write(payload); err != nil {
		return transcode.Result{}, err
	}
	if err := os.Remove(job.InputPath); err != nil {
		return transcode.Result{}, err
	}
	return transcode.Result{OutputPath: out.Name(), ContentType: artifact.DeliveryContentType, SizeBytes: int64(len(payload))}, nil
}

type fixture struct {
	ingest  *IngestService
	catalog *CatalogService
	workDir string
	failed  string
}

type backendFactory func(t *testing.T) storage.Backend

func backends() map[string]backendFactory {
	return map[string]backendFactory{
		"filesystem": func(t *testing.T) storage.Backend {
			s, err := local.New(nil, t.TempDir(), "http://localhost:5001", nil)
			require.NoError(t, err)
			return s
		},
		"blob": func(t *testing.T) storage.Backend {
			conn, err := db.OpenSQLite(context.Background(), ":memory:", schema.SQLiteSchema)
			require.NoError(t, err)
			t.Cleanup(func() { _ = conn.Close() })
			return blob.New(nil, conn, nil)
		},
	}
}

func newFixture(t *testing.T, backend storage.Backend, tr Transcoder, maxBytes int64, keepFailed bool) fixture {
	t.Helper()
	f := fixture{workDir: t.TempDir()}
	cfg := IngestConfig{MaxBytes: maxBytes, WorkDir: f.workDir}
	if keepFailed {
		f.failed = filepath.Join(t.TempDir(), "failed")
		cfg.FailedDir = f.failed
	}
	f.ingest = NewIngestService(nil, backend, tr, nil, cfg)
	f.catalog = NewCatalogService(nil, backend)
	return f
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "leftover files in %s", dir)
}

func readAll(t *testing.T, c *CatalogService, ref string) ([]byte, artifact.Artifact) {
	t.Helper()
	rc, a, err := c.Fetch(context.Background(), ref)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data, a
}

func TestIngest(t *testing.T) {
	for name, newBackend := range backends() {
		t.Run(name, func(t *testing.T) {
			t.Run("CatImageRoundTrip", func(t *testing.T) {
				f := newFixture(t, newBackend(t), &fakeTranscoder{}, 0, false)
				ctx := context.Background()
				payload := []byte("0123456789")

				a, err := f.ingest.Ingest(ctx, IngestInput{
					Kind:         artifact.KindImage,
					ContentType:  "image/jpeg",
					OriginalName: "cat.jpg",
					Reader:       bytes.NewReader(payload),
				})
				require.NoError(t, err)
				assert.Equal(t, artifact.KindImage, a.Kind)
				assert.Equal(t, "image/jpeg", a.ContentType)
				assert.Equal(t, int64(10), a.SizeBytes)

				refs, err := f.catalog.List(ctx, artifact.KindImage)
				require.NoError(t, err)
				assert.Equal(t, []string{a.Reference}, refs)

				data, got := readAll(t, f.catalog, a.Reference)
				assert.Equal(t, payload, data)
				assert.Equal(t, "image/jpeg", got.ContentType)
				assertEmptyDir(t, f.workDir)
			})

			t.Run("VideoIsNormalized", func(t *testing.T) {
				tr := &fakeTranscoder{}
				f := newFixture(t, newBackend(t), tr, 0, false)
				ctx := context.Background()

				a, err := f.ingest.Ingest(ctx, IngestInput{
					Kind:         artifact.KindVideo,
					ContentType:  "video/quicktime",
					OriginalName: "holiday.mov",
					Reader:       strings.NewReader("quicktime"),
				})
				require.NoError(t, err)
				assert.Equal(t, 1, tr.calls)
				assert.Equal(t, "video/mp4", a.ContentType)

				refs, err := f.catalog.List(ctx, artifact.KindVideo)
				require.NoError(t, err)
				assert.Equal(t, []string{a.Reference}, refs)

				data, got := readAll(t, f.catalog, a.Reference)
				assert.Equal(t, "mp4:quicktime", string(data))
				assert.Equal(t, "video/mp4", got.ContentType)
				assertEmptyDir(t, f.workDir)
			})

			t.Run("UndecodableVideoLeavesNothing", func(t *testing.T) {
				f := newFixture(t, newBackend(t), &fakeTranscoder{}, 0, false)
				ctx := context.Background()

				_, err := f.ingest.Ingest(ctx, IngestInput{
					Kind:         artifact.KindVideo,
					ContentType:  "video/mp4",
					OriginalName: "broken.mp4",
					Reader:       strings.NewReader("UNDECODABLE"),
				})
				require.ErrorIs(t, err, artifact.ErrTranscodeFailed)

				refs, err := f.catalog.List(ctx, artifact.KindVideo)
				require.NoError(t, err)
				assert.Empty(t, refs)
				assertEmptyDir(t, f.workDir)
			})

			t.Run("DeleteThenDeleteAgain", func(t *testing.T) {
				f := newFixture(t, newBackend(t), &fakeTranscoder{}, 0, false)
				ctx := context.Background()
				a, err := f.ingest.Ingest(ctx, IngestInput{ContentType: "image/png", OriginalName: "a.png", Reader: strings.NewReader("png")})
				require.NoError(t, err)

				require.NoError(t, f.catalog.Remove(ctx, a.Reference))
				assert.ErrorIs(t, f.catalog.Remove(ctx, a.Reference), artifact.ErrNotFound)
				_, _, err = f.catalog.Fetch(ctx, a.Reference)
				assert.ErrorIs(t, err, artifact.ErrNotFound)
			})

			t.Run("ConcurrentSameNameStaysDistinct", func(t *testing.T) {
				f := newFixture(t, newBackend(t), &fakeTranscoder{}, 0, false)
				const n = 12
				refs := make([]string, n)
				errs := make([]error, n)
				var wg sync.WaitGroup
				for i := 0; i < n; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						a, err := f.ingest.Ingest(context.Background(), IngestInput{
							ContentType:  "image/jpeg",
							OriginalName: "same.jpg",
							Reader:       strings.NewReader(fmt.Sprintf("payload-%d", i)),
						})
						refs[i], errs[i] = a.Reference, err
					}(i)
				}
				wg.Wait()

				seen := map[string]bool{}
				for i := 0; i < n; i++ {
					require.NoError(t, errs[i])
					require.False(t, seen[refs[i]], "duplicate %s", refs[i])
					seen[refs[i]] = true
					data, _ := readAll(t, f.catalog, refs[i])
					assert.Equal(t, fmt.Sprintf("payload-%d", i), string(data))
				}
			})
		})
	}
}

func TestIngestRejections(t *testing.T) {
	backend := backends()["filesystem"](t)
	tests := []struct {
		name    string
		in      IngestInput
		max     int64
		wantErr error
	}{
		{"empty", IngestInput{ContentType: "image/png", Reader: strings.NewReader("")}, 0, artifact.ErrInvalidUpload},
		{"too large", IngestInput{ContentType: "image/png", Reader: strings.NewReader("12345")}, 4, artifact.ErrTooLarge},
		{"text", IngestInput{ContentType: "text/plain", Reader: strings.NewReader("hello")}, 0, artifact.ErrUnsupportedMediaType},
		{"sniffed text", IngestInput{ContentType: "application/octet-stream", Reader: strings.NewReader("hello")}, 0, artifact.ErrUnsupportedMediaType},
		{"kind mismatch", IngestInput{Kind: artifact.KindImage, ContentType: "video/mp4", Reader: strings.NewReader("mp4")}, 0, artifact.ErrUnsupportedMediaType},
		{"no reader", IngestInput{ContentType: "image/png"}, 0, artifact.ErrInvalidUpload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, backend, &fakeTranscoder{}, tt.max, false)
			_, err := f.ingest.Ingest(context.Background(), tt.in)
			require.ErrorIs(t, err, tt.wantErr)
			assertEmptyDir(t, f.workDir)
		})
	}

	refs, err := NewCatalogService(nil, backend).List(context.Background(), artifact.KindImage)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestTooLargeIsInvalidUpload(t *testing.T) {
	f := newFixture(t, backends()["filesystem"](t), nil, 2, false)
	_, err := f.ingest.Ingest(context.Background(), IngestInput{ContentType: "image/png", Reader: strings.NewReader("abc")})
	assert.ErrorIs(t, err, artifact.ErrInvalidUpload)
}

func TestSniffsGenericContentType(t *testing.T) {
	f := newFixture(t, backends()["filesystem"](t), nil, 0, false)
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	a, err := f.ingest.Ingest(context.Background(), IngestInput{
		ContentType:  "application/octet-stream",
		OriginalName: "upload",
		Reader:       bytes.NewReader(png),
	})
	require.NoError(t, err)
	assert.Equal(t, artifact.KindImage, a.Kind)
	assert.Equal(t, "image/png", a.ContentType)
}

func TestFailedVideoIsKeptWhenConfigured(t *testing.T) {
	f := newFixture(t, backends()["filesystem"](t), &fakeTranscoder{}, 0, true)
	_, err := f.ingest.Ingest(context.Background(), IngestInput{
		ContentType:  "video/mp4",
		OriginalName: "broken.mp4",
		Reader:       strings.NewReader("UNDECODABLE"),
	})
	require.ErrorIs(t, err, artifact.ErrTranscodeFailed)
	assertEmptyDir(t, f.workDir)

	kept, err := os.ReadDir(f.failed)
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.True(t, strings.HasSuffix(kept[0].Name(), "-broken.mp4"), kept[0].Name())
}

func TestQuarantineUsesInjectedNamer(t *testing.T) {
	id := uuid.MustParse("01900000-0000-7000-8000-000000000001")
	namer := artifact.NewNamerWithSource(func() (uuid.UUID, error) { return id, nil })
	failed := filepath.Join(t.TempDir(), "failed")
	ingest := NewIngestService(nil, backends()["filesystem"](t), &fakeTranscoder{}, namer, IngestConfig{
		WorkDir:   t.TempDir(),
		FailedDir: failed,
	})

	_, err := ingest.Ingest(context.Background(), IngestInput{
		ContentType:  "video/mp4",
		OriginalName: "broken.mp4",
		Reader:       strings.NewReader("UNDECODABLE"),
	})
	require.ErrorIs(t, err, artifact.ErrTranscodeFailed)

	kept, err := os.ReadDir(failed)
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.Equal(t, id.String()+"-broken.mp4", kept[0].Name())
}

func TestVideoWithoutTranscoderFails(t *testing.T) {
	f := newFixture(t, backends()["filesystem"](t), nil, 0, false)
	_, err := f.ingest.Ingest(context.Background(), IngestInput{ContentType: "video/webm", Reader: strings.NewReader("webm")})
	require.ErrorIs(t, err, artifact.ErrTranscodeFailed)
	assertEmptyDir(t, f.workDir)
}

func TestCancelledBeforeWriteStoresNothing(t *testing.T) {
	backend := backends()["filesystem"](t)
	f := newFixture(t, backend, &fakeTranscoder{}, 0, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.ingest.Ingest(ctx, IngestInput{ContentType: "image/gif", Reader: strings.NewReader("GIF89a")})
	require.ErrorIs(t, err, context.Canceled)

	refs, err := f.catalog.List(context.Background(), artifact.KindImage)
	require.NoError(t, err)
	assert.Empty(t, refs)
	assertEmptyDir(t, f.workDir)
}

type brokenBackend struct{ storage.Backend }

func (brokenBackend) Write(context.Context, storage.WriteInput) (artifact.Artifact, error) {
	return artifact.Artifact{}, errors.New("disk full")
}

func (brokenBackend) List(context.Context, artifact.Kind) ([]string, error) {
	return nil, errors.New("disk on fire")
}

func TestBackendFailuresAreStorageErrors(t *testing.T) {
	f := newFixture(t, brokenBackend{}, &fakeTranscoder{}, 0, false)
	_, err := f.ingest.Ingest(context.Background(), IngestInput{ContentType: "image/png", Reader: strings.NewReader("png")})
	require.ErrorIs(t, err, artifact.ErrStorage)
	assertEmptyDir(t, f.workDir)

	_, err = f.catalog.List(context.Background(), artifact.KindImage)
	assert.ErrorIs(t, err, artifact.ErrStorage)
}

func TestRemoveKindRejectsOtherKind(t *testing.T) {
	f := newFixture(t, backends()["filesystem"](t), &fakeTranscoder{}, 0, false)
	ctx := context.Background()
	a, err := f.ingest.Ingest(ctx, IngestInput{ContentType: "image/png", OriginalName: "a.png", Reader: strings.NewReader("png")})
	require.NoError(t, err)

	assert.ErrorIs(t, f.catalog.RemoveKind(ctx, artifact.KindVideo, a.Reference), artifact.ErrNotFound)
	require.NoError(t, f.catalog.RemoveKind(ctx, artifact.KindImage, a.Reference))
	assert.ErrorIs(t, f.catalog.RemoveKind(ctx, artifact.KindImage, a.Reference), artifact.ErrNotFound)
}

// openCounter promotes only the Backend methods, hiding any Stat.
type openCounter struct {
	storage.Backend
	opens atomic.Int32
}

func (o *openCounter) Open(ctx context.Context, ref string) (io.ReadCloser, artifact.Artifact, error) {
	o.opens.Add(1)
	return o.Backend.Open(ctx, ref)
}

type statOpenCounter struct {
	*openCounter
	storage.Stater
}

func TestRemoveKindLooksUpMetadataOnly(t *testing.T) {
	for name, newBackend := range backends() {
		t.Run(name, func(t *testing.T) {
			backend := newBackend(t)
			stater, ok := backend.(storage.Stater)
			require.True(t, ok)
			f := newFixture(t, backend, &fakeTranscoder{}, 0, false)
			ctx := context.Background()
			upload := func() artifact.Artifact {
				a, err := f.ingest.Ingest(ctx, IngestInput{ContentType: "image/png", OriginalName: "a.png", Reader: strings.NewReader("png")})
				require.NoError(t, err)
				return a
			}

			withStat := &statOpenCounter{openCounter: &openCounter{Backend: backend}, Stater: stater}
			c := NewCatalogService(nil, withStat)
			a := upload()
			assert.ErrorIs(t, c.RemoveKind(ctx, artifact.KindVideo, a.Reference), artifact.ErrNotFound)
			require.NoError(t, c.RemoveKind(ctx, artifact.KindImage, a.Reference))
			assert.ErrorIs(t, c.RemoveKind(ctx, artifact.KindImage, a.Reference), artifact.ErrNotFound)
			assert.Zero(t, withStat.opens.Load())

			withoutStat := &openCounter{Backend: backend}
			c = NewCatalogService(nil, withoutStat)
			a = upload()
			assert.ErrorIs(t, c.RemoveKind(ctx, artifact.KindVideo, a.Reference), artifact.ErrNotFound)
			require.NoError(t, c.RemoveKind(ctx, artifact.KindImage, a.Reference))
			assert.Equal(t, int32(2), withoutStat.opens.Load())
		})
	}
}

func TestListRejectsUnknownKind(t *testing.T) {
	c := NewCatalogService(nil, backends()["filesystem"](t))
	_, err := c.List(context.Background(), artifact.Kind("audio"))
	assert.ErrorIs(t, err, artifact.ErrUnsupportedMediaType)
}
