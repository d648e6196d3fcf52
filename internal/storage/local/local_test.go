package local

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/newsdesk/internal/artifact"
	"github.com/memohai/newsdesk/internal/storage"
	"github.com/memohai/newsdesk/internal/storage/storagetest"
)

const testBaseURL = "http://localhost:5001"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(slog.Default(), t.TempDir(), testBaseURL, artifact.NewNamer())
	require.NoError(t, err)
	return s
}

func TestStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Backend { return newTestStore(t) })
}

func TestWriteReferenceShape(t *testing.T) {
	s := newTestStore(t)
	a, err := s.Write(context.Background(), storage.WriteInput{
		Kind:         artifact.KindVideo,
		ContentType:  artifact.DeliveryContentType,
		OriginalName: "holiday.mov",
		Body:         strings.NewReader("mp4"),
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a.Reference, testBaseURL+"/uploads/videos/"), a.Reference)
	assert.True(t, strings.HasSuffix(a.Reference, "-holiday.mov.mp4"), a.Reference)
	assert.Equal(t, "holiday.mov", a.OriginalName)
	assert.FileExists(t, filepath.Join(s.root, "videos", a.ID))

	staged, err := os.ReadDir(filepath.Join(s.root, stagingDir))
	require.NoError(t, err)
	assert.Empty(t, staged)
}

func TestOpenAcceptsPathOnlyReference(t *testing.T) {
	s := newTestStore(t)
	a, err := s.Write(context.Background(), storage.WriteInput{
		Kind:        artifact.KindImage,
		ContentType: "image/png",
		Body:        strings.NewReader("png"),
	})
	require.NoError(t, err)

	got, meta := storagetest.ReadAll(t, s, "/uploads/images/"+a.ID)
	assert.Equal(t, []byte("png"), got)
	assert.Equal(t, "image/png", meta.ContentType)
}

func TestResolveRejectsEscapes(t *testing.T) {
	s := newTestStore(t)
	secret := filepath.Join(filepath.Dir(s.root), "secret.jpg")
	require.NoError(t, os.WriteFile(secret, []byte("secret"), 0o600))
	t.Cleanup(func() { _ = os.Remove(secret) })
	require.NoError(t, os.WriteFile(filepath.Join(s.root, stagingDir, "half.jpg"), []byte("x"), 0o600))

	refs := []string{
		testBaseURL + "/uploads/images/../../secret.jpg",
		testBaseURL + "/uploads/images/..",
		testBaseURL + "/uploads/../secret.jpg",
		testBaseURL + "/uploads/.staging/half.jpg",
		testBaseURL + "/uploads/images/.hidden",
		testBaseURL + "/uploads/images/a\\..\\..\\secret.jpg",
		testBaseURL + "/uploads/images/",
		testBaseURL + "/uploads/audio/a.mp3",
		"http://evil.example/uploads/images/a.jpg",
		"/etc/passwd",
	}
	ctx := context.Background()
	for _, ref := range refs {
		_, _, err := s.Open(ctx, ref)
		assert.ErrorIs(t, err, artifact.ErrNotFound, "open %q", ref)
		assert.ErrorIs(t, s.Delete(ctx, ref), artifact.ErrNotFound, "delete %q", ref)
	}
	assert.FileExists(t, secret)
	assert.FileExists(t, filepath.Join(s.root, stagingDir, "half.jpg"))
}

func TestListSkipsForeignFiles(t *testing.T) {
	s := newTestStore(t)
	dir := filepath.Join(s.root, "videos")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "raw.mov"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".partial.mp4"), []byte("x"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.mp4"), 0o755))

	a, err := s.Write(context.Background(), storage.WriteInput{
		Kind:        artifact.KindVideo,
		ContentType: "video/mp4",
		Body:        bytes.NewReader([]byte("mp4")),
	})
	require.NoError(t, err)

	refs, err := s.List(context.Background(), artifact.KindVideo)
	require.NoError(t, err)
	assert.Equal(t, []string{a.Reference}, refs)
}

func TestListCancelledReturnsNoRefs(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Write(context.Background(), storage.WriteInput{
		Kind:        artifact.KindImage,
		ContentType: "image/png",
		Body:        bytes.NewReader([]byte("png")),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	refs, err := s.List(ctx, artifact.KindImage)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, refs)
}

func TestCommitNeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	final := filepath.Join(dir, "a.jpg")
	staged := filepath.Join(dir, "a.part")
	require.NoError(t, os.WriteFile(final, []byte("first"), 0o600))
	require.NoError(t, os.WriteFile(staged, []byte("second"), 0o600))

	require.Error(t, commit(staged, final))
	data, err := os.ReadFile(final)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
}
