// Package storagetest holds the behaviour every storage.Backend must share.
package storagetest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/newsdesk/internal/artifact"
	"github.com/memohai/newsdesk/internal/storage"
)

// Factory returns a fresh, empty backend.
type Factory func(t *testing.T) storage.Backend

type failingReader struct{ sent bool }

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		return copy(p, "partial"), nil
	}
	return 0, errors.New("connection reset")
}

// Run exercises newBackend against the shared backend contract.
func Run(t *testing.T, newBackend Factory) {
	t.Run("RoundTrip", func(t *testing.T) { testRoundTrip(t, newBackend(t)) })
	t.Run("ListByKind", func(t *testing.T) { testListByKind(t, newBackend(t)) })
	t.Run("DeleteTwice", func(t *testing.T) { testDeleteTwice(t, newBackend(t)) })
	t.Run("UnknownReference", func(t *testing.T) { testUnknownReference(t, newBackend(t)) })
	t.Run("ConcurrentSameName", func(t *testing.T) { testConcurrentSameName(t, newBackend(t)) })
	t.Run("FailedWriteLeavesNothing", func(t *testing.T) { testFailedWrite(t, newBackend(t)) })
	t.Run("OpenThenDelete", func(t *testing.T) { testOpenThenDelete(t, newBackend(t)) })
	t.Run("StatMatchesOpen", func(t *testing.T) { testStatMatchesOpen(t, newBackend(t)) })
}

// ReadAll opens ref and returns its bytes and metadata.
func ReadAll(t *testing.T, b storage.Backend, ref string) ([]byte, artifact.Artifact) {
	t.Helper()
	rc, a, err := b.Open(context.Background(), ref)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data, a
}

func write(t *testing.T, b storage.Backend, kind artifact.Kind, ct, name string, data []byte) artifact.Artifact {
	t.Helper()
	a, err := b.Write(context.Background(), storage.WriteInput{
		Kind:         kind,
		ContentType:  ct,
		OriginalName: name,
		Body:         bytes.NewReader(data),
	})
	require.NoError(t, err)
	return a
}

func testRoundTrip(t *testing.T, b storage.Backend) {
	data := []byte("0123456789")
	a := write(t, b, artifact.KindImage, "image/jpeg", "cat.jpg", data)

	sum := sha256.Sum256(data)
	assert.NotEmpty(t, a.ID)
	assert.NotEmpty(t, a.Reference)
	assert.Equal(t, artifact.KindImage, a.Kind)
	assert.Equal(t, "image/jpeg", a.ContentType)
	assert.Equal(t, int64(len(data)), a.SizeBytes)
	assert.Equal(t, hex.EncodeToString(sum[:]), a.Checksum)
	assert.False(t, a.CreatedAt.IsZero())

	got, meta := ReadAll(t, b, a.Reference)
	assert.Equal(t, data, got)
	assert.Equal(t, "image/jpeg", meta.ContentType)
	assert.Equal(t, artifact.KindImage, meta.Kind)
	assert.Equal(t, a.ID, meta.ID)
}

func testListByKind(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	img := write(t, b, artifact.KindImage, "image/png", "a.png", []byte("png-bytes"))
	vid := write(t, b, artifact.KindVideo, "video/mp4", "b.mp4", []byte("mp4-bytes"))

	images, err := b.List(ctx, artifact.KindImage)
	require.NoError(t, err)
	assert.Equal(t, []string{img.Reference}, images)

	videos, err := b.List(ctx, artifact.KindVideo)
	require.NoError(t, err)
	assert.Equal(t, []string{vid.Reference}, videos)
}

func testDeleteTwice(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	a := write(t, b, artifact.KindImage, "image/gif", "x.gif", []byte("GIF89a"))

	require.NoError(t, b.Delete(ctx, a.Reference))
	assert.ErrorIs(t, b.Delete(ctx, a.Reference), artifact.ErrNotFound)

	_, _, err := b.Open(ctx, a.Reference)
	assert.ErrorIs(t, err, artifact.ErrNotFound)

	refs, err := b.List(ctx, artifact.KindImage)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func testUnknownReference(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	for _, ref := range []string{"", "nope", "../../etc/passwd", "00000000-0000-0000-0000-000000000000"} {
		_, _, err := b.Open(ctx, ref)
		assert.ErrorIs(t, err, artifact.ErrNotFound, "open %q", ref)
		assert.ErrorIs(t, b.Delete(ctx, ref), artifact.ErrNotFound, "delete %q", ref)
	}
}

func testConcurrentSameName(t *testing.T, b storage.Backend) {
	const n = 16
	refs := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := b.Write(context.Background(), storage.WriteInput{
				Kind:         artifact.KindImage,
				ContentType:  "image/jpeg",
				OriginalName: "same.jpg",
				Body:         bytes.NewReader([]byte{byte(i)}),
			})
			refs[i], errs[i] = a.Reference, err
		}(i)
	}
	wg.Wait()

	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		_, dup := seen[refs[i]]
		require.False(t, dup, "duplicate reference %s", refs[i])
		seen[refs[i]] = struct{}{}
		got, _ := ReadAll(t, b, refs[i])
		assert.Equal(t, []byte{byte(i)}, got)
	}
}

func testFailedWrite(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	_, err := b.Write(ctx, storage.WriteInput{
		Kind:         artifact.KindVideo,
		ContentType:  "video/mp4",
		OriginalName: "broken.mp4",
		Body:         &failingReader{},
	})
	require.Error(t, err)

	refs, err := b.List(ctx, artifact.KindVideo)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func testOpenThenDelete(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	data := []byte("0123456789")
	a := write(t, b, artifact.KindImage, "image/jpeg", "cat.jpg", data)

	rc, _, err := b.Open(ctx, a.Reference)
	require.NoError(t, err)
	defer rc.Close()

	require.NoError(t, b.Delete(ctx, a.Reference))

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, _, err = b.Open(ctx, a.Reference)
	assert.ErrorIs(t, err, artifact.ErrNotFound)
}

func testStatMatchesOpen(t *testing.T, b storage.Backend) {
	st, ok := b.(storage.Stater)
	if !ok {
		t.Skip("backend has no metadata lookup")
	}
	ctx := context.Background()
	a := write(t, b, artifact.KindVideo, "video/mp4", "clip.mp4", []byte("mp4-bytes"))

	_, opened := ReadAll(t, b, a.Reference)
	stat, err := st.Stat(ctx, a.Reference)
	require.NoError(t, err)
	assert.Equal(t, opened, stat)
	assert.Equal(t, artifact.KindVideo, stat.Kind)
	assert.Equal(t, int64(len("mp4-bytes")), stat.SizeBytes)

	require.NoError(t, b.Delete(ctx, a.Reference))
	_, err = st.Stat(ctx, a.Reference)
	assert.ErrorIs(t, err, artifact.ErrNotFound)
	_, err = st.Stat(ctx, "../../etc/passwd")
	assert.ErrorIs(t, err, artifact.ErrNotFound)
}
