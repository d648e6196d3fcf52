package blob

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	schema "github.com/memohai/newsdesk/db"
	"github.com/memohai/newsdesk/internal/artifact"
	"github.com/memohai/newsdesk/internal/db"
	"github.com/memohai/newsdesk/internal/storage"
	"github.com/memohai/newsdesk/internal/storage/storagetest"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	conn, err := db.OpenSQLite(context.Background(), ":memory:", schema.SQLiteSchema)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return New(nil, conn, artifact.NewNamer())
}

func TestContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Backend { return newStore(t) })
}

func TestWriteKeepsMetadata(t *testing.T) {
	s := newStore(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	a, err := s.Write(context.Background(), storage.WriteInput{
		Kind:         artifact.KindVideo,
		ContentType:  "video/mp4; codecs=avc1",
		OriginalName: "clip.mov",
		Body:         strings.NewReader("mp4 bytes"),
	})
	require.NoError(t, err)
	assert.Equal(t, a.ID, a.Reference)
	assert.Equal(t, "video/mp4", a.ContentType)

	data, got := storagetest.ReadAll(t, s, a.Reference)
	assert.Equal(t, "mp4 bytes", string(data))
	assert.Equal(t, artifact.KindVideo, got.Kind)
	assert.Equal(t, "clip.mov", got.OriginalName)
	assert.Equal(t, int64(9), got.SizeBytes)
	assert.Equal(t, a.Checksum, got.Checksum)
	assert.True(t, fixed.Equal(got.CreatedAt), "created_at %v", got.CreatedAt)
}

func TestListOldestFirst(t *testing.T) {
	s := newStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var want []string
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		s.now = func() time.Time { return at }
		a, err := s.Write(context.Background(), storage.WriteInput{
			Kind:        artifact.KindImage,
			ContentType: "image/png",
			Body:        strings.NewReader("png"),
		})
		require.NoError(t, err)
		want = append(want, a.Reference)
	}
	got, err := s.List(context.Background(), artifact.KindImage)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestWriteRetriesOnIDCollision(t *testing.T) {
	s := newStore(t)
	first, err := s.Write(context.Background(), storage.WriteInput{
		Kind: artifact.KindImage, ContentType: "image/png", Body: strings.NewReader("a"),
	})
	require.NoError(t, err)

	fresh := uuid.MustParse("01890a5d-ac96-774b-bcce-b302099a8057")
	calls := 0
	s.namer = artifact.NewNamerWithSource(func() (uuid.UUID, error) {
		calls++
		if calls == 1 {
			return uuid.Parse(first.ID)
		}
		return fresh, nil
	})
	second, err := s.Write(context.Background(), storage.WriteInput{
		Kind: artifact.KindImage, ContentType: "image/png", Body: strings.NewReader("b"),
	})
	require.NoError(t, err)
	assert.Equal(t, fresh.String(), second.ID)
	assert.Equal(t, 2, calls)
}
