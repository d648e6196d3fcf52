package artifact

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		original string
		ext      string
		want     string
	}{
		{"keeps matching extension", "cat.jpg", ".jpg", "cat.jpg"},
		{"folds jpeg", "cat.JPEG", ".jpg", "cat.jpg"},
		{"appends delivery extension", "clip.mov", ".mp4", "clip.mov.mp4"},
		{"adds missing extension", "photo", ".png", "photo.png"},
		{"strips directories", "../../etc/passwd", ".png", "passwd.png"},
		{"strips windows directories", `C:\Users\me\cat.gif`, ".gif", "cat.gif"},
		{"replaces unsafe characters", "my cat (1).png", ".png", "my_cat__1_.png"},
		{"strips leading dots", ".hidden.png", ".png", "hidden.png"},
		{"empty name", "", ".mp4", "upload.mp4"},
		{"keeps original extension when none requested", "a.GIF", "", "a.gif"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeName(tt.original, tt.ext))
		})
	}
}

func TestSanitizeNameCapsLength(t *testing.T) {
	got := SanitizeName(strings.Repeat("a", 500)+".png", ".png")
	assert.Equal(t, maxNameStem+len(".png"), len(got))
}

func TestNamerNameIsUniqueUnderConcurrency(t *testing.T) {
	t.Parallel()

	namer := NewNamer()
	const n = 200
	names := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			names[i] = namer.Name("same.jpg", ".jpg")
		}(i)
	}
	wg.Wait()

	seen := make(map[string]struct{}, n)
	for _, name := range names {
		require.True(t, strings.HasSuffix(name, "-same.jpg"), name)
		_, dup := seen[name]
		require.False(t, dup, "duplicate name %s", name)
		seen[name] = struct{}{}
	}
}

func TestNamerFallbacks(t *testing.T) {
	t.Parallel()

	failing := func() (uuid.UUID, error) { return uuid.Nil, errors.New("entropy unavailable") }

	n := NewNamer()
	n.newV7 = failing
	id := n.ID()
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	n.newRandom = failing
	n.now = func() time.Time { return time.Unix(0, 42) }
	first, second := n.ID(), n.ID()
	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasPrefix(first, "000000000000002a-"))
}

func TestCreatedAtFromName(t *testing.T) {
	t.Parallel()

	before := time.Now().Add(-time.Second)
	name := NewNamer().Name("cat.jpg", ".jpg")
	created, ok := CreatedAtFromName(name)
	require.True(t, ok)
	assert.True(t, created.After(before), "created %s before %s", created, before)

	_, ok = CreatedAtFromName("1700000000000-cat.jpg")
	assert.False(t, ok)
}
