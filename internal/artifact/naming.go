package artifact

import (
	"fmt"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const maxNameStem = 96

// Namer generates artifact identities. UUIDv7 values carry a monotonic
// millisecond timestamp plus random bits, so two uploads of the same file in
// the same instant still get distinct names.
type Namer struct {
	newV7     func() (uuid.UUID, error)
	newRandom func() (uuid.UUID, error)
	now       func() time.Time
	seq       atomic.Uint64
}

// NewNamer returns a Namer backed by google/uuid.
func NewNamer() *Namer {
	return &Namer{
		newV7:     uuid.NewV7,
		newRandom: uuid.NewRandom,
		now:       time.Now,
	}
}

// NewNamerWithSource returns a Namer whose primary identifiers come from next.
func NewNamerWithSource(next func() (uuid.UUID, error)) *Namer {
	n := NewNamer()
	n.newV7 = next
	return n
}

// ID returns a new opaque identifier. It never fails: when the v7 source is
// unavailable it degrades to a random UUID, and then to a timestamp+counter.
func (n *Namer) ID() string {
	if id, err := n.newV7(); err == nil {
		return id.String()
	}
	if id, err := n.newRandom(); err == nil {
		return id.String()
	}
	return fmt.Sprintf("%016x-%08x", n.now().UnixNano(), n.seq.Add(1))
}

// Name returns a stored file name for originalName with the given extension.
// The result is "<id>-<stem><ext>"; ext replaces any extension the original
// name carried unless they already match.
func (n *Namer) Name(originalName, ext string) string {
	return n.ID() + "-" + SanitizeName(originalName, ext)
}

// SanitizeName reduces originalName to a safe single path segment ending in ext.
func SanitizeName(originalName, ext string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(originalName), "\\", "/"))
	if base == "." || base == "/" {
		base = ""
	}
	origExt := path.Ext(base)
	stem := strings.TrimSuffix(base, origExt)
	if ext == "" {
		ext = strings.ToLower(origExt)
	} else if !strings.EqualFold(origExt, ext) && !sameExtension(origExt, ext) {
		// keep the original extension in the stem, as in "clip.mov.mp4"
		stem = base
	}

	var b strings.Builder
	for _, r := range stem {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	clean := strings.TrimLeft(b.String(), ".")
	if len(clean) > maxNameStem {
		clean = clean[:maxNameStem]
	}
	if clean == "" {
		clean = "upload"
	}
	return clean + strings.ToLower(ext)
}

func sameExtension(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	return (a == ".jpeg" && b == ".jpg") || (a == ".jpg" && b == ".jpeg")
}

// CreatedAtFromName recovers the creation time encoded in a v7-prefixed name.
func CreatedAtFromName(name string) (time.Time, bool) {
	if len(name) < 36 {
		return time.Time{}, false
	}
	id, err := uuid.Parse(name[:36])
	if err != nil || id.Version() != 7 {
		return time.Time{}, false
	}
	sec, nsec := id.Time().UnixTime()
	return time.Unix(sec, nsec).UTC(), true
}
