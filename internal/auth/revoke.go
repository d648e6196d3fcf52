package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "newsdesk:revoked:"

// KV is the storage a Revoker needs.
type KV interface {
	SetNX(ctx context.Context, key string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Revoker remembers revoked token IDs until the tokens would have expired.
type Revoker struct {
	kv     KV
	prefix string
}

// NewRevoker returns a Revoker over kv.
func NewRevoker(kv KV, prefix string) *Revoker {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Revoker{kv: kv, prefix: prefix}
}

// Revoke marks jti revoked until exp.
func (r *Revoker) Revoke(ctx context.Context, jti string, exp time.Time) error {
	if strings.TrimSpace(jti) == "" {
		return errors.New("token id is required")
	}
	ttl := time.Until(exp)
	if ttl <= 0 {
		ttl = time.Minute
	}
	return r.kv.SetNX(ctx, r.prefix+jti, ttl)
}

// IsRevoked reports whether jti was revoked.
func (r *Revoker) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	return r.kv.Exists(ctx, r.prefix+jti)
}

// RedisKV keeps revocations in redis, shared between instances.
type RedisKV struct {
	client redis.Cmdable
}

// NewRedisKV wraps client.
func NewRedisKV(client redis.Cmdable) *RedisKV {
	return &RedisKV{client: client}
}

func (k *RedisKV) SetNX(ctx context.Context, key string, ttl time.Duration) error {
	if err := k.client.SetNX(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis SETNX %s: %w", key, err)
	}
	return nil
}

func (k *RedisKV) Exists(ctx context.Context, key string) (bool, error) {
	n, err := k.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis EXISTS %s: %w", key, err)
	}
	return n > 0, nil
}

// MemoryKV keeps revocations in process memory.
type MemoryKV struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryKV returns an empty MemoryKV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{entries: make(map[string]time.Time), now: time.Now}
}

func (k *MemoryKV) SetNX(_ context.Context, key string, ttl time.Duration) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	now := k.now()
	k.sweep(now)
	if _, ok := k.entries[key]; !ok {
		k.entries[key] = now.Add(ttl)
	}
	return nil
}

func (k *MemoryKV) Exists(_ context.Context, key string) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	exp, ok := k.entries[key]
	if !ok {
		return false, nil
	}
	if !k.now().Before(exp) {
		delete(k.entries, key)
		return false, nil
	}
	return true, nil
}

func (k *MemoryKV) sweep(now time.Time) {
	for key, exp := range k.entries {
		if !now.Before(exp) {
			delete(k.entries, key)
		}
	}
}
