package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable marks transport/backend failures so callers can tell them
// apart from a key that is simply absent.
var ErrUnavailable = errors.New("store unavailable")

// Store is the expiring keyed store the room service runs against. Values
// are strings; expiry is per key. IncrRefresh and DecrSaturateRefresh must
// run as single indivisible units on the backend so that concurrent counter
// events never race on a read-then-write.
type Store interface {
	// Get returns the value and whether the key is present.
	Get(ctx context.Context, key string) (string, bool, error)

	// GetMulti returns the present keys and their values in one batched
	// read, so listing many rooms does not pay a round trip per field.
	GetMulti(ctx context.Context, keys []string) (map[string]string, error)

	// SetEx writes the value with the given TTL.
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNXEx writes the value with the given TTL only if the key is
	// absent. Reports whether this call claimed the key.
	SetNXEx(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	Exists(ctx context.Context, key string) (bool, error)

	// Expire resets the TTL of an existing key. Missing keys are a no-op.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Scan returns all keys matching pattern ("*" wildcard). It must not
	// block the backend; an interrupted scan returns an error, never a
	// silently truncated list.
	Scan(ctx context.Context, pattern string) ([]string, error)

	// IncrRefresh atomically increments the counter at key (absent reads
	// as 0) and resets its TTL, returning the new value.
	IncrRefresh(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// DecrSaturateRefresh atomically decrements the counter at key,
	// clamping at zero, and resets its TTL, returning the new value.
	DecrSaturateRefresh(ctx context.Context, key string, ttl time.Duration) (int64, error)
}
