package port

import (
	"context"
	"time"
)

// KeyValueStore holds short-lived state with absolute expiration. Implementations
// return repository.ErrNotFound for absent keys and wrap transport failures in
// repository.ErrStoreUnavailable.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	// Set replaces the value unconditionally.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	// SetIfAbsent writes only when key does not exist and reports whether it wrote.
	SetIfAbsent(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	// Increment atomically adds one. ttlOnCreate applies only when the key is created;
	// later increments keep the remaining TTL.
	Increment(ctx context.Context, key string, ttlOnCreate time.Duration) (int64, error)
	// TTL returns the remaining lifetime; ok is false when the key is absent.
	TTL(ctx context.Context, key string) (ttl time.Duration, ok bool, err error)
	// CompareAndDelete deletes key only if it still holds expected.
	CompareAndDelete(ctx context.Context, key string, expected string) (bool, error)
	// Keys lists live keys starting with prefix, without the store namespace.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
