package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/xf00889/alumnisystem-sub000/internal/core/port"
	"github.com/xf00889/alumnisystem-sub000/internal/repository"
)

const (
	defaultKVPrefix = "alumni"
	scanBatchSize   = 200
)

// incrementScript increments a counter and applies the TTL only on creation, so
// later increments keep the window anchored at the first hit. A key that somehow
// lost its expiry is re-armed.
var incrementScript = red.NewScript(`
local v = redis.call("INCR", KEYS[1])
if v == 1 or redis.call("PTTL", KEYS[1]) == -1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return v
`)

var compareAndDeleteScript = red.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// KVStore implements port.KeyValueStore on Redis. All keys live under prefix.
type KVStore struct {
	client red.UniversalClient
	prefix string
}

// NewKVStore constructs a namespaced key-value store.
func NewKVStore(client red.UniversalClient, keyPrefix string) *KVStore {
	prefix := strings.Trim(strings.TrimSpace(keyPrefix), ":")
	if prefix == "" {
		prefix = defaultKVPrefix
	}
	return &KVStore{client: client, prefix: prefix}
}

func (s *KVStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, red.Nil) {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", unavailable("get", err)
	}
	return value, nil
}

func (s *KVStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return unavailable("set", err)
	}
	return nil
}

func (s *KVStore) SetIfAbsent(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, errors.New("ttl must be positive")
	}
	created, err := s.client.SetNX(ctx, s.key(key), value, ttl).Result()
	if err != nil {
		return false, unavailable("setnx", err)
	}
	return created, nil
}

func (s *KVStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, s.key(k))
	}
	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return unavailable("del", err)
	}
	return nil
}

func (s *KVStore) Increment(ctx context.Context, key string, ttlOnCreate time.Duration) (int64, error) {
	if ttlOnCreate <= 0 {
		return 0, errors.New("ttl must be positive")
	}
	count, err := incrementScript.Run(ctx, s.client, []string{s.key(key)}, ttlOnCreate.Milliseconds()).Int64()
	if err != nil {
		return 0, unavailable("increment", err)
	}
	return count, nil
}

func (s *KVStore) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	ttl, err := s.client.PTTL(ctx, s.key(key)).Result()
	if err != nil {
		return 0, false, unavailable("pttl", err)
	}
	switch ttl {
	case -2:
		return 0, false, nil
	case -1:
		// present without expiry
		return 0, true, nil
	}
	return ttl, true, nil
}

func (s *KVStore) CompareAndDelete(ctx context.Context, key string, expected string) (bool, error) {
	deleted, err := compareAndDeleteScript.Run(ctx, s.client, []string{s.key(key)}, expected).Int64()
	if err != nil {
		return false, unavailable("compare and delete", err)
	}
	return deleted == 1, nil
}

func (s *KVStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	pattern := s.key(escapeGlob(prefix)) + "*"
	strip := s.prefix + ":"

	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return nil, unavailable("scan", err)
		}
		for _, k := range batch {
			keys = append(keys, strings.TrimPrefix(k, strip))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

// Ping reports whether the backing Redis answers.
func (s *KVStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *KVStore) key(key string) string {
	return s.prefix + ":" + key
}

func escapeGlob(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return replacer.Replace(value)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("redis %s: %w: %w", op, repository.ErrStoreUnavailable, err)
}

var _ port.KeyValueStore = (*KVStore)(nil)
