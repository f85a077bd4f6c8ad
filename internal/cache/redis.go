// Package cache is the shared counter and cache store. It wraps a single go-redis client that is
// injected into every component needing it; all cross-request coordination happens in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	sessionPrefix     = "session:"
	DefaultSessionTTL = 24 * time.Hour
	DefaultTTL        = time.Hour
)

// ErrMiss is returned by typed getters when the key does not exist.
var ErrMiss = errors.New("cache miss")

// Options configures a RedisStore.
type Options struct {
	URL string
	// DefaultTTL applies to CacheSet when no ttl is given.
	DefaultTTL time.Duration
	// SessionTTL applies to SetSession when no ttl is given.
	SessionTTL time.Duration
	// DialTimeout, ReadTimeout and WriteTimeout bound each round trip; zero keeps the defaults below.
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisStore implements counter, cache and session operations on Redis.
type RedisStore struct {
	client     *redis.Client
	defaultTTL time.Duration
	sessionTTL time.Duration
}

// NewRedisStore parses opts.URL and returns a store. It does not contact Redis; call Ping to check reachability.
func NewRedisStore(opts Options) (*RedisStore, error) {
	ro, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	ro.DialTimeout = durationOr(opts.DialTimeout, 5*time.Second)
	ro.ReadTimeout = durationOr(opts.ReadTimeout, 2*time.Second)
	ro.WriteTimeout = durationOr(opts.WriteTimeout, 2*time.Second)
	ro.PoolTimeout = ro.ReadTimeout + time.Second
	// No client-side retries: a slow store must surface as an error, not as a hidden delay.
	ro.MaxRetries = -1
	return NewRedisStoreFromClient(redis.NewClient(ro), opts.DefaultTTL, opts.SessionTTL), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, defaultTTL, sessionTTL time.Duration) *RedisStore {
	return &RedisStore{
		client:     client,
		defaultTTL: durationOr(defaultTTL, DefaultTTL),
		sessionTTL: durationOr(sessionTTL, DefaultSessionTTL),
	}
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// Incr atomically increments the counter at key and returns the post-increment value.
func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	return n, nil
}

// Expire sets the key to expire seconds from now.
func (s *RedisStore) Expire(ctx context.Context, key string, seconds int64) error {
	if err := s.client.Expire(ctx, key, time.Duration(seconds)*time.Second).Err(); err != nil {
		return fmt.Errorf("redis expire: %w", err)
	}
	return nil
}

// TTL returns the remaining time to live of key in whole seconds.
// ok is false when the key has no expiry or does not exist.
func (s *RedisStore) TTL(ctx context.Context, key string) (seconds int64, ok bool, err error) {
	d, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, false, fmt.Errorf("redis ttl: %w", err)
	}
	// go-redis reports -1 (no expiry) and -2 (missing key) as raw negative durations.
	if d <= 0 {
		return 0, false, nil
	}
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs, true, nil
}

// Get returns the raw value at key and false on a miss.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	} else if err != nil {
		return "", false, fmt.Errorf("redis get failed: %w", err)
	}
	return v, true, nil
}

// Set stores value at key. A zero ttl stores the key without expiry.
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Delete removes key. Deleting a missing key is not an error.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// CacheSet stores v as JSON at key. ttl <= 0 uses the store's default TTL.
func (s *RedisStore) CacheSet(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return s.client.Set(ctx, key, data, durationOr(ttl, s.defaultTTL)).Err()
}

// CacheGet decodes the JSON value at key into dst. It returns ErrMiss when the key does not exist.
// A value that does not decode is deleted.
func (s *RedisStore) CacheGet(ctx context.Context, key string, dst interface{}) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return ErrMiss
	} else if err != nil {
		return fmt.Errorf("redis get failed: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		s.client.Del(ctx, key)
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return nil
}

// CacheDel removes key.
func (s *RedisStore) CacheDel(ctx context.Context, key string) error {
	return s.Delete(ctx, key)
}

// SetSession stores session data under session:<id>. ttl <= 0 uses the session TTL.
func (s *RedisStore) SetSession(ctx context.Context, sessionID string, data interface{}, ttl time.Duration) error {
	return s.CacheSet(ctx, sessionPrefix+sessionID, data, durationOr(ttl, s.sessionTTL))
}

// GetSession decodes session:<id> into dst, returning ErrMiss if the session is gone.
func (s *RedisStore) GetSession(ctx context.Context, sessionID string, dst interface{}) error {
	return s.CacheGet(ctx, sessionPrefix+sessionID, dst)
}

// DeleteSession removes session:<id>.
func (s *RedisStore) DeleteSession(ctx context.Context, sessionID string) error {
	return s.Delete(ctx, sessionPrefix+sessionID)
}

// Ping checks Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
