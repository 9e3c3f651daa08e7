package tokenstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis-backed [Store].
//
//	Keys: <prefix>:access_token, <prefix>:refresh_token
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a store under prefix. A ttl of zero keeps entries
// until Clear; a positive ttl is refreshed on every Save.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "authclient"
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisStore{
		redis:  client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *RedisStore) key(name string) string {
	return s.prefix + ":" + name
}

// Load reads both entries with a single MGET.
func (s *RedisStore) Load(ctx context.Context) (Credentials, error) {
	values, err := s.redis.MGet(ctx, s.key(AccessTokenKey), s.key(RefreshTokenKey)).Result()
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var creds Credentials
	if len(values) == 2 {
		creds.AccessToken, _ = values[0].(string)
		creds.RefreshToken, _ = values[1].(string)
	}
	return creds, nil
}

// Save writes the pair in one MULTI/EXEC so readers never observe a new access
// credential next to a refresh credential from a different session.
func (s *RedisStore) Save(ctx context.Context, creds Credentials) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if creds.AccessToken == "" {
			pipe.Del(ctx, s.key(AccessTokenKey))
		} else {
			pipe.Set(ctx, s.key(AccessTokenKey), creds.AccessToken, s.ttl)
		}
		if creds.RefreshToken != "" {
			pipe.Set(ctx, s.key(RefreshTokenKey), creds.RefreshToken, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.key(AccessTokenKey), s.key(RefreshTokenKey)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}
