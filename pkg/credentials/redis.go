package credentials

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces the token keys.
const DefaultRedisPrefix = "bbs:session"

// RedisStore keeps the token pair in two Redis keys so several client
// processes can share one session. Both keys are written in a single
// MULTI/EXEC transaction and read with one MGET.
type RedisStore struct {
	redis  *redis.Client
	prefix string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a store under prefix (DefaultRedisPrefix when empty).
// A ttl of 0 keeps keys until cleared.
func NewRedisStore(redisClient *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	prefix = strings.TrimSuffix(prefix, ":")
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{
		redis:  redisClient,
		prefix: prefix,
		ttl:    ttl,
	}
}

// AccessKey returns the key holding the access token.
func (s *RedisStore) AccessKey() string {
	return s.prefix + ":access_token"
}

// RefreshKey returns the key holding the refresh token.
func (s *RedisStore) RefreshKey() string {
	return s.prefix + ":refresh_token"
}

// Get reads both keys atomically.
func (s *RedisStore) Get(ctx context.Context) (*Credentials, error) {
	values, err := s.redis.MGet(ctx, s.AccessKey(), s.RefreshKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	if len(values) != 2 {
		return nil, fmt.Errorf("%w: expected 2 values, got %d", ErrCorrupt, len(values))
	}

	var creds Credentials
	for i, v := range values {
		if v == nil {
			continue
		}
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected value type %T", ErrCorrupt, v)
		}
		if i == 0 {
			creds.AccessToken = str
		} else {
			creds.RefreshToken = str
		}
	}

	if creds.IsZero() {
		return nil, nil
	}
	return &creds, nil
}

// Set overwrites both keys in one transaction. An empty refresh token
// deletes the refresh key so no stale token survives.
func (s *RedisStore) Set(ctx context.Context, creds Credentials) error {
	if creds.IsZero() {
		return s.Clear(ctx)
	}

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if creds.AccessToken == "" {
			pipe.Del(ctx, s.AccessKey())
		} else {
			pipe.Set(ctx, s.AccessKey(), creds.AccessToken, s.ttl)
		}
		if creds.RefreshToken == "" {
			pipe.Del(ctx, s.RefreshKey())
		} else {
			pipe.Set(ctx, s.RefreshKey(), creds.RefreshToken, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set credentials: %w", err)
	}
	return nil
}

// Clear deletes both keys.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.AccessKey(), s.RefreshKey()).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
