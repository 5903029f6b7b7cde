package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldAccess  = "access"
	fieldRefresh = "refresh"
	fieldType    = "type"
	fieldExpiry  = "exp_ms"
)

// RedisStore keeps each scope's pair in one Redis hash.
//
//	Key layout: <prefix>:tok:<scope>
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a [RedisStore]. ttl bounds how long a pair survives
// without being rewritten; zero keeps pairs until Clear.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "tf"
	}
	return &RedisStore{
		redis:  client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *RedisStore) key(scope string) string {
	return s.prefix + ":tok:" + normalizeScope(scope)
}

// Load reads the pair for scope.
//
//	Performance: 1 Redis HGETALL.
func (s *RedisStore) Load(ctx context.Context, scope string) (Pair, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(scope)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Pair{}, ErrNoTokens
		}
		return Pair{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return Pair{}, ErrNoTokens
	}

	pair := Pair{
		AccessToken:  fields[fieldAccess],
		RefreshToken: fields[fieldRefresh],
		TokenType:    fields[fieldType],
	}
	if raw := fields[fieldExpiry]; raw != "" && raw != "0" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Pair{}, fmt.Errorf("store: corrupt expiry for scope %q: %w", normalizeScope(scope), err)
		}
		pair.Expiry = time.UnixMilli(ms)
	}
	return pair, nil
}

// Save replaces the pair for scope atomically.
//
//	Performance: 1 MULTI/EXEC with DEL + HSET (+ PEXPIRE).
func (s *RedisStore) Save(ctx context.Context, scope string, pair Pair) error {
	key := s.key(scope)
	var expMS int64
	if !pair.Expiry.IsZero() {
		expMS = pair.Expiry.UnixMilli()
	}

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			fieldAccess, pair.AccessToken,
			fieldRefresh, pair.RefreshToken,
			fieldType, pair.TokenType,
			fieldExpiry, strconv.FormatInt(expMS, 10),
		)
		if s.ttl > 0 {
			pipe.PExpire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Clear removes the pair for scope. Clearing an empty scope is not an error.
func (s *RedisStore) Clear(ctx context.Context, scope string) error {
	if err := s.redis.Del(ctx, s.key(scope)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
