package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix namespaces session hashes in Redis
const DefaultRedisKeyPrefix = "aepilot:toolcache:"

// RedisCache stores each session's results in one Redis hash so that a
// session reset is a single DEL. Hashes carry no expiry: entries live
// exactly as long as the session.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCache creates a cache on rdb. An empty prefix uses DefaultRedisKeyPrefix.
func NewRedisCache(rdb *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisCache{rdb: rdb, prefix: prefix}
}

func (c *RedisCache) key(sessionID string) string {
	return c.prefix + sessionID
}

// Get implements Cache
func (c *RedisCache) Get(ctx context.Context, sessionID, fingerprint string) (Result, bool, error) {
	data, err := c.rdb.HGet(ctx, c.key(sessionID), fingerprint).Bytes()
	if errors.Is(err, redis.Nil) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, fmt.Errorf("read cached tool result: %w", err)
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return Result{}, false, fmt.Errorf("decode cached tool result: %w", err)
	}
	return result, true, nil
}

// Set implements Cache
func (c *RedisCache) Set(ctx context.Context, sessionID, fingerprint string, result Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode tool result: %w", err)
	}
	if err := c.rdb.HSet(ctx, c.key(sessionID), fingerprint, data).Err(); err != nil {
		return fmt.Errorf("write cached tool result: %w", err)
	}
	return nil
}

// Reset implements Cache
func (c *RedisCache) Reset(ctx context.Context, sessionID string) error {
	if err := c.rdb.Del(ctx, c.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("reset tool cache: %w", err)
	}
	return nil
}
