package access

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements Cache with versioned keys: each user has a
// generation counter at <prefix>:gen:<user>, and the value lives at
// <prefix>:set:<user>:<gen>. Invalidation is a single INCR of the
// generation, which atomically makes the old value key unreachable; a
// writer holding a superseded generation writes to a dead key.
//
// Value keys carry a housekeeping TTL so superseded generations get garbage
// collected. That TTL is not a staleness mechanism: an expired current key
// just forces a recomputation.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache builds a RedisCache. ttl <= 0 disables value-key expiry.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "perm"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) genKey(userID string) string {
	return fmt.Sprintf("%s:gen:%s", c.prefix, userID)
}

func (c *RedisCache) valueKey(userID string, generation uint64) string {
	return fmt.Sprintf("%s:set:%s:%d", c.prefix, userID, generation)
}

// Generation returns the current generation for userID, initialising it to
// 1 when missing.
func (c *RedisCache) Generation(ctx context.Context, userID string) (uint64, error) {
	gen, err := c.client.Get(ctx, c.genKey(userID)).Uint64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, c.genKey(userID), 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, c.genKey(userID)).Uint64()
	}
	if err != nil {
		return 0, err
	}
	return gen, nil
}

// Get loads the cached set for userID at its current generation.
func (c *RedisCache) Get(ctx context.Context, userID string) ([]string, bool, error) {
	gen, err := c.Generation(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	payload, err := c.client.Get(ctx, c.valueKey(userID, gen)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var perms []string
	if err := json.Unmarshal(payload, &perms); err != nil {
		return nil, false, fmt.Errorf("cache: decode %s: %w", userID, err)
	}
	return perms, true, nil
}

// Put stores perms under the generation the writer observed before reading
// the store. If that generation has been superseded the write lands on an
// unreachable key and is harmless.
func (c *RedisCache) Put(ctx context.Context, userID string, perms []string, generation uint64) error {
	payload, err := json.Marshal(perms)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.valueKey(userID, generation), payload, c.ttl).Err()
}

// Invalidate bumps each user's generation in one pipeline.
func (c *RedisCache) Invalidate(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for _, userID := range userIDs {
		pipe.Incr(ctx, c.genKey(userID))
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Flush deletes every value key under the cache prefix. Generation
// counters are kept so they stay monotonic; reusing a generation after a
// flush could resurrect a value written by an in-flight resolution.
func (c *RedisCache) Flush(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+":set:*", 200).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
