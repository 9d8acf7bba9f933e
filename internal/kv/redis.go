package kv

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the production Client, backed by Redis (or any
// Redis-protocol-compatible service). Grounded on the ecosystem's
// standard choice for this exact "opaque KV mirror with TTLs" shape
// (go-redis/v9 appears across the reference pack's dependency
// manifests wherever a service needs a fast, TTL-bearing cache layer
// in front of an authoritative store).
type RedisClient struct {
	rdb *redis.Client
}

// NewRedisClient dials a Redis instance at addr.
func NewRedisClient(addr, password string, db int) *RedisClient {
	return &RedisClient{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (c *RedisClient) PutVersioned(ctx context.Context, prefix string, version int, envelope []byte, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, versionedKey(prefix, version), envelope, ttl).Err(); err != nil {
		return fmt.Errorf("kv: put versioned %s: %w", versionedKey(prefix, version), err)
	}

	return nil
}

func (c *RedisClient) GetVersioned(ctx context.Context, prefix string, version int) ([]byte, error) {
	val, err := c.rdb.Get(ctx, versionedKey(prefix, version)).Bytes()

	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("kv: get versioned %s: %w", versionedKey(prefix, version), err)
	}

	return val, nil
}

// DeleteVersioned removes a versioned blob outright, used by the
// Orchestrator's best-effort cleanup of versions older than the
// configured live-version floor. A miss is not an error.
func (c *RedisClient) DeleteVersioned(ctx context.Context, prefix string, version int) error {
	if err := c.rdb.Del(ctx, versionedKey(prefix, version)).Err(); err != nil {
		return fmt.Errorf("kv: delete versioned %s: %w", versionedKey(prefix, version), err)
	}

	return nil
}

// PutCurrent is a last-writer-wins string put; callers must not assume
// atomicity against concurrent writers, per spec.md §6.
func (c *RedisClient) PutCurrent(ctx context.Context, prefix string, version int) error {
	if err := c.rdb.Set(ctx, currentKey(prefix), currentValue(version), 0).Err(); err != nil {
		return fmt.Errorf("kv: put current %s: %w", currentKey(prefix), err)
	}

	return nil
}

func (c *RedisClient) GetCurrent(ctx context.Context, prefix string) (int, error) {
	val, err := c.rdb.Get(ctx, currentKey(prefix)).Result()

	switch {
	case errors.Is(err, redis.Nil):
		return 0, ErrNotFound
	case err != nil:
		return 0, fmt.Errorf("kv: get current %s: %w", currentKey(prefix), err)
	}

	version, err := strconv.Atoi(strings.TrimPrefix(val, "v"))
	if err != nil {
		return 0, fmt.Errorf("kv: malformed current pointer %q: %w", val, err)
	}

	return version, nil
}

func (c *RedisClient) HealthCheck(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("kv: health check: %w", err)
	}

	return nil
}
