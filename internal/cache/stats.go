// Package cache keeps the dashboard stats between refresh cycles.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yourorg/defi-yield-agent/internal/model"
)

const statsKey = "pools:stats"

// StatsCache stores the latest PoolStats. Get returns nil without error on a miss.
type StatsCache interface {
	Get(ctx context.Context) (*model.PoolStats, error)
	Set(ctx context.Context, stats model.PoolStats) error
	Invalidate(ctx context.Context) error
}

// RedisCache implements StatsCache on Redis with a fixed TTL
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// Ensure RedisCache implements the StatsCache interface
var _ StatsCache = (*RedisCache)(nil)

// NewRedisCache connects lazily to addr
func NewRedisCache(addr, password string, db int, ttl time.Duration) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 2 * time.Second,
	})
	return &RedisCache{client: client, ttl: ttl}
}

// Ping checks the connection
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Get(ctx context.Context) (*model.PoolStats, error) {
	data, err := r.client.Get(ctx, statsKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var stats model.PoolStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stats: %w", err)
	}
	return &stats, nil
}

func (r *RedisCache) Set(ctx context.Context, stats model.PoolStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	return r.client.Set(ctx, statsKey, data, r.ttl).Err()
}

func (r *RedisCache) Invalidate(ctx context.Context) error {
	return r.client.Del(ctx, statsKey).Err()
}

// Close releases the client
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// NoopCache never stores anything
type NoopCache struct{}

var _ StatsCache = NoopCache{}

func (NoopCache) Get(context.Context) (*model.PoolStats, error) { return nil, nil }
func (NoopCache) Set(context.Context, model.PoolStats) error    { return nil }
func (NoopCache) Invalidate(context.Context) error              { return nil }
