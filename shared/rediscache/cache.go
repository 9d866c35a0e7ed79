// Package rediscache keeps a short-TTL copy of the job status payload so the
// polling endpoint doesn't hit Postgres on every request. The store remains
// the source of truth; a cache miss falls through to it.
package rediscache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the job-status cache. Implementations must be safe for concurrent
// use.
type Cache interface {
	SetJobStatus(ctx context.Context, jobID string, payload []byte, ttl time.Duration) error
	GetJobStatus(ctx context.Context, jobID string) ([]byte, bool, error)
	InvalidateJobStatus(ctx context.Context, jobID string) error
	Ping(ctx context.Context) error
	Close() error
}

// RedisCache implements Cache using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// New creates a RedisCache from a Redis URL.
func New(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func jobStatusKey(jobID string) string {
	return "jobstatus:" + jobID
}

func (c *RedisCache) SetJobStatus(ctx context.Context, jobID string, payload []byte, ttl time.Duration) error {
	return c.client.Set(ctx, jobStatusKey(jobID), payload, ttl).Err()
}

func (c *RedisCache) GetJobStatus(ctx context.Context, jobID string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, jobStatusKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) InvalidateJobStatus(ctx context.Context, jobID string) error {
	return c.client.Del(ctx, jobStatusKey(jobID)).Err()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// NoopCache satisfies Cache when Redis is not configured.
type NoopCache struct{}

func (NoopCache) SetJobStatus(context.Context, string, []byte, time.Duration) error { return nil }
func (NoopCache) GetJobStatus(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (NoopCache) InvalidateJobStatus(context.Context, string) error                 { return nil }
func (NoopCache) Ping(context.Context) error                                        { return nil }
func (NoopCache) Close() error                                                      { return nil }
