// Package cache wraps the Redis client used as a fast path in front of the
// database. Every caller treats the cache as optional.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"imghost/internal/config"
	"imghost/internal/logger"
)

const keyPrefix = "imghost:"

var (
	ErrNotConfigured = errors.New("redis url not configured")
	ErrNotReady      = errors.New("redis not ready")
)

type RedisClient struct {
	client    *redis.Client
	ready     atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// RateLimitResult is the outcome of a fixed-window counter check.
type RateLimitResult struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// NewRedisClient parses redisURL and pings the server. If the first ping
// fails the client keeps reconnecting in the background and reports
// IsReady() == false until it succeeds.
func NewRedisClient(redisURL string) (*RedisClient, error) {
	if redisURL == "" {
		return nil, ErrNotConfigured
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.MaxRetries = config.RedisMaxRetries
	opts.DialTimeout = config.RedisDialTimeout
	opts.ReadTimeout = config.RedisCommandTimeout
	opts.WriteTimeout = config.RedisCommandTimeout

	rc := &RedisClient{
		client: redis.NewClient(opts),
		done:   make(chan struct{}),
	}

	if err := rc.Ping(context.Background()); err != nil {
		logger.Cache.Warn().Err(err).Msg("redis not reachable, retrying in background")
		go rc.reconnect()
	} else {
		rc.ready.Store(true)
	}

	return rc, nil
}

func (r *RedisClient) reconnect() {
	backoff := time.Second
	for {
		select {
		case <-r.done:
			return
		case <-time.After(backoff):
		}

		if err := r.Ping(context.Background()); err == nil {
			r.ready.Store(true)
			logger.Cache.Info().Msg("redis connection established")
			return
		}
		backoff = min(backoff*2, 30*time.Second)
	}
}

func (r *RedisClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, config.RedisDialTimeout)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

func (r *RedisClient) IsReady() bool {
	return r != nil && r.ready.Load()
}

func (r *RedisClient) Close() error {
	r.closeOnce.Do(func() { close(r.done) })
	return r.client.Close()
}

// Blocked IPs

func blockedKey(ip string) string {
	return keyPrefix + "blocked:" + ip
}

func (r *RedisClient) IsBlockedIP(ctx context.Context, ip string) (bool, error) {
	if !r.IsReady() {
		return false, ErrNotReady
	}
	n, err := r.client.Exists(ctx, blockedKey(ip)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AddBlockedIP caches a positive block. A zero ttl keeps the key until it is
// removed.
func (r *RedisClient) AddBlockedIP(ctx context.Context, ip string, ttl time.Duration) error {
	if !r.IsReady() {
		return ErrNotReady
	}
	return r.client.Set(ctx, blockedKey(ip), "1", ttl).Err()
}

func (r *RedisClient) RemoveBlockedIP(ctx context.Context, ip string) error {
	if !r.IsReady() {
		return ErrNotReady
	}
	return r.client.Del(ctx, blockedKey(ip)).Err()
}

// API rate limiting

// CheckAPIRateLimit increments the counter for key in the current fixed
// window and reports whether the caller is still under limit.
func (r *RedisClient) CheckAPIRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error) {
	if !r.IsReady() {
		return nil, ErrNotReady
	}

	fullKey := keyPrefix + "ratelimit:" + key
	count, err := r.client.Incr(ctx, fullKey).Result()
	if err != nil {
		return nil, err
	}
	if count == 1 {
		if err := r.client.Expire(ctx, fullKey, window).Err(); err != nil {
			return nil, err
		}
	}
	ttl, err := r.client.PTTL(ctx, fullKey).Result()
	if err != nil {
		return nil, err
	}

	remaining := ttl
	if remaining < 0 {
		remaining = window
	}

	result := &RateLimitResult{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: max(limit-count, 0),
		ResetAt:   time.Now().Add(remaining),
	}
	if !result.Allowed {
		result.RetryAfter = remaining
	}
	return result, nil
}
