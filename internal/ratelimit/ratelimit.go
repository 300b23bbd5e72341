// Package ratelimit is a fixed-window request limiter kept in Redis, used on
// the sign-in and invitation routes.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	redis *redis.Client
	now   func() time.Time
}

// NewRateLimiter connects to redisURL and checks the connection.
func NewRateLimiter(ctx context.Context, redisURL string) (*RateLimiter, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return New(client), nil
}

// New wraps an existing client.
func New(client *redis.Client) *RateLimiter {
	return &RateLimiter{redis: client, now: time.Now}
}

// Allow counts one hit against key in the current window and reports
// whether it is within limit, along with the hit count so far.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	slot := rl.now().UnixNano() / int64(window)
	windowKey := fmt.Sprintf("ratelimit:%s:%d", key, slot)

	pipe := rl.redis.TxPipeline()
	incr := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, err
	}

	count := int(incr.Val())
	return count <= limit, count, nil
}

func (rl *RateLimiter) Close() error {
	return rl.redis.Close()
}

// KeyFunc picks the bucket a request counts against.
type KeyFunc func(c *gin.Context) string

// ByClientIP buckets requests per endpoint and client address.
func ByClientIP(endpoint string) KeyFunc {
	return func(c *gin.Context) string {
		return endpoint + ":" + c.ClientIP()
	}
}

// Middleware rejects requests over limit per window with 429. A limit of
// zero or less disables it. Redis failures let the request through.
func (rl *RateLimiter) Middleware(key KeyFunc, limit int, window time.Duration) gin.HandlerFunc {
	if rl == nil || limit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		allowed, count, err := rl.Allow(c.Request.Context(), key(c), limit, window)
		if err != nil {
			_ = c.Error(fmt.Errorf("rate limit check: %w", err))
			c.Next()
			return
		}

		remaining := limit - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": window.Seconds(),
			})
			return
		}
		c.Next()
	}
}
