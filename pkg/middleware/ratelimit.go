package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// RateLimitConfig defines a fixed-window rate limit
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the window
	RequestsPerWindow int
	// WindowDuration is the window length
	WindowDuration time.Duration
}

// EscalationRateLimitConfig bounds how often one admin can assume tenants
func EscalationRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerWindow: 20,
		WindowDuration:    time.Hour,
	}
}

// WindowLimiter counts requests per key in Redis so limits hold across
// instances
type WindowLimiter struct {
	redis  *redis.Client
	config RateLimitConfig
	prefix string
}

// NewWindowLimiter creates a Redis-backed limiter
func NewWindowLimiter(client *redis.Client, config RateLimitConfig, prefix string) *WindowLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &WindowLimiter{redis: client, config: config, prefix: prefix}
}

func (l *WindowLimiter) key(key string) string {
	return fmt.Sprintf("%s:%s", l.prefix, key)
}

// Allow counts one request for key and reports whether it fits the window
func (l *WindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := l.key(key)

	count, err := l.redis.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}
	// The first request opens the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, redisKey, l.config.WindowDuration).Err(); err != nil {
			return false, fmt.Errorf("redis error: %w", err)
		}
	}
	return count <= int64(l.config.RequestsPerWindow), nil
}

// TTL returns the time until the window for key resets
func (l *WindowLimiter) TTL(ctx context.Context, key string) (time.Duration, error) {
	return l.redis.TTL(ctx, l.key(key)).Result()
}

// Reset clears the window for key
func (l *WindowLimiter) Reset(ctx context.Context, key string) error {
	return l.redis.Del(ctx, l.key(key)).Err()
}

// RateLimitByUser limits authenticated callers by user id. It must run after
// Authenticate. Every authenticated attempt counts, including ones the handler
// later rejects. Redis failures reject the request.
func RateLimitByUser(limiter *WindowLimiter, logger *observability.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			identity := IdentityFrom(ctx)
			if identity == nil {
				next.ServeHTTP(w, r)
				return
			}
			key := "user:" + identity.UserID

			allowed, err := limiter.Allow(ctx, key)
			if err != nil {
				logger.WithError(err).WithField("user_id", identity.UserID).Error("rate limiter unavailable")
				httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "service temporarily unavailable")
				return
			}
			if !allowed {
				retryAfter := limiter.config.WindowDuration
				if ttl, err := limiter.TTL(ctx, key); err == nil && ttl > 0 {
					retryAfter = ttl
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
				httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]interface{}{
					"error":      "RATE_LIMITED",
					"message":    "too many requests",
					"retryAfter": int(retryAfter.Seconds()),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
