package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariebrainware/educe-api/config"
	"github.com/ariebrainware/educe-api/util"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRateLimit  = 100
	defaultRateWindow = 15 * time.Minute

	// APIRateLimitScope is the scope of the limiter guarding the whole API.
	APIRateLimitScope = "api"
)

// ErrRateLimitDisabled is returned when no Redis client is configured.
var ErrRateLimitDisabled = errors.New("rate limiting is disabled")

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	Limit  int
	Window time.Duration
	// Scope separates counters of limiters mounted on different route groups.
	Scope string
}

// RateLimiter counts requests per client IP in fixed windows stored in Redis.
func RateLimiter(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.Limit <= 0 {
		cfg.Limit = defaultRateLimit
	}
	if cfg.Window <= 0 {
		cfg.Window = defaultRateWindow
	}
	if cfg.Scope == "" {
		cfg.Scope = APIRateLimitScope
	}

	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		key := rateLimitKey(cfg.Scope, clientIP)

		allowed, err := checkRateLimit(c.Request.Context(), key, cfg.Limit, cfg.Window)
		if err != nil {
			// Redis trouble must not take the API down with it.
			util.LogActivity(util.ActivityEvent{
				Type:    util.EventRateLimitExceeded,
				IP:      clientIP,
				Message: fmt.Sprintf("Rate limit check failed: %v", err),
			})
			c.Next()
			return
		}

		if !allowed {
			util.LogRateLimitExceeded(clientIP, c.Request.URL.Path)
			util.CallTooManyRequests(c, util.APIErrorParams{
				Msg: "Too many requests from this IP, please try again later.",
				Err: fmt.Errorf("rate limit exceeded"),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func rateLimitKey(scope, clientIP string) string {
	return fmt.Sprintf("ratelimit:%s:%s", scope, clientIP)
}

// checkRateLimit reports whether the request fits in the current window.
func checkRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	rdb := config.GetRedisClient()
	if rdb == nil {
		return true, nil
	}

	// The counter and its expiry are written together so a key never
	// outlives its window. EXPIRE NX needs Redis 7.
	var incr *redis.IntCmd
	_, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %w", err)
	}
	return incr.Val() <= int64(limit), nil
}

// ResetRateLimit clears the counter of a client.
func ResetRateLimit(ctx context.Context, scope, clientIP string) error {
	rdb := config.GetRedisClient()
	if rdb == nil {
		return ErrRateLimitDisabled
	}
	return rdb.Del(ctx, rateLimitKey(scope, clientIP)).Err()
}
