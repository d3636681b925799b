package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"imghost/internal/firewall"
	"imghost/internal/logger"
	"imghost/pkg/cache"
)

// APIRateLimitConfig defines the configuration for API rate limiting
type APIRateLimitConfig struct {
	// Requests per window
	Limit int64
	// Time window
	Window time.Duration
	// Key generator function
	KeyGenerator func(c echo.Context) string
	// Skip function (optional)
	Skipper func(c echo.Context) bool
}

// DefaultAPIRateLimitConfig limits each client IP to limit requests a minute.
func DefaultAPIRateLimitConfig(limit int64) APIRateLimitConfig {
	return APIRateLimitConfig{
		Limit:  limit,
		Window: time.Minute,
		KeyGenerator: func(c echo.Context) string {
			return "ip:" + firewall.ClientIP(c.Request())
		},
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/health"
		},
	}
}

// APIRateLimit counts requests per key in Redis. The limiter is skipped when
// the cache is missing or unhealthy.
func APIRateLimit(redisCache *cache.RedisClient, config APIRateLimitConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if config.Skipper != nil && config.Skipper(c) {
				return next(c)
			}
			if !redisCache.IsReady() || config.Limit <= 0 {
				return next(c)
			}

			key := config.KeyGenerator(c)
			if key == "" {
				return next(c)
			}

			result, err := redisCache.CheckAPIRateLimit(c.Request().Context(), key, config.Limit, config.Window)
			if err != nil {
				logger.HTTP.Warn().Err(err).Str("key", key).Msg("api rate limit check failed, allowing request")
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				retry := int64(result.RetryAfter.Seconds())
				h.Set("Retry-After", strconv.FormatInt(retry, 10))
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":       "Rate limit exceeded",
					"retry_after": retry,
				})
			}

			return next(c)
		}
	}
}
