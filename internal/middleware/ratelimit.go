package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/example/forwardly/internal/apperr"
	"github.com/example/forwardly/internal/logging"
	"github.com/example/forwardly/internal/ratelimit"
)

// RateLimit allows max requests per client IP and scope within each window.
// When the counter backend fails the request is let through and the failure logged.
func RateLimit(counter ratelimit.Counter, scope string, max int, window time.Duration, log logging.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		key := scope + ":" + c.IP()

		count, retryAfter, err := counter.Incr(ctx, key, window)
		if err != nil {
			log.Error(ctx, "rate limit counter failed", "scope", scope, "error", err)
			return c.Next()
		}

		remaining := int64(max) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(max))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(max) {
			retry := int(retryAfter.Round(time.Second).Seconds())
			if retry < 1 {
				retry = 1
			}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retry))
			log.Warn(ctx, "rate limit exceeded", "scope", scope, "ip", c.IP())
			return apperr.ErrRateLimited
		}
		return c.Next()
	}
}
