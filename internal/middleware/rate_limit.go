package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/noah-isme/jobify-assessment-api/internal/utils"
)

// RateLimitedCode marks throttled responses so clients can tell them apart
// from other 429 replies.
const RateLimitedCode = "RATE_LIMITED"

// RateLimit limits a route group per authenticated user, falling back to the
// client IP before authentication has run.
func RateLimit(identifier string, max int, window time.Duration) fiber.Handler {
	return RateLimitUnless(identifier, max, window, nil)
}

// RateLimitUnless behaves like RateLimit but lets requests matching exempt
// through without consuming the bucket.
func RateLimitUnless(identifier string, max int, window time.Duration, exempt func(c *fiber.Ctx) bool) fiber.Handler {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		Next:       exempt,
		KeyGenerator: func(c *fiber.Ctx) string {
			if id := UserID(c); id != 0 {
				return fmt.Sprintf("%s:user:%d", identifier, id)
			}
			return fmt.Sprintf("%s:ip:%s", identifier, c.IP())
		},
		LimitReached: func(c *fiber.Ctx) error {
			return utils.SendErrorWithData(c, fiber.StatusTooManyRequests, "too many requests, slow down", fiber.Map{
				"code": RateLimitedCode,
			})
		},
	})
}
