package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/noah-isme/campusdesk-api/internal/utils"
)

// RateLimit creates a rate limiter keyed by kiosk, then user, then client IP.
func RateLimit(identifier string, max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Second
	}

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			return fmt.Sprintf("%s:%s", identifier, rateLimitSubject(c))
		},
		LimitReached: func(c *fiber.Ctx) error {
			return utils.SendError(c, fiber.StatusTooManyRequests, "too many requests")
		},
	})
}

func rateLimitSubject(c *fiber.Ctx) string {
	if kiosk, ok := c.Locals("kiosk_id").(string); ok && kiosk != "" && kiosk != "open" {
		return kiosk
	}
	if userID := c.Locals("user_id"); userID != nil {
		if value := fmt.Sprintf("%v", userID); value != "" && value != "0" {
			return value
		}
	}
	return c.IP()
}
