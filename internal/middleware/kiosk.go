package middleware

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/campusdesk-api/internal/utils"
)

// KioskKeyHeader carries the shared secret configured on each sign-in kiosk.
const KioskKeyHeader = "X-Kiosk-Key"

type kioskKeys [][]byte

func newKioskKeys(keys []string) kioskKeys {
	configured := make(kioskKeys, 0, len(keys))
	for _, key := range keys {
		if trimmed := strings.TrimSpace(key); trimmed != "" {
			configured = append(configured, []byte(trimmed))
		}
	}
	return configured
}

// match returns the kiosk identifier for a presented key.
func (k kioskKeys) match(presented string) (string, bool) {
	value := []byte(strings.TrimSpace(presented))
	if len(value) == 0 {
		return "", false
	}
	for i, key := range k {
		if subtle.ConstantTimeCompare(value, key) == 1 {
			return fmt.Sprintf("kiosk-%d", i+1), true
		}
	}
	return "", false
}

// KioskKey admits requests presenting one of the configured kiosk keys and
// tags them with a kiosk identifier. With no keys configured every request is admitted.
func KioskKey(keys []string) fiber.Handler {
	configured := newKioskKeys(keys)

	return func(c *fiber.Ctx) error {
		if len(configured) == 0 {
			c.Locals("kiosk_id", "open")
			return c.Next()
		}

		presented := c.Get(KioskKeyHeader)
		if strings.TrimSpace(presented) == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "kiosk key missing")
		}

		kioskID, ok := configured.match(presented)
		if !ok {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid kiosk key")
		}
		c.Locals("kiosk_id", kioskID)
		return c.Next()
	}
}
