package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/campusdesk-api/internal/utils"
)

// Browsers cannot set headers on a websocket upgrade, so live board
// credentials travel in the query string.
const (
	LiveKioskKeyParam = "kiosk_key"
	LiveTokenParam    = "access_token"
)

// LiveAccess guards the live board upgrades. A caller passes either a
// configured kiosk key or a staff token whose role is one of roles. Unlike
// KioskKey, an empty key list admits nobody by key.
func LiveAccess(secret string, keys []string, roles ...string) fiber.Handler {
	configured := newKioskKeys(keys)
	allowed := newRoleSet(roles)

	return func(c *fiber.Ctx) error {
		if key := c.Query(LiveKioskKeyParam); strings.TrimSpace(key) != "" {
			kioskID, ok := configured.match(key)
			if !ok {
				return utils.SendError(c, fiber.StatusUnauthorized, "invalid kiosk key")
			}
			c.Locals("kiosk_id", kioskID)
			return c.Next()
		}

		raw := strings.TrimSpace(c.Query(LiveTokenParam))
		if raw == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "live credentials missing")
		}

		staff, err := ParseStaffToken(secret, raw)
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
		}
		if !allowed.allows(staff.Role) {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}

		setStaffLocals(c, staff)
		return c.Next()
	}
}
