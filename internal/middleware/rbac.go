package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/campusdesk-api/internal/utils"
)

type roleSet map[string]struct{}

func newRoleSet(roles []string) roleSet {
	set := make(roleSet, len(roles))
	for _, role := range roles {
		if normalized := strings.ToLower(strings.TrimSpace(role)); normalized != "" {
			set[normalized] = struct{}{}
		}
	}
	return set
}

func (s roleSet) allows(role string) bool {
	_, ok := s[role]
	return ok
}

// RequireRole runs after JWTProtected and answers 403 unless the caller's
// role is one of roles.
func RequireRole(roles ...string) fiber.Handler {
	allowed := newRoleSet(roles)

	return func(c *fiber.Ctx) error {
		role, _ := c.Locals("user_role").(string)
		if !allowed.allows(role) {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}
