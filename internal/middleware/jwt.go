package middleware

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/campusdesk-api/internal/utils"
)

var (
	errTokenInvalid     = errors.New("invalid token")
	errTokenSubject     = errors.New("token subject invalid")
	errTokenRoleMissing = errors.New("token role missing")
)

// StaffClaims is what CampusDesk reads from a staff token: the numeric user
// id in "sub" and a single role in "role".
type StaffClaims struct {
	UserID uint
	Role   string
}

// ParseStaffToken verifies an HS256 token signed with secret and extracts the
// staff claims. Tokens without a role are rejected.
func ParseStaffToken(secret, raw string) (StaffClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return StaffClaims{}, errTokenInvalid
	}

	userID, err := subjectID(claims["sub"])
	if err != nil {
		return StaffClaims{}, err
	}

	role, _ := claims["role"].(string)
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return StaffClaims{}, errTokenRoleMissing
	}

	return StaffClaims{UserID: userID, Role: role}, nil
}

func subjectID(value interface{}) (uint, error) {
	switch v := value.(type) {
	case string:
		parsed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, errTokenSubject
		}
		return uint(parsed), nil
	case float64:
		if v < 0 || v != float64(uint64(v)) {
			return 0, errTokenSubject
		}
		return uint(v), nil
	default:
		return 0, errTokenSubject
	}
}

// JWTProtected admits requests carrying a valid staff bearer token and stores
// the caller in the "user_id" and "user_role" locals.
func JWTProtected(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authorization := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
		if authorization == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "authorization header missing")
		}

		const bearer = "bearer "
		if len(authorization) <= len(bearer) || !strings.EqualFold(authorization[:len(bearer)], bearer) {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid authorization header")
		}

		staff, err := ParseStaffToken(secret, strings.TrimSpace(authorization[len(bearer):]))
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
		}

		setStaffLocals(c, staff)
		return c.Next()
	}
}

func setStaffLocals(c *fiber.Ctx, staff StaffClaims) {
	c.Locals("user_id", staff.UserID)
	c.Locals("user_role", staff.Role)
}
