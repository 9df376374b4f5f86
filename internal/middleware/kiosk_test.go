package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func newKioskApp(keys []string, limit int) *fiber.App {
	app := fiber.New()
	app.Use(KioskKey(keys))
	if limit > 0 {
		app.Use(RateLimit("kiosk", limit, time.Minute))
	}
	app.Post("/scan", func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("kiosk_id").(string))
	})
	return app
}

func TestKioskKeyAcceptsConfiguredKey(t *testing.T) {
	app := newKioskApp([]string{"front-desk", "lab-2"}, 0)

	req := httptest.NewRequest(http.MethodPost, "/scan", nil)
	req.Header.Set(KioskKeyHeader, "lab-2")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestKioskKeyRejectsMissingOrUnknownKey(t *testing.T) {
	app := newKioskApp([]string{"front-desk"}, 0)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/scan", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(http.MethodPost, "/scan", nil)
	req.Header.Set(KioskKeyHeader, "guess")
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestKioskKeyOpenWhenUnconfigured(t *testing.T) {
	app := newKioskApp(nil, 0)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/scan", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRateLimitPerKiosk(t *testing.T) {
	app := newKioskApp([]string{"front-desk", "lab-2"}, 2)

	send := func(key string) int {
		req := httptest.NewRequest(http.MethodPost, "/scan", nil)
		req.Header.Set(KioskKeyHeader, key)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	require.Equal(t, fiber.StatusOK, send("front-desk"))
	require.Equal(t, fiber.StatusOK, send("front-desk"))
	require.Equal(t, fiber.StatusTooManyRequests, send("front-desk"))
	require.Equal(t, fiber.StatusOK, send("lab-2"))
}
