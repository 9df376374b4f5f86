package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/campusdesk-api/internal/config"
	"github.com/noah-isme/campusdesk-api/internal/handler"
	"github.com/noah-isme/campusdesk-api/internal/middleware"
	"github.com/noah-isme/campusdesk-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	StudentHandler    *handler.StudentHandler
	CourseHandler     *handler.CourseHandler
	AttendanceHandler *handler.AttendanceHandler
	KioskHandler      *handler.KioskHandler
	EquipmentHandler  *handler.EquipmentHandler
	LoanHandler       *handler.LoanHandler
	ReportHandler     *handler.ReportHandler
	ImportHandler     *handler.ImportHandler
	ActivityHandler   *handler.ActivityHandler
	LiveHandler       *handler.LiveHandler
	HealthChecks      map[string]handler.HealthCheckFunc
	JWTMiddleware     fiber.Handler
	KioskMiddleware   fiber.Handler
	LiveMiddleware    fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthChecks))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = middleware.JWTProtected(cfg.JWTSecret)
	}
	kioskMiddleware := deps.KioskMiddleware
	if kioskMiddleware == nil {
		kioskMiddleware = middleware.KioskKey(cfg.KioskKeys)
	}

	liveMiddleware := deps.LiveMiddleware
	if liveMiddleware == nil {
		liveMiddleware = middleware.LiveAccess(cfg.JWTSecret, cfg.KioskKeys, "staff", "admin")
	}

	if deps.KioskHandler != nil {
		window := cfg.KioskRateWindow
		if window <= 0 {
			window = time.Minute
		}
		kiosk := api.Group("/kiosk", kioskMiddleware, middleware.RateLimit("kiosk", cfg.KioskRateLimit, window))
		deps.KioskHandler.Register(kiosk)
	}

	if deps.LiveHandler != nil {
		deps.LiveHandler.Register(api.Group("/live", liveMiddleware))
	}

	staff := middleware.RequireRole("staff", "admin")

	if deps.StudentHandler != nil {
		deps.StudentHandler.Register(api.Group("/students", jwtMiddleware, staff))
	}

	if deps.CourseHandler != nil {
		deps.CourseHandler.Register(api.Group("/courses", jwtMiddleware, staff))
		deps.CourseHandler.RegisterSessions(api.Group("/sessions", jwtMiddleware, staff))
	}

	if deps.AttendanceHandler != nil {
		deps.AttendanceHandler.Register(api.Group("/attendance", jwtMiddleware, staff))
	}

	if deps.EquipmentHandler != nil {
		deps.EquipmentHandler.Register(api.Group("/equipment", jwtMiddleware, staff))
		deps.EquipmentHandler.RegisterKits(api.Group("/kits", jwtMiddleware, staff))
	}

	if deps.LoanHandler != nil {
		deps.LoanHandler.Register(api.Group("/loans", jwtMiddleware, staff))
	}

	if deps.ReportHandler != nil {
		deps.ReportHandler.Register(api.Group("/reports", jwtMiddleware, staff))
	}

	if deps.ImportHandler != nil {
		deps.ImportHandler.Register(api.Group("/imports", jwtMiddleware, staff))
	}

	if deps.ActivityHandler != nil {
		deps.ActivityHandler.Register(api.Group("/admin/activity", jwtMiddleware, middleware.RequireRole("admin")))
	}
}
