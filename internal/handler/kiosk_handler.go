package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/campusdesk-api/internal/dto"
	"github.com/noah-isme/campusdesk-api/internal/service"
	"github.com/noah-isme/campusdesk-api/internal/utils"
)

// KioskHandler serves the barcode sign-in kiosks.
type KioskHandler struct {
	attendance service.AttendanceService
	courses    service.CourseService
	logger     zerolog.Logger
}

// NewKioskHandler constructs the kiosk handler.
func NewKioskHandler(attendance service.AttendanceService, courses service.CourseService, logger zerolog.Logger) *KioskHandler {
	return &KioskHandler{
		attendance: attendance,
		courses:    courses,
		logger:     logger.With().Str("component", "kiosk_handler").Logger(),
	}
}

// Register attaches kiosk routes. Callers guard the group with the kiosk key and rate limit.
func (h *KioskHandler) Register(router fiber.Router) {
	router.Post("/scan", h.scan)
	router.Get("/sessions", h.sessions)
}

func (h *KioskHandler) scan(c *fiber.Ctx) error {
	var payload dto.KioskScanRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	kiosk, _ := c.Locals("kiosk_id").(string)
	result, err := h.attendance.Scan(requestContext(c), payload)
	if err != nil {
		if isScanRejection(err) {
			requestLogger(h.logger, c).Info().Str("kiosk", kiosk).Err(err).Msg("scan rejected")
		}
		return respondError(c, h.logger, err, "failed to record scan")
	}

	if !result.Created {
		return utils.SendSuccess(c, "already signed in", result)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "signed in", result)
}

func (h *KioskHandler) sessions(c *fiber.Ctx) error {
	sessions, err := h.courses.OpenSessions(requestContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to list open sessions")
	}
	return utils.SendSuccess(c, "open sessions retrieved", sessions)
}

func isScanRejection(err error) bool {
	return errors.Is(err, service.ErrUnknownStudent) ||
		errors.Is(err, service.ErrNotEnrolled) ||
		errors.Is(err, service.ErrSessionClosed)
}
