package handler

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/campusdesk-api/internal/dto"
	"github.com/noah-isme/campusdesk-api/internal/service"
	"github.com/noah-isme/campusdesk-api/internal/utils"
)

// AttendanceHandler wires staff attendance endpoints.
type AttendanceHandler struct {
	service  service.AttendanceService
	location *time.Location
	logger   zerolog.Logger
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(service service.AttendanceService, location *time.Location, logger zerolog.Logger) *AttendanceHandler {
	return &AttendanceHandler{
		service:  service,
		location: location,
		logger:   logger.With().Str("component", "attendance_handler").Logger(),
	}
}

// Register attaches attendance routes to the router group.
func (h *AttendanceHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Post("/manual", h.manual)
	router.Get("/:id", h.get)
	router.Patch("/:id", h.correct)
}

// list answers either ?session_id= or ?id_number= with optional from/to.
func (h *AttendanceHandler) list(c *fiber.Ctx) error {
	sessionID, err := parseOptionalUintQuery(c, "session_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid session_id")
	}
	if sessionID != nil {
		records, err := h.service.ListForSession(requestContext(c), *sessionID)
		if err != nil {
			return respondError(c, h.logger, err, "failed to list attendance")
		}
		return utils.SendSuccess(c, "attendance retrieved", records)
	}

	idNumber := strings.TrimSpace(c.Query("id_number"))
	if idNumber == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "session_id or id_number is required")
	}
	from, err := parseTimeQuery(c, "from", h.location)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid from")
	}
	to, err := parseTimeQuery(c, "to", h.location)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid to")
	}

	records, err := h.service.ListForStudent(requestContext(c), idNumber, from, to)
	if err != nil {
		return respondError(c, h.logger, err, "failed to list attendance")
	}
	return utils.SendSuccess(c, "attendance retrieved", records)
}

func (h *AttendanceHandler) manual(c *fiber.Ctx) error {
	var payload dto.ManualAttendanceRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	results, err := h.service.RecordManual(requestContext(c), payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to record attendance")
	}
	return utils.SendSuccess(c, "attendance processed", results)
}

func (h *AttendanceHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	record, err := h.service.Get(requestContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err, "failed to fetch attendance")
	}
	return utils.SendSuccess(c, "attendance retrieved", record)
}

func (h *AttendanceHandler) correct(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.AttendanceCorrectionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	record, err := h.service.Correct(requestContext(c), id, payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to correct attendance")
	}
	return utils.SendSuccess(c, "attendance corrected", record)
}
