package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/campusdesk-api/internal/service"
	"github.com/noah-isme/campusdesk-api/internal/utils"
)

// ReportHandler wires the read-only reporting endpoints.
type ReportHandler struct {
	service  service.ReportService
	location *time.Location
	logger   zerolog.Logger
}

// NewReportHandler constructs the handler. Date-only query values are read in location.
func NewReportHandler(service service.ReportService, location *time.Location, logger zerolog.Logger) *ReportHandler {
	return &ReportHandler{
		service:  service,
		location: location,
		logger:   logger.With().Str("component", "report_handler").Logger(),
	}
}

// Register attaches report routes to the router group.
func (h *ReportHandler) Register(router fiber.Router) {
	router.Get("/sessions/:id/attendance", h.sessionAttendance)
	router.Get("/loans", h.loans)
	router.Get("/penalties", h.penalties)
	router.Get("/not-seen", h.notSeen)
}

func (h *ReportHandler) sessionAttendance(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	report, err := h.service.SessionAttendance(requestContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err, "failed to build attendance report")
	}
	return utils.SendSuccess(c, "session attendance report", report)
}

func (h *ReportHandler) loans(c *fiber.Ctx) error {
	asOf, err := parseTimeQuery(c, "as_of", h.location)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid as_of")
	}
	at := time.Time{}
	if asOf != nil {
		at = *asOf
	}

	report, err := h.service.Loans(requestContext(c), at, c.QueryBool("overdue", false))
	if err != nil {
		return respondError(c, h.logger, err, "failed to build loan report")
	}
	return utils.SendSuccess(c, "loan report", report)
}

func (h *ReportHandler) penalties(c *fiber.Ctx) error {
	from, err := parseTimeQuery(c, "from", h.location)
	if err != nil || from == nil {
		return utils.SendError(c, fiber.StatusBadRequest, "from is required")
	}
	to, err := parseTimeQuery(c, "to", h.location)
	if err != nil || to == nil {
		return utils.SendError(c, fiber.StatusBadRequest, "to is required")
	}

	report, err := h.service.PenaltySummary(requestContext(c), *from, *to)
	if err != nil {
		return respondError(c, h.logger, err, "failed to build penalty report")
	}
	return utils.SendSuccess(c, "penalty summary", report)
}

func (h *ReportHandler) notSeen(c *fiber.Ctx) error {
	since, err := parseTimeQuery(c, "since", h.location)
	if err != nil || since == nil {
		return utils.SendError(c, fiber.StatusBadRequest, "since is required")
	}

	report, err := h.service.NotSeen(requestContext(c), *since)
	if err != nil {
		return respondError(c, h.logger, err, "failed to build not-seen report")
	}
	return utils.SendSuccess(c, "students not seen", report)
}
