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

// CourseHandler wires course, enrollment and session endpoints.
type CourseHandler struct {
	service  service.CourseService
	location *time.Location
	logger   zerolog.Logger
}

// NewCourseHandler constructs the handler. Date-only query values are read in location.
func NewCourseHandler(service service.CourseService, location *time.Location, logger zerolog.Logger) *CourseHandler {
	return &CourseHandler{
		service:  service,
		location: location,
		logger:   logger.With().Str("component", "course_handler").Logger(),
	}
}

// Register attaches course routes to the router group.
func (h *CourseHandler) Register(router fiber.Router) {
	router.Get("", h.listCourses)
	router.Post("", h.createCourse)
	router.Get("/:id", h.getCourse)
	router.Get("/:id/roster", h.roster)
	router.Get("/:id/sessions", h.listCourseSessions)
	router.Post("/:id/enrollments", h.enroll)
	router.Delete("/:id/enrollments/:idNumber", h.withdraw)
}

// RegisterSessions attaches class session routes to the router group.
func (h *CourseHandler) RegisterSessions(router fiber.Router) {
	router.Get("", h.listSessions)
	router.Post("", h.createSession)
	router.Get("/open", h.openSessions)
	router.Get("/:id", h.getSession)
}

func (h *CourseHandler) listCourses(c *fiber.Ctx) error {
	currentOnly := c.QueryBool("current", false)
	courses, err := h.service.ListCourses(requestContext(c), currentOnly)
	if err != nil {
		return respondError(c, h.logger, err, "failed to list courses")
	}
	return utils.SendSuccess(c, "courses retrieved", courses)
}

func (h *CourseHandler) createCourse(c *fiber.Ctx) error {
	var payload dto.CourseCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	course, err := h.service.CreateCourse(requestContext(c), payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to create course")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "course created", course)
}

func (h *CourseHandler) getCourse(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	course, err := h.service.GetCourse(requestContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err, "failed to fetch course")
	}
	return utils.SendSuccess(c, "course retrieved", course)
}

func (h *CourseHandler) roster(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	roster, err := h.service.Roster(requestContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err, "failed to fetch roster")
	}
	return utils.SendSuccess(c, "roster retrieved", roster)
}

func (h *CourseHandler) listCourseSessions(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	return h.sessionsFor(c, &id)
}

func (h *CourseHandler) enroll(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.EnrollmentRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if strings.TrimSpace(payload.IDNumber) == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "id_number is required")
	}

	enrollment, err := h.service.Enroll(requestContext(c), id, payload.IDNumber, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to enroll student")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "student enrolled", enrollment)
}

func (h *CourseHandler) withdraw(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	enrollment, err := h.service.Withdraw(requestContext(c), id, c.Params("idNumber"), activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to withdraw student")
	}
	return utils.SendSuccess(c, "student withdrawn", enrollment)
}

func (h *CourseHandler) listSessions(c *fiber.Ctx) error {
	courseID, err := parseOptionalUintQuery(c, "course_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid course_id")
	}
	return h.sessionsFor(c, courseID)
}

func (h *CourseHandler) sessionsFor(c *fiber.Ctx, courseID *uint) error {
	from, err := parseTimeQuery(c, "from", h.location)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid from")
	}
	to, err := parseTimeQuery(c, "to", h.location)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid to")
	}

	sessions, err := h.service.ListSessions(requestContext(c), courseID, from, to)
	if err != nil {
		return respondError(c, h.logger, err, "failed to list sessions")
	}
	return utils.SendSuccess(c, "sessions retrieved", sessions)
}

func (h *CourseHandler) createSession(c *fiber.Ctx) error {
	var payload dto.SessionCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	session, err := h.service.CreateSession(requestContext(c), payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to create session")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "session created", session)
}

func (h *CourseHandler) openSessions(c *fiber.Ctx) error {
	sessions, err := h.service.OpenSessions(requestContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to list open sessions")
	}
	return utils.SendSuccess(c, "open sessions retrieved", sessions)
}

func (h *CourseHandler) getSession(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	session, err := h.service.GetSession(requestContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err, "failed to fetch session")
	}
	return utils.SendSuccess(c, "session retrieved", session)
}
