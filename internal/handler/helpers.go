package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/campusdesk-api/internal/middleware"
	"github.com/noah-isme/campusdesk-api/internal/service"
	"github.com/noah-isme/campusdesk-api/internal/utils"
)

const dateLayout = "2006-01-02"

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func parseUintParam(c *fiber.Ctx, name string) (uint, error) {
	parsed, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || parsed == 0 {
		return 0, errors.New("invalid identifier")
	}
	return uint(parsed), nil
}

func parseOptionalUintQuery(c *fiber.Ctx, key string) (*uint, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return nil, err
	}
	id := uint(parsed)
	return &id, nil
}

// parseTimeQuery accepts RFC 3339 instants or plain dates, which are read as
// midnight in location.
func parseTimeQuery(c *fiber.Ctx, key string, location *time.Location) (*time.Time, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return &parsed, nil
	}
	if location == nil {
		location = time.UTC
	}
	parsed, err := time.ParseInLocation(dateLayout, value, location)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parsePagination(c *fiber.Ctx) (int, int, error) {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return 0, 0, errors.New("invalid page")
	}
	if page <= 0 {
		page = 1
	}

	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return 0, 0, errors.New("invalid page size")
	}
	if pageSize <= 0 {
		pageSize = 20
	} else if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize, nil
}

func userIDFromContext(c *fiber.Ctx) uint {
	if v := c.Locals("user_id"); v != nil {
		if id, ok := v.(uint); ok {
			return id
		}
		if id, ok := v.(int); ok {
			if id < 0 {
				return 0
			}
			return uint(id)
		}
	}
	return 0
}

func userRoleFromContext(c *fiber.Ctx) string {
	if v := c.Locals("user_role"); v != nil {
		if role, ok := v.(string); ok {
			return role
		}
	}
	return ""
}

func activityActorFromContext(c *fiber.Ctx) service.ActivityActor {
	return service.ActivityActor{
		ID:   userIDFromContext(c),
		Role: userRoleFromContext(c),
	}
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.CorrelationIDFrom(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.WithCorrelationID(ctx, middleware.CorrelationIDFrom(c))
}

type fieldViolation struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

type errorMapping struct {
	target error
	status int
	reason string
}

var errorMappings = []errorMapping{
	{service.ErrStudentNotFound, fiber.StatusNotFound, "student_not_found"},
	{service.ErrCourseNotFound, fiber.StatusNotFound, "course_not_found"},
	{service.ErrSessionNotFound, fiber.StatusNotFound, "session_not_found"},
	{service.ErrAttendanceNotFound, fiber.StatusNotFound, "attendance_not_found"},
	{service.ErrItemNotFound, fiber.StatusNotFound, "item_not_found"},
	{service.ErrItemTypeNotFound, fiber.StatusNotFound, "item_type_not_found"},
	{service.ErrKitNotFound, fiber.StatusNotFound, "kit_not_found"},
	{service.ErrLoanNotFound, fiber.StatusNotFound, "loan_not_found"},

	{service.ErrDuplicateStudent, fiber.StatusConflict, "duplicate_student"},
	{service.ErrDuplicateCourse, fiber.StatusConflict, "duplicate_course"},
	{service.ErrDuplicateSession, fiber.StatusConflict, "duplicate_session"},
	{service.ErrDuplicateItemType, fiber.StatusConflict, "duplicate_item_type"},
	{service.ErrDuplicateItem, fiber.StatusConflict, "duplicate_item"},
	{service.ErrDuplicateKit, fiber.StatusConflict, "duplicate_kit"},
	{service.ErrItemUnavailable, fiber.StatusConflict, "item_unavailable"},
	{service.ErrKitMembership, fiber.StatusConflict, "kit_membership"},
	{service.ErrAlreadyReturned, fiber.StatusConflict, "already_returned"},
	{service.ErrNoOpenLoan, fiber.StatusConflict, "no_open_loan"},

	{service.ErrUnknownStudent, fiber.StatusUnprocessableEntity, "unknown_student"},
	{service.ErrNotEnrolled, fiber.StatusUnprocessableEntity, "not_enrolled"},
	{service.ErrSessionClosed, fiber.StatusUnprocessableEntity, "session_closed"},
	{service.ErrInvalidSchedule, fiber.StatusUnprocessableEntity, "invalid_schedule"},
	{service.ErrKitEmpty, fiber.StatusUnprocessableEntity, "kit_empty"},
	{service.ErrEmptyCheckout, fiber.StatusUnprocessableEntity, "empty_checkout"},
	{service.ErrBorrowerInactive, fiber.StatusUnprocessableEntity, "borrower_inactive"},
	{service.ErrInvalidReturnTime, fiber.StatusUnprocessableEntity, "invalid_return_time"},
	{service.ErrInvalidDueDate, fiber.StatusUnprocessableEntity, "invalid_due_date"},
	{service.ErrInvalidImport, fiber.StatusUnprocessableEntity, "invalid_import"},

	{service.ErrUploadTypeNotAllowed, fiber.StatusUnsupportedMediaType, "file_type_not_allowed"},
	{service.ErrUploadTooLarge, fiber.StatusRequestEntityTooLarge, "file_too_large"},
	{service.ErrStorageUnavailable, fiber.StatusServiceUnavailable, "storage_unavailable"},
}

// respondError maps service errors onto HTTP statuses. Anything unmapped is
// logged and answered with 500 and the fallback message.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error, fallback string) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		violations := make([]fieldViolation, 0, len(validationErrors))
		for _, fieldErr := range validationErrors {
			violations = append(violations, fieldViolation{Field: fieldErr.Field(), Rule: fieldErr.Tag()})
		}
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", fiber.Map{"fields": violations})
	}

	var fieldErr *service.FieldError
	if errors.As(err, &fieldErr) {
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", fiber.Map{
			"fields": []fieldViolation{{Field: fieldErr.Field, Rule: fieldErr.Tag}},
		})
	}

	for _, mapping := range errorMappings {
		if !errors.Is(err, mapping.target) {
			continue
		}
		details := fiber.Map{"reason": mapping.reason}

		var unavailable *service.ItemUnavailableError
		if errors.As(err, &unavailable) {
			details["number"] = unavailable.Number
			details["cause"] = unavailable.Reason
		}
		var missing *service.ItemNotFoundError
		if errors.As(err, &missing) {
			details["number"] = missing.Number
		}
		return utils.Fail(c, mapping.status, err.Error(), details)
	}

	requestLogger(logger, c).Error().Err(err).Str("path", c.Path()).Msg(fallback)
	return utils.SendError(c, fiber.StatusInternalServerError, fallback)
}
