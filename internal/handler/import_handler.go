package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/campusdesk-api/internal/dto"
	"github.com/noah-isme/campusdesk-api/internal/service"
	"github.com/noah-isme/campusdesk-api/internal/utils"
)

// ImportHandler accepts bulk schedule and equipment uploads.
type ImportHandler struct {
	service service.ImportService
	logger  zerolog.Logger
}

// NewImportHandler constructs the handler.
func NewImportHandler(service service.ImportService, logger zerolog.Logger) *ImportHandler {
	return &ImportHandler{
		service: service,
		logger:  logger.With().Str("component", "import_handler").Logger(),
	}
}

// Register attaches import routes to the router group.
func (h *ImportHandler) Register(router fiber.Router) {
	router.Post("/schedule", h.schedule)
	router.Post("/equipment", h.equipment)
}

func (h *ImportHandler) schedule(c *fiber.Ctx) error {
	header, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}
	dryRun := c.QueryBool("dry_run", false) || c.FormValue("dry_run") == "true"

	file, err := header.Open()
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "unable to read file")
	}
	defer file.Close()

	result, err := h.service.ImportSchedule(requestContext(c), file, dryRun, activityActorFromContext(c))
	if err != nil {
		if errors.Is(err, service.ErrInvalidImport) && len(result.Errors) > 0 {
			return utils.Fail(c, fiber.StatusUnprocessableEntity, "schedule has invalid rows", result)
		}
		if errors.Is(err, service.ErrImportIncomplete) {
			requestLogger(h.logger, c).Error().Err(err).Msg("schedule import incomplete")
			return utils.Fail(c, fiber.StatusInternalServerError, "schedule import stopped part way, rerun the file to finish", result)
		}
		return respondError(c, h.logger, err, "failed to import schedule")
	}

	return utils.SendSuccess(c, "schedule imported", result)
}

func (h *ImportHandler) equipment(c *fiber.Ctx) error {
	var payload dto.EquipmentImportRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.service.ImportEquipment(requestContext(c), payload, activityActorFromContext(c))
	if err != nil {
		if errors.Is(err, service.ErrDuplicateItem) && len(result.Duplicates) > 0 {
			return utils.Fail(c, fiber.StatusConflict, "numbers already registered", result)
		}
		return respondError(c, h.logger, err, "failed to import equipment")
	}

	return utils.SendSuccess(c, "equipment imported", result)
}
