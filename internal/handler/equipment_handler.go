package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/campusdesk-api/internal/dto"
	"github.com/noah-isme/campusdesk-api/internal/service"
	"github.com/noah-isme/campusdesk-api/internal/utils"
)

// EquipmentHandler wires item type, item and kit endpoints.
type EquipmentHandler struct {
	service service.EquipmentService
	logger  zerolog.Logger
}

// NewEquipmentHandler constructs the handler.
func NewEquipmentHandler(service service.EquipmentService, logger zerolog.Logger) *EquipmentHandler {
	return &EquipmentHandler{
		service: service,
		logger:  logger.With().Str("component", "equipment_handler").Logger(),
	}
}

// Register attaches item and item type routes to the router group.
func (h *EquipmentHandler) Register(router fiber.Router) {
	router.Get("/types", h.listTypes)
	router.Post("/types", h.createType)
	router.Get("", h.listItems)
	router.Post("", h.createItem)
	router.Get("/by-number/:number", h.getItemByNumber)
	router.Get("/:id", h.getItem)
	router.Patch("/:id", h.updateItem)
	router.Put("/:id/repair", h.setRepair)
}

// RegisterKits attaches kit routes to the router group.
func (h *EquipmentHandler) RegisterKits(router fiber.Router) {
	router.Get("", h.listKits)
	router.Post("", h.createKit)
	router.Get("/by-code/:code", h.getKitByCode)
	router.Get("/:id", h.getKit)
	router.Post("/:id/items", h.addKitMember)
	router.Delete("/:id/items/:itemId", h.removeKitMember)
}

func (h *EquipmentHandler) listTypes(c *fiber.Ctx) error {
	types, err := h.service.ListItemTypes(requestContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to list item types")
	}
	return utils.SendSuccess(c, "item types retrieved", types)
}

func (h *EquipmentHandler) createType(c *fiber.Ctx) error {
	var payload dto.ItemTypeCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	itemType, err := h.service.CreateItemType(requestContext(c), payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to create item type")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "item type created", itemType)
}

func (h *EquipmentHandler) listItems(c *fiber.Ctx) error {
	page, pageSize, err := parsePagination(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	itemTypeID, err := parseOptionalUintQuery(c, "item_type_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid item_type_id")
	}

	response, err := h.service.ListItems(requestContext(c), dto.EquipmentListRequest{
		Page:         page,
		PageSize:     pageSize,
		Search:       strings.TrimSpace(c.Query("search")),
		ItemTypeID:   itemTypeID,
		Availability: strings.TrimSpace(c.Query("availability")),
	})
	if err != nil {
		return respondError(c, h.logger, err, "failed to list items")
	}
	return utils.SendSuccess(c, "items retrieved", response)
}

func (h *EquipmentHandler) createItem(c *fiber.Ctx) error {
	var payload dto.EquipmentItemCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	item, err := h.service.CreateItem(requestContext(c), payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to create item")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "item created", item)
}

func (h *EquipmentHandler) getItem(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	item, err := h.service.GetItem(requestContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err, "failed to fetch item")
	}
	return utils.SendSuccess(c, "item retrieved", item)
}

func (h *EquipmentHandler) getItemByNumber(c *fiber.Ctx) error {
	item, err := h.service.GetItemByNumber(requestContext(c), c.Params("number"))
	if err != nil {
		return respondError(c, h.logger, err, "failed to fetch item")
	}
	return utils.SendSuccess(c, "item retrieved", item)
}

func (h *EquipmentHandler) updateItem(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.EquipmentItemUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	item, err := h.service.UpdateItem(requestContext(c), id, payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to update item")
	}
	return utils.SendSuccess(c, "item updated", item)
}

func (h *EquipmentHandler) setRepair(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.EquipmentRepairRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	item, err := h.service.SetRepair(requestContext(c), id, payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to update repair state")
	}
	return utils.SendSuccess(c, "repair state updated", item)
}

func (h *EquipmentHandler) listKits(c *fiber.Ctx) error {
	kits, err := h.service.ListKits(requestContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to list kits")
	}
	return utils.SendSuccess(c, "kits retrieved", kits)
}

func (h *EquipmentHandler) createKit(c *fiber.Ctx) error {
	var payload dto.KitCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	kit, err := h.service.CreateKit(requestContext(c), payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to create kit")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "kit created", kit)
}

func (h *EquipmentHandler) getKit(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	kit, err := h.service.GetKit(requestContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err, "failed to fetch kit")
	}
	return utils.SendSuccess(c, "kit retrieved", kit)
}

func (h *EquipmentHandler) getKitByCode(c *fiber.Ctx) error {
	kit, err := h.service.GetKitByCode(requestContext(c), c.Params("code"))
	if err != nil {
		return respondError(c, h.logger, err, "failed to fetch kit")
	}
	return utils.SendSuccess(c, "kit retrieved", kit)
}

func (h *EquipmentHandler) addKitMember(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.KitMemberRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if strings.TrimSpace(payload.ItemNumber) == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "item_number is required")
	}

	kit, err := h.service.AddKitMember(requestContext(c), id, payload.ItemNumber, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to add kit member")
	}
	return utils.SendSuccess(c, "kit member added", kit)
}

func (h *EquipmentHandler) removeKitMember(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	itemID, err := parseUintParam(c, "itemId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	kit, err := h.service.RemoveKitMember(requestContext(c), id, itemID, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to remove kit member")
	}
	return utils.SendSuccess(c, "kit member removed", kit)
}
