package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/campusdesk-api/internal/dto"
	"github.com/noah-isme/campusdesk-api/internal/service"
	"github.com/noah-isme/campusdesk-api/internal/utils"
)

// LoanHandler wires the equipment desk endpoints.
type LoanHandler struct {
	service service.LoanService
	logger  zerolog.Logger
}

// NewLoanHandler constructs the handler.
func NewLoanHandler(service service.LoanService, logger zerolog.Logger) *LoanHandler {
	return &LoanHandler{
		service: service,
		logger:  logger.With().Str("component", "loan_handler").Logger(),
	}
}

// Register attaches loan routes to the router group.
func (h *LoanHandler) Register(router fiber.Router) {
	router.Post("", h.checkout)
	router.Post("/return", h.returnByNumber)
	router.Get("/student/:idNumber", h.listForStudent)
	router.Get("/:id", h.get)
	router.Post("/:id/return", h.returnLoan)
	router.Patch("/:id/due", h.extend)
}

func (h *LoanHandler) checkout(c *fiber.Ctx) error {
	var payload dto.CheckoutRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	loan, err := h.service.Checkout(requestContext(c), payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to check out")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "loan checked out", loan)
}

func (h *LoanHandler) returnLoan(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ReturnRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
		}
	}

	loan, err := h.service.Return(requestContext(c), id, payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to return loan")
	}
	return utils.SendSuccess(c, "loan returned", loan)
}

func (h *LoanHandler) returnByNumber(c *fiber.Ctx) error {
	var payload dto.ReturnByNumberRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	loan, err := h.service.ReturnByNumber(requestContext(c), payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to return loan")
	}
	return utils.SendSuccess(c, "loan returned", loan)
}

func (h *LoanHandler) extend(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ExtendLoanRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	loan, err := h.service.Extend(requestContext(c), id, payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to extend loan")
	}
	return utils.SendSuccess(c, "loan extended", loan)
}

func (h *LoanHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	loan, err := h.service.Get(requestContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err, "failed to fetch loan")
	}
	return utils.SendSuccess(c, "loan retrieved", loan)
}

func (h *LoanHandler) listForStudent(c *fiber.Ctx) error {
	loans, err := h.service.ListForStudent(requestContext(c), c.Params("idNumber"), c.QueryBool("open", false))
	if err != nil {
		return respondError(c, h.logger, err, "failed to list loans")
	}
	return utils.SendSuccess(c, "loans retrieved", loans)
}
