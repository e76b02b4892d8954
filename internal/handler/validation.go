package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/middleware"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/service"
)

type ValidationHandler struct {
	svc *service.ValidationService
}

func NewValidationHandler(svc *service.ValidationService) *ValidationHandler {
	return &ValidationHandler{svc: svc}
}

// Validate handles POST /api/defects/:id/validations
func (h *ValidationHandler) Validate(c fiber.Ctx) error {
	id, errMsg := middleware.ValidateID(c.Params("id"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	resp, err := h.svc.Validate(c.Context(), id, middleware.UserID(c))
	if err != nil {
		return writeError(c, err, "Failed to validate defect")
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// List handles GET /api/defects/:id/validations
func (h *ValidationHandler) List(c fiber.Ctx) error {
	id, errMsg := middleware.ValidateID(c.Params("id"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	validations, err := h.svc.ListValidations(c.Context(), id)
	if err != nil {
		return writeError(c, err, "Failed to list validations")
	}
	return c.JSON(fiber.Map{"validations": validations})
}
