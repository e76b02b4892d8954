package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/middleware"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/service"
)

type UserHandler struct {
	svc *service.UserService
}

func NewUserHandler(svc *service.UserService) *UserHandler {
	return &UserHandler{svc: svc}
}

// Me handles GET /api/users/me
func (h *UserHandler) Me(c fiber.Ctx) error {
	resp, err := h.svc.Profile(c.Context(), middleware.UserID(c))
	if err != nil {
		return writeError(c, err, "Failed to fetch user")
	}
	return c.JSON(resp)
}

// GetByID handles GET /api/users/:id
func (h *UserHandler) GetByID(c fiber.Ctx) error {
	id, errMsg := middleware.ValidateID(c.Params("id"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	resp, err := h.svc.Profile(c.Context(), id)
	if err != nil {
		return writeError(c, err, "Failed to fetch user")
	}
	return c.JSON(resp)
}
