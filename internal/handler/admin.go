package handler

import (
	"bytes"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/middleware"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/model"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/service"
)

type AdminHandler struct {
	svc *service.AdminService
}

func NewAdminHandler(svc *service.AdminService) *AdminHandler {
	return &AdminHandler{svc: svc}
}

// ChangeStatus handles PUT /api/admin/defects/:id/status
func (h *AdminHandler) ChangeStatus(c fiber.Ctx) error {
	id, errMsg := middleware.ValidateID(c.Params("id"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	var req model.StatusChangeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_BODY", "Invalid request body")
	}
	if msg := middleware.ValidateStruct(&req); msg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", msg)
	}

	report, err := h.svc.ChangeStatus(c.Context(), middleware.UserID(c), id, req.Status)
	if err != nil {
		return writeError(c, err, "Failed to change status")
	}
	return c.JSON(report)
}

// ChangeRole handles PUT /api/admin/users/:id/role
func (h *AdminHandler) ChangeRole(c fiber.Ctx) error {
	id, errMsg := middleware.ValidateID(c.Params("id"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	var req model.RoleChangeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_BODY", "Invalid request body")
	}
	if msg := middleware.ValidateStruct(&req); msg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", msg)
	}

	user, err := h.svc.ChangeRole(c.Context(), middleware.UserID(c), id, req.Role)
	if err != nil {
		return writeError(c, err, "Failed to change role")
	}
	return c.JSON(user)
}

// Export handles GET /api/admin/export
// Streams open defects as CSV, highest priority first.
func (h *AdminHandler) Export(c fiber.Ctx) error {
	var buf bytes.Buffer
	if err := h.svc.Export(c.Context(), middleware.UserID(c), &buf); err != nil {
		return writeError(c, err, "Failed to export defects")
	}

	name := fmt.Sprintf("defects-%s.csv", time.Now().UTC().Format("20060102"))
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, "attachment; filename="+name)
	return c.Send(buf.Bytes())
}
