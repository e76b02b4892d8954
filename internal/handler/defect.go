package handler

import (
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/middleware"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/model"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/service"
)

type DefectHandler struct {
	svc *service.DefectService
}

func NewDefectHandler(svc *service.DefectService) *DefectHandler {
	return &DefectHandler{svc: svc}
}

// Create handles POST /api/defects
func (h *DefectHandler) Create(c fiber.Ctx) error {
	var req model.CreateDefectRequest
	if err := c.Bind().JSON(&req); err != nil {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_BODY", "Invalid request body")
	}
	if msg := middleware.ValidateStruct(&req); msg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", msg)
	}

	report, err := h.svc.Submit(c.Context(), middleware.UserID(c), &req)
	if err != nil {
		return writeError(c, err, "Failed to submit defect")
	}
	return c.Status(fiber.StatusCreated).JSON(report)
}

// Get handles GET /api/defects/:id
func (h *DefectHandler) Get(c fiber.Ctx) error {
	id, errMsg := middleware.ValidateID(c.Params("id"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	report, err := h.svc.Get(c.Context(), id)
	if err != nil {
		return writeError(c, err, "Failed to fetch defect")
	}
	return c.JSON(report)
}

// List handles GET /api/defects?status=&severity=&type=&sort=&page=&limit=
func (h *DefectHandler) List(c fiber.Ctx) error {
	filter := model.DefectFilter{
		SortBy: fiber.Query[string](c, "sort", model.SortRecent),
		Page:   fiber.Query[int](c, "page", 1),
		Limit:  fiber.Query[int](c, "limit", service.DefaultPageLimit),
	}
	if filter.SortBy != model.SortRecent && filter.SortBy != model.SortPriority {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_PARAM", "sort must be recent or priority")
	}

	for _, s := range splitList(fiber.Query[string](c, "status")) {
		st := model.DefectStatus(s)
		if !model.ValidStatuses[st] {
			return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_PARAM", "unknown status: "+s)
		}
		filter.Statuses = append(filter.Statuses, st)
	}
	for _, s := range splitList(fiber.Query[string](c, "severity")) {
		sv := model.Severity(s)
		if !model.ValidSeverities[sv] {
			return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_PARAM", "unknown severity: "+s)
		}
		filter.Severities = append(filter.Severities, sv)
	}
	for _, s := range splitList(fiber.Query[string](c, "type")) {
		dt := model.DefectType(s)
		if !model.ValidDefectTypes[dt] {
			return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_PARAM", "unknown type: "+s)
		}
		filter.Types = append(filter.Types, dt)
	}

	resp, err := h.svc.List(c.Context(), filter)
	if err != nil {
		return writeError(c, err, "Failed to list defects")
	}
	return c.JSON(resp)
}

// Ranking handles GET /api/defects/ranking?limit=
func (h *DefectHandler) Ranking(c fiber.Ctx) error {
	ranked, err := h.svc.Ranking(c.Context(), fiber.Query[int](c, "limit", service.DefaultPageLimit))
	if err != nil {
		return writeError(c, err, "Failed to fetch ranking")
	}
	return c.JSON(fiber.Map{"defects": ranked})
}

// Resize handles PATCH /api/defects/:id/dimensions
func (h *DefectHandler) Resize(c fiber.Ctx) error {
	id, errMsg := middleware.ValidateID(c.Params("id"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	var req model.ResizeDefectRequest
	if err := c.Bind().JSON(&req); err != nil {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_BODY", "Invalid request body")
	}
	if msg := middleware.ValidateStruct(&req); msg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", msg)
	}

	report, err := h.svc.Resize(c.Context(), middleware.UserID(c), id, &req)
	if err != nil {
		return writeError(c, err, "Failed to update dimensions")
	}
	return c.JSON(report)
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
