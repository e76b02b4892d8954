package handler

import (
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/middleware"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/service"
)

// clockSkew tolerates clients whose clock runs slightly ahead of ours.
const clockSkew = time.Minute

type SyncHandler struct {
	svc *service.SyncService
	now func() time.Time
}

func NewSyncHandler(svc *service.SyncService) *SyncHandler {
	return &SyncHandler{svc: svc, now: time.Now}
}

// DeltaSync handles GET /api/sync/delta?since=RFC3339.
// Clients pass back the syncTimestamp of their previous response.
func (h *SyncHandler) DeltaSync(c fiber.Ctx) error {
	since, err := h.parseSince(fiber.Query[string](c, "since"))
	if err != nil {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_PARAM", err.Error())
	}

	resp, err := h.svc.DeltaSync(c.Context(), since)
	if err != nil {
		return writeError(c, err, "Failed to fetch delta sync")
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.JSON(resp)
}

type paramError string

func (p paramError) Error() string { return string(p) }

func (h *SyncHandler) parseSince(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, paramError("since query parameter is required (RFC3339 timestamp)")
	}
	since, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, paramError("since must be a valid RFC3339 timestamp")
	}
	if since.After(h.now().Add(clockSkew)) {
		return time.Time{}, paramError("since must not be in the future")
	}
	return since, nil
}
