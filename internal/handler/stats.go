package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/service"
)

type StatsHandler struct {
	svc *service.DefectService
}

func NewStatsHandler(svc *service.DefectService) *StatsHandler {
	return &StatsHandler{svc: svc}
}

// GetStats handles GET /api/stats. Counters may lag by up to
// service.StatsCacheTTL, which is advertised to HTTP caches as well.
func (h *StatsHandler) GetStats(c fiber.Ctx) error {
	stats, err := h.svc.Stats(c.Context())
	if err != nil {
		return writeError(c, err, "Failed to fetch stats")
	}
	maxAge := int(service.StatsCacheTTL.Seconds())
	c.Set(fiber.HeaderCacheControl, "public, max-age="+strconv.Itoa(maxAge))
	return c.JSON(stats)
}
