package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/middleware"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/service"
)

type GeoHandler struct {
	geocoder service.Geocoder
}

func NewGeoHandler(geocoder service.Geocoder) *GeoHandler {
	return &GeoHandler{geocoder: geocoder}
}

// Reverse handles GET /api/geo/reverse?lat=&lon=
func (h *GeoHandler) Reverse(c fiber.Ctx) error {
	if h.geocoder == nil {
		return middleware.ErrorResponse(c, fiber.StatusServiceUnavailable, "UNAVAILABLE", "Geocoding is disabled")
	}
	if fiber.Query[string](c, "lat") == "" || fiber.Query[string](c, "lon") == "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "MISSING_PARAM", "lat and lon query parameters are required")
	}

	lat := fiber.Query[float64](c, "lat")
	lon := fiber.Query[float64](c, "lon")
	if err := service.CheckCoordinates(lat, lon); err != nil {
		return writeError(c, err, "Invalid coordinates")
	}

	addr, err := h.geocoder.ReverseGeocode(c.Context(), lat, lon)
	if err != nil {
		return writeError(c, err, "Failed to resolve address")
	}
	return c.JSON(fiber.Map{"latitude": lat, "longitude": lon, "address": addr})
}
