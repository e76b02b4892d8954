package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/middleware"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/pkg/e"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorTable is checked in order; the first match wins.
var errorTable = []errorMapping{
	{e.ErrAlreadyValidated, fiber.StatusConflict, "ALREADY_VALIDATED"},
	{e.ErrSelfValidation, fiber.StatusForbidden, "SELF_VALIDATION"},
	{e.ErrNotAuthenticated, fiber.StatusUnauthorized, "UNAUTHORIZED"},
	{e.ErrReportClosed, fiber.StatusConflict, "REPORT_CLOSED"},
	{e.ErrInvalidTransition, fiber.StatusConflict, "INVALID_TRANSITION"},
	{e.ErrForbidden, fiber.StatusForbidden, "FORBIDDEN"},
	{e.ErrEmailTaken, fiber.StatusConflict, "EMAIL_TAKEN"},
	{e.ErrInvalidCredentials, fiber.StatusUnauthorized, "INVALID_CREDENTIALS"},
	{e.ErrNotFound, fiber.StatusNotFound, "NOT_FOUND"},
	{e.ErrInvalidInput, fiber.StatusBadRequest, "INVALID_FIELD"},
	{e.ErrConflict, fiber.StatusConflict, "CONFLICT"},
	{e.ErrGeocode, fiber.StatusBadGateway, "GEOCODE_FAILED"},
	{e.ErrDeadline, fiber.StatusGatewayTimeout, "TIMEOUT"},
}

// errorStatus returns the HTTP status, error code and client-facing message
// for err. The message is the matched sentinel's, not the wrapped chain,
// which carries operation names.
func errorStatus(err error) (int, string, string) {
	var ie *e.InputError
	if errors.As(err, &ie) {
		return fiber.StatusBadRequest, "INVALID_FIELD", ie.Error()
	}
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, m.code, m.err.Error()
		}
	}
	return fiber.StatusInternalServerError, "INTERNAL_ERROR", ""
}

// writeError renders err with the standard envelope. Server-side failures
// are logged and replaced by fallback.
func writeError(c fiber.Ctx, err error, fallback string) error {
	status, code, msg := errorStatus(err)
	if status >= fiber.StatusInternalServerError {
		middleware.Logger.Error().Err(err).Str("route", c.Route().Path).Msg(fallback)
		msg = fallback
	}
	return middleware.ErrorResponse(c, status, code, msg)
}
