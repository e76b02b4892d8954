package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/model"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/pkg/e"
)

type localKey int

const (
	localUserID localKey = iota
	localRole
	localSession
)

// SessionVerifier resolves a bearer token into a session.
type SessionVerifier interface {
	CurrentSession(ctx context.Context, token string) (*model.Session, error)
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(c fiber.Ctx) string {
	h := c.Get(fiber.HeaderAuthorization)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// RequireAuth rejects requests without a valid session and stores the
// caller's identity in the request locals.
func RequireAuth(v SessionVerifier) fiber.Handler {
	return func(c fiber.Ctx) error {
		token := BearerToken(c)
		if token == "" {
			return ErrorResponse(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "Missing bearer token")
		}

		session, err := v.CurrentSession(c.Context(), token)
		if err != nil {
			if errors.Is(err, e.ErrNotAuthenticated) {
				return ErrorResponse(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired session")
			}
			Logger.Error().Err(err).Msg("auth: session lookup failed")
			return ErrorResponse(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		}

		c.Locals(localUserID, session.UserID)
		c.Locals(localRole, session.Role)
		c.Locals(localSession, session)
		return c.Next()
	}
}

// UserID returns the authenticated user's ID, or "" when anonymous.
func UserID(c fiber.Ctx) string {
	id, _ := c.Locals(localUserID).(string)
	return id
}

// Role returns the role carried by the caller's session.
func Role(c fiber.Ctx) model.Role {
	role, _ := c.Locals(localRole).(model.Role)
	return role
}

// CurrentSession returns the caller's session, or nil when anonymous.
func CurrentSession(c fiber.Ctx) *model.Session {
	s, _ := c.Locals(localSession).(*model.Session)
	return s
}
