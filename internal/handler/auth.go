package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/middleware"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/model"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/service"
)

const sseHeartbeat = 15 * time.Second

type AuthHandler struct {
	svc *service.AuthService
}

func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// SignUp handles POST /api/auth/signup
func (h *AuthHandler) SignUp(c fiber.Ctx) error {
	var req model.SignUpRequest
	if err := c.Bind().JSON(&req); err != nil {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_BODY", "Invalid request body")
	}
	if msg := middleware.ValidateStruct(&req); msg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", msg)
	}

	session, err := h.svc.SignUp(c.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		return writeError(c, err, "Failed to sign up")
	}
	return c.Status(fiber.StatusCreated).JSON(session)
}

// SignIn handles POST /api/auth/signin
func (h *AuthHandler) SignIn(c fiber.Ctx) error {
	var req model.SignInRequest
	if err := c.Bind().JSON(&req); err != nil {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_BODY", "Invalid request body")
	}
	if msg := middleware.ValidateStruct(&req); msg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", msg)
	}

	session, err := h.svc.SignIn(c.Context(), req.Email, req.Password)
	if err != nil {
		return writeError(c, err, "Failed to sign in")
	}
	return c.JSON(session)
}

// SignOut handles POST /api/auth/signout
func (h *AuthHandler) SignOut(c fiber.Ctx) error {
	if err := h.svc.SignOut(c.Context(), middleware.BearerToken(c)); err != nil {
		return writeError(c, err, "Failed to sign out")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Session handles GET /api/auth/session
func (h *AuthHandler) Session(c fiber.Ctx) error {
	session := middleware.CurrentSession(c)
	if session == nil {
		return middleware.ErrorResponse(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "Not authenticated")
	}
	return c.JSON(session)
}

// Events handles GET /api/auth/events
// Streams the caller's session events as server-sent events.
func (h *AuthHandler) Events(c fiber.Ctx) error {
	userID := middleware.UserID(c)

	// The stream outlives the handler call, so it cannot use the request context.
	ctx, cancel := context.WithCancel(context.Background())
	events, err := h.svc.Subscribe(ctx, userID)
	if err != nil {
		cancel()
		middleware.Logger.Warn().Err(err).Msg("auth: session events unavailable")
		return middleware.ErrorResponse(c, fiber.StatusServiceUnavailable, "UNAVAILABLE", "Session events are unavailable")
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		streamSessionEvents(w, events, sseHeartbeat)
	})
}

// streamSessionEvents writes events until the channel closes or the client
// goes away (detected on a failed flush).
func streamSessionEvents(w *bufio.Writer, events <-chan model.SessionEvent, heartbeat time.Duration) {
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			b, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, b)
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}
