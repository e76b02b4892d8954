package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
)

const corsMaxAge = 24 * 60 * 60

// NewCORS returns a CORS middleware for the mobile and web clients.
// corsOrigins is a comma-separated origin list; empty or "*" allows any
// origin. Credentials are only allowed for an explicit list.
func NewCORS(corsOrigins string) fiber.Handler {
	origins := parseOrigins(corsOrigins)
	wildcard := len(origins) == 1 && origins[0] == "*"

	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowCredentials: !wildcard,
		AllowMethods: []string{
			fiber.MethodGet,
			fiber.MethodPost,
			fiber.MethodPut,
			fiber.MethodPatch,
			fiber.MethodOptions,
		},
		AllowHeaders: []string{
			fiber.HeaderOrigin,
			fiber.HeaderContentType,
			fiber.HeaderAccept,
			fiber.HeaderAuthorization,
			HeaderRequestID,
		},
		ExposeHeaders: []string{
			"X-RateLimit-Limit",
			"X-RateLimit-Remaining",
			"X-RateLimit-Reset",
			fiber.HeaderRetryAfter,
			fiber.HeaderContentDisposition,
			HeaderRequestID,
		},
		MaxAge: corsMaxAge,
	})
}

// parseOrigins splits a comma-separated list, trimming blanks and trailing
// slashes and dropping duplicates. Any "*" entry collapses the list to "*".
func parseOrigins(raw string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, o := range strings.Split(raw, ",") {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" || seen[o] {
			continue
		}
		if o == "*" {
			return []string{"*"}
		}
		seen[o] = true
		out = append(out, o)
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
