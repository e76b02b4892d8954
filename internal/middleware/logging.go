package middleware

import (
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Nueylo/smartroad-inspector-ioqtoe/pkg/hash"
)

// HeaderRequestID carries the per-request correlation id.
const HeaderRequestID = "X-Request-ID"

// Logger is the process-wide logger. InitLogger also installs it as
// zerolog/log's global so services and workers write through it.
var Logger = zerolog.Nop()

// InitLogger configures JSON output at the given level ("debug", "info",
// "warn", "error"; anything else falls back to info).
func InitLogger(level, service string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond
	zerolog.DurationFieldInteger = true

	Logger = zerolog.New(os.Stdout).With().Timestamp().Str("service", service).Logger()
	log.Logger = Logger
}

// idSegments maps a collection segment to the literal children that are
// routes rather than identifiers.
var idSegments = map[string]map[string]bool{
	"defects": {"ranking": true},
	"users":   {"me": true},
}

// RoutePattern replaces report and user ids in path with ":id" so logs
// and metric labels never carry identifiers.
func RoutePattern(path string) string {
	parts := strings.Split(path, "/")
	for i := 1; i < len(parts); i++ {
		literals, ok := idSegments[parts[i-1]]
		if !ok || parts[i] == "" || literals[parts[i]] {
			continue
		}
		parts[i] = ":id"
	}
	return strings.Join(parts, "/")
}

// NewRequestLogger logs one structured line per request. It echoes or
// assigns an X-Request-ID, hashes the client IP and logs the route
// pattern rather than the raw path.
func NewRequestLogger() fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		reqID := c.Get(HeaderRequestID)
		if _, err := uuid.Parse(reqID); err != nil {
			reqID = uuid.NewString()
		}
		c.Set(HeaderRequestID, reqID)

		err := c.Next()

		status := c.Response().StatusCode()
		var evt *zerolog.Event
		switch {
		case status >= 500:
			evt = Logger.Error()
		case status >= 400:
			evt = Logger.Warn()
		default:
			evt = Logger.Info()
		}

		evt.
			Str("request_id", reqID).
			Str("method", c.Method()).
			Str("route", RoutePattern(c.Path())).
			Int("status", status).
			Dur("duration_ms", time.Since(start)).
			Str("ip_hash", hash.Prefix(c.IP(), 12)).
			Int("bytes_sent", len(c.Response().Body())).
			Msg("request")

		return err
	}
}
