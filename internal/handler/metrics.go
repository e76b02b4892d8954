package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/metrics"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/middleware"
)

// MetricsMiddleware records request duration and in-flight count for
// Prometheus, labelled by route pattern. /metrics itself is not recorded.
func MetricsMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		if c.Path() == "/metrics" {
			return c.Next()
		}

		// Fiber's path and method alias the fasthttp buffer, which
		// fasthttpadaptor may overwrite; copy them before c.Next().
		endpoint := middleware.RoutePattern(string([]byte(c.Path())))
		method := string([]byte(c.Method()))

		metrics.RequestsInFlight.Inc()
		defer metrics.RequestsInFlight.Dec()
		start := time.Now()

		err := c.Next()

		metrics.RequestDuration.
			WithLabelValues(endpoint, method, strconv.Itoa(responseStatus(c, err))).
			Observe(time.Since(start).Seconds())
		return err
	}
}

// responseStatus is the status the client will see. An error still
// propagating has not reached the app's error handler yet.
func responseStatus(c fiber.Ctx, err error) int {
	if err == nil {
		return c.Response().StatusCode()
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}

// MetricsHandler serves the Prometheus /metrics endpoint via Fiber.
func MetricsHandler() fiber.Handler {
	httpHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	return func(c fiber.Ctx) error {
		httpHandler(c.RequestCtx())
		return nil
	}
}
