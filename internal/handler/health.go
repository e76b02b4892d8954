package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Version is reported by the readiness check; overridden at build time.
var Version = "dev"

const readyTimeout = 3 * time.Second

// dependency is one readiness check. A failing required dependency makes
// the instance unready; an optional one only degrades it.
type dependency struct {
	name     string
	required bool
	ping     func(ctx context.Context) error // nil when not configured
}

type dependencyStatus struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

type HealthHandler struct {
	deps    []dependency
	startAt time.Time
}

// NewHealthHandler checks Postgres (required) and Redis (optional; a nil
// client reports "disabled").
func NewHealthHandler(pool *pgxpool.Pool, rdb *redis.Client) *HealthHandler {
	db := dependency{name: "database", required: true}
	if pool != nil {
		db.ping = pool.Ping
	}
	cache := dependency{name: "redis"}
	if rdb != nil {
		cache.ping = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	return &HealthHandler{
		deps:    []dependency{db, cache},
		startAt: time.Now(),
	}
}

// Live handles GET /health/live (liveness check).
func (h *HealthHandler) Live(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Ready handles GET /health/ready (readiness with dependency checks).
func (h *HealthHandler) Ready(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), readyTimeout)
	defer cancel()

	overall := "healthy"
	checks := make(map[string]dependencyStatus, len(h.deps))
	for _, d := range h.deps {
		st := check(ctx, d)
		checks[d.name] = st
		switch {
		case st.Status == "up" || st.Status == "disabled":
		case d.required:
			overall = "unhealthy"
		case overall == "healthy":
			overall = "degraded"
		}
	}

	status := fiber.StatusOK
	if overall == "unhealthy" {
		status = fiber.StatusServiceUnavailable
	}

	return c.Status(status).JSON(fiber.Map{
		"status":         overall,
		"checks":         checks,
		"uptime_seconds": int(time.Since(h.startAt).Seconds()),
		"version":        Version,
	})
}

func check(ctx context.Context, d dependency) dependencyStatus {
	if d.ping == nil {
		if d.required {
			return dependencyStatus{Status: "down", Error: "not configured"}
		}
		return dependencyStatus{Status: "disabled"}
	}

	start := time.Now()
	err := d.ping(ctx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return dependencyStatus{Status: "down", LatencyMs: latency, Error: "connection failed"}
	}
	return dependencyStatus{Status: "up", LatencyMs: latency}
}
