package router

import (
	"github.com/gofiber/fiber/v3"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"

	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/handler"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/middleware"
)

// Handlers holds all handler instances needed by the router.
type Handlers struct {
	Auth       *handler.AuthHandler
	Defect     *handler.DefectHandler
	Validation *handler.ValidationHandler
	Admin      *handler.AdminHandler
	User       *handler.UserHandler
	Stats      *handler.StatsHandler
	Geo        *handler.GeoHandler
	Sync       *handler.SyncHandler
	Health     *handler.HealthHandler
}

// Setup configures the middleware stack and all API routes on the given Fiber app.
func Setup(app *fiber.App, h *Handlers, sessions middleware.SessionVerifier, corsOrigins string) {
	// Middleware stack (order matters)
	app.Use(recoverer.New())
	app.Use(middleware.NewRequestLogger())
	app.Use(middleware.NewCORS(corsOrigins))
	app.Use(handler.MetricsMiddleware())

	app.Get("/metrics", handler.MetricsHandler())
	if h.Health != nil {
		app.Get("/health/live", h.Health.Live)
		app.Get("/health/ready", h.Health.Ready)
	}

	auth := middleware.RequireAuth(sessions)

	read := middleware.NewReadRateLimiter().Handler()
	submit := middleware.NewSubmitRateLimiter().Handler()
	validate := middleware.NewValidateRateLimiter().Handler()
	authLimit := middleware.NewAuthRateLimiter().Handler()
	geo := middleware.NewGeoRateLimiter().Handler()
	syncLimit := middleware.NewSyncRateLimiter().Handler()
	stats := middleware.NewStatsRateLimiter().Handler()
	export := middleware.NewExportRateLimiter().Handler()

	api := app.Group("/api")

	// Auth routes
	api.Post("/auth/signup", authLimit, h.Auth.SignUp)
	api.Post("/auth/signin", authLimit, h.Auth.SignIn)
	api.Post("/auth/signout", auth, h.Auth.SignOut)
	api.Get("/auth/session", auth, h.Auth.Session)
	api.Get("/auth/events", auth, h.Auth.Events)

	// Defect routes
	api.Get("/defects", read, h.Defect.List)
	api.Get("/defects/ranking", read, h.Defect.Ranking)
	api.Get("/defects/:id", read, h.Defect.Get)
	api.Post("/defects", auth, submit, h.Defect.Create)
	api.Patch("/defects/:id/dimensions", auth, submit, h.Defect.Resize)

	// Validation routes
	api.Get("/defects/:id/validations", read, h.Validation.List)
	api.Post("/defects/:id/validations", auth, validate, h.Validation.Validate)

	// Admin routes
	admin := api.Group("/admin", auth)
	admin.Put("/defects/:id/status", h.Admin.ChangeStatus)
	admin.Put("/users/:id/role", h.Admin.ChangeRole)
	admin.Get("/export", export, h.Admin.Export)

	// User routes
	api.Get("/users/me", auth, h.User.Me)
	api.Get("/users/:id", read, h.User.GetByID)

	// Stats, geo and sync routes
	api.Get("/stats", stats, h.Stats.GetStats)
	api.Get("/geo/reverse", auth, geo, h.Geo.Reverse)
	api.Get("/sync/delta", syncLimit, h.Sync.DeltaSync)
}
