package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/config"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/db"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/handler"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/metrics"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/middleware"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/repository"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/router"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/service"
)

func newServeCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return serve(cmd.Context(), cfg, migrate)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "Apply the schema before serving")
	return cmd
}

func serve(parent context.Context, cfg *config.Config, migrate bool) error {
	middleware.InitLogger(cfg.LogLevel, "smartroad-api")

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	if migrate {
		if err := db.Migrate(ctx, pool); err != nil {
			return err
		}
	}

	metrics.Register(pool)

	cache := service.NewCacheService(cfg.RedisURL)
	defer cache.Close()

	// Repositories
	defectRepo := repository.NewDefectRepo(pool)
	validationRepo := repository.NewValidationRepo(pool)
	userRepo := repository.NewUserRepo(pool)
	sessionRepo := repository.NewSessionRepo(cache.Client())

	// Services
	trustSvc := service.NewTrustService()
	scoreSvc := service.NewScoreService()

	var geocoder service.Geocoder
	if cfg.GeocoderURL != "" {
		geocoder = service.NewGeocodeService(cfg.GeocoderURL, cfg.GeocoderRPS, cache)
	}

	authSvc := service.NewAuthService(userRepo, sessionRepo, trustSvc, cfg.JWTSecret, cfg.JWTTTL)
	defectSvc := service.NewDefectService(defectRepo, userRepo, trustSvc, scoreSvc, cache, geocoder)
	validationSvc := service.NewValidationService(validationRepo, userRepo, trustSvc, scoreSvc, cache)
	adminSvc := service.NewAdminService(defectRepo, userRepo, trustSvc, cache, sessionRepo)
	userSvc := service.NewUserService(userRepo)
	syncSvc := service.NewSyncService(defectRepo)

	// Workers
	changeWorker := service.NewChangeWorker(pool, defectRepo, cache, cfg.ChangeBatchWindow)
	rankingWorker := service.NewRankingWorker(defectRepo, cache, cfg.RankingInterval)
	go changeWorker.Start(ctx)
	go rankingWorker.Start(ctx)
	defer rankingWorker.Stop()

	app := fiber.New(fiber.Config{
		AppName:      "SmartRoad Inspector API",
		ServerHeader: "SmartRoad",
	})

	router.Setup(app, &router.Handlers{
		Auth:       handler.NewAuthHandler(authSvc),
		Defect:     handler.NewDefectHandler(defectSvc),
		Validation: handler.NewValidationHandler(validationSvc),
		Admin:      handler.NewAdminHandler(adminSvc),
		User:       handler.NewUserHandler(userSvc),
		Stats:      handler.NewStatsHandler(defectSvc),
		Geo:        handler.NewGeoHandler(geocoder),
		Sync:       handler.NewSyncHandler(syncSvc),
		Health:     handler.NewHealthHandler(pool, cache.Client()),
	}, authSvc, cfg.CORSOrigins)

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Environment).
			Str("version", handler.Version).
			Msg("SmartRoad Inspector API starting")
		errCh <- app.Listen(":"+cfg.Port, fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("captured signal, initiating shutdown")
	if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("shutdown complete")
	return nil
}
