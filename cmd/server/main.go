package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ascholar/testing-service/internal/cache"
	"github.com/ascholar/testing-service/internal/config"
	"github.com/ascholar/testing-service/internal/export"
	"github.com/ascholar/testing-service/internal/handlers"
	"github.com/ascholar/testing-service/internal/ratelimit"
	"github.com/ascholar/testing-service/internal/repositories/postgres"
	"github.com/ascholar/testing-service/internal/scoring"
	"github.com/ascholar/testing-service/internal/services"
	"github.com/ascholar/testing-service/internal/utils"
	"github.com/ascholar/testing-service/pkg"
	"github.com/gin-gonic/gin"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := pkg.AutoMigrate(db); err != nil {
		logger.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	redisClient, err := pkg.NewRedisClient(cfg)
	if err != nil {
		logger.Error("Failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	publisher, err := cfg.Events.CreateEventPublisher(logger)
	if err != nil {
		logger.Error("Failed to create event publisher", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	repo := postgres.NewRepository(db)
	limiter := ratelimit.NewRedisLimiter(redisClient, cfg.RateLimitWindow, cfg.RateLimitMax, logger)
	cacheService := cache.NewRedisCache(redisClient, logger)
	validator := utils.NewValidator()

	engine := services.NewAttemptEngine(
		repo,
		scoring.NewBinaryScorer(),
		limiter,
		cacheService,
		services.NewMockPaymentProvider(logger),
		services.NewEventNotifier(publisher),
		services.NewEventAuditRecorder(publisher),
		services.NewRepoEligibilityChecker(repo),
		services.NewSystemClock(),
		services.EngineConfig{
			HighPerformerThreshold: cfg.HighPerformerThreshold,
			AttemptCacheTTL:        cfg.AttemptCacheTTL,
		},
		logger,
		validator,
	)

	sweeper := services.NewExpirySweeper(
		repo,
		engine,
		services.NewEventAuditRecorder(publisher),
		services.NewSystemClock(),
		cfg.SweepInterval,
		logger,
	)

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go sweeper.Run(sweepCtx)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	exporter := export.NewResultsExporter(repo, logger)
	handlers.NewHandlerManager(engine, exporter, logger).SetupRoutes(router)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Server listening", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	stopSweeper()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Forced shutdown", "error", err)
	}
}
