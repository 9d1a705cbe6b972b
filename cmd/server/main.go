package main

import (
	"log/slog"
	"os"

	"github.com/exametrics/normalization-service/internal/cache"
	"github.com/exametrics/normalization-service/internal/config"
	"github.com/exametrics/normalization-service/internal/handlers"
	"github.com/exametrics/normalization-service/internal/models"
	"github.com/exametrics/normalization-service/internal/repositories/postgres"
	"github.com/exametrics/normalization-service/internal/services"
	"github.com/exametrics/normalization-service/internal/utils"
	"github.com/exametrics/normalization-service/pkg"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	var slogger *slog.Logger
	if cfg.Environment == "production" {
		slogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	} else {
		slogger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
	logger := utils.NewSlogLogger(slogger)

	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		slogger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := db.AutoMigrate(
		&models.Exam{},
		&models.Shift{},
		&models.Submission{},
		&models.Cutoff{},
		&models.JobRun{},
	); err != nil {
		slogger.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	redisClient, err := pkg.NewRedisClient(cfg)
	if err != nil {
		slogger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	cacheService := cache.NewRedisCache(redisClient, slogger)

	publisher, err := cfg.Events.CreateEventPublisher(slogger)
	if err != nil {
		slogger.Error("Failed to create event publisher", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			slogger.Error("Failed to close event publisher", "error", err)
		}
	}()

	repo := postgres.NewRepository(db)
	validator := utils.NewValidator()

	serviceManager := services.NewServiceManager(
		repo,
		cacheService,
		publisher,
		slogger,
		validator,
		cfg.BatchSize,
	)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.LoggerMiddleware(logger))
	router.Use(utils.ContextLogger(logger))

	handlerManager := handlers.NewHandlerManager(serviceManager, validator, logger)
	handlerManager.SetupRoutes(router)

	slogger.Info("Starting normalization service", "port", cfg.Port, "environment", cfg.Environment)
	if err := router.Run(":" + cfg.Port); err != nil {
		slogger.Error("Server terminated", "error", err)
		os.Exit(1)
	}
}
