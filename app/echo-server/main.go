package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"pawgram/app/echo-server/router"
	"pawgram/business/feature"
	"pawgram/business/timeline"
	psqlRepo "pawgram/internal/repository/postgres"
	redisRepo "pawgram/internal/repository/redis"
	s3Repo "pawgram/internal/repository/s3"
	"pawgram/internal/rest"
	"pawgram/pkg/config"
	"pawgram/pkg/database"
	redisclient "pawgram/pkg/database/redis"
	"pawgram/pkg/logger"
	"pawgram/pkg/metrics"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
)

const timelineCacheTTL = 2 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.App.Environment)
	logger.Info("Starting Pawgram Recommend API", "version", cfg.App.Version)

	db, err := database.InitPostgres(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}

	logger.Info("Database connected successfully")

	// Init metrics
	metrics.Init()

	// Init timeline cache, optional: serving works without Redis
	var cache timeline.Cache
	redisClient, err := redisclient.NewRedisClient(cfg)
	if err != nil {
		logger.Warn("Redis unavailable, serving without timeline cache", "error", err)
	} else {
		cache = redisRepo.NewTimelineCache(redisClient, timelineCacheTTL)
		defer redisclient.CloseRedisClient(redisClient)
	}

	// Init model store
	var modelStore timeline.ModelStore
	if !cfg.S3.Disabled {
		store, err := s3Repo.NewModelRepository(context.Background(), cfg)
		if err != nil {
			logger.Fatal("Failed to init model store", "error", err)
		}
		modelStore = store
	}

	// Init repo
	userRepo := psqlRepo.NewUserRepository(db)
	postRepo := psqlRepo.NewPostRepository(db)

	// Load the initial snapshot. A missing local checkpoint is not
	// fatal: the first /model/reload brings one in.
	holder := timeline.NewHolder(nil)
	if snap, err := timeline.NewSnapshotFromFile(cfg.Model.LocalPath); err != nil {
		logger.Warn("No local model loaded at startup", "path", cfg.Model.LocalPath, "error", err)
	} else {
		holder.Swap(snap)
		logger.Info("Model loaded", "source", snap.Source, "num_users", snap.NumUsers)
	}

	// Init service
	timelineService := timeline.NewService(holder, userRepo, postRepo, cache, modelStore, cfg.Model.LocalPath, 100)
	featureService := feature.NewService(postRepo, 768)

	// Init handler
	timelineHandler := rest.NewTimelineHandler(timelineService)
	featureHandler := rest.NewFeatureHandler(featureService)
	healthHandler := rest.NewHealthHandler()

	// Init echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: []string{"http://localhost:3000", "http://localhost:8080"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	// Setup routes
	api := e.Group("/api/v1")
	router.SetupTimelineRoutes(api, timelineHandler)
	router.SetupFeatureRoutes(api, featureHandler)
	router.SetupSystemRoutes(e, healthHandler)

	// Goroutine server
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		logger.Info("Server starting", "address", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown server
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Server stopped")
}
