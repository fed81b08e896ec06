package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jstittsworth/cricket-optimizer/internal/api"
	"github.com/jstittsworth/cricket-optimizer/internal/optimizer"
	"github.com/jstittsworth/cricket-optimizer/internal/services"
	"github.com/jstittsworth/cricket-optimizer/internal/solver"
	"github.com/jstittsworth/cricket-optimizer/internal/store"
	"github.com/jstittsworth/cricket-optimizer/pkg/config"
	"github.com/jstittsworth/cricket-optimizer/pkg/database"
	"github.com/jstittsworth/cricket-optimizer/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.GetLogger().Fatalf("Failed to load config: %v", err)
	}

	// Setup logging
	log := logger.InitLogger(cfg.LogLevel, cfg.IsDevelopment())
	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	serviceLog := logger.WithService("cricket-optimizer")

	// Connect to database. The service keeps running on the CSV file when the
	// database is unreachable.
	var (
		db        *database.DB
		gormStore *store.GormStore
	)
	if cfg.DatabaseURL != "" {
		db, err = database.NewConnection(cfg.DatabaseURL, cfg.IsDevelopment())
		if err != nil {
			serviceLog.WithError(err).Warn("Database unavailable, serving players from CSV")
		} else {
			defer db.Close()
			if err := db.Migrate(); err != nil {
				log.Fatalf("Failed to run migrations: %v", err)
			}
			gormStore = store.NewGormStore(db)
		}
	}
	playerStore := store.NewFallbackStore(gormStore, store.NewCSVStore(cfg.PlayersCSV), cfg.AutoSync, logger.WithComponent("player_store"))

	// Result cache: Redis when configured, otherwise in memory
	var (
		cacheService *services.CacheService
		resultCache  services.ResultCache
	)
	if cfg.CacheEnabled {
		resultCache = services.NewMemoryResultCache(512)
		if cfg.RedisURL != "" {
			redisClient, err := services.NewRedisClient(cfg.RedisURL)
			if err != nil {
				log.Fatalf("Failed to parse Redis URL: %v", err)
			}
			cacheService = services.NewCacheService(redisClient, cfg.CircuitBreakerThreshold, logger.WithComponent("cache"))
			defer cacheService.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := cacheService.Ping(ctx); err != nil {
				serviceLog.WithError(err).Warn("Redis not reachable yet; cache calls will fail open")
			}
			cancel()
			resultCache = services.NewRedisResultCache(cacheService)
		}
	}

	// Initialize services
	metrics := services.NewMetrics("")
	players := services.NewPlayerService(playerStore, metrics, logger.WithComponent("player_service"))
	if _, err := players.Snapshot(context.Background()); err != nil {
		serviceLog.WithError(err).Warn("Initial player load failed; will retry on first request")
	}
	if err := players.StartRefresh(cfg.PoolRefreshSchedule); err != nil {
		log.Fatalf("Invalid POOL_REFRESH_SCHEDULE: %v", err)
	}
	defer players.Stop()

	solverOpts := solver.DefaultOptions()
	solverOpts.MaxNodes = cfg.SolverMaxNodes
	teamSolver := solver.NewDefault(solverOpts, logger.WithComponent("solver"))
	opt := optimizer.New(teamSolver, logger.WithComponent("optimizer"))
	optimization := services.NewOptimizationService(players, opt, resultCache, cfg.CacheTTL, metrics, logger.WithComponent("optimization_service"))

	deps := api.Dependencies{
		Players:      players,
		Optimization: optimization,
		Metrics:      metrics,
		DB:           db,
		Cache:        cacheService,
		Logger:       logger.WithComponent("http"),
	}
	if gormStore != nil {
		deps.Syncer = playerStore
	}
	router := api.NewRouter(cfg, deps)

	for _, route := range router.Routes() {
		log.Debugf("%s %s", route.Method, route.Path)
	}

	// Setup server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.OptimizationDeadline() + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Infof("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited")
}
