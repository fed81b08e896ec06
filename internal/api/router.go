package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/jstittsworth/cricket-optimizer/internal/api/handlers"
	"github.com/jstittsworth/cricket-optimizer/internal/api/middleware"
	"github.com/jstittsworth/cricket-optimizer/internal/services"
	"github.com/jstittsworth/cricket-optimizer/pkg/config"
	"github.com/jstittsworth/cricket-optimizer/pkg/database"
)

// Dependencies are the services the HTTP layer is built on. DB, Cache and
// Syncer may be nil.
type Dependencies struct {
	Players      *services.PlayerService
	Optimization *services.OptimizationService
	Metrics      *services.Metrics
	DB           *database.DB
	Cache        *services.CacheService
	Syncer       handlers.Syncer
	Logger       *logrus.Entry
}

// NewRouter builds the engine with middleware, the root endpoints and the
// /api/v1 group.
func NewRouter(cfg *config.Config, deps Dependencies) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.WithField("component", "http")
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.CORS(cfg.CorsOrigins))
	if deps.Metrics != nil {
		router.Use(middleware.Metrics(deps.Metrics))
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	healthHandler := handlers.NewHealthHandler(deps.Players, deps.DB, deps.Cache)
	router.GET("/", healthHandler.GetInfo)
	router.GET("/health", healthHandler.GetHealth)

	apiV1 := router.Group("/api/v1")
	SetupRoutes(apiV1, cfg, deps, logger)

	return router
}

// SetupRoutes configures all API routes on the given router group
func SetupRoutes(group *gin.RouterGroup, cfg *config.Config, deps Dependencies, logger *logrus.Entry) {
	playerHandler := handlers.NewPlayerHandler(deps.Players, deps.Syncer, logger.WithField("handler", "player"))
	optimizerHandler := handlers.NewOptimizerHandler(deps.Optimization, deps.Players, cfg, logger.WithField("handler", "optimizer"))
	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	// Player endpoints
	group.GET("/players", playerHandler.GetPlayers)
	group.GET("/players/export", playerHandler.ExportPlayers)
	group.GET("/players/:id", playerHandler.GetPlayer)
	group.POST("/players/refresh", playerHandler.RefreshPlayers)

	// Optimization endpoints
	group.POST("/optimize", limiter.Middleware(), optimizerHandler.OptimizeTeam)
	group.POST("/optimize/validate", optimizerHandler.ValidateTeam)
	group.GET("/optimize/constraints", optimizerHandler.GetConstraints)
}
