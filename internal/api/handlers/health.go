package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jstittsworth/cricket-optimizer/internal/services"
	"github.com/jstittsworth/cricket-optimizer/pkg/database"
)

// Version is reported by the info endpoint.
const Version = "1.0.0"

type HealthHandler struct {
	players *services.PlayerService
	db      *database.DB
	cache   *services.CacheService
}

// NewHealthHandler accepts nil db and cache when those backends are not
// configured.
func NewHealthHandler(players *services.PlayerService, db *database.DB, cache *services.CacheService) *HealthHandler {
	return &HealthHandler{
		players: players,
		db:      db,
		cache:   cache,
	}
}

// GetInfo describes the service and the data source in use.
func (h *HealthHandler) GetInfo(c *gin.Context) {
	source := "unavailable"
	status := "degraded"
	if snap, err := h.players.Snapshot(c.Request.Context()); err == nil {
		source = snap.Source
		status = "running"
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "Cricket XI Optimizer API",
		"version":     Version,
		"data_source": source,
		"status":      status,
		"endpoints": gin.H{
			"players":     "/api/v1/players",
			"optimize":    "/api/v1/optimize",
			"validate":    "/api/v1/optimize/validate",
			"constraints": "/api/v1/optimize/constraints",
			"health":      "/health",
			"metrics":     "/metrics",
		},
	})
}

// GetHealth reports each dependency. It returns 503 only when no player data
// can be loaded; a missing database or cache degrades but does not fail.
func (h *HealthHandler) GetHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	healthy := true

	if snap, err := h.players.Snapshot(ctx); err != nil {
		checks["players"] = err.Error()
		healthy = false
	} else {
		checks["players"] = gin.H{"count": len(snap.Players), "source": snap.Source, "loaded_at": snap.LoadedAt}
	}

	if h.db != nil {
		checks["database"] = pingStatus(h.db.Ping(ctx))
	}
	if h.cache != nil {
		checks["cache"] = pingStatus(h.cache.Ping(ctx))
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status": status,
		"time":   time.Now().UTC(),
		"checks": checks,
	})
}

func pingStatus(err error) string {
	if err != nil {
		return "error: " + err.Error()
	}
	return "ok"
}
