package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/jstittsworth/cricket-optimizer/internal/models"
	"github.com/jstittsworth/cricket-optimizer/internal/services"
	"github.com/jstittsworth/cricket-optimizer/internal/store"
	"github.com/jstittsworth/cricket-optimizer/pkg/utils"
)

const maxPerPage = 100

// Syncer copies the CSV pool into the database.
type Syncer interface {
	Sync(ctx context.Context) (int, error)
}

type PlayerHandler struct {
	players *services.PlayerService
	syncer  Syncer
	logger  *logrus.Entry
}

// NewPlayerHandler accepts a nil syncer when there is no database to sync to.
func NewPlayerHandler(players *services.PlayerService, syncer Syncer, logger *logrus.Entry) *PlayerHandler {
	if logger == nil {
		logger = logrus.WithField("component", "player_handler")
	}
	return &PlayerHandler{
		players: players,
		syncer:  syncer,
		logger:  logger,
	}
}

// GetPlayers returns scored players, optionally filtered and paginated
func (h *PlayerHandler) GetPlayers(c *gin.Context) {
	var filter services.PlayerFilter

	if role := c.Query("role"); role != "" {
		r, err := models.ParseRole(role)
		if err != nil {
			utils.SendValidationError(c, "Invalid role", err.Error())
			return
		}
		filter.Role = r
	}
	filter.Search = c.Query("search")

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		utils.SendValidationError(c, "Invalid page", "page must be a positive integer")
		return
	}
	perPage, err := strconv.Atoi(c.DefaultQuery("per_page", "0"))
	if err != nil || perPage < 0 || perPage > maxPerPage {
		utils.SendValidationError(c, "Invalid per_page", fmt.Sprintf("per_page must be between 0 and %d", maxPerPage))
		return
	}
	filter.Page, filter.PerPage = page, perPage

	players, total, err := h.players.ListPlayers(c.Request.Context(), filter)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load players")
		utils.SendServiceUnavailable(c, "Player data is unavailable")
		return
	}

	meta := &utils.Meta{Total: int64(total), Source: h.source(c)}
	if perPage > 0 {
		meta.Page = page
		meta.PerPage = perPage
		meta.TotalPages = (total + perPage - 1) / perPage
	}
	utils.SendSuccessWithMeta(c, players, meta)
}

// GetPlayer returns a single player by ID
func (h *PlayerHandler) GetPlayer(c *gin.Context) {
	playerID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		utils.SendValidationError(c, "Invalid player ID", err.Error())
		return
	}

	player, err := h.players.GetPlayer(c.Request.Context(), uint(playerID))
	if errors.Is(err, services.ErrPlayerNotFound) {
		utils.SendNotFound(c, "Player not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to load players")
		utils.SendServiceUnavailable(c, "Player data is unavailable")
		return
	}

	utils.SendSuccess(c, player)
}

// ExportPlayers streams the scored pool as CSV.
func (h *PlayerHandler) ExportPlayers(c *gin.Context) {
	snap, err := h.players.Snapshot(c.Request.Context())
	if err != nil {
		utils.SendServiceUnavailable(c, "Player data is unavailable")
		return
	}

	data, err := store.ExportCSV(snap.Players)
	if err != nil {
		h.logger.WithError(err).Error("Failed to export players")
		utils.SendInternalError(c, "Failed to export players")
		return
	}

	filename := fmt.Sprintf("players_%s.csv", time.Now().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, "text/csv", data)
}

// RefreshPlayers reloads the pool snapshot. With ?sync=true the CSV file is
// first copied into the database.
func (h *PlayerHandler) RefreshPlayers(c *gin.Context) {
	ctx := c.Request.Context()
	synced := 0

	if c.Query("sync") == "true" {
		if h.syncer == nil {
			utils.SendValidationError(c, "Sync unavailable", "no database is configured")
			return
		}
		n, err := h.syncer.Sync(ctx)
		if err != nil {
			h.logger.WithError(err).Error("CSV sync failed")
			utils.SendInternalError(c, "Failed to sync players to the database")
			return
		}
		synced = n
	}

	snap, err := h.players.Refresh(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Pool refresh failed")
		utils.SendServiceUnavailable(c, "Player data is unavailable")
		return
	}

	utils.SendSuccess(c, gin.H{
		"players":     len(snap.Players),
		"source":      snap.Source,
		"fingerprint": snap.Fingerprint,
		"loaded_at":   snap.LoadedAt,
		"synced":      synced,
	})
}

func (h *PlayerHandler) source(c *gin.Context) string {
	snap, err := h.players.Snapshot(c.Request.Context())
	if err != nil {
		return ""
	}
	return snap.Source
}
