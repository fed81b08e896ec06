package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/jstittsworth/cricket-optimizer/internal/models"
	"github.com/jstittsworth/cricket-optimizer/internal/optimizer"
	"github.com/jstittsworth/cricket-optimizer/internal/services"
	"github.com/jstittsworth/cricket-optimizer/pkg/config"
	"github.com/jstittsworth/cricket-optimizer/pkg/utils"
)

// DefaultRoleComposition is the suggested XI advertised by GetConstraints.
// It is never applied unless a request asks for it.
var DefaultRoleComposition = map[models.Role]int{
	models.RoleWicketKeeper: 1,
	models.RoleBatter:       4,
	models.RoleBowler:       3,
	models.RoleAllRounder:   3,
}

type OptimizerHandler struct {
	optimization *services.OptimizationService
	players      *services.PlayerService
	config       *config.Config
	logger       *logrus.Entry
}

func NewOptimizerHandler(optimization *services.OptimizationService, players *services.PlayerService, cfg *config.Config, logger *logrus.Entry) *OptimizerHandler {
	if logger == nil {
		logger = logrus.WithField("component", "optimizer_handler")
	}
	return &OptimizerHandler{
		optimization: optimization,
		players:      players,
		config:       cfg,
		logger:       logger,
	}
}

type optimizeRequest struct {
	Budget            float64        `json:"budget" binding:"required"`
	Strategy          string         `json:"strategy"`
	TeamSize          int            `json:"team_size"`
	PlayerIDs         []uint         `json:"player_ids"`
	RoleConstraints   map[string]int `json:"role_constraints"`
	LockedPlayerIDs   []uint         `json:"locked_player_ids"`
	ExcludedPlayerIDs []uint         `json:"excluded_player_ids"`
}

type validateRequest struct {
	PlayerIDs       []uint         `json:"player_ids" binding:"required"`
	Budget          float64        `json:"budget" binding:"required"`
	TeamSize        int            `json:"team_size"`
	RoleConstraints map[string]int `json:"role_constraints"`
}

type optimizeResult struct {
	outcome *services.OptimizationOutcome
	err     error
}

// OptimizeTeam selects the best team for a budget
func (h *OptimizerHandler) OptimizeTeam(c *gin.Context) {
	var body optimizeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.SendValidationError(c, "Invalid request body", err.Error())
		return
	}

	req, err := h.toRequest(body)
	if err != nil {
		utils.SendValidationError(c, "Invalid optimization request", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.config.OptimizationDeadline())
	defer cancel()

	// Run optimization in background
	resultChan := make(chan optimizeResult, 1)
	go func() {
		outcome, err := h.optimization.Optimize(ctx, req)
		resultChan <- optimizeResult{outcome: outcome, err: err}
	}()

	select {
	case res := <-resultChan:
		if res.err != nil {
			h.sendOptimizationError(c, res.err)
			return
		}
		c.Set("optimization_id", res.outcome.OptimizationID)
		utils.SendSuccessWithMeta(c, res.outcome, &utils.Meta{
			Source: res.outcome.Source,
			Cached: res.outcome.Cached,
		})

	case <-ctx.Done():
		h.logger.WithFields(logrus.Fields{
			"budget":    req.Budget,
			"team_size": req.TeamSize,
			"strategy":  req.Strategy,
		}).Warn("Optimization timed out")
		utils.SendTimeout(c, "The optimization took too long to complete")
	}
}

// ValidateTeam checks a hand-picked team against budget, size and roles
func (h *OptimizerHandler) ValidateTeam(c *gin.Context) {
	var body validateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.SendValidationError(c, "Invalid request body", err.Error())
		return
	}

	teamSize := body.TeamSize
	if teamSize == 0 {
		teamSize = h.config.DefaultTeamSize
	}
	roles, err := parseRoles(body.RoleConstraints)
	if err != nil {
		utils.SendValidationError(c, "Invalid role constraints", err.Error())
		return
	}

	team, missing, err := h.players.LookupPlayers(c.Request.Context(), body.PlayerIDs)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load players")
		utils.SendServiceUnavailable(c, "Player data is unavailable")
		return
	}
	if len(missing) > 0 {
		utils.SendValidationError(c, "Some players not found", fmt.Sprintf("unknown player ids: %v", missing))
		return
	}

	utils.SendSuccess(c, optimizer.ValidateTeam(team, body.Budget, teamSize, roles))
}

// GetConstraints describes the limits the optimize endpoint enforces.
func (h *OptimizerHandler) GetConstraints(c *gin.Context) {
	utils.SendSuccess(c, gin.H{
		"min_budget":                 h.config.MinBudget,
		"max_budget":                 h.config.MaxBudget,
		"default_team_size":          h.config.DefaultTeamSize,
		"max_team_size":              h.config.MaxTeamSize,
		"strategies":                 []optimizer.Strategy{optimizer.StrategyMaxScore, optimizer.StrategyMaxScorePerCost},
		"roles":                      models.Roles,
		"suggested_role_constraints": DefaultRoleComposition,
		"timeout_seconds":            h.config.OptimizationTimeout,
	})
}

func (h *OptimizerHandler) toRequest(body optimizeRequest) (optimizer.Request, error) {
	if body.Budget < h.config.MinBudget || body.Budget > h.config.MaxBudget {
		return optimizer.Request{}, fmt.Errorf("budget must be between %v and %v", h.config.MinBudget, h.config.MaxBudget)
	}

	teamSize := body.TeamSize
	if teamSize == 0 {
		teamSize = h.config.DefaultTeamSize
	}
	if teamSize > h.config.MaxTeamSize {
		return optimizer.Request{}, fmt.Errorf("team_size must be at most %d", h.config.MaxTeamSize)
	}

	strategy, err := optimizer.ParseStrategy(body.Strategy)
	if err != nil {
		return optimizer.Request{}, err
	}

	roles, err := parseRoles(body.RoleConstraints)
	if err != nil {
		return optimizer.Request{}, err
	}

	return optimizer.Request{
		Budget:            body.Budget,
		Strategy:          strategy,
		TeamSize:          teamSize,
		PlayerIDs:         body.PlayerIDs,
		RoleConstraints:   roles,
		LockedPlayerIDs:   body.LockedPlayerIDs,
		ExcludedPlayerIDs: body.ExcludedPlayerIDs,
	}, nil
}

func parseRoles(raw map[string]int) (map[models.Role]int, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	roles := make(map[models.Role]int, len(raw))
	for k, n := range raw {
		r, err := models.ParseRole(k)
		if err != nil {
			return nil, err
		}
		roles[r] += n
	}
	return roles, nil
}

func (h *OptimizerHandler) sendOptimizationError(c *gin.Context, err error) {
	var (
		verr *optimizer.ValidationError
		ierr *optimizer.InfeasibleError
		oerr *optimizer.OptimizerError
	)

	switch {
	case errors.As(err, &verr):
		utils.SendValidationError(c, "Invalid optimization request", verr.Error())
	case errors.As(err, &ierr):
		utils.SendInfeasible(c, ierr.Message)
	case errors.Is(err, context.DeadlineExceeded):
		utils.SendTimeout(c, "The optimization took too long to complete")
	case errors.As(err, &oerr):
		h.logger.WithError(err).Error("Optimization failed")
		utils.SendError(c, http.StatusInternalServerError,
			utils.NewAppError(utils.ErrCodeOptimization, "Optimization failed", fmt.Sprintf("solver status: %s", oerr.Status)))
	default:
		h.logger.WithError(err).Error("Optimization could not run")
		utils.SendServiceUnavailable(c, "Player data is unavailable")
	}
}
