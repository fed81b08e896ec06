package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/jstittsworth/cricket-optimizer/internal/models"
	"github.com/jstittsworth/cricket-optimizer/internal/optimizer"
	"github.com/jstittsworth/cricket-optimizer/internal/services"
	"github.com/jstittsworth/cricket-optimizer/internal/solver"
	"github.com/jstittsworth/cricket-optimizer/internal/store"
	"github.com/jstittsworth/cricket-optimizer/pkg/config"
	"github.com/jstittsworth/cricket-optimizer/pkg/database"
	"github.com/jstittsworth/cricket-optimizer/pkg/utils"
)

const playersCSV = "../../data/players.csv"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *utils.AppError `json:"error"`
	Meta    *utils.Meta     `json:"meta"`
}

func testConfig() *config.Config {
	return &config.Config{
		Env:                 "test",
		CorsOrigins:         []string{"http://localhost:5173"},
		DefaultTeamSize:     11,
		MaxTeamSize:         11,
		MinBudget:           1,
		MaxBudget:           1000,
		OptimizationTimeout: 30,
		RateLimitRPS:        0,
	}
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

// buildRouter wires the HTTP layer over the given solver with an empty
// in-memory database that is auto-synced from the bundled CSV file.
func buildRouter(t *testing.T, cfg *config.Config, s solver.Solver) (*gin.Engine, *database.DB, *services.Metrics) {
	t.Helper()

	db, err := database.NewConnection("sqlite://:memory:", false)
	require.NoError(t, err)
	require.NoError(t, db.Migrate())

	log := quietLogger()
	metrics := services.NewMetrics("")
	playerStore := store.NewFallbackStore(store.NewGormStore(db), store.NewCSVStore(playersCSV), true, log)
	players := services.NewPlayerService(playerStore, metrics, log)
	opt := optimizer.New(s, log)
	optimization := services.NewOptimizationService(players, opt, services.NewMemoryResultCache(16), time.Minute, metrics, log)

	router := NewRouter(cfg, Dependencies{
		Players:      players,
		Optimization: optimization,
		Metrics:      metrics,
		DB:           db,
		Syncer:       playerStore,
		Logger:       log,
	})
	return router, db, metrics
}

type APITestSuite struct {
	suite.Suite
	db     *database.DB
	router *gin.Engine
}

func (s *APITestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
}

func (s *APITestSuite) SetupTest() {
	s.router, s.db, _ = buildRouter(s.T(), testConfig(), solver.NewDefault(solver.DefaultOptions(), nil))
}

func (s *APITestSuite) TearDownTest() {
	s.db.Close()
}

func (s *APITestSuite) do(method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func (s *APITestSuite) TestInfoReportsDatabaseSource() {
	w, _ := s.do(http.MethodGet, "/", nil)
	s.Equal(http.StatusOK, w.Code)

	var info map[string]interface{}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &info))
	s.Equal("database", info["data_source"])
	s.Equal("running", info["status"])
}

func (s *APITestSuite) TestHealth() {
	w, _ := s.do(http.MethodGet, "/health", nil)
	s.Equal(http.StatusOK, w.Code)

	var health struct {
		Status string                 `json:"status"`
		Checks map[string]interface{} `json:"checks"`
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &health))
	s.Equal("ok", health.Status)
	s.Equal("ok", health.Checks["database"])
}

func (s *APITestSuite) TestListPlayers() {
	w, env := s.do(http.MethodGet, "/api/v1/players", nil)
	s.Require().Equal(http.StatusOK, w.Code)

	var players []models.Player
	s.Require().NoError(json.Unmarshal(env.Data, &players))
	s.Len(players, 30)
	s.Equal(int64(30), env.Meta.Total)
	s.Equal("database", env.Meta.Source)
	s.Greater(players[0].Score, 0.0)

	w, env = s.do(http.MethodGet, "/api/v1/players?role=wk", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Require().NoError(json.Unmarshal(env.Data, &players))
	s.NotEmpty(players)
	for _, p := range players {
		s.Equal(models.RoleWicketKeeper, p.Role)
	}

	w, env = s.do(http.MethodGet, "/api/v1/players?page=2&per_page=5", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Require().NoError(json.Unmarshal(env.Data, &players))
	s.Len(players, 5)
	s.Equal(2, env.Meta.Page)
	s.Equal(6, env.Meta.TotalPages)
}

func (s *APITestSuite) TestListPlayersRejectsBadQuery() {
	for _, q := range []string{"role=CAPTAIN", "page=0", "per_page=1000", "page=abc"} {
		w, env := s.do(http.MethodGet, "/api/v1/players?"+q, nil)
		s.Equal(http.StatusBadRequest, w.Code, q)
		s.Equal(utils.ErrCodeValidation, env.Error.Code, q)
	}
}

func (s *APITestSuite) TestGetPlayer() {
	w, env := s.do(http.MethodGet, "/api/v1/players/1", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var p models.Player
	s.Require().NoError(json.Unmarshal(env.Data, &p))
	s.Equal(uint(1), p.ID)

	w, env = s.do(http.MethodGet, "/api/v1/players/999", nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal(utils.ErrCodeNotFound, env.Error.Code)

	w, _ = s.do(http.MethodGet, "/api/v1/players/abc", nil)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *APITestSuite) TestExportPlayers() {
	w, _ := s.do(http.MethodGet, "/api/v1/players/export", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Header().Get("Content-Type"), "text/csv")
	s.Contains(w.Header().Get("Content-Disposition"), "attachment")

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	s.Len(lines, 31)
	s.Equal("id,name,role,runs,wickets,strike_rate,price,score", lines[0])
}

func (s *APITestSuite) TestRefreshWithSync() {
	w, env := s.do(http.MethodPost, "/api/v1/players/refresh?sync=true", nil)
	s.Require().Equal(http.StatusOK, w.Code)

	var out struct {
		Players int    `json:"players"`
		Source  string `json:"source"`
		Synced  int    `json:"synced"`
	}
	s.Require().NoError(json.Unmarshal(env.Data, &out))
	s.Equal(30, out.Players)
	s.Equal(30, out.Synced)
	s.Equal("database", out.Source)
}

func (s *APITestSuite) TestOptimizeAtExactBudget() {
	w, env := s.do(http.MethodPost, "/api/v1/optimize", gin.H{"budget": 153})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.False(env.Meta.Cached)

	var outcome services.OptimizationOutcome
	s.Require().NoError(json.Unmarshal(env.Data, &outcome))
	s.NotEmpty(outcome.OptimizationID)
	s.Len(outcome.Result.Players, 11)
	s.InDelta(153.0, outcome.Result.TotalCost, 1e-9)
	s.Equal(optimizer.StrategyMaxScore, outcome.Result.Strategy)

	w, env = s.do(http.MethodPost, "/api/v1/optimize", gin.H{"budget": 153})
	s.Require().Equal(http.StatusOK, w.Code)
	s.True(env.Meta.Cached)
}

func (s *APITestSuite) TestOptimizePerCostStrategy() {
	w, env := s.do(http.MethodPost, "/api/v1/optimize", gin.H{"budget": 250, "strategy": "max_score_per_cost"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var outcome services.OptimizationOutcome
	s.Require().NoError(json.Unmarshal(env.Data, &outcome))
	s.Equal(optimizer.StrategyMaxScorePerCost, outcome.Result.Strategy)
	s.LessOrEqual(outcome.Result.TotalCost, 250.0)
}

func (s *APITestSuite) TestOptimizeInfeasibleBudget() {
	w, env := s.do(http.MethodPost, "/api/v1/optimize", gin.H{"budget": 50})
	s.Equal(http.StatusUnprocessableEntity, w.Code)
	s.Require().NotNil(env.Error)
	s.Equal(utils.ErrCodeInfeasible, env.Error.Code)
	s.Contains(env.Error.Message, "increase your budget by at least $103.00")
}

func (s *APITestSuite) TestOptimizeValidation() {
	cases := []struct {
		name string
		body interface{}
	}{
		{"missing budget", gin.H{"strategy": "MAX_SCORE"}},
		{"budget above range", gin.H{"budget": 5000}},
		{"budget below range", gin.H{"budget": 0.5}},
		{"unknown strategy", gin.H{"budget": 200, "strategy": "CHEAPEST"}},
		{"team too large", gin.H{"budget": 200, "team_size": 12}},
		{"negative team", gin.H{"budget": 200, "team_size": -1}},
		{"unknown role", gin.H{"budget": 200, "role_constraints": gin.H{"CAPTAIN": 11}}},
		{"roles do not sum", gin.H{"budget": 200, "role_constraints": gin.H{"WK": 1, "BAT": 4}}},
		{"locked and excluded", gin.H{"budget": 200, "locked_player_ids": []int{1}, "excluded_player_ids": []int{1}}},
		{"malformed json", "not an object"},
	}

	for _, tc := range cases {
		w, env := s.do(http.MethodPost, "/api/v1/optimize", tc.body)
		s.Equal(http.StatusBadRequest, w.Code, tc.name)
		if s.NotNil(env.Error, tc.name) {
			s.Equal(utils.ErrCodeValidation, env.Error.Code, tc.name)
		}
	}
}

func (s *APITestSuite) TestOptimizeWithRoleComposition() {
	body := gin.H{
		"budget":           250,
		"role_constraints": gin.H{"WK": 1, "BAT": 4, "BOWL": 3, "ALL": 3},
	}
	w, env := s.do(http.MethodPost, "/api/v1/optimize", body)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var outcome services.OptimizationOutcome
	s.Require().NoError(json.Unmarshal(env.Data, &outcome))
	s.Equal(1, outcome.Result.RoleCounts[models.RoleWicketKeeper])
	s.Equal(4, outcome.Result.RoleCounts[models.RoleBatter])
	s.Equal(3, outcome.Result.RoleCounts[models.RoleBowler])
	s.Equal(3, outcome.Result.RoleCounts[models.RoleAllRounder])
}

func (s *APITestSuite) TestValidateTeam() {
	ids := []uint{20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30}
	w, env := s.do(http.MethodPost, "/api/v1/optimize/validate", gin.H{"player_ids": ids, "budget": 153})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var check optimizer.TeamCheck
	s.Require().NoError(json.Unmarshal(env.Data, &check))
	s.True(check.Valid, check.Issues)
	s.InDelta(153.0, check.TotalCost, 1e-9)

	w, env = s.do(http.MethodPost, "/api/v1/optimize/validate", gin.H{"player_ids": ids, "budget": 100})
	s.Require().Equal(http.StatusOK, w.Code)
	s.Require().NoError(json.Unmarshal(env.Data, &check))
	s.False(check.Valid)
	s.NotEmpty(check.Issues)

	w, env = s.do(http.MethodPost, "/api/v1/optimize/validate", gin.H{"player_ids": []uint{1, 999}, "budget": 100})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Contains(env.Error.Details, "999")
}

func (s *APITestSuite) TestConstraints() {
	w, env := s.do(http.MethodGet, "/api/v1/optimize/constraints", nil)
	s.Require().Equal(http.StatusOK, w.Code)

	var out struct {
		MaxBudget  float64              `json:"max_budget"`
		Strategies []optimizer.Strategy `json:"strategies"`
	}
	s.Require().NoError(json.Unmarshal(env.Data, &out))
	s.Equal(1000.0, out.MaxBudget)
	s.Len(out.Strategies, 2)
}

func (s *APITestSuite) TestCORSPreflight() {
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/optimize", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	s.Equal(http.StatusNoContent, w.Code)
	s.Equal("http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/optimize", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Empty(w.Header().Get("Access-Control-Allow-Origin"))
}

func TestAPITestSuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}

func TestMetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router, db, _ := buildRouter(t, testConfig(), solver.NewDefault(solver.DefaultOptions(), nil))
	defer db.Close()

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cricket_optimizer_http_requests_total")
	assert.Contains(t, w.Body.String(), "cricket_optimizer_pool_players 30")
}

func TestOptimizeRateLimited(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	cfg.RateLimitRPS = 0.001
	cfg.RateLimitBurst = 1
	router, db, _ := buildRouter(t, cfg, solver.NewDefault(solver.DefaultOptions(), nil))
	defer db.Close()

	post := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/optimize", strings.NewReader(`{"budget":153}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, post())
	assert.Equal(t, http.StatusTooManyRequests, post())
}

func TestOptimizeSolverFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	failing := solver.SolverFunc(func(ctx context.Context, p *solver.Problem) (solver.Solution, error) {
		return solver.Solution{Status: solver.StatusError}, errors.New("lp: singular basis")
	})
	router, db, _ := buildRouter(t, testConfig(), failing)
	defer db.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/optimize", strings.NewReader(`{"budget":200}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, utils.ErrCodeOptimization, env.Error.Code)
	assert.NotContains(t, w.Body.String(), "singular basis")
}

func TestOptimizeTimeout(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	cfg.OptimizationTimeout = 1
	slow := solver.SolverFunc(func(ctx context.Context, p *solver.Problem) (solver.Solution, error) {
		<-ctx.Done()
		return solver.Solution{Status: solver.StatusError}, ctx.Err()
	})
	router, db, _ := buildRouter(t, cfg, slow)
	defer db.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/optimize", strings.NewReader(`{"budget":200}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusGatewayTimeout, w.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, utils.ErrCodeTimeout, env.Error.Code)
}
