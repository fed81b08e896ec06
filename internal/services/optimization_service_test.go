package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jstittsworth/cricket-optimizer/internal/optimizer"
	"github.com/jstittsworth/cricket-optimizer/internal/solver"
)

type brokenCache struct{}

func (brokenCache) Get(ctx context.Context, key string) (*optimizer.Result, error) {
	return nil, errors.New("connection refused")
}

func (brokenCache) Set(ctx context.Context, key string, res *optimizer.Result, ttl time.Duration) error {
	return errors.New("connection refused")
}

func (brokenCache) Name() string { return "broken" }

func newOptimizationService(cache ResultCache, metrics *Metrics) (*OptimizationService, *fakeStore) {
	fs := &fakeStore{players: samplePlayers()}
	players := NewPlayerService(fs, metrics, nil)
	opt := optimizer.New(solver.NewDefault(solver.DefaultOptions(), nil), nil)
	return NewOptimizationService(players, opt, cache, time.Minute, metrics, nil), fs
}

func smallRequest() optimizer.Request {
	return optimizer.Request{Budget: 40, Strategy: optimizer.StrategyMaxScore, TeamSize: 3}
}

func TestOptimizationService_CachesResults(t *testing.T) {
	metrics := NewMetrics("test")
	svc, _ := newOptimizationService(NewMemoryResultCache(8), metrics)
	ctx := context.Background()

	first, err := svc.Optimize(ctx, smallRequest())
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, "fake", first.Source)
	_, err = uuid.Parse(first.OptimizationID)
	assert.NoError(t, err)
	require.Len(t, first.Result.Players, 3)

	second, err := svc.Optimize(ctx, smallRequest())
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.NotEqual(t, first.OptimizationID, second.OptimizationID)
	assert.Equal(t, first.Result.TotalScore, second.Result.TotalScore)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OptimizationsTotal.WithLabelValues("MAX_SCORE", "optimal")))
}

func TestOptimizationService_NewPoolMissesCache(t *testing.T) {
	svc, fs := newOptimizationService(NewMemoryResultCache(8), nil)
	ctx := context.Background()

	_, err := svc.Optimize(ctx, smallRequest())
	require.NoError(t, err)

	updated := samplePlayers()
	updated[3].Price = 9.5
	fs.set(updated)
	_, err = svc.players.Refresh(ctx)
	require.NoError(t, err)

	again, err := svc.Optimize(ctx, smallRequest())
	require.NoError(t, err)
	assert.False(t, again.Cached)
}

func TestOptimizationService_BrokenCacheDoesNotFailRequests(t *testing.T) {
	metrics := NewMetrics("test")
	svc, _ := newOptimizationService(brokenCache{}, metrics)

	out, err := svc.Optimize(context.Background(), smallRequest())
	require.NoError(t, err)
	assert.False(t, out.Cached)
	assert.Len(t, out.Result.Players, 3)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("error")))
}

func TestOptimizationService_WithoutCache(t *testing.T) {
	svc, _ := newOptimizationService(nil, nil)

	out, err := svc.Optimize(context.Background(), smallRequest())
	require.NoError(t, err)
	assert.False(t, out.Cached)
}

func TestOptimizationService_RecordsFailures(t *testing.T) {
	metrics := NewMetrics("test")
	svc, _ := newOptimizationService(NewMemoryResultCache(8), metrics)
	ctx := context.Background()

	req := smallRequest()
	req.Budget = 5
	_, err := svc.Optimize(ctx, req)
	var ierr *optimizer.InfeasibleError
	require.ErrorAs(t, err, &ierr)

	req.Budget = -1
	_, err = svc.Optimize(ctx, req)
	var verr *optimizer.ValidationError
	require.ErrorAs(t, err, &verr)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OptimizationsTotal.WithLabelValues("MAX_SCORE", "infeasible")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OptimizationsTotal.WithLabelValues("MAX_SCORE", "invalid")))
}

func TestOutcomeLabel(t *testing.T) {
	assert.Equal(t, "optimal", outcomeLabel(nil))
	assert.Equal(t, "invalid", outcomeLabel(&optimizer.ValidationError{Field: "budget", Message: "bad"}))
	assert.Equal(t, "infeasible", outcomeLabel(&optimizer.InfeasibleError{Message: "no"}))
	assert.Equal(t, "timeout", outcomeLabel(&optimizer.OptimizerError{Status: solver.StatusError, Err: context.DeadlineExceeded}))
	assert.Equal(t, "error", outcomeLabel(errors.New("boom")))
}
