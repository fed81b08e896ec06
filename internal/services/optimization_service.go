package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jstittsworth/cricket-optimizer/internal/optimizer"
	"github.com/jstittsworth/cricket-optimizer/pkg/logger"
)

// OptimizationOutcome is a result plus request bookkeeping.
type OptimizationOutcome struct {
	OptimizationID string            `json:"optimization_id"`
	Result         *optimizer.Result `json:"result"`
	Cached         bool              `json:"cached"`
	Source         string            `json:"data_source"`
}

// OptimizationService runs the optimizer against the current pool snapshot
// and caches successful results. Cache failures are logged and never fail a
// request.
type OptimizationService struct {
	players   *PlayerService
	optimizer *optimizer.Optimizer
	cache     ResultCache
	cacheTTL  time.Duration
	metrics   *Metrics
	logger    *logrus.Entry
}

// NewOptimizationService accepts a nil cache to disable caching and nil
// metrics to skip instrumentation.
func NewOptimizationService(players *PlayerService, opt *optimizer.Optimizer, cache ResultCache, cacheTTL time.Duration, metrics *Metrics, logger *logrus.Entry) *OptimizationService {
	if logger == nil {
		logger = logrus.WithField("component", "optimization_service")
	}
	return &OptimizationService{
		players:   players,
		optimizer: opt,
		cache:     cache,
		cacheTTL:  cacheTTL,
		metrics:   metrics,
		logger:    logger,
	}
}

func (s *OptimizationService) Optimize(ctx context.Context, req optimizer.Request) (*OptimizationOutcome, error) {
	id := uuid.New().String()
	log := logger.WithOptimizationID(s.logger, id)

	snap, err := s.players.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	key := OptimizationCacheKey(snap.Fingerprint, req)
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key)
		switch {
		case err == nil:
			s.countCache("hit")
			log.WithField("cache", s.cache.Name()).Debug("Serving cached optimization")
			return &OptimizationOutcome{OptimizationID: id, Result: cached, Cached: true, Source: snap.Source}, nil
		case errors.Is(err, ErrCacheMiss):
			s.countCache("miss")
		default:
			s.countCache("error")
			log.WithError(err).Warn("Cache lookup failed")
		}
	}

	start := time.Now()
	res, err := s.optimizer.Optimize(ctx, snap.Players, req)
	elapsed := time.Since(start)

	if s.metrics != nil {
		nodes := 0
		if res != nil {
			nodes = res.NodesExplored
		}
		s.metrics.ObserveOptimization(string(req.Strategy), outcomeLabel(err), elapsed, nodes)
	}
	if err != nil {
		log.WithError(err).Info("Optimization did not produce a team")
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, res, s.cacheTTL); err != nil {
			log.WithError(err).Warn("Failed to cache optimization result")
		}
	}

	log.WithFields(logrus.Fields{
		"total_cost":  res.TotalCost,
		"total_score": res.TotalScore,
		"solve_ms":    res.SolveTimeMs,
	}).Info("Optimization served")
	return &OptimizationOutcome{OptimizationID: id, Result: res, Source: snap.Source}, nil
}

func (s *OptimizationService) countCache(result string) {
	if s.metrics != nil {
		s.metrics.CacheLookups.WithLabelValues(result).Inc()
	}
}

func outcomeLabel(err error) string {
	var (
		verr *optimizer.ValidationError
		ierr *optimizer.InfeasibleError
	)
	switch {
	case err == nil:
		return "optimal"
	case errors.As(err, &verr):
		return "invalid"
	case errors.As(err, &ierr):
		return "infeasible"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	}
	return "error"
}
