package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/jstittsworth/cricket-optimizer/internal/models"
	"github.com/jstittsworth/cricket-optimizer/internal/scoring"
	"github.com/jstittsworth/cricket-optimizer/internal/store"
)

var ErrPlayerNotFound = errors.New("player not found")

// loadTimeout bounds one shared pool load.
const loadTimeout = 30 * time.Second

// PoolSnapshot is an immutable, scored copy of the player pool. Readers must
// not modify Players.
type PoolSnapshot struct {
	Players     []models.Player
	Source      string
	LoadedAt    time.Time
	Fingerprint string
}

// PlayerFilter narrows ListPlayers. Page is 1-based.
type PlayerFilter struct {
	Role    models.Role
	Search  string
	Page    int
	PerPage int
}

// PlayerService owns the scored pool snapshot shared by every request. The
// snapshot is replaced wholesale on refresh, never mutated in place.
type PlayerService struct {
	store   store.PlayerStore
	logger  *logrus.Entry
	metrics *Metrics

	mu       sync.RWMutex
	snapshot *PoolSnapshot
	loads    singleflight.Group

	cronMu    sync.Mutex
	cron      *cron.Cron
	isRunning bool
}

func NewPlayerService(s store.PlayerStore, metrics *Metrics, logger *logrus.Entry) *PlayerService {
	if logger == nil {
		logger = logrus.WithField("component", "player_service")
	}
	return &PlayerService{
		store:   s,
		logger:  logger,
		metrics: metrics,
		cron:    cron.New(),
	}
}

// Snapshot returns the current pool, loading it on first use.
func (s *PlayerService) Snapshot(ctx context.Context) (*PoolSnapshot, error) {
	s.mu.RLock()
	snap := s.snapshot
	s.mu.RUnlock()
	if snap != nil {
		return snap, nil
	}
	return s.Refresh(ctx)
}

// Refresh reloads the pool from the store. Concurrent callers share a single
// load, which runs detached from any one caller's cancellation and is bounded
// by loadTimeout. A caller whose ctx ends stops waiting; the load carries on
// for the others.
func (s *PlayerService) Refresh(ctx context.Context) (*PoolSnapshot, error) {
	ch := s.loads.DoChan("pool", func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		return s.load(loadCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*PoolSnapshot), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *PlayerService) load(ctx context.Context) (*PoolSnapshot, error) {
	start := time.Now()
	players, err := s.store.LoadPlayers(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load player pool")
		return nil, fmt.Errorf("failed to load players: %w", err)
	}

	scored := scoring.ScorePlayers(players)
	snap := &PoolSnapshot{
		Players:     scored,
		Source:      s.store.Source(),
		LoadedAt:    time.Now().UTC(),
		Fingerprint: Fingerprint(scored),
	}

	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.PoolSize.Set(float64(len(scored)))
		s.metrics.PoolRefreshes.WithLabelValues(snap.Source).Inc()
	}

	s.logger.WithFields(logrus.Fields{
		"players":     len(scored),
		"source":      snap.Source,
		"fingerprint": snap.Fingerprint,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Player pool loaded")
	return snap, nil
}

// StartRefresh reloads the pool on a cron schedule. An empty schedule is a
// no-op.
func (s *PlayerService) StartRefresh(schedule string) error {
	if strings.TrimSpace(schedule) == "" {
		return nil
	}

	s.cronMu.Lock()
	defer s.cronMu.Unlock()

	if s.isRunning {
		return fmt.Errorf("pool refresh is already running")
	}

	_, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.Refresh(ctx); err != nil {
			s.logger.WithError(err).Warn("Scheduled pool refresh failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule pool refresh: %w", err)
	}

	s.cron.Start()
	s.isRunning = true
	s.logger.WithField("schedule", schedule).Info("Pool refresh scheduled")
	return nil
}

func (s *PlayerService) Stop() {
	s.cronMu.Lock()
	defer s.cronMu.Unlock()

	if !s.isRunning {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()

	s.isRunning = false
	s.logger.Info("Pool refresh stopped")
}

// ListPlayers filters and paginates the snapshot. The returned total counts
// every match, not just the page.
func (s *PlayerService) ListPlayers(ctx context.Context, f PlayerFilter) ([]models.Player, int, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, 0, err
	}

	search := strings.ToLower(strings.TrimSpace(f.Search))
	matched := make([]models.Player, 0, len(snap.Players))
	for _, p := range snap.Players {
		if f.Role != "" && p.Role != f.Role {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) {
			continue
		}
		matched = append(matched, p)
	}

	total := len(matched)
	if f.PerPage <= 0 {
		return matched, total, nil
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	lo := (page - 1) * f.PerPage
	if lo >= total {
		return []models.Player{}, total, nil
	}
	hi := lo + f.PerPage
	if hi > total {
		hi = total
	}
	return matched[lo:hi], total, nil
}

func (s *PlayerService) GetPlayer(ctx context.Context, id uint) (models.Player, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return models.Player{}, err
	}
	for _, p := range snap.Players {
		if p.ID == id {
			return p, nil
		}
	}
	return models.Player{}, ErrPlayerNotFound
}

// LookupPlayers resolves ids in the order given and reports the ones that do
// not exist.
func (s *PlayerService) LookupPlayers(ctx context.Context, ids []uint) ([]models.Player, []uint, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, nil, err
	}
	byID := make(map[uint]models.Player, len(snap.Players))
	for _, p := range snap.Players {
		byID[p.ID] = p
	}

	found := make([]models.Player, 0, len(ids))
	var missing []uint
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			found = append(found, p)
		} else {
			missing = append(missing, id)
		}
	}
	return found, missing, nil
}

// Fingerprint hashes the fields that influence optimization, in pool order,
// so cached results are invalidated whenever the pool changes.
func Fingerprint(players []models.Player) string {
	rows := make([]string, len(players))
	for i, p := range players {
		rows[i] = strings.Join([]string{
			strconv.FormatUint(uint64(p.ID), 10),
			p.Name,
			string(p.Role),
			strconv.Itoa(p.Runs),
			strconv.Itoa(p.Wickets),
			strconv.FormatFloat(p.StrikeRate, 'g', -1, 64),
			strconv.FormatFloat(p.Price, 'g', -1, 64),
		}, "|")
	}
	h := xxhash.New()
	for _, r := range rows {
		h.WriteString(r)
		h.WriteString("\n")
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
