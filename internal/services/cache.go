package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/jstittsworth/cricket-optimizer/internal/optimizer"
)

var (
	ErrCacheMiss    = errors.New("key not found")
	ErrCacheCorrupt = errors.New("cached value is corrupt")
)

// ResultCache stores optimization results keyed by OptimizationCacheKey.
// Callers treat every error as a miss.
type ResultCache interface {
	Get(ctx context.Context, key string) (*optimizer.Result, error)
	Set(ctx context.Context, key string, res *optimizer.Result, ttl time.Duration) error
	Name() string
}

// CacheService is a JSON cache on Redis. Calls go through a circuit breaker
// so an unreachable Redis is skipped quickly instead of timing out on every
// request.
type CacheService struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	logger  *logrus.Entry
}

func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.DialTimeout = 2 * time.Second
	opts.ReadTimeout = time.Second
	opts.WriteTimeout = time.Second
	return redis.NewClient(opts), nil
}

// NewCacheService trips the breaker after threshold consecutive failures.
func NewCacheService(client *redis.Client, threshold int, logger *logrus.Entry) *CacheService {
	if logger == nil {
		logger = logrus.WithField("component", "cache")
	}
	if threshold <= 0 {
		threshold = 5
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-cache",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrCacheMiss)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker":    name,
				"from_state": from.String(),
				"to_state":   to.String(),
			}).Warn("Cache circuit breaker state changed")
		},
	})

	return &CacheService{
		client:  client,
		breaker: cb,
		logger:  logger,
	}
}

func (s *CacheService) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	_, err = s.breaker.Execute(func() (interface{}, error) {
		return nil, s.client.Set(ctx, key, data, expiration).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) error {
	v, err := s.breaker.Execute(func() (interface{}, error) {
		data, err := s.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return nil, ErrCacheMiss
		}
		return data, err
	})
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return ErrCacheMiss
		}
		return fmt.Errorf("failed to get cache: %w", err)
	}

	if err := json.Unmarshal(v.([]byte), dest); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheCorrupt, err)
	}
	return nil
}

func (s *CacheService) Delete(ctx context.Context, keys ...string) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.client.Del(ctx, keys...).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to delete cache: %w", err)
	}
	return nil
}

// Ping reports whether Redis answers. Used by the health check.
func (s *CacheService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// SetWithRetry retries transient failures with a linear backoff.
func (s *CacheService) SetWithRetry(ctx context.Context, key string, value interface{}, expiration time.Duration, maxRetries int) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		if err = s.Set(ctx, key, value, expiration); err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) {
			return err
		}
		s.logger.Warnf("Cache set failed (attempt %d/%d): %v", i+1, maxRetries, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond * 100 * time.Duration(i+1)):
		}
	}
	return err
}

func (s *CacheService) Close() error {
	return s.client.Close()
}

// RedisResultCache adapts CacheService to ResultCache.
type RedisResultCache struct {
	svc *CacheService
}

func NewRedisResultCache(svc *CacheService) *RedisResultCache {
	return &RedisResultCache{svc: svc}
}

// Get evicts entries that no longer decode so the next request recomputes
// them.
func (c *RedisResultCache) Get(ctx context.Context, key string) (*optimizer.Result, error) {
	var res optimizer.Result
	if err := c.svc.Get(ctx, key, &res); err != nil {
		if errors.Is(err, ErrCacheCorrupt) {
			if derr := c.svc.Delete(ctx, key); derr != nil {
				c.svc.logger.WithError(derr).WithField("key", key).Warn("Failed to evict corrupt cache entry")
			}
		}
		return nil, err
	}
	return &res, nil
}

func (c *RedisResultCache) Set(ctx context.Context, key string, res *optimizer.Result, ttl time.Duration) error {
	return c.svc.SetWithRetry(ctx, key, res, ttl, 2)
}

func (c *RedisResultCache) Name() string {
	return "redis"
}

type memoryEntry struct {
	result  *optimizer.Result
	expires time.Time
}

// MemoryResultCache is a bounded in-process cache used when Redis is not
// configured. Results are copied on the way in and out, so callers may
// modify what they get back.
type MemoryResultCache struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	maxEntries int
	now        func() time.Time
}

func NewMemoryResultCache(maxEntries int) *MemoryResultCache {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &MemoryResultCache{
		entries:    make(map[string]memoryEntry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (c *MemoryResultCache) Get(ctx context.Context, key string) (*optimizer.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if c.now().After(e.expires) {
		delete(c.entries, key)
		return nil, ErrCacheMiss
	}
	return e.result.Clone(), nil
}

func (c *MemoryResultCache) Set(ctx context.Context, key string, res *optimizer.Result, ttl time.Duration) error {
	if res == nil {
		return fmt.Errorf("cannot cache a nil result")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evict(now)
	}
	c.entries[key] = memoryEntry{result: res.Clone(), expires: now.Add(ttl)}
	return nil
}

// evict drops expired entries, or the one closest to expiry when none have.
func (c *MemoryResultCache) evict(now time.Time) {
	oldestKey := ""
	var oldest time.Time
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
			continue
		}
		if oldestKey == "" || e.expires.Before(oldest) {
			oldestKey, oldest = k, e.expires
		}
	}
	if len(c.entries) >= c.maxEntries && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *MemoryResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryResultCache) Name() string {
	return "memory"
}

// OptimizationCacheKey identifies a request against a specific pool. Id lists
// are order-insensitive.
func OptimizationCacheKey(fingerprint string, req optimizer.Request) string {
	var b strings.Builder
	b.WriteString(strconv.FormatFloat(req.Budget, 'g', -1, 64))
	b.WriteString("|")
	b.WriteString(string(req.Strategy))
	b.WriteString("|")
	b.WriteString(strconv.Itoa(req.TeamSize))
	for _, list := range [][]uint{req.PlayerIDs, req.LockedPlayerIDs, req.ExcludedPlayerIDs} {
		b.WriteString("|")
		b.WriteString(joinSortedIDs(list))
	}
	b.WriteString("|")
	roles := make([]string, 0, len(req.RoleConstraints))
	for r, n := range req.RoleConstraints {
		roles = append(roles, fmt.Sprintf("%s=%d", r, n))
	}
	sort.Strings(roles)
	b.WriteString(strings.Join(roles, ","))

	return fmt.Sprintf("optimization:%s:%x", fingerprint, xxhash.Sum64String(b.String()))
}

func joinSortedIDs(ids []uint) string {
	sorted := make([]uint, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	parts := make([]string, 0, len(sorted))
	for i, id := range sorted {
		if i > 0 && id == sorted[i-1] {
			continue
		}
		parts = append(parts, strconv.FormatUint(uint64(id), 10))
	}
	return strings.Join(parts, ",")
}
