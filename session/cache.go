package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const markerPrefix = "sinv:"

// CacheConfig tunes the two-tier invalidation cache.
type CacheConfig struct {
	// LocalTTL bounds how stale one node's view can be; after it lapses the
	// node re-consults the distributed tier.
	LocalTTL time.Duration
	// LocalSize bounds the in-process map; least-recently-accessed entries
	// are evicted when full.
	LocalSize int
	// Timeout bounds every distributed-cache round-trip.
	Timeout time.Duration
	// MarkerTTL must be at least the maximum session lifetime so a marker
	// cannot expire while its session could otherwise still appear valid.
	MarkerTTL time.Duration
	// SweepInterval is how often the background sweep drops expired local
	// entries.
	SweepInterval time.Duration
}

// DefaultCacheConfig returns production tuning for the given maximum session
// lifetime.
func DefaultCacheConfig(maxSessionLifetime time.Duration) CacheConfig {
	return CacheConfig{
		LocalTTL:      30 * time.Second,
		LocalSize:     1000,
		Timeout:       200 * time.Millisecond,
		MarkerTTL:     maxSessionLifetime,
		SweepInterval: time.Minute,
	}
}

// InvalidationCache answers "must this session be treated as dead" with a
// fast local tier and a Redis marker tier. It is an explicitly constructed
// component with its own lifecycle: call Start after construction and Stop on
// shutdown so no sweep goroutine outlives the process.
type InvalidationCache struct {
	redis  redis.UniversalClient
	config CacheConfig
	logger *slog.Logger

	local *lru.Cache[string, time.Time]

	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewInvalidationCache builds the cache. logger may be nil.
func NewInvalidationCache(redisClient redis.UniversalClient, cfg CacheConfig, logger *slog.Logger) (*InvalidationCache, error) {
	if cfg.LocalTTL <= 0 {
		cfg.LocalTTL = 30 * time.Second
	}
	if cfg.LocalSize <= 0 {
		cfg.LocalSize = 1000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 200 * time.Millisecond
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	local, err := lru.New[string, time.Time](cfg.LocalSize)
	if err != nil {
		return nil, err
	}

	return &InvalidationCache{
		redis:  redisClient,
		config: cfg,
		logger: logger,
		local:  local,
		done:   make(chan struct{}),
	}, nil
}

// Start launches the background sweep that evicts expired local entries.
func (c *InvalidationCache) Start() {
	c.startOnce.Do(func() {
		c.wg.Add(1)
		go c.sweep()
	})
}

// Stop cancels the sweep and waits for it to exit.
func (c *InvalidationCache) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.wg.Wait()
	})
}

// IsInvalidated reports whether sessionID carries an invalidation marker.
// Local hit: no network. Local miss: one bounded Redis round-trip whose
// positive result is back-filled locally. Redis failure: fail open (false).
func (c *InvalidationCache) IsInvalidated(ctx context.Context, sessionID uuid.UUID) bool {
	key := sessionID.String()
	now := time.Now()

	if expiry, ok := c.local.Get(key); ok {
		if now.Before(expiry) {
			return true
		}
		c.local.Remove(key)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	n, err := c.redis.Exists(ctx, markerPrefix+key).Result()
	if err != nil {
		c.logger.Warn("invalidation cache unreachable, failing open",
			"session_id", key, "error", err)
		return false
	}
	if n > 0 {
		c.local.Add(key, now.Add(c.config.LocalTTL))
		return true
	}
	return false
}

// Set records a validity change. Invalidations always land locally and are
// best-effort mirrored to the distributed tier; re-validation (rare, admin
// undo) removes both.
func (c *InvalidationCache) Set(ctx context.Context, sessionID uuid.UUID, isValid bool) {
	key := sessionID.String()

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	if isValid {
		c.local.Remove(key)
		if err := c.redis.Del(ctx, markerPrefix+key).Err(); err != nil {
			c.logger.Warn("invalidation marker delete failed", "session_id", key, "error", err)
		}
		return
	}

	c.local.Add(key, time.Now().Add(c.config.LocalTTL))
	if err := c.redis.Set(ctx, markerPrefix+key, "1", c.config.MarkerTTL).Err(); err != nil {
		c.logger.Warn("invalidation marker write failed", "session_id", key, "error", err)
	}
}

func (c *InvalidationCache) sweep() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			for _, key := range c.local.Keys() {
				if expiry, ok := c.local.Peek(key); ok && !now.Before(expiry) {
					c.local.Remove(key)
				}
			}
		case <-c.done:
			return
		}
	}
}

// purgeLocal empties the local tier. Test hook for exercising the
// distributed fallback path.
func (c *InvalidationCache) purgeLocal() {
	c.local.Purge()
}
