// Package cache provides a two-level read-through cache: an in-process
// expirable LRU (L1) in front of an optional shared Redis layer (L2).
//
// Concurrent misses for the same key are coalesced so a burst of requests for
// one tenant produces a single store read. The shared load runs detached from
// the caller that started it, bounded by Config.LoadTimeout, so one canceled
// request does not fail the others waiting on the same key. Loader errors are
// never cached.
// Cached values are shared between callers and must be treated as immutable.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/gatehouse/pkg/async"
	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// Cache layer labels used in metrics
const (
	LayerL1 = "l1"
	LayerL2 = "l2"
)

// Loader reads the authoritative value for key.
type Loader[V any] func(ctx context.Context, key string) (V, error)

// Config configures a read-through cache
type Config struct {
	// Name labels metrics and Redis keys, e.g. "tenant" or "plan".
	Name string
	// Size is the L1 entry capacity.
	Size int
	// TTL bounds staleness of L1 entries.
	TTL time.Duration
	// Redis enables the shared L2 layer when non-nil.
	Redis *redis.Client
	// RedisTTL bounds staleness of L2 entries. Defaults to TTL.
	RedisTTL time.Duration
	// KeyPrefix namespaces Redis keys.
	KeyPrefix string
	// LoadTimeout bounds a coalesced L2 read plus load. Defaults to 5s.
	LoadTimeout time.Duration
}

const defaultLoadTimeout = 5 * time.Second

// DefaultConfig returns a config with a 30s TTL
func DefaultConfig(name string) Config {
	return Config{
		Name:        name,
		Size:        10000,
		TTL:         30 * time.Second,
		KeyPrefix:   "gatehouse",
		LoadTimeout: defaultLoadTimeout,
	}
}

// ReadThrough is a two-level cache for values of type V
type ReadThrough[V any] struct {
	name        string
	l1          *lru.LRU[string, V]
	redis       *redis.Client
	redisTTL    time.Duration
	prefix      string
	loadTimeout time.Duration
	group       singleflight.Group

	metrics *observability.Metrics
	logger  *observability.Logger
}

// New creates a read-through cache. metrics and logger may be nil.
func New[V any](cfg Config, metrics *observability.Metrics, logger *observability.Logger) *ReadThrough[V] {
	if cfg.Size <= 0 {
		cfg.Size = 10000
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.RedisTTL <= 0 {
		cfg.RedisTTL = cfg.TTL
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = defaultLoadTimeout
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &ReadThrough[V]{
		name:        cfg.Name,
		l1:          lru.NewLRU[string, V](cfg.Size, nil, cfg.TTL),
		redis:       cfg.Redis,
		redisTTL:    cfg.RedisTTL,
		prefix:      cfg.KeyPrefix,
		loadTimeout: cfg.LoadTimeout,
		metrics:     metrics,
		logger:      logger.WithField("cache", cfg.Name),
	}
}

// Get returns the cached value for key, loading it on a miss.
func (c *ReadThrough[V]) Get(ctx context.Context, key string, load Loader[V]) (V, error) {
	if v, ok := c.l1.Get(key); ok {
		c.metrics.CacheHit(c.name, LayerL1)
		return v, nil
	}
	c.metrics.CacheMiss(c.name, LayerL1)

	ch := c.group.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()

		if v, ok := c.getL2(loadCtx, key); ok {
			c.l1.Add(key, v)
			return v, nil
		}

		v, err := load(loadCtx, key)
		if err != nil {
			return nil, err
		}
		c.l1.Add(key, v)
		c.setL2(ctx, key, v)
		return v, nil
	})

	var zero V
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Invalidate removes key from both layers.
func (c *ReadThrough[V]) Invalidate(ctx context.Context, key string) error {
	c.l1.Remove(key)
	if c.redis == nil {
		return nil
	}
	if err := c.redis.Del(ctx, c.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// Purge clears the L1 layer.
func (c *ReadThrough[V]) Purge() {
	c.l1.Purge()
}

// Len returns the number of L1 entries.
func (c *ReadThrough[V]) Len() int {
	return c.l1.Len()
}

func (c *ReadThrough[V]) redisKey(key string) string {
	return fmt.Sprintf("%s:%s:%s", c.prefix, c.name, key)
}

func (c *ReadThrough[V]) getL2(ctx context.Context, key string) (V, bool) {
	var zero V
	if c.redis == nil {
		return zero, false
	}

	data, err := c.redis.Get(ctx, c.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.metrics.CacheMiss(c.name, LayerL2)
		return zero, false
	}
	if err != nil {
		c.logger.WithError(err).Warn("redis get failed, falling back to store")
		return zero, false
	}

	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		// Corrupt entry: drop it and reload from the store.
		c.redis.Del(ctx, c.redisKey(key))
		return zero, false
	}
	c.metrics.CacheHit(c.name, LayerL2)
	return v, true
}

func (c *ReadThrough[V]) setL2(ctx context.Context, key string, v V) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.WithError(err).Warn("failed to marshal cache entry")
		return
	}
	redisKey := c.redisKey(key)
	async.SafeGo(ctx, c.logger, 2*time.Second, "populate "+c.name+" cache", func(ctx context.Context) error {
		return c.redis.Set(ctx, redisKey, data, c.redisTTL).Err()
	})
}
