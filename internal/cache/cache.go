package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/nilansh-07/FintelAI/constants"
	"github.com/nilansh-07/FintelAI/internal/common"
	"github.com/nilansh-07/FintelAI/internal/entity"
)

// ComputeFunc produces the result for a key on a miss.
type ComputeFunc func(ctx context.Context) (entity.ExtractionResult, error)

// Store is the optional durable second level behind the in-memory LRU.
type Store interface {
	Get(ctx context.Context, key string) (entity.ExtractionResult, time.Time, error)
	Put(ctx context.Context, res entity.ExtractionResult, expiresAt time.Time) error
}

type Config struct {
	MaxEntries int
	ValidTTL   time.Duration
	InvalidTTL time.Duration
}

// ConfigFrom maps the application config onto cache settings.
func ConfigFrom(c common.CacheConfig) Config {
	return Config{MaxEntries: c.MaxEntries, ValidTTL: c.TTL, InvalidTTL: c.InvalidTTL}
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits         uint64 `json:"hits"`
	Misses       uint64 `json:"misses"`
	Computations uint64 `json:"computations"`
	StoreHits    uint64 `json:"store_hits"`
	Evictions    uint64 `json:"evictions"`
	InFlight     int    `json:"in_flight"`
	Entries      int    `json:"entries"`
}

type entry struct {
	res       entity.ExtractionResult
	expiresAt time.Time
}

// call is the in-flight marker for one key. res and err are written
// before done is closed and are read-only afterwards.
type call struct {
	done chan struct{}
	res  entity.ExtractionResult
	err  error
}

var errComputePanicked = errors.New("cache: compute panicked")

// Cache memoizes extraction results by request key and collapses concurrent
// requests for the same key into one computation.
type Cache struct {
	cfg    Config
	store  Store
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	lru      *simplelru.LRU[string, entry]
	inflight map[string]*call
	stats    Stats
}

type Option func(*Cache)

// WithStore adds a durable second level.
func WithStore(s Store) Option {
	return func(c *Cache) { c.store = s }
}

// WithClock overrides time.Now for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(cfg Config, logger *slog.Logger, opts ...Option) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1024
	}
	if cfg.ValidTTL <= 0 {
		cfg.ValidTTL = 24 * time.Hour
	}
	if cfg.InvalidTTL <= 0 {
		cfg.InvalidTTL = 5 * time.Minute
	}
	c := &Cache{
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
		inflight: make(map[string]*call),
	}
	l, err := simplelru.NewLRU[string, entry](cfg.MaxEntries, func(string, entry) { c.stats.Evictions++ })
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	c.lru = l
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetOrCompute returns the cached result for key or runs compute at most
// once across concurrent callers. A caller waiting on another's computation
// stops waiting when its own ctx ends. Computations that fail are never
// cached; if one failed because its caller's context ended, live waiters
// retry and one of them computes.
func (c *Cache) GetOrCompute(ctx context.Context, key string, compute ComputeFunc) (entity.ExtractionResult, error) {
	for {
		if err := ctx.Err(); err != nil {
			return entity.ExtractionResult{}, err
		}

		c.mu.Lock()
		if e, ok := c.lru.Get(key); ok {
			if c.now().Before(e.expiresAt) {
				c.stats.Hits++
				c.mu.Unlock()
				return hit(e.res), nil
			}
			c.lru.Remove(key)
		}

		if cl, ok := c.inflight[key]; ok {
			c.mu.Unlock()
			select {
			case <-cl.done:
			case <-ctx.Done():
				c.logger.Debug("cache.wait_abandoned", "key", short(key), "error", ctx.Err())
				return entity.ExtractionResult{}, ctx.Err()
			}
			if cl.err == nil {
				c.mu.Lock()
				c.stats.Hits++
				c.mu.Unlock()
				return hit(cl.res), nil
			}
			if isContextErr(cl.err) {
				c.logger.Debug("cache.leader_aborted", "key", short(key))
				continue
			}
			return entity.ExtractionResult{}, cl.err
		}

		cl := &call{done: make(chan struct{})}
		c.inflight[key] = cl
		c.stats.Misses++
		c.mu.Unlock()

		return c.lead(ctx, key, cl, compute)
	}
}

func (c *Cache) lead(ctx context.Context, key string, cl *call, compute ComputeFunc) (entity.ExtractionResult, error) {
	finished := false
	defer func() {
		if !finished {
			_ = c.finish(key, cl, entity.ExtractionResult{}, errComputePanicked, time.Time{})
		}
	}()

	if res, expiresAt, ok := c.load(ctx, key); ok {
		finished = true
		if err := c.finish(key, cl, res, nil, expiresAt); err != nil {
			return entity.ExtractionResult{}, err
		}
		c.mu.Lock()
		c.stats.StoreHits++
		c.mu.Unlock()
		return hit(res), nil
	}

	c.mu.Lock()
	c.stats.Computations++
	c.mu.Unlock()

	start := time.Now()
	res, err := compute(ctx)
	finished = true
	if err == nil {
		if res.Key == "" {
			res.Key = key
		}
		if res.CreatedAt.IsZero() {
			res.CreatedAt = c.now()
		}
	}
	expiresAt := c.now().Add(c.ttl(res))
	if ferr := c.finish(key, cl, res, err, expiresAt); ferr != nil {
		return entity.ExtractionResult{}, ferr
	}
	if err != nil {
		c.logger.Debug("cache.compute_failed", "key", short(key), "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return entity.ExtractionResult{}, err
	}
	c.logger.Debug("cache.computed", "key", short(key), "status", res.Status, "elapsed_ms", time.Since(start).Milliseconds())
	c.save(ctx, res, expiresAt)
	return res, nil
}

// finish clears the in-flight marker, caches successful results and wakes
// waiters, all under one lock.
func (c *Cache) finish(key string, cl *call, res entity.ExtractionResult, err error, expiresAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer close(cl.done)

	cur, ok := c.inflight[key]
	if !ok || cur != cl {
		cerr := common.CacheConsistencyf("in-flight marker for key %s is missing or owned by another call", short(key))
		c.logger.Error("cache.consistency_violation", "key", short(key), "marker_present", ok)
		cl.err = cerr
		return cerr
	}
	delete(c.inflight, key)
	cl.res, cl.err = res, err
	if err == nil {
		c.lru.Add(key, entry{res: res, expiresAt: expiresAt})
	}
	return nil
}

func (c *Cache) load(ctx context.Context, key string) (entity.ExtractionResult, time.Time, bool) {
	if c.store == nil {
		return entity.ExtractionResult{}, time.Time{}, false
	}
	res, expiresAt, err := c.store.Get(ctx, key)
	if err != nil {
		if !isNotFound(err) {
			c.logger.Warn("cache.store_get_failed", "key", short(key), "error", err)
		}
		return entity.ExtractionResult{}, time.Time{}, false
	}
	if !c.now().Before(expiresAt) {
		return entity.ExtractionResult{}, time.Time{}, false
	}
	return res, expiresAt, true
}

func (c *Cache) save(ctx context.Context, res entity.ExtractionResult, expiresAt time.Time) {
	if c.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.store.Put(ctx, res, expiresAt); err != nil {
		c.logger.Warn("cache.store_put_failed", "key", short(res.Key), "error", err)
	}
}

func (c *Cache) ttl(res entity.ExtractionResult) time.Duration {
	if res.Status == constants.StatusInvalid {
		return c.cfg.InvalidTTL
	}
	return c.cfg.ValidTTL
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.InFlight = len(c.inflight)
	s.Entries = c.lru.Len()
	return s
}

func hit(res entity.ExtractionResult) entity.ExtractionResult {
	res.Cached = true
	return res
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// notFound is implemented by store sentinels that mark a plain miss.
type notFound interface{ NotFound() bool }

func isNotFound(err error) bool {
	var nf notFound
	return errors.As(err, &nf) && nf.NotFound()
}

func short(k string) string {
	if len(k) > 12 {
		return k[:12]
	}
	return k
}
