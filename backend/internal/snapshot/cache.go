// Package snapshot caches fully materialized person records. The cache is an
// optimization only: backend failures read as misses and are never returned.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"noahs-ark/backend/internal/constants"
	"noahs-ark/backend/internal/genealogy"
	"noahs-ark/backend/internal/metrics"
	"noahs-ark/backend/pkg/logger"
)

// CachedSnapshot is a copy of a person record as it was at CachedAt
type CachedSnapshot struct {
	Person   genealogy.Person `json:"person"`
	CachedAt time.Time        `json:"cached_at"`
}

// Backend is a byte store with per-entry expiry
type Backend interface {
	// Get returns ok=false on a miss; err is reserved for backend failures
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Loader fetches the authoritative record on a miss. A nil person means the
// record does not exist and nothing is cached.
type Loader func(ctx context.Context) (*genealogy.Person, error)

// Cache stores person snapshots under "person:<id>" keys.
//
// GetOrLoad uses a per-key generation counter: it reads the generation before
// loading and only stores the loaded value if no Invalidate bumped it in
// between. The generation is read again after the store; if it moved, the
// entry is deleted, so a fill never outlives an invalidation.
type Cache struct {
	backend Backend
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time

	group singleflight.Group

	mu   sync.Mutex
	gens map[genealogy.PersonID]uint64
}

// CacheOption configures a Cache
type CacheOption func(*Cache)

// WithClock replaces time.Now for CachedAt stamps
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates a cache over backend. ttl <= 0 uses the default.
func NewCache(backend Backend, ttl time.Duration, opts ...CacheOption) *Cache {
	if ttl <= 0 {
		ttl = constants.DefaultSnapshotTTL
	}
	c := &Cache{
		backend: backend,
		ttl:     ttl,
		logger:  logger.Component("snapshot"),
		now:     time.Now,
		gens:    make(map[genealogy.PersonID]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key is the backend key for id
func Key(id genealogy.PersonID) string {
	return constants.PersonCacheKeyPrefix + id.String()
}

// TTL is the default time-to-live used by GetOrLoad
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached snapshot for id. A miss, an undecodable entry and a
// backend failure all return ok=false.
func (c *Cache) Get(ctx context.Context, id genealogy.PersonID) (*CachedSnapshot, bool) {
	raw, ok, err := c.backend.Get(ctx, Key(id))
	if err != nil {
		c.backendFailed("get", id, err)
		metrics.SnapshotCacheRequests.WithLabelValues(metrics.CacheError).Inc()
		return nil, false
	}
	if !ok {
		metrics.SnapshotCacheRequests.WithLabelValues(metrics.CacheMiss).Inc()
		return nil, false
	}

	var snap CachedSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		c.logger.Warn("Discarding undecodable snapshot",
			zap.String("person_id", id.String()),
			zap.Error(err),
		)
		_ = c.Invalidate(ctx, id)
		metrics.SnapshotCacheRequests.WithLabelValues(metrics.CacheMiss).Inc()
		return nil, false
	}

	metrics.SnapshotCacheRequests.WithLabelValues(metrics.CacheHit).Inc()
	return &snap, true
}

// Put stores snap under id for ttl, overwriting any existing entry
func (c *Cache) Put(ctx context.Context, id genealogy.PersonID, snap CachedSnapshot, ttl time.Duration) {
	c.put(ctx, id, snap, ttl)
}

func (c *Cache) put(ctx context.Context, id genealogy.PersonID, snap CachedSnapshot, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = c.ttl
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		c.logger.Error("Failed to encode snapshot", zap.String("person_id", id.String()), zap.Error(err))
		return false
	}
	if err := c.backend.Set(ctx, Key(id), raw, ttl); err != nil {
		c.backendFailed("set", id, err)
		return false
	}
	return true
}

// Invalidate removes the entry for id. Safe to call when absent. The
// returned error is the backend failure, already logged; the entry may
// still be served until it expires.
func (c *Cache) Invalidate(ctx context.Context, id genealogy.PersonID) error {
	c.mu.Lock()
	c.gens[id]++
	c.mu.Unlock()

	if err := c.backend.Delete(ctx, Key(id)); err != nil {
		c.backendFailed("delete", id, err)
		return err
	}
	return nil
}

// InvalidateAll invalidates each id and joins the backend failures
func (c *Cache) InvalidateAll(ctx context.Context, ids ...genealogy.PersonID) error {
	var errs []error
	for _, id := range ids {
		if err := c.Invalidate(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GetOrLoad serves id from the cache, or loads it once for all concurrent
// callers and fills the cache. Loader errors are returned as is.
func (c *Cache) GetOrLoad(ctx context.Context, id genealogy.PersonID, load Loader) (*genealogy.Person, error) {
	if snap, ok := c.Get(ctx, id); ok {
		person := snap.Person
		return &person, nil
	}

	v, err, _ := c.group.Do(Key(id), func() (interface{}, error) {
		gen := c.generation(id)

		person, err := load(ctx)
		if err != nil || person == nil {
			return person, err
		}

		if c.generation(id) != gen {
			c.logger.Debug("Skipping fill after concurrent invalidation", zap.String("person_id", id.String()))
			return person, nil
		}
		if c.put(ctx, id, CachedSnapshot{Person: *person, CachedAt: c.now()}, c.ttl) && c.generation(id) != gen {
			// an invalidation landed between the check and the store
			if err := c.backend.Delete(ctx, Key(id)); err != nil {
				c.backendFailed("delete", id, err)
			}
		}
		return person, nil
	})
	if err != nil {
		return nil, err
	}
	person, _ := v.(*genealogy.Person)
	if person == nil {
		return nil, nil
	}
	// Callers sharing one load must not share one struct.
	out := *person
	return &out, nil
}

func (c *Cache) generation(id genealogy.PersonID) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[id]
}

func (c *Cache) backendFailed(op string, id genealogy.PersonID, err error) {
	metrics.SnapshotCacheErrors.WithLabelValues(op).Inc()
	c.logger.Warn("Snapshot cache backend failed, continuing without cache",
		zap.String("op", op),
		zap.String("person_id", id.String()),
		zap.Error(err),
	)
}
