package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/couchcryptid/aurora-alert-service/internal/domain"
	"github.com/couchcryptid/aurora-alert-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Fetcher retrieves a fresh forecast. Implemented by Client.
type Fetcher interface {
	Fetch(ctx context.Context) (*domain.Grid, []byte, error)
}

// slotEnvelope is the durable single-slot file format: the raw upstream
// payload plus the time it was fetched.
type slotEnvelope struct {
	FetchedAt time.Time       `json:"fetched_at"`
	Payload   json.RawMessage `json:"payload"`
}

// Cache serves forecast grids with time-to-live caching and stale-cache
// fallback on fetch failure. The last good payload is persisted to a durable
// file slot so a restart (or an upstream outage) never loses the most recent
// forecast.
//
// Get is safe under concurrent callers; duplicate concurrent misses share a
// single in-flight fetch.
type Cache struct {
	fetcher Fetcher
	path    string
	ttl     time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics
	clk     clockwork.Clock

	mu        sync.Mutex
	loaded    bool // slot file read attempted
	grid      *domain.Grid
	fetchedAt time.Time
	inflight  *inflightFetch
}

type inflightFetch struct {
	done chan struct{}
	grid *domain.Grid
	err  error
}

// NewCache creates a forecast cache backed by the durable slot at path.
func NewCache(fetcher Fetcher, path string, ttl time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Cache {
	return &Cache{
		fetcher: fetcher,
		path:    path,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
		clk:     clockwork.NewRealClock(),
	}
}

// Get returns the current forecast grid.
//
// If the cached copy is younger than the TTL it is returned without a network
// call. Otherwise one fetch runs (shared by all concurrent callers); on
// success the raw payload is persisted atomically and the fresh grid
// returned. On failure any previously persisted grid, however old, is
// returned instead with a warning; only when no forecast was ever persisted
// does Get fail, wrapping domain.ErrNoCache.
func (c *Cache) Get(ctx context.Context) (*domain.Grid, error) {
	c.mu.Lock()

	if !c.loaded {
		c.loadSlotLocked()
	}

	if c.grid != nil && c.clk.Now().Sub(c.fetchedAt) < c.ttl {
		grid := c.grid
		c.mu.Unlock()
		c.metrics.CacheResults.WithLabelValues("fresh").Inc()
		return grid, nil
	}

	if fl := c.inflight; fl != nil {
		c.mu.Unlock()
		select {
		case <-fl.done:
			return fl.grid, fl.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	fl := &inflightFetch{done: make(chan struct{})}
	c.inflight = fl
	c.mu.Unlock()

	grid, raw, err := c.fetcher.Fetch(ctx)

	// The slot write stays outside the mutex so fresh-hit readers never
	// block on disk I/O. Persisting before the in-flight marker clears keeps
	// slot writes from interleaving across fetches.
	var persistErr error
	now := c.clk.Now()
	if err == nil {
		persistErr = c.persistSlot(raw, now)
	}

	c.mu.Lock()
	c.inflight = nil
	if err != nil {
		c.metrics.ForecastFetches.WithLabelValues("error").Inc()
		if c.grid != nil {
			c.logger.Warn("forecast fetch failed, serving stale cache",
				"error", err,
				"cache_age", c.clk.Now().Sub(c.fetchedAt),
			)
			c.metrics.CacheResults.WithLabelValues("stale_fallback").Inc()
			fl.grid = c.grid
		} else {
			c.metrics.CacheResults.WithLabelValues("miss").Inc()
			fl.err = fmt.Errorf("%w: %v", domain.ErrNoCache, err)
		}
	} else {
		c.metrics.ForecastFetches.WithLabelValues("success").Inc()
		c.metrics.CacheResults.WithLabelValues("fetched").Inc()
		if persistErr != nil {
			// The fetched grid is still good; losing the slot only costs the
			// next restart its fallback.
			c.logger.Error("failed to persist forecast cache", "error", persistErr, "path", c.path)
		}
		c.grid = grid
		c.fetchedAt = now
		fl.grid = grid
	}
	close(fl.done)
	c.mu.Unlock()

	return fl.grid, fl.err
}

// loadSlotLocked reads the durable slot into memory. Missing or corrupt slots
// leave the cache empty; corruption is logged.
func (c *Cache) loadSlotLocked() {
	c.loaded = true

	data, err := os.ReadFile(c.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("failed to read forecast cache slot", "error", err, "path", c.path)
		}
		return
	}

	var env slotEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("corrupt forecast cache slot, ignoring", "error", err, "path", c.path)
		return
	}

	grid, err := domain.ParseGrid(env.Payload)
	if err != nil {
		c.logger.Warn("cached forecast payload no longer parses, ignoring", "error", err, "path", c.path)
		return
	}

	c.grid = grid
	c.fetchedAt = env.FetchedAt
	c.logger.Info("forecast cache slot loaded",
		"fetched_at", env.FetchedAt,
		"samples", len(grid.Samples),
	)
}

// persistSlot writes the envelope to a temp file in the slot's directory and
// renames it into place, so readers never observe a partial write.
func (c *Cache) persistSlot(raw []byte, fetchedAt time.Time) error {
	data, err := json.Marshal(slotEnvelope{FetchedAt: fetchedAt, Payload: raw})
	if err != nil {
		return fmt.Errorf("encode cache slot: %w", err)
	}

	dir := filepath.Dir(c.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp slot: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp slot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp slot: %w", err)
	}

	if err := os.Rename(tmp.Name(), c.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("swap cache slot: %w", err)
	}
	return nil
}
