package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jonesrussell/north-cloud/veritas/internal/domain"
	"github.com/jonesrussell/north-cloud/veritas/internal/telemetry"
	infralogger "github.com/jonesrussell/north-cloud/veritas/infrastructure/logger"
)

const (
	// KeyPrefix is prepended to the article URL to form the cache key.
	KeyPrefix = "analysis_"
	// DefaultTTL is how long an entry substitutes for a remote call.
	DefaultTTL = time.Hour
)

// Key returns the cache key for an article URL.
func Key(url string) string {
	return KeyPrefix + url
}

// ResultCache is a best-effort cache of remote results. Storage failures are
// logged and read as misses; they never fail an analysis.
type ResultCache struct {
	store     Store
	ttl       time.Duration
	logger    infralogger.Logger
	telemetry *telemetry.Provider
}

// NewResultCache wraps store. A non-positive ttl uses DefaultTTL.
func NewResultCache(store Store, ttl time.Duration, logger infralogger.Logger, tp *telemetry.Provider) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResultCache{store: store, ttl: ttl, logger: logger, telemetry: tp}
}

// Get returns the entry for url if one exists and is fresh at now.
func (c *ResultCache) Get(ctx context.Context, url string, now time.Time) (domain.CacheEntry, bool) {
	key := Key(url)

	raw, err := c.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		c.telemetry.RecordCacheLookup(telemetry.CacheMiss)
		return domain.CacheEntry{}, false
	}
	if err != nil {
		c.logger.Warn("Cache read failed, treating as miss",
			infralogger.String("cache_key", key),
			infralogger.Error(err),
		)
		c.telemetry.RecordCacheLookup(telemetry.CacheError)
		return domain.CacheEntry{}, false
	}

	var entry domain.CacheEntry
	if err = json.Unmarshal(raw, &entry); err != nil {
		c.logger.Warn("Cache entry undecodable, treating as miss",
			infralogger.String("cache_key", key),
			infralogger.Error(err),
		)
		c.telemetry.RecordCacheLookup(telemetry.CacheError)
		return domain.CacheEntry{}, false
	}

	if !entry.FreshFor(now, c.ttl) {
		c.logger.Debug("Cache entry stale",
			infralogger.String("cache_key", key),
			infralogger.Time("cached_at", entry.Timestamp),
		)
		c.telemetry.RecordCacheLookup(telemetry.CacheStale)
		return domain.CacheEntry{}, false
	}

	c.telemetry.RecordCacheLookup(telemetry.CacheHit)
	return entry, true
}

// Put stores result for url stamped with now, overwriting any previous entry.
func (c *ResultCache) Put(ctx context.Context, url string, result domain.AnalysisResult, now time.Time) {
	key := Key(url)

	raw, err := json.Marshal(domain.CacheEntry{Result: result, Timestamp: now})
	if err != nil {
		c.logger.Error("Cache entry encode failed", infralogger.String("cache_key", key), infralogger.Error(err))
		return
	}

	if err = c.store.Set(ctx, key, raw); err != nil {
		c.logger.Warn("Cache write failed",
			infralogger.String("cache_key", key),
			infralogger.Error(err),
		)
		return
	}

	c.logger.Debug("Cached analysis result", infralogger.String("cache_key", key))
}
