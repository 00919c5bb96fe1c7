package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/buessow/glumagic/internal/cache"
	"github.com/buessow/glumagic/internal/engine"
)

// CachedProvider decorates a provider with a cache for high heart rate
// counts. Counts over closed windows never change, so they are safe to keep
// for the cache TTL.
type CachedProvider struct {
	engine.Provider
	cache  cache.Provider
	ttl    time.Duration
	step   time.Duration
	logger *slog.Logger
}

// NewCachedProvider wraps inner. step is the interval used when counts have
// to be derived from raw heart rates.
func NewCachedProvider(inner engine.Provider, c cache.Provider, ttl, step time.Duration, logger *slog.Logger) *CachedProvider {
	if logger == nil {
		logger = slog.Default()
	}
	if c == nil {
		c = cache.NoopProvider{}
	}
	return &CachedProvider{Provider: inner, cache: c, ttl: ttl, step: step, logger: logger}
}

// HighHeartRateCounts serves counts from the cache, falling back to the
// wrapped provider. Cache failures are logged and never fail the request.
func (c *CachedProvider) HighHeartRateCounts(ctx context.Context, at time.Time, threshold float64, lookbacks []time.Duration) ([]float64, error) {
	key := dwellCacheKey(at, threshold, lookbacks)
	if data, err := c.cache.Get(ctx, key); err == nil {
		var counts []float64
		if err := json.Unmarshal(data, &counts); err == nil && len(counts) == len(lookbacks) {
			return counts, nil
		}
		c.logger.Warn("discarding malformed cache entry", slog.String("key", key))
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn("cache lookup failed", slog.String("key", key), slog.Any("error", err))
	}

	counts, err := c.derive(ctx, at, threshold, lookbacks)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(counts); err == nil {
		if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
			c.logger.Warn("cache store failed", slog.String("key", key), slog.Any("error", err))
		}
	}
	return counts, nil
}

func (c *CachedProvider) derive(ctx context.Context, at time.Time, threshold float64, lookbacks []time.Duration) ([]float64, error) {
	if dp, ok := c.Provider.(engine.DwellProvider); ok {
		return dp.HighHeartRateCounts(ctx, at, threshold, lookbacks)
	}
	return engine.DeriveDwellCounts(ctx, c.Provider, at, threshold, lookbacks, c.step)
}

func dwellCacheKey(at time.Time, threshold float64, lookbacks []time.Duration) string {
	parts := make([]string, len(lookbacks))
	for i, l := range lookbacks {
		parts[i] = strconv.FormatInt(int64(l/time.Second), 10)
	}
	return fmt.Sprintf("glumagic:hrlong:%d:%s:%s",
		at.UnixMilli(), strconv.FormatFloat(threshold, 'g', -1, 64), strings.Join(parts, ","))
}
