package scoring

import (
	"context"
	"time"

	"github.com/wonny/clv-retention/internal/contracts"
	"github.com/wonny/clv-retention/pkg/redis"
)

// CachedReader serves the read-only prediction projections through Redis.
// Keys embed the latest cutoff, so moving the pointer bypasses old entries.
type CachedReader struct {
	inner contracts.PredictionReader
	cache *redis.Cache
}

// NewCachedReader wraps inner with cache
func NewCachedReader(inner contracts.PredictionReader, cache *redis.Cache) *CachedReader {
	return &CachedReader{inner: inner, cache: cache}
}

// LatestCutoff caches the pointer briefly
func (c *CachedReader) LatestCutoff(ctx context.Context) (time.Time, error) {
	var cutoff time.Time
	err := c.cache.GetOrSet(ctx, redis.LatestPointerKey(), &cutoff, redis.TTLShort, func() (interface{}, error) {
		return c.inner.LatestCutoff(ctx)
	})
	return cutoff, err
}

// Latest is not cached; the full partition is too large for a cache entry
func (c *CachedReader) Latest(ctx context.Context) ([]contracts.PredictionRow, error) {
	return c.inner.Latest(ctx)
}

// TopN implements contracts.PredictionReader
func (c *CachedReader) TopN(ctx context.Context, metric string, n int) ([]contracts.PredictionRow, error) {
	if !contracts.IsRankingMetric(metric) {
		return nil, contracts.NewValidationError("by", "unsupported metric %q", metric)
	}
	cutoff, err := c.LatestCutoff(ctx)
	if err != nil {
		return nil, err
	}

	var rows []contracts.PredictionRow
	err = c.cache.GetOrSet(ctx, redis.TopKey(contracts.FormatDate(cutoff), metric, n), &rows, redis.TTLMedium, func() (interface{}, error) {
		return c.inner.TopN(ctx, metric, n)
	})
	return rows, err
}

// Summary implements contracts.PredictionReader
func (c *CachedReader) Summary(ctx context.Context) (*contracts.PredictionSummary, error) {
	cutoff, err := c.LatestCutoff(ctx)
	if err != nil {
		return nil, err
	}

	var s contracts.PredictionSummary
	err = c.cache.GetOrSet(ctx, redis.SummaryKey(contracts.FormatDate(cutoff)), &s, redis.TTLMedium, func() (interface{}, error) {
		return c.inner.Summary(ctx)
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Invalidate drops the cached pointer after a publish
func (c *CachedReader) Invalidate(ctx context.Context) error {
	return c.cache.Delete(ctx, redis.LatestPointerKey())
}
