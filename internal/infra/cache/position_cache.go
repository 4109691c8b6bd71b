package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"transit_notification_engine/internal/domain/ephemeris"
	"transit_notification_engine/internal/infra/metrics"

	"golang.org/x/sync/singleflight"
)

const defaultPositionBucket = time.Minute

// PositionCache memoizes position-provider results keyed by (body, time
// bucket). Timestamps are truncated to the bucket width before lookup and
// entries live exactly one bucket width, which bounds the provider call rate
// to one call per body per bucket. Concurrent misses for the same key collapse
// to a single provider call via singleflight; provider errors propagate to all
// waiters and are never cached.
type PositionCache struct {
	provider ephemeris.Provider
	bucket   time.Duration

	mu      sync.RWMutex
	entries map[string]positionEntry
	flight  singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

type positionEntry struct {
	pos       ephemeris.Position
	expiresAt time.Time
}

// NewPositionCache wraps the provider with a bucketing memoization layer.
func NewPositionCache(provider ephemeris.Provider, bucket time.Duration) *PositionCache {
	if bucket <= 0 {
		bucket = defaultPositionBucket
	}
	return &PositionCache{
		provider: provider,
		bucket:   bucket,
		entries:  make(map[string]positionEntry),
	}
}

// Get returns the position of one body at the bucketed timestamp, calling the
// provider on miss. The cache does not retry: retry policy belongs to the
// caller's tick logic.
func (c *PositionCache) Get(ctx context.Context, body ephemeris.BodyID, ts time.Time) (ephemeris.Position, error) {
	if err := ephemeris.ValidateTimestamp(ts); err != nil {
		return ephemeris.Position{}, err
	}

	bucketTS := ts.Truncate(c.bucket)
	key := string(body) + "@" + strconv.FormatInt(bucketTS.Unix(), 10)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		c.hits.Add(1)
		metrics.RecordCacheLookup("position", true)
		return entry.pos, nil
	}
	c.misses.Add(1)
	metrics.RecordCacheLookup("position", false)

	result, err, _ := c.flight.Do(key, func() (interface{}, error) {
		// Double-check inside singleflight: another caller may have
		// populated the entry while we queued.
		c.mu.RLock()
		entry, ok := c.entries[key]
		c.mu.RUnlock()
		if ok && time.Now().Before(entry.expiresAt) {
			return entry.pos, nil
		}

		positions, err := c.provider.PositionsAt(ctx, []ephemeris.BodyID{body}, bucketTS)
		if err != nil {
			return nil, fmt.Errorf("position lookup for %s: %w", body, err)
		}
		pos, ok := positions[body]
		if !ok {
			return nil, fmt.Errorf("position lookup for %s: %w", body, ephemeris.ErrProviderUnavailable)
		}
		pos.Longitude = ephemeris.NormalizeLongitude(pos.Longitude)

		c.mu.Lock()
		c.entries[key] = positionEntry{pos: pos, expiresAt: time.Now().Add(c.bucket)}
		c.mu.Unlock()
		return pos, nil
	})
	if err != nil {
		return ephemeris.Position{}, err
	}
	return result.(ephemeris.Position), nil
}

// PositionsAt fetches a set of bodies for one timestamp. Bodies whose lookup
// fails are omitted from the result; the first error encountered is returned
// alongside the partial map so the caller can skip affected pairs only.
func (c *PositionCache) PositionsAt(ctx context.Context, bodies []ephemeris.BodyID, ts time.Time) (map[ephemeris.BodyID]ephemeris.Position, error) {
	out := make(map[ephemeris.BodyID]ephemeris.Position, len(bodies))
	var firstErr error
	for _, body := range bodies {
		pos, err := c.Get(ctx, body, ts)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out[body] = pos
	}
	return out, firstErr
}

// Sweep drops expired entries. Called periodically by the scheduler to keep
// the map from accumulating dead buckets.
func (c *PositionCache) Sweep() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Stats returns cumulative hit and miss counts.
func (c *PositionCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
