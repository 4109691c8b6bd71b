package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"transit_notification_engine/internal/domain/ephemeris"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	mu        sync.Mutex
	calls     int
	longitude float64
	err       error
}

func (p *stubProvider) PositionsAt(ctx context.Context, bodies []ephemeris.BodyID, ts time.Time) (map[ephemeris.BodyID]ephemeris.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	out := make(map[ephemeris.BodyID]ephemeris.Position, len(bodies))
	for _, b := range bodies {
		out[b] = ephemeris.Position{Body: b, Timestamp: ts, Longitude: p.longitude}
	}
	return out, nil
}

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestPositionCacheBucketsTimestamps(t *testing.T) {
	provider := &stubProvider{longitude: 123.4}
	c := NewPositionCache(provider, time.Minute)

	ts := time.Unix(1700000000, 0).Truncate(time.Minute)

	pos1, err := c.Get(context.Background(), ephemeris.BodySun, ts.Add(5*time.Second))
	require.NoError(t, err)
	pos2, err := c.Get(context.Background(), ephemeris.BodySun, ts.Add(45*time.Second))
	require.NoError(t, err)

	assert.Equal(t, pos1, pos2)
	assert.Equal(t, 1, provider.callCount(), "both lookups fall into one bucket")

	_, err = c.Get(context.Background(), ephemeris.BodySun, ts.Add(70*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, provider.callCount(), "next bucket triggers a fresh provider call")
}

func TestPositionCacheSingleFlight(t *testing.T) {
	provider := &stubProvider{longitude: 42}
	c := NewPositionCache(provider, time.Minute)
	ts := time.Unix(1700000000, 0)

	const callers = 32
	var wg sync.WaitGroup
	results := make([]float64, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pos, err := c.Get(context.Background(), ephemeris.BodyMoon, ts)
			results[i] = pos.Longitude
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, 42.0, results[i])
	}
	assert.Equal(t, 1, provider.callCount(), "concurrent misses must collapse to one provider call")
}

func TestPositionCacheDoesNotCacheErrors(t *testing.T) {
	provider := &stubProvider{err: fmt.Errorf("boom: %w", ephemeris.ErrProviderUnavailable)}
	c := NewPositionCache(provider, time.Minute)
	ts := time.Unix(1700000000, 0)

	_, err := c.Get(context.Background(), ephemeris.BodySun, ts)
	require.ErrorIs(t, err, ephemeris.ErrProviderUnavailable)

	provider.mu.Lock()
	provider.err = nil
	provider.longitude = 200
	provider.mu.Unlock()

	pos, err := c.Get(context.Background(), ephemeris.BodySun, ts)
	require.NoError(t, err)
	assert.Equal(t, 200.0, pos.Longitude)
	assert.Equal(t, 2, provider.callCount())
}

func TestPositionCacheRejectsZeroTimestamp(t *testing.T) {
	c := NewPositionCache(&stubProvider{}, time.Minute)
	_, err := c.Get(context.Background(), ephemeris.BodySun, time.Time{})
	assert.ErrorIs(t, err, ephemeris.ErrInvalidTimestamp)
}

func TestPositionsAtReturnsPartialOnFailure(t *testing.T) {
	provider := &stubProvider{longitude: 10}
	c := NewPositionCache(provider, time.Minute)
	ts := time.Unix(1700000000, 0)

	// Warm the sun entry, then break the provider.
	_, err := c.Get(context.Background(), ephemeris.BodySun, ts)
	require.NoError(t, err)
	provider.mu.Lock()
	provider.err = ephemeris.ErrProviderUnavailable
	provider.mu.Unlock()

	positions, err := c.PositionsAt(context.Background(), []ephemeris.BodyID{ephemeris.BodySun, ephemeris.BodyMoon}, ts)
	require.ErrorIs(t, err, ephemeris.ErrProviderUnavailable)
	assert.Contains(t, positions, ephemeris.BodySun, "cached bodies survive a provider outage")
	assert.NotContains(t, positions, ephemeris.BodyMoon)
}
