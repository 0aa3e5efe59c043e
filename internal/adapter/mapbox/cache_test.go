package mapbox

import (
	"context"
	"errors"
	"testing"

	"github.com/couchcryptid/incident-ingest-service/internal/domain"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock for cache tests ---

type countingGeocoder struct {
	forwardCalls int
	reverseCalls int
	result       domain.GeocodingResult
	err          error
}

func (m *countingGeocoder) ForwardGeocode(_ context.Context, _ string) (domain.GeocodingResult, error) {
	m.forwardCalls++
	return m.result, m.err
}

func (m *countingGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (domain.GeocodingResult, error) {
	m.reverseCalls++
	return m.result, m.err
}

func newCached(t *testing.T, inner domain.Geocoder, size int) *CachedGeocoder {
	t.Helper()
	c, err := NewCachedGeocoder(inner, size, testMetrics())
	require.NoError(t, err)
	return c
}

// --- CachedGeocoder tests ---

func TestCachedGeocoder_ForwardCacheHit(t *testing.T) {
	inner := &countingGeocoder{
		result: domain.GeocodingResult{Lat: 13.08, Lon: 80.27, PlaceName: "Chennai", FormattedAddress: "Chennai, Tamil Nadu, India"},
	}
	cached := newCached(t, inner, 10)

	r1, err := cached.ForwardGeocode(context.Background(), "Chennai")
	require.NoError(t, err)
	assert.Equal(t, "Chennai", r1.PlaceName)

	// Keys are case and whitespace insensitive.
	r2, err := cached.ForwardGeocode(context.Background(), "  chennai ")
	require.NoError(t, err)
	assert.Equal(t, "Chennai", r2.PlaceName)

	assert.Equal(t, 1, inner.forwardCalls, "should only call inner once")
	assert.InDelta(t, 1, testutil.ToFloat64(cached.metrics.GeocodeCache.WithLabelValues("forward", "hit")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(cached.metrics.GeocodeCache.WithLabelValues("forward", "miss")), 0)
}

func TestCachedGeocoder_ReverseCacheHit(t *testing.T) {
	inner := &countingGeocoder{
		result: domain.GeocodingResult{FormattedAddress: "Madurai, Tamil Nadu"},
	}
	cached := newCached(t, inner, 10)

	_, err := cached.ReverseGeocode(context.Background(), 9.9252, 78.1198)
	require.NoError(t, err)

	_, err = cached.ReverseGeocode(context.Background(), 9.9252, 78.1198)
	require.NoError(t, err)

	assert.Equal(t, 1, inner.reverseCalls, "should only call inner once")
}

func TestCachedGeocoder_DifferentKeysMiss(t *testing.T) {
	inner := &countingGeocoder{
		result: domain.GeocodingResult{PlaceName: "Place", FormattedAddress: "Place, TN"},
	}
	cached := newCached(t, inner, 10)

	_, _ = cached.ForwardGeocode(context.Background(), "Adyar")
	_, _ = cached.ForwardGeocode(context.Background(), "Tambaram")

	assert.Equal(t, 2, inner.forwardCalls)
	assert.Equal(t, 2, cached.Len())
}

func TestCachedGeocoder_EmptyAndErrorsNotCached(t *testing.T) {
	inner := &countingGeocoder{}
	cached := newCached(t, inner, 10)

	_, _ = cached.ForwardGeocode(context.Background(), "Atlantis")
	_, _ = cached.ForwardGeocode(context.Background(), "Atlantis")
	assert.Equal(t, 2, inner.forwardCalls)

	inner.err = errors.New("boom")
	_, err := cached.ReverseGeocode(context.Background(), 1, 2)
	require.Error(t, err)
	assert.Zero(t, cached.Len())
}

func TestCachedGeocoder_EvictsLeastRecentlyUsed(t *testing.T) {
	inner := &countingGeocoder{
		result: domain.GeocodingResult{FormattedAddress: "somewhere"},
	}
	cached := newCached(t, inner, 2)
	ctx := context.Background()

	_, _ = cached.ForwardGeocode(ctx, "a")
	_, _ = cached.ForwardGeocode(ctx, "b")
	_, _ = cached.ForwardGeocode(ctx, "a") // promotes "a"
	_, _ = cached.ForwardGeocode(ctx, "c") // evicts "b"
	assert.Equal(t, 3, inner.forwardCalls)

	_, _ = cached.ForwardGeocode(ctx, "a")
	assert.Equal(t, 3, inner.forwardCalls, "a should still be cached")

	_, _ = cached.ForwardGeocode(ctx, "b")
	assert.Equal(t, 4, inner.forwardCalls, "b should have been evicted")
}

func TestNewCachedGeocoder_InvalidSize(t *testing.T) {
	_, err := NewCachedGeocoder(&countingGeocoder{}, 0, testMetrics())
	assert.Error(t, err)
}
