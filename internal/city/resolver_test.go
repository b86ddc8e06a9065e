package city

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/granada-guide/mapengine/internal/geo"
)

type fakeGeocoder struct {
	mu    sync.Mutex
	calls atomic.Int32
	hits  map[string]Hit
	err   error
	block chan struct{} // when set, Reverse waits for close or ctx
}

func (f *fakeGeocoder) ReverseCity(ctx context.Context, center geo.LatLng) (Hit, error) {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return Hit{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return Hit{}, f.err
	}
	hit, ok := f.hits[geo.Round3(center.Lat)+","+geo.Round3(center.Lng)]
	if !ok {
		return Hit{}, nil
	}
	return hit, nil
}

func (f *fakeGeocoder) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

var granadaHit = Hit{
	PlaceID:     346012,
	Locality:    "Granada",
	BoundingBox: []string{"37.13", "37.22", "-3.63", "-3.54"},
}

func granadaGeocoder() *fakeGeocoder {
	return &fakeGeocoder{hits: map[string]Hit{
		"37.177,-3.599": granadaHit,
	}}
}

func testConfig(onChange func(Entry, bool)) Config {
	return Config{ZoomThreshold: 15, Debounce: 5 * time.Millisecond, OnChange: onChange}
}

func waitResolved(t *testing.T, r *Resolver) {
	t.Helper()
	require.Eventually(t, func() bool {
		s := r.State()
		return s == StateResolved || s == StateFailed
	}, time.Second, time.Millisecond)
}

func TestObserve_ResolvesCity(t *testing.T) {
	var gotEntry Entry
	var gotOK bool
	var mu sync.Mutex
	r := NewResolver(granadaGeocoder(), testConfig(func(e Entry, ok bool) {
		mu.Lock()
		defer mu.Unlock()
		gotEntry, gotOK = e, ok
	}))
	defer r.Close()

	r.Observe(geo.LatLng{Lat: 37.177, Lng: -3.599}, 16)
	waitResolved(t, r)

	entry, ok := r.Current()
	require.True(t, ok)
	assert.Equal(t, "Granada", entry.Name)
	assert.Equal(t, int64(346012), entry.PlaceID)
	assert.InDelta(t, 37.13, entry.Bounds.MinLat, 1e-9)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, gotOK)
	assert.Equal(t, "Granada", gotEntry.Name)
}

func TestObserve_BelowThresholdClearsAndSkips(t *testing.T) {
	geocoder := granadaGeocoder()
	r := NewResolver(geocoder, testConfig(nil))
	defer r.Close()

	r.Observe(geo.LatLng{Lat: 37.177, Lng: -3.599}, 16)
	waitResolved(t, r)
	_, ok := r.Current()
	require.True(t, ok)

	r.Observe(geo.LatLng{Lat: 37.177, Lng: -3.599}, 13)
	_, ok = r.Current()
	assert.False(t, ok, "zooming out must clear the cached city")
	assert.Equal(t, StateIdle, r.State())

	before := geocoder.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before, geocoder.calls.Load(), "no lookup below the zoom threshold")
}

func TestObserve_CacheHitMakesNoRequest(t *testing.T) {
	geocoder := granadaGeocoder()
	r := NewResolver(geocoder, testConfig(nil))
	defer r.Close()

	r.Observe(geo.LatLng{Lat: 37.177, Lng: -3.599}, 16)
	waitResolved(t, r)
	require.Equal(t, int32(1), geocoder.calls.Load())

	// Pan within Granada's bounds a few times.
	r.Observe(geo.LatLng{Lat: 37.18, Lng: -3.6}, 16)
	r.Observe(geo.LatLng{Lat: 37.16, Lng: -3.58}, 17)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, int32(1), geocoder.calls.Load(), "centers inside the cached bounds are cache hits")
}

func TestObserve_DebounceCollapsesRapidPans(t *testing.T) {
	geocoder := granadaGeocoder()
	r := NewResolver(geocoder, testConfig(nil))
	defer r.Close()

	// Rapid pans outside any cached bounds; only the last should fetch.
	r.Observe(geo.LatLng{Lat: 40.0, Lng: -3.7}, 16)
	r.Observe(geo.LatLng{Lat: 39.0, Lng: -3.7}, 16)
	r.Observe(geo.LatLng{Lat: 37.177, Lng: -3.599}, 16)
	waitResolved(t, r)

	assert.Equal(t, int32(1), geocoder.calls.Load())
	entry, ok := r.Current()
	require.True(t, ok)
	assert.Equal(t, "Granada", entry.Name)
}

func TestObserve_SupersededInFlightDoesNotMutate(t *testing.T) {
	block := make(chan struct{})
	geocoder := granadaGeocoder()
	geocoder.block = block
	r := NewResolver(geocoder, testConfig(nil))
	defer r.Close()

	r.Observe(geo.LatLng{Lat: 37.177, Lng: -3.599}, 16)
	require.Eventually(t, func() bool {
		return geocoder.calls.Load() == 1
	}, time.Second, time.Millisecond)

	// Zoom out while the lookup is in flight: the attempt is canceled.
	r.Observe(geo.LatLng{Lat: 37.177, Lng: -3.599}, 12)
	close(block)
	time.Sleep(20 * time.Millisecond)

	_, ok := r.Current()
	assert.False(t, ok, "a superseded attempt must not install an entry")
	assert.Equal(t, StateIdle, r.State())
}

func TestResolve_FailureKeepsPriorEntry(t *testing.T) {
	geocoder := granadaGeocoder()
	r := NewResolver(geocoder, testConfig(nil))
	defer r.Close()

	r.Observe(geo.LatLng{Lat: 37.177, Lng: -3.599}, 16)
	waitResolved(t, r)

	geocoder.setErr(errors.New("connection refused"))
	r.Observe(geo.LatLng{Lat: 36.72, Lng: -4.42}, 16)
	require.Eventually(t, func() bool {
		return r.State() == StateFailed
	}, time.Second, time.Millisecond)

	entry, ok := r.Current()
	require.True(t, ok, "a network failure keeps the previous city")
	assert.Equal(t, "Granada", entry.Name)
}

func TestResolve_NoUsableCityClearsEntry(t *testing.T) {
	geocoder := granadaGeocoder()
	var clearedOK atomic.Bool
	clearedOK.Store(true)
	r := NewResolver(geocoder, testConfig(func(_ Entry, ok bool) {
		clearedOK.Store(ok)
	}))
	defer r.Close()

	r.Observe(geo.LatLng{Lat: 37.177, Lng: -3.599}, 16)
	waitResolved(t, r)
	_, ok := r.Current()
	require.True(t, ok)

	// Middle of nowhere: the geocoder answers with no locality.
	r.Observe(geo.LatLng{Lat: 36.0, Lng: -7.0}, 16)
	require.Eventually(t, func() bool {
		_, has := r.Current()
		return !has
	}, time.Second, time.Millisecond)

	assert.Equal(t, StateResolved, r.State())
	assert.False(t, clearedOK.Load(), "dependents are told there is no city")
}

func TestResolve_SameCityKeepsEntryIdentity(t *testing.T) {
	geocoder := granadaGeocoder()
	geocoder.hits["37.125,-3.600"] = granadaHit // just south of town, same place id
	var changes atomic.Int32
	r := NewResolver(geocoder, testConfig(func(Entry, bool) {
		changes.Add(1)
	}))
	defer r.Close()

	r.Observe(geo.LatLng{Lat: 37.177, Lng: -3.599}, 16)
	waitResolved(t, r)

	// Outside the cached bounds, but the same city resolves again.
	r.Observe(geo.LatLng{Lat: 37.125, Lng: -3.6}, 16)
	require.Eventually(t, func() bool {
		return geocoder.calls.Load() == 2
	}, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, int32(1), changes.Load(), "re-resolving the same city is not a change")
}
