package viewport

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/granada-guide/mapengine/internal/geo"
	"github.com/granada-guide/mapengine/internal/model"
)

var testBounds = geo.BoundingBox{MinLat: 37.17, MaxLat: 37.18, MinLng: -3.6, MaxLng: -3.59}

func TestSetView_FansOutInRegistrationOrder(t *testing.T) {
	tr := NewTracker(Config{})
	var order []string
	var mu sync.Mutex
	tr.OnSettled(func(model.ViewportState) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, "resolver")
	})
	tr.OnSettled(func(model.ViewportState) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, "coordinator")
	})

	tr.SetView(model.ViewportState{Zoom: 16, Bounds: testBounds, Center: testBounds.Center()})

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"resolver", "coordinator"}, order)

	got, ok := tr.Current()
	require.True(t, ok)
	assert.Equal(t, 16, got.Zoom)
}

func TestBoundsChanged_DebouncesRefresh(t *testing.T) {
	var refreshes atomic.Int32
	tr := NewTracker(Config{
		RefreshDebounce: 5 * time.Millisecond,
		OnRefresh: func(_ context.Context, _ geo.BoundingBox) {
			refreshes.Add(1)
		},
	})
	defer tr.Close()

	for i := 0; i < 5; i++ {
		tr.BoundsChanged(testBounds)
	}
	require.Eventually(t, func() bool { return refreshes.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), refreshes.Load(), "rapid changes collapse into one refresh")
}

func TestBoundsChanged_NewerRefreshCancelsOlder(t *testing.T) {
	release := make(chan struct{})
	var canceled atomic.Bool
	var started atomic.Int32
	tr := NewTracker(Config{
		RefreshDebounce: time.Millisecond,
		OnRefresh: func(ctx context.Context, _ geo.BoundingBox) {
			if started.Add(1) == 1 {
				select {
				case <-ctx.Done():
					canceled.Store(true)
				case <-release:
				}
			}
		},
	})
	defer tr.Close()

	tr.BoundsChanged(testBounds)
	require.Eventually(t, func() bool { return started.Load() == 1 }, time.Second, time.Millisecond)

	tr.BoundsChanged(testBounds)
	require.Eventually(t, func() bool { return canceled.Load() }, time.Second, time.Millisecond)
	close(release)
}
