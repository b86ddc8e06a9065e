// Package viewport tracks map movement and fans it out to the interested
// parties: settled views go to the city resolver and POI coordinator in
// order, raw bounds changes drive a debounced saved-place refresh.
package viewport

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/granada-guide/mapengine/internal/geo"
	"github.com/granada-guide/mapengine/internal/model"
)

// Config tunes the tracker.
type Config struct {
	// RefreshDebounce absorbs raw bounds changes before a saved-place
	// refresh fires. Default: 400ms.
	RefreshDebounce time.Duration

	// OnRefresh runs after the debounce with the latest bounds. A newer
	// refresh cancels the previous one's context; refreshes are not
	// deduplicated. Runs on its own goroutine.
	OnRefresh func(ctx context.Context, bounds geo.BoundingBox)
}

// Tracker is the fan-out point for map movement.
type Tracker struct {
	cfg Config
	log *zap.Logger

	mu            sync.Mutex
	settledFns    []func(model.ViewportState)
	view          model.ViewportState
	hasView       bool
	refreshTimer  *time.Timer
	cancelRefresh context.CancelFunc
}

// NewTracker creates a tracker.
func NewTracker(cfg Config) *Tracker {
	if cfg.RefreshDebounce <= 0 {
		cfg.RefreshDebounce = 400 * time.Millisecond
	}
	return &Tracker{
		cfg: cfg,
		log: zap.L().With(zap.String("component", "viewport.tracker")),
	}
}

// OnSettled registers a listener for settled views. Listeners run
// synchronously in registration order; register the city resolver before
// the POI coordinator so a city change lands first.
func (t *Tracker) OnSettled(fn func(model.ViewportState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.settledFns = append(t.settledFns, fn)
}

// Current returns the last settled view.
func (t *Tracker) Current() (model.ViewportState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.view, t.hasView
}

// SetView records a settled view (movement has stopped) and fans it out.
func (t *Tracker) SetView(view model.ViewportState) {
	t.mu.Lock()
	t.view = view
	t.hasView = true
	fns := make([]func(model.ViewportState), len(t.settledFns))
	copy(fns, t.settledFns)
	t.mu.Unlock()

	for _, fn := range fns {
		fn(view)
	}
}

// BoundsChanged records a raw bounds change and schedules the debounced
// refresh. A fired refresh supersedes the previous one but identical bounds
// are not deduplicated.
func (t *Tracker) BoundsChanged(bounds geo.BoundingBox) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cfg.OnRefresh == nil {
		return
	}
	if t.refreshTimer != nil {
		t.refreshTimer.Stop()
	}
	t.refreshTimer = time.AfterFunc(t.cfg.RefreshDebounce, func() {
		t.fireRefresh(bounds)
	})
}

// Close stops the pending refresh.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.refreshTimer != nil {
		t.refreshTimer.Stop()
		t.refreshTimer = nil
	}
	if t.cancelRefresh != nil {
		t.cancelRefresh()
		t.cancelRefresh = nil
	}
}

func (t *Tracker) fireRefresh(bounds geo.BoundingBox) {
	t.mu.Lock()
	if t.cancelRefresh != nil {
		t.cancelRefresh()
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.cancelRefresh = cancel
	onRefresh := t.cfg.OnRefresh
	t.mu.Unlock()

	onRefresh(ctx, bounds)
}
