// Package poifetch coordinates nearby-POI fetching against the POI search
// collaborator: it decides when a fetch is warranted, debounces viewport
// movement, deduplicates identical queries, and supersedes stale work.
package poifetch

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/granada-guide/mapengine/internal/city"
	"github.com/granada-guide/mapengine/internal/geo"
	"github.com/granada-guide/mapengine/internal/model"
	"github.com/granada-guide/mapengine/internal/poi"
	"github.com/granada-guide/mapengine/pkg/overpass"
)

// Searcher is the POI search collaborator.
type Searcher interface {
	Query(ctx context.Context, bounds geo.BoundingBox) ([]overpass.Element, error)
}

// Update is a snapshot of the coordinator's working set, delivered after
// every state change.
type Update struct {
	POIs     []model.POIRecord
	InFlight bool
	Err      error
}

// Config tunes the coordinator.
type Config struct {
	// ZoomThreshold gates POI fetching. Default: 15.
	ZoomThreshold int

	// Debounce absorbs viewport movement before issuing a fetch.
	// Default: 500ms.
	Debounce time.Duration

	// Limit caps the working set. Default: poi.DefaultLimit.
	Limit int

	// OnUpdate receives the working set after each change. Called without
	// coordinator locks held.
	OnUpdate func(Update)
}

type pendingFetch struct {
	key    string
	timer  *time.Timer
	cancel context.CancelFunc
}

// Coordinator owns the POI working set for the current viewport and city.
type Coordinator struct {
	searcher Searcher
	cfg      Config
	log      *zap.Logger

	mu         sync.Mutex
	generation uint64
	pending    *pendingFetch
	cityEntry  city.Entry
	hasCity    bool
	view       model.ViewportState
	hasView    bool
	lastKey    string
	working    []model.POIRecord
	inFlight   bool
	lastErr    error
}

// NewCoordinator creates a coordinator over the given searcher.
func NewCoordinator(searcher Searcher, cfg Config) *Coordinator {
	if cfg.ZoomThreshold <= 0 {
		cfg.ZoomThreshold = 15
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if cfg.Limit <= 0 {
		cfg.Limit = poi.DefaultLimit
	}
	return &Coordinator{
		searcher: searcher,
		cfg:      cfg,
		log:      zap.L().With(zap.String("component", "poifetch.coordinator")),
	}
}

// QueryKey identifies a fetch: the city plus the fetch area rounded to three
// decimals, so sub-rounding jitter maps to the same key.
func QueryKey(cityID int64, area geo.BoundingBox) string {
	return strconv.FormatInt(cityID, 10) + "|" +
		geo.Round3(area.MinLat) + "|" + geo.Round3(area.MinLng) + "|" +
		geo.Round3(area.MaxLat) + "|" + geo.Round3(area.MaxLng)
}

// POIs returns the current working set.
func (c *Coordinator) POIs() []model.POIRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.working
}

// InFlight reports whether a fetch is debouncing or running.
func (c *Coordinator) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Err returns the error from the last completed fetch, if any.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// SetCity installs the resolved city (or clears it when ok is false). A city
// change resets the dedup key and working set before re-evaluating against
// the last viewport.
func (c *Coordinator) SetCity(entry city.Entry, ok bool) {
	c.mu.Lock()
	sameCity := ok && c.hasCity && c.cityEntry.PlaceID == entry.PlaceID
	c.cityEntry = entry
	c.hasCity = ok
	var notify func()
	if !sameCity {
		hadData := len(c.working) > 0 || c.inFlight || c.lastErr != nil
		c.cancelPendingLocked()
		c.working = nil
		c.lastKey = ""
		c.lastErr = nil
		c.inFlight = false
		notify = c.evaluateLocked()
		if notify == nil && hadData {
			notify = c.notifyLocked()
		}
	}
	c.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// Observe feeds a settled viewport into the coordinator.
func (c *Coordinator) Observe(view model.ViewportState) {
	c.mu.Lock()
	c.view = view
	c.hasView = true
	notify := c.evaluateLocked()
	c.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// Close cancels any pending fetch.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelPendingLocked()
}

// evaluateLocked re-derives what should happen given the current city and
// viewport, and returns the update notification to run after unlocking.
func (c *Coordinator) evaluateLocked() func() {
	if !c.hasView {
		return nil
	}

	area, wanted := c.fetchAreaLocked()
	if !wanted {
		c.cancelPendingLocked()
		changed := c.working != nil || c.inFlight || c.lastErr != nil
		c.working = nil
		c.lastKey = ""
		c.inFlight = false
		c.lastErr = nil
		if !changed {
			return nil
		}
		return c.notifyLocked()
	}

	key := QueryKey(c.cityEntry.PlaceID, area)
	if key == c.lastKey {
		// Identical to the last successful fetch: keep the working set and
		// drop any pending fetch for a now-stale area.
		c.cancelPendingLocked()
		if c.inFlight {
			c.inFlight = false
			return c.notifyLocked()
		}
		return nil
	}
	if c.pending != nil && c.pending.key == key {
		// The same fetch is already scheduled; let it run.
		return nil
	}

	c.cancelPendingLocked()
	c.generation++
	gen := c.generation
	c.inFlight = true
	c.lastErr = nil

	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(c.cfg.Debounce, func() {
		c.fetch(ctx, gen, key, area)
	})
	c.pending = &pendingFetch{key: key, timer: timer, cancel: cancel}
	return c.notifyLocked()
}

// fetchAreaLocked returns the viewport-city intersection, or wanted=false
// when the preconditions for fetching do not hold.
func (c *Coordinator) fetchAreaLocked() (geo.BoundingBox, bool) {
	if c.view.Zoom < c.cfg.ZoomThreshold || !c.hasCity {
		return geo.BoundingBox{}, false
	}
	return geo.Intersect(c.view.Bounds, c.cityEntry.Bounds)
}

func (c *Coordinator) cancelPendingLocked() {
	if c.pending == nil {
		return
	}
	c.pending.timer.Stop()
	c.pending.cancel()
	c.pending = nil
	c.generation++
}

func (c *Coordinator) notifyLocked() func() {
	onUpdate := c.cfg.OnUpdate
	if onUpdate == nil {
		return nil
	}
	update := Update{POIs: c.working, InFlight: c.inFlight, Err: c.lastErr}
	return func() { onUpdate(update) }
}

func (c *Coordinator) fetch(ctx context.Context, gen uint64, key string, area geo.BoundingBox) {
	fetchID := uuid.NewString()[:8]

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	elements, err := c.searcher.Query(ctx, area)

	var notify func()
	c.mu.Lock()
	switch {
	case gen != c.generation || ctx.Err() != nil:
		// Superseded: the newer fetch owns the working set now.

	case err != nil:
		c.pending = nil
		c.inFlight = false
		c.lastErr = err
		c.working = nil
		c.log.Warn("poi fetch failed",
			zap.String("fetch", fetchID),
			zap.String("key", key),
			zap.Error(err),
		)
		notify = c.notifyLocked()

	default:
		c.pending = nil
		c.inFlight = false
		c.lastErr = nil
		c.working = poi.FromElements(elements, c.cfg.Limit)
		c.lastKey = key
		c.log.Debug("poi fetch complete",
			zap.String("fetch", fetchID),
			zap.String("key", key),
			zap.Int("elements", len(elements)),
			zap.Int("pois", len(c.working)),
		)
		notify = c.notifyLocked()
	}
	c.mu.Unlock()

	if notify != nil {
		notify()
	}
}
