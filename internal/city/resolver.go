// Package city resolves the viewport center to "which city am I in" with
// minimal network chatter: a single cached entry, debounced resolution, and
// cancel-before-start superseding of in-flight lookups.
package city

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/granada-guide/mapengine/internal/geo"
)

// State is the lifecycle of a resolution attempt.
type State int

const (
	// StateIdle means no resolution is wanted (zoom below threshold or
	// nothing scheduled).
	StateIdle State = iota
	// StateResolving means an attempt is debouncing or in flight.
	StateResolving
	// StateResolved means the last attempt completed, with or without a
	// usable city.
	StateResolved
	// StateFailed means the last attempt hit a network failure; any prior
	// entry is kept.
	StateFailed
	// StateCanceled means the last attempt was superseded before completing.
	StateCanceled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateResolved:
		return "resolved"
	case StateFailed:
		return "failed"
	case StateCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Entry is the cached city. At most one entry is live at a time; it stays
// valid until the center leaves its bounds or a different city resolves.
type Entry struct {
	Name    string
	PlaceID int64
	Bounds  geo.BoundingBox
}

// Hit is a city-level reverse-geocode result. Locality is empty when the
// response carried no usable city name.
type Hit struct {
	PlaceID     int64
	Locality    string
	BoundingBox []string // south, north, west, east
}

// Geocoder is the reverse-geocoding collaborator at city detail.
type Geocoder interface {
	ReverseCity(ctx context.Context, center geo.LatLng) (Hit, error)
}

// Config tunes the resolver.
type Config struct {
	// ZoomThreshold is the minimum zoom at which POIs (and therefore city
	// resolution) are relevant. Default: 15.
	ZoomThreshold int

	// Debounce absorbs rapid panning before a lookup is issued.
	// Default: 450ms.
	Debounce time.Duration

	// OnChange is called after the cached entry changes: a new city, or a
	// cleared cache (ok=false). Called without resolver locks held.
	OnChange func(entry Entry, ok bool)
}

type pendingAttempt struct {
	timer  *time.Timer
	cancel context.CancelFunc
}

// Resolver maps viewport centers to cities.
type Resolver struct {
	geocoder Geocoder
	cfg      Config
	log      *zap.Logger

	mu         sync.Mutex
	state      State
	entry      *Entry
	generation uint64
	pending    *pendingAttempt
}

// NewResolver creates a resolver over the given geocoder.
func NewResolver(geocoder Geocoder, cfg Config) *Resolver {
	if cfg.ZoomThreshold <= 0 {
		cfg.ZoomThreshold = 15
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 450 * time.Millisecond
	}
	return &Resolver{
		geocoder: geocoder,
		cfg:      cfg,
		log:      zap.L().With(zap.String("component", "city.resolver")),
	}
}

// Current returns the cached entry, if any.
func (r *Resolver) Current() (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entry == nil {
		return Entry{}, false
	}
	return *r.entry, true
}

// State returns the state of the latest resolution attempt.
func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Observe feeds a settled viewport center and zoom into the resolver.
//
// Below the zoom threshold the cache is cleared and nothing is fetched.
// A center still inside the cached city's bounds is a cache hit: zero
// network requests. Anything else supersedes the in-flight attempt and
// schedules a debounced resolution.
func (r *Resolver) Observe(center geo.LatLng, zoom int) {
	var notifyCleared bool

	r.mu.Lock()
	if zoom < r.cfg.ZoomThreshold {
		r.cancelPendingLocked()
		if r.entry != nil {
			r.entry = nil
			notifyCleared = true
		}
		r.state = StateIdle
		r.mu.Unlock()
		if notifyCleared && r.cfg.OnChange != nil {
			r.cfg.OnChange(Entry{}, false)
		}
		return
	}

	if r.entry != nil && r.entry.Bounds.Contains(center) {
		r.mu.Unlock()
		return
	}

	r.cancelPendingLocked()
	r.generation++
	gen := r.generation
	r.state = StateResolving

	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(r.cfg.Debounce, func() {
		r.resolve(ctx, gen, center)
	})
	r.pending = &pendingAttempt{timer: timer, cancel: cancel}
	r.mu.Unlock()
}

// Close cancels any pending resolution.
func (r *Resolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelPendingLocked()
}

// cancelPendingLocked supersedes the in-flight attempt. The generation bump
// makes any already-running completion handler a no-op.
func (r *Resolver) cancelPendingLocked() {
	if r.pending == nil {
		return
	}
	r.pending.timer.Stop()
	r.pending.cancel()
	r.pending = nil
	r.generation++
	if r.state == StateResolving {
		r.state = StateCanceled
	}
}

func (r *Resolver) resolve(ctx context.Context, gen uint64, center geo.LatLng) {
	attemptID := uuid.NewString()[:8]

	r.mu.Lock()
	if gen != r.generation {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	hit, err := r.geocoder.ReverseCity(ctx, center)

	var notify func()
	r.mu.Lock()
	switch {
	case gen != r.generation || ctx.Err() != nil:
		// Superseded mid-flight: no state mutation, no error surfaced.

	case err != nil:
		// Network failure keeps whatever city was cached before.
		r.state = StateFailed
		r.pending = nil
		r.log.Warn("city resolution failed",
			zap.String("attempt", attemptID),
			zap.Float64("lat", center.Lat),
			zap.Float64("lng", center.Lng),
			zap.Error(err),
		)

	default:
		r.pending = nil
		r.state = StateResolved
		notify = r.applyHitLocked(hit, attemptID)
	}
	r.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// applyHitLocked stores the resolved city (or clears the cache when the
// response had no usable name/bounds) and returns the change notification
// to run after unlocking.
func (r *Resolver) applyHitLocked(hit Hit, attemptID string) func() {
	onChange := r.cfg.OnChange

	bounds, parseErr := parseHitBounds(hit.BoundingBox)
	if hit.Locality == "" || parseErr != nil {
		r.entry = nil
		r.log.Debug("no city resolved",
			zap.String("attempt", attemptID),
			zap.String("locality", hit.Locality),
			zap.Error(parseErr),
		)
		if onChange == nil {
			return nil
		}
		return func() { onChange(Entry{}, false) }
	}

	if r.entry != nil && r.entry.PlaceID == hit.PlaceID {
		// Same city re-resolved: keep the existing entry identity.
		return nil
	}

	entry := Entry{Name: hit.Locality, PlaceID: hit.PlaceID, Bounds: bounds}
	r.entry = &entry
	r.log.Info("city resolved",
		zap.String("attempt", attemptID),
		zap.String("city", entry.Name),
		zap.Int64("place_id", entry.PlaceID),
	)
	if onChange == nil {
		return nil
	}
	return func() { onChange(entry, true) }
}

func parseHitBounds(raw []string) (geo.BoundingBox, error) {
	if len(raw) != 4 {
		return geo.BoundingBox{}, geo.ErrParseBounds
	}
	return geo.ParseBounds([4]string{raw[0], raw[1], raw[2], raw[3]})
}
