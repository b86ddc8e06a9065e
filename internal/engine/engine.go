// Package engine wires the viewport tracker, city resolver, POI coordinator,
// and place-storage client into one map discovery engine, and projects their
// combined state into snapshots for the map layer.
package engine

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/granada-guide/mapengine/internal/city"
	"github.com/granada-guide/mapengine/internal/geo"
	"github.com/granada-guide/mapengine/internal/model"
	"github.com/granada-guide/mapengine/internal/overlay"
	"github.com/granada-guide/mapengine/internal/poifetch"
	"github.com/granada-guide/mapengine/internal/viewport"
	"github.com/granada-guide/mapengine/pkg/nominatim"
)

// Config tunes the engine and its parts.
type Config struct {
	// ZoomThreshold gates city resolution and POI fetching. Default: 15.
	ZoomThreshold int

	// POILimit caps the POI working set. Default: 180.
	POILimit int

	// Debounces for the respective pipelines. Zero values pick the
	// per-package defaults.
	CityDebounce    time.Duration
	POIDebounce     time.Duration
	RefreshDebounce time.Duration
	SearchDebounce  time.Duration

	// OnSearch receives debounced text-search results. Optional.
	OnSearch func(results []nominatim.SearchResult, err error)
}

// PlacesAPI is the slice of the place-storage client the engine needs.
type PlacesAPI interface {
	List(ctx context.Context, bounds geo.BoundingBox) ([]model.SavedPlace, error)
	Categories(ctx context.Context) ([]model.Category, error)
}

// Deps are the engine's collaborators.
type Deps struct {
	Geocoder *nominatim.Client
	Searcher poifetch.Searcher
	Places   PlacesAPI
}

// Snapshot is the engine state projected for the map layer.
type Snapshot struct {
	SavedPlaceMarkers []overlay.Marker
	POIMarkers        []overlay.Marker
	CityStatus        string
	FetchInFlight     bool
}

// Engine is the composition root for viewport-driven discovery.
type Engine struct {
	cfg      Config
	geocoder *nominatim.Client
	places   PlacesAPI
	log      *zap.Logger

	resolver    *city.Resolver
	coordinator *poifetch.Coordinator
	tracker     *viewport.Tracker

	mu            sync.Mutex
	view          model.ViewportState
	hasView       bool
	cityName      string
	hasCity       bool
	pois          []model.POIRecord
	fetchInFlight bool
	fetchErr      error
	savedPlaces   []model.SavedPlace
	categories    []model.Category
	hoveredID     int64
	subs          []chan Snapshot

	searchMu     sync.Mutex
	searchTimer  *time.Timer
	searchCancel context.CancelFunc
	searchGen    uint64

	addressMu     sync.Mutex
	addressCancel context.CancelFunc
}

// New wires an engine from its collaborators.
func New(cfg Config, deps Deps) *Engine {
	if cfg.ZoomThreshold <= 0 {
		cfg.ZoomThreshold = 15
	}
	if cfg.SearchDebounce <= 0 {
		cfg.SearchDebounce = 350 * time.Millisecond
	}

	e := &Engine{
		cfg:      cfg,
		geocoder: deps.Geocoder,
		places:   deps.Places,
		log:      zap.L().With(zap.String("component", "engine")),
	}

	e.resolver = city.NewResolver(city.NominatimGeocoder{Client: deps.Geocoder}, city.Config{
		ZoomThreshold: cfg.ZoomThreshold,
		Debounce:      cfg.CityDebounce,
		OnChange:      e.onCityChange,
	})
	e.coordinator = poifetch.NewCoordinator(deps.Searcher, poifetch.Config{
		ZoomThreshold: cfg.ZoomThreshold,
		Debounce:      cfg.POIDebounce,
		Limit:         cfg.POILimit,
		OnUpdate:      e.onPOIUpdate,
	})
	e.tracker = viewport.NewTracker(viewport.Config{
		RefreshDebounce: cfg.RefreshDebounce,
		OnRefresh:       e.refreshPlaces,
	})

	// City resolution must land before the POI coordinator sees the view,
	// so a cached-city hit can gate the fetch decision.
	e.tracker.OnSettled(e.recordView)
	e.tracker.OnSettled(func(v model.ViewportState) {
		e.resolver.Observe(v.Center, v.Zoom)
	})
	e.tracker.OnSettled(e.coordinator.Observe)

	return e
}

// ObserveViewport feeds one settled viewport into every pipeline: city
// resolution, POI fetching, and the saved-place refresh.
func (e *Engine) ObserveViewport(view model.ViewportState) {
	e.tracker.SetView(view)
	e.tracker.BoundsChanged(view.Bounds)
}

// BoundsChanged feeds a raw, still-moving bounds change. Only the
// saved-place refresh reacts to these.
func (e *Engine) BoundsChanged(bounds geo.BoundingBox) {
	e.tracker.BoundsChanged(bounds)
}

// SetHovered highlights one saved place on the overlay (0 for none).
func (e *Engine) SetHovered(id int64) {
	e.mu.Lock()
	changed := e.hoveredID != id
	e.hoveredID = id
	e.mu.Unlock()
	if changed {
		e.publish()
	}
}

// Snapshot returns the current projected state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Subscribe returns a channel carrying snapshots after each state change.
// Delivery is latest-wins: a slow consumer sees the newest snapshot, not
// every intermediate one.
func (e *Engine) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 1)
	e.mu.Lock()
	e.subs = append(e.subs, ch)
	snap := e.snapshotLocked()
	e.mu.Unlock()
	ch <- snap
	return ch
}

// Close stops all pending work.
func (e *Engine) Close() {
	e.resolver.Close()
	e.coordinator.Close()
	e.tracker.Close()

	e.searchMu.Lock()
	if e.searchTimer != nil {
		e.searchTimer.Stop()
	}
	if e.searchCancel != nil {
		e.searchCancel()
	}
	e.searchMu.Unlock()

	e.addressMu.Lock()
	if e.addressCancel != nil {
		e.addressCancel()
	}
	e.addressMu.Unlock()
}

func (e *Engine) recordView(view model.ViewportState) {
	e.mu.Lock()
	e.view = view
	e.hasView = true
	e.mu.Unlock()
	e.publish()
}

func (e *Engine) onCityChange(entry city.Entry, ok bool) {
	e.mu.Lock()
	e.cityName = entry.Name
	e.hasCity = ok
	e.mu.Unlock()

	e.coordinator.SetCity(entry, ok)
	e.publish()
}

func (e *Engine) onPOIUpdate(u poifetch.Update) {
	e.mu.Lock()
	e.pois = u.POIs
	e.fetchInFlight = u.InFlight
	e.fetchErr = u.Err
	e.mu.Unlock()
	e.publish()
}

// refreshPlaces reloads saved places (and, once, the category list) for the
// current bounds. Failures keep the previous local state.
func (e *Engine) refreshPlaces(ctx context.Context, bounds geo.BoundingBox) {
	e.mu.Lock()
	needCategories := e.categories == nil
	e.mu.Unlock()

	var (
		placesOut []model.SavedPlace
		catsOut   []model.Category
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := e.places.List(ctx, bounds)
		if err != nil {
			return err
		}
		placesOut = out
		return nil
	})
	if needCategories {
		g.Go(func() error {
			out, err := e.places.Categories(ctx)
			if err != nil {
				return err
			}
			catsOut = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() == nil {
			e.log.Warn("saved-place refresh failed", zap.Error(err))
		}
		return
	}

	e.mu.Lock()
	e.savedPlaces = placesOut
	if needCategories && catsOut != nil {
		e.categories = catsOut
	}
	e.mu.Unlock()
	e.publish()
}

func (e *Engine) snapshotLocked() Snapshot {
	view := overlay.Project(e.savedPlaces, e.pois, e.hoveredID)
	return Snapshot{
		SavedPlaceMarkers: view.SavedPlaces,
		POIMarkers:        view.POIs,
		CityStatus:        e.statusLocked(),
		FetchInFlight:     e.fetchInFlight,
	}
}

// statusLocked renders the one-line discovery status shown above the map.
func (e *Engine) statusLocked() string {
	switch {
	case e.hasView && e.view.Zoom < e.cfg.ZoomThreshold:
		return "Acerca el mapa para ver sitios de interes."
	case e.fetchErr != nil:
		return "No pudimos cargar los sitios."
	case e.fetchInFlight:
		return "Buscando sitios de interes..."
	case e.hasCity:
		return fmt.Sprintf("%d sitios en %s", len(e.pois), e.cityName)
	default:
		return ""
	}
}

func (e *Engine) publish() {
	e.mu.Lock()
	snap := e.snapshotLocked()
	subs := slices.Clone(e.subs)
	e.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- snap:
		default:
			// Drop the stale snapshot, then offer the fresh one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
