package engine

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/granada-guide/mapengine/pkg/nominatim"
)

// searchMinLength is the shortest query worth sending upstream.
const searchMinLength = 2

// Search runs a free-text location search, superseding any search already
// in flight. Queries shorter than two characters return no results without
// touching the network.
func (e *Engine) Search(ctx context.Context, query string) ([]nominatim.SearchResult, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < searchMinLength {
		return nil, nil
	}

	e.searchMu.Lock()
	if e.searchCancel != nil {
		e.searchCancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	e.searchCancel = cancel
	e.searchMu.Unlock()

	results, err := e.geocoder.Search(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, eris.Wrap(err, "engine: search")
	}
	return results, nil
}

// QueueSearch schedules a debounced search for a keystroke stream; results
// arrive through Config.OnSearch. Each call supersedes the previous one.
// A too-short query clears the results immediately.
func (e *Engine) QueueSearch(query string) {
	if e.cfg.OnSearch == nil {
		return
	}

	query = strings.TrimSpace(query)
	e.searchMu.Lock()
	if e.searchTimer != nil {
		e.searchTimer.Stop()
		e.searchTimer = nil
	}
	e.searchGen++
	gen := e.searchGen

	if len([]rune(query)) < searchMinLength {
		if e.searchCancel != nil {
			e.searchCancel()
			e.searchCancel = nil
		}
		e.searchMu.Unlock()
		e.cfg.OnSearch(nil, nil)
		return
	}

	e.searchTimer = time.AfterFunc(e.cfg.SearchDebounce, func() {
		e.runQueuedSearch(gen, query)
	})
	e.searchMu.Unlock()
}

func (e *Engine) runQueuedSearch(gen uint64, query string) {
	e.searchMu.Lock()
	if gen != e.searchGen {
		e.searchMu.Unlock()
		return
	}
	if e.searchCancel != nil {
		e.searchCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.searchCancel = cancel
	e.searchMu.Unlock()

	results, err := e.geocoder.Search(ctx, query)

	e.searchMu.Lock()
	stale := gen != e.searchGen || ctx.Err() != nil
	e.searchMu.Unlock()
	if stale {
		return
	}

	if err != nil {
		e.log.Warn("search failed", zap.String("query", query), zap.Error(err))
		e.cfg.OnSearch(nil, eris.Wrap(err, "engine: search"))
		return
	}
	e.cfg.OnSearch(results, nil)
}

// ResolveAddress reverse-geocodes a point to a display address, superseding
// any address lookup already in flight. Used to prefill the address field
// when saving a tapped location.
func (e *Engine) ResolveAddress(ctx context.Context, lat, lng float64) (string, error) {
	e.addressMu.Lock()
	if e.addressCancel != nil {
		e.addressCancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	e.addressCancel = cancel
	e.addressMu.Unlock()

	res, err := e.geocoder.Reverse(ctx, lat, lng, nominatim.DetailAddress)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", eris.Wrap(err, "engine: resolve address")
	}
	return res.DisplayName, nil
}
