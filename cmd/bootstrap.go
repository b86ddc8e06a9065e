package main

import (
	"time"

	"github.com/granada-guide/mapengine/internal/config"
	"github.com/granada-guide/mapengine/internal/engine"
	"github.com/granada-guide/mapengine/internal/places"
	"github.com/granada-guide/mapengine/internal/resilience"
	"github.com/granada-guide/mapengine/pkg/nominatim"
	"github.com/granada-guide/mapengine/pkg/overpass"
)

// buildEngine wires the discovery engine from configuration.
func buildEngine(c *config.Config) *engine.Engine {
	geocoder := nominatim.NewClient(
		nominatim.WithBaseURL(c.Nominatim.BaseURL),
		nominatim.WithRateLimit(c.Nominatim.RateRPS),
		nominatim.WithCountryCodes(c.Nominatim.CountryCodes),
	)
	searcher := overpass.NewClient(
		overpass.WithURL(c.Overpass.URL),
		overpass.WithRateLimit(c.Overpass.RateRPS),
	)
	store := places.NewClient(
		c.Places.BaseURL,
		places.StaticToken(c.Places.Token),
		places.WithRetryConfig(resilience.RetryConfig{
			MaxAttempts:    c.Retry.MaxAttempts,
			InitialBackoff: time.Duration(c.Retry.InitialBackoffMs) * time.Millisecond,
			MaxBackoff:     time.Duration(c.Retry.MaxBackoffMs) * time.Millisecond,
			Service:        "places",
		}),
		places.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: c.Breaker.FailureThreshold,
			ResetTimeout:     time.Duration(c.Breaker.ResetTimeoutSecs) * time.Second,
			ShouldTrip:       resilience.IsTransient,
		})),
	)

	return engine.New(engine.Config{
		ZoomThreshold:   c.Engine.ZoomThreshold,
		POILimit:        c.Engine.POILimit,
		CityDebounce:    c.Engine.CityDebounce(),
		POIDebounce:     c.Engine.POIDebounce(),
		RefreshDebounce: c.Engine.RefreshDebounce(),
		SearchDebounce:  c.Engine.SearchDebounce(),
	}, engine.Deps{
		Geocoder: geocoder,
		Searcher: searcher,
		Places:   store,
	})
}
