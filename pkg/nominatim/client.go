// Package nominatim provides a rate-limited client for the Nominatim
// reverse-geocoding and free-text search APIs.
package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://nominatim.openstreetmap.org"

// Detail selects the granularity of a reverse lookup. It maps to the
// Nominatim "zoom" parameter.
type Detail int

const (
	// DetailCity resolves to city-level names and bounds.
	DetailCity Detail = 10
	// DetailAddress resolves to a precise street address.
	DetailAddress Detail = 18
)

// Address holds the locality components of a reverse-geocode result.
// Nominatim fills at most one of these depending on the place size.
type Address struct {
	City         string `json:"city"`
	Town         string `json:"town"`
	Village      string `json:"village"`
	Municipality string `json:"municipality"`
}

// Locality returns the best available locality name, or "" if none.
func (a Address) Locality() string {
	for _, s := range []string{a.City, a.Town, a.Village, a.Municipality} {
		if s != "" {
			return s
		}
	}
	return ""
}

// ReverseResult is the response of a reverse lookup.
type ReverseResult struct {
	PlaceID     int64     `json:"place_id"`
	DisplayName string    `json:"display_name"`
	BoundingBox []string  `json:"boundingbox"` // south, north, west, east
	Addr        Address   `json:"address"`
}

// SearchResult is one ranked candidate from a free-text search.
type SearchResult struct {
	PlaceID     int64    `json:"place_id"`
	DisplayName string   `json:"display_name"`
	Lat         string   `json:"lat"`
	Lon         string   `json:"lon"`
	BoundingBox []string `json:"boundingbox"`
	Type        string   `json:"type"`
	Class       string   `json:"class"`
}

// Client talks to a Nominatim instance.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	limiter      *rate.Limiter
	countryCodes string
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL points the client at a different Nominatim instance.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// WithCountryCodes restricts search results to the given ISO country codes.
func WithCountryCodes(codes string) Option {
	return func(c *Client) { c.countryCodes = codes }
}

// NewClient creates a Nominatim client. The default rate limit is 1 req/s
// per the public instance's usage policy.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:      defaultBaseURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		limiter:      rate.NewLimiter(1, 1),
		countryCodes: "es",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Reverse geocodes a point to a place at the requested detail level.
func (c *Client) Reverse(ctx context.Context, lat, lng float64, detail Detail) (*ReverseResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "nominatim: reverse rate limit")
	}

	params := url.Values{
		"format":         {"jsonv2"},
		"zoom":           {fmt.Sprintf("%d", detail)},
		"addressdetails": {"1"},
		"lat":            {fmt.Sprintf("%g", lat)},
		"lon":            {fmt.Sprintf("%g", lng)},
	}

	body, err := c.get(ctx, "/reverse", params)
	if err != nil {
		return nil, err
	}

	var result ReverseResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "nominatim: parse reverse response")
	}

	zap.L().Debug("nominatim reverse",
		zap.Float64("lat", lat),
		zap.Float64("lng", lng),
		zap.Int("detail", int(detail)),
		zap.Int64("place_id", result.PlaceID),
	)
	return &result, nil
}

// Search runs a free-text location search and returns ranked candidates.
func (c *Client) Search(ctx context.Context, query string) ([]SearchResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "nominatim: search rate limit")
	}

	params := url.Values{
		"format":         {"jsonv2"},
		"addressdetails": {"1"},
		"limit":          {"8"},
		"dedupe":         {"1"},
		"q":              {query},
	}
	if c.countryCodes != "" {
		params.Set("countrycodes", c.countryCodes)
	}

	body, err := c.get(ctx, "/search", params)
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, eris.Wrap(err, "nominatim: parse search response")
	}
	return results, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "nominatim: build %s request", path)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "nominatim: %s request", path)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("nominatim: %s returned status %d", path, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "nominatim: read %s body", path)
	}
	return body, nil
}
