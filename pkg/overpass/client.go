// Package overpass provides a client for the Overpass API, scoped to the
// fixed set of POI categories the map engine displays.
package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/granada-guide/mapengine/internal/geo"
)

const defaultURL = "https://overpass-api.de/api/interpreter"

// Selectors for the POI allow-list. Each selector is queried for nodes,
// ways, and relations within the bounding box. The brand/name pair matches
// known fast-food chains case-insensitively.
const (
	amenityRegex  = "restaurant|bar|pub|cafe|fast_food|pharmacy|fuel"
	tourismRegex  = "museum|gallery|attraction"
	leisureRegex  = "park|garden|recreation_ground"
	brandRegex    = "McDonald's|McDonalds|Burger King"
)

// LatLon is a coordinate pair as Overpass encodes it.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Element is one raw geodata element. Nodes carry their own coordinate;
// ways and relations carry a precomputed centroid in Center.
type Element struct {
	Type   string            `json:"type"` // node, way, relation
	ID     int64             `json:"id"`
	Lat    *float64          `json:"lat,omitempty"`
	Lon    *float64          `json:"lon,omitempty"`
	Center *LatLon           `json:"center,omitempty"`
	Tags   map[string]string `json:"tags,omitempty"`
}

// Coordinate resolves the element's position: a node's own coordinate, or
// the centroid for areas. ok is false when neither is usable.
func (e Element) Coordinate() (lat, lon float64, ok bool) {
	if e.Type == "node" {
		if e.Lat == nil || e.Lon == nil {
			return 0, 0, false
		}
		return *e.Lat, *e.Lon, true
	}
	if e.Center == nil {
		return 0, 0, false
	}
	return e.Center.Lat, e.Center.Lon, true
}

type response struct {
	Elements []Element `json:"elements"`
}

// BuildQuery renders the Overpass QL query for the given bounding box.
// The server-side timeout of 25s is the only timeout applied to the query;
// the client adds none beyond context cancellation.
func BuildQuery(b geo.BoundingBox) string {
	bbox := fmt.Sprintf("(%g,%g,%g,%g)", b.MinLat, b.MinLng, b.MaxLat, b.MaxLng)

	var sb strings.Builder
	sb.WriteString("[out:json][timeout:25];\n(\n")
	for _, sel := range []string{
		fmt.Sprintf(`["amenity"~"%s"]`, amenityRegex),
		fmt.Sprintf(`["tourism"~"%s"]`, tourismRegex),
		fmt.Sprintf(`["leisure"~"%s"]`, leisureRegex),
		fmt.Sprintf(`["brand"~"%s",i]`, brandRegex),
		fmt.Sprintf(`["name"~"%s",i]`, brandRegex),
	} {
		for _, kind := range []string{"node", "way", "relation"} {
			sb.WriteString("  " + kind + sel + bbox + ";\n")
		}
	}
	sb.WriteString(");\nout center;")
	return sb.String()
}

// Client queries an Overpass endpoint.
type Client struct {
	url        string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures the client.
type Option func(*Client)

// WithURL points the client at a different Overpass endpoint.
func WithURL(u string) Option {
	return func(c *Client) { c.url = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// NewClient creates an Overpass client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		url:        defaultURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		limiter:    rate.NewLimiter(1, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Query fetches all allow-listed elements inside bounds.
func (c *Client) Query(ctx context.Context, bounds geo.BoundingBox) ([]Element, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "overpass: rate limit")
	}

	query := BuildQuery(bounds)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(query))
	if err != nil {
		return nil, eris.Wrap(err, "overpass: build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("overpass: returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: read body")
	}

	var parsed response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "overpass: parse response")
	}

	zap.L().Debug("overpass query complete",
		zap.Int("elements", len(parsed.Elements)),
	)
	return parsed.Elements, nil
}
