// Package places is the client for the place-storage collaborator: the
// backend that owns saved-place records, categories, and status toggles.
// The engine only reads and writes through this API; it persists nothing
// itself.
package places

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/granada-guide/mapengine/internal/geo"
	"github.com/granada-guide/mapengine/internal/model"
	"github.com/granada-guide/mapengine/internal/resilience"
)

// TokenProvider supplies the bearer token for each request. It abstracts
// the session/token collaborator; the authentication protocol itself is
// out of scope here.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider returning a fixed token.
type StaticToken string

// Token implements TokenProvider.
func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// PlaceInput is the payload for creating or updating a place.
type PlaceInput struct {
	Name       string             `json:"name,omitempty"`
	Lat        *float64           `json:"lat,omitempty"`
	Lng        *float64           `json:"lng,omitempty"`
	Status     *model.PlaceStatus `json:"status,omitempty"`
	Notes      *string            `json:"notes,omitempty"`
	Address    *string            `json:"address,omitempty"`
	CategoryID *int64             `json:"categoryId,omitempty"`
	VisitedAt  *time.Time         `json:"visitedAt,omitempty"`
}

// Client talks to the place-storage API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenProvider
	retry      resilience.RetryConfig
	breaker    *resilience.CircuitBreaker
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryConfig overrides the retry tuning.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithCircuitBreaker overrides the breaker guarding the API.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// NewClient creates a place-storage client.
func NewClient(baseURL string, tokens TokenProvider, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		tokens:     tokens,
		retry:      resilience.DefaultRetryConfig("places"),
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			ShouldTrip: resilience.IsTransient,
		}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List returns the saved places inside bounds.
func (c *Client) List(ctx context.Context, bounds geo.BoundingBox) ([]model.SavedPlace, error) {
	params := url.Values{"bbox": {bounds.BBoxParam()}}
	var out []model.SavedPlace
	err := c.call(ctx, "list", http.MethodGet, "/api/places?"+params.Encode(), nil, &out)
	return out, err
}

// Get fetches one place by id.
func (c *Client) Get(ctx context.Context, id int64) (*model.SavedPlace, error) {
	var out model.SavedPlace
	if err := c.call(ctx, "get", http.MethodGet, fmt.Sprintf("/api/places/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create saves a new place.
func (c *Client) Create(ctx context.Context, input PlaceInput) (*model.SavedPlace, error) {
	var out model.SavedPlace
	if err := c.call(ctx, "create", http.MethodPost, "/api/places", input, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update patches an existing place.
func (c *Client) Update(ctx context.Context, id int64, input PlaceInput) (*model.SavedPlace, error) {
	var out model.SavedPlace
	if err := c.call(ctx, "update", http.MethodPatch, fmt.Sprintf("/api/places/%d", id), input, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a place.
func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.call(ctx, "delete", http.MethodDelete, fmt.Sprintf("/api/places/%d", id), nil, nil)
}

// ToggleStatus flips a place between pending and visited via the dedicated
// status endpoint.
func (c *Client) ToggleStatus(ctx context.Context, id int64, status model.PlaceStatus, visitedAt *time.Time) (*model.SavedPlace, error) {
	body := struct {
		Status    model.PlaceStatus `json:"status"`
		VisitedAt *time.Time        `json:"visitedAt"`
	}{Status: status, VisitedAt: visitedAt}

	var out model.SavedPlace
	if err := c.call(ctx, "toggle_status", http.MethodPut, fmt.Sprintf("/api/places/%d/status", id), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Categories lists the available place categories.
func (c *Client) Categories(ctx context.Context) ([]model.Category, error) {
	var out []model.Category
	err := c.call(ctx, "categories", http.MethodGet, "/api/categories", nil, &out)
	return out, err
}

func (c *Client) call(ctx context.Context, op, method, path string, body, out any) error {
	_, err := resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, resilience.Do(ctx, c.retry, op, func(ctx context.Context) error {
			return c.doOnce(ctx, method, path, body, out)
		})
	})
	return err
}

func (c *Client) doOnce(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return eris.Wrapf(err, "places: encode %s body", path)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return eris.Wrapf(err, "places: build %s request", path)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return eris.Wrap(err, "places: get token")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return eris.Wrapf(err, "places: %s %s", method, path)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := eris.Errorf("places: %s %s returned status %d", method, path, resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}

	if out == nil {
		return nil
	}
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrapf(err, "places: read %s body", path)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrapf(err, "places: parse %s response", path)
	}
	return nil
}
