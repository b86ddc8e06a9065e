package places

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/granada-guide/mapengine/internal/geo"
	"github.com/granada-guide/mapengine/internal/model"
	"github.com/granada-guide/mapengine/internal/resilience"
)

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		Service:        "places",
	}
}

func TestList_BBoxAndAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/places", r.URL.Path)
		assert.Equal(t, "-3.6,37.15,-3.58,37.19", r.URL.Query().Get("bbox"))
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id": 7, "lat": 37.17, "lng": -3.59, "name": "Mirador", "status": "PENDING", "createdAt": "2024-05-01T10:00:00Z"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, StaticToken("tok-1"), WithRetryConfig(fastRetry()))
	got, err := c.List(context.Background(), geo.BoundingBox{MinLat: 37.15, MaxLat: 37.19, MinLng: -3.6, MaxLng: -3.58})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(7), got[0].ID)
	assert.Equal(t, model.StatusPending, got[0].Status)
}

func TestCreate_SendsPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "Mirador de San Nicolás", payload["name"])
		assert.Equal(t, "PENDING", payload["status"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": 1, "lat": 37.18, "lng": -3.59, "name": "Mirador de San Nicolás", "status": "PENDING", "createdAt": "2024-05-01T10:00:00Z"}`))
	}))
	defer srv.Close()

	lat, lng := 37.18, -3.59
	status := model.StatusPending
	c := NewClient(srv.URL, StaticToken("t"), WithRetryConfig(fastRetry()))
	created, err := c.Create(context.Background(), PlaceInput{
		Name:   "Mirador de San Nicolás",
		Lat:    &lat,
		Lng:    &lng,
		Status: &status,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ID)
}

func TestToggleStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/api/places/3/status", r.URL.Path)
		var payload struct {
			Status model.PlaceStatus `json:"status"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, model.StatusVisited, payload.Status)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": 3, "lat": 1, "lng": 2, "name": "x", "status": "VISITED", "createdAt": "2024-05-01T10:00:00Z"}`))
	}))
	defer srv.Close()

	now := time.Now()
	c := NewClient(srv.URL, StaticToken("t"), WithRetryConfig(fastRetry()))
	updated, err := c.ToggleStatus(context.Background(), 3, model.StatusVisited, &now)
	require.NoError(t, err)
	assert.Equal(t, model.StatusVisited, updated.Status)
}

func TestCall_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, StaticToken("t"), WithRetryConfig(fastRetry()))
	_, err := c.Categories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCall_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, StaticToken("t"), WithRetryConfig(fastRetry()))
	_, err := c.Get(context.Background(), 99)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Equal(t, int32(1), calls.Load())
}

func TestDelete_NoBodyExpected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, StaticToken("t"), WithRetryConfig(fastRetry()))
	require.NoError(t, c.Delete(context.Background(), 5))
}

func TestBreaker_OpensAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
		ShouldTrip:       resilience.IsTransient,
	})
	c := NewClient(srv.URL, StaticToken("t"), WithRetryConfig(fastRetry()), WithCircuitBreaker(cb))

	_, _ = c.Categories(context.Background())
	_, _ = c.Categories(context.Background())

	_, err := c.Categories(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}
