package nominatim

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReverse_CityDetail(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/reverse", r.URL.Path)
		gotQuery = map[string]string{
			"zoom":           r.URL.Query().Get("zoom"),
			"format":         r.URL.Query().Get("format"),
			"addressdetails": r.URL.Query().Get("addressdetails"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"place_id": 12345,
			"display_name": "Granada, Andalucía, España",
			"boundingbox": ["37.1", "37.2", "-3.65", "-3.55"],
			"address": {"city": "Granada"}
		}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRateLimit(1000))
	result, err := c.Reverse(context.Background(), 37.1773, -3.5986, DetailCity)
	require.NoError(t, err)

	assert.Equal(t, "10", gotQuery["zoom"])
	assert.Equal(t, "jsonv2", gotQuery["format"])
	assert.Equal(t, "1", gotQuery["addressdetails"])
	assert.Equal(t, int64(12345), result.PlaceID)
	assert.Equal(t, "Granada", result.Addr.Locality())
	assert.Equal(t, []string{"37.1", "37.2", "-3.65", "-3.55"}, result.BoundingBox)
}

func TestReverse_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRateLimit(1000))
	_, err := c.Reverse(context.Background(), 37.1773, -3.5986, DetailAddress)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestReverse_Canceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(WithBaseURL(srv.URL), WithRateLimit(1000))
	_, err := c.Reverse(ctx, 37.1773, -3.5986, DetailCity)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSearch_Params(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "granada", q.Get("q"))
		assert.Equal(t, "8", q.Get("limit"))
		assert.Equal(t, "1", q.Get("dedupe"))
		assert.Equal(t, "es", q.Get("countrycodes"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"place_id": 1, "display_name": "Granada", "lat": "37.1773", "lon": "-3.5986",
			 "boundingbox": ["37.1", "37.2", "-3.65", "-3.55"], "type": "city", "class": "place"}
		]`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRateLimit(1000))
	results, err := c.Search(context.Background(), "granada")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Granada", results[0].DisplayName)
	assert.Equal(t, "37.1773", results[0].Lat)
}

func TestAddress_LocalityFallback(t *testing.T) {
	assert.Equal(t, "Granada", Address{City: "Granada", Town: "x"}.Locality())
	assert.Equal(t, "Monachil", Address{Town: "Monachil"}.Locality())
	assert.Equal(t, "Güéjar Sierra", Address{Village: "Güéjar Sierra"}.Locality())
	assert.Equal(t, "Vega", Address{Municipality: "Vega"}.Locality())
	assert.Equal(t, "", Address{}.Locality())
}
