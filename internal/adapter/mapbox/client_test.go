package mapbox

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/healnet/donation-matching/internal/domain"
	"github.com/healnet/donation-matching/internal/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testToken         = "test-token"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func testClient(baseURL string) *Client {
	return &Client{
		token:         testToken,
		country:       "us",
		httpClient:    &http.Client{Timeout: 5 * time.Second},
		geocodingURL:  baseURL + "/geocoding",
		directionsURL: baseURL + "/directions",
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestClient_Lookup_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/geocoding/100 Main St, Springfield.json", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "1", q.Get("limit"))
		assert.Equal(t, testToken, q.Get("access_token"))
		assert.Equal(t, "us", q.Get("country"))
		assert.Equal(t, geocodeTypes, q.Get("types"))

		resp := geocodeResponse{
			Features: []feature{
				{
					Center:    []float64{-75.0, 40.0},
					PlaceName: "100 Main St, Springfield, PA 19064",
					PlaceType: []string{"address"},
					Relevance: 0.93,
				},
			},
		}
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	m, err := testClient(srv.URL).Lookup(context.Background(), "100 Main St, Springfield")
	require.NoError(t, err)

	assert.True(t, m.Found)
	assert.Equal(t, domain.Coordinate{Lat: 40.0, Lng: -75.0}, m.Coordinates)
	assert.Equal(t, "100 Main St, Springfield, PA 19064", m.FormattedAddress)
	assert.Equal(t, "address", m.PlaceType)
	assert.Equal(t, 0.93, m.Relevance)
}

func TestClient_Lookup_EmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{"features":[]}`))
	}))
	defer srv.Close()

	m, err := testClient(srv.URL).Lookup(context.Background(), "xyzzy")
	require.NoError(t, err)
	assert.False(t, m.Found)
}

func TestClient_Lookup_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Not Authorized - Invalid Token"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Lookup(context.Background(), "Springfield")
	var statusErr *resilience.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Contains(t, err.Error(), "Invalid Token")
}

func TestClient_Lookup_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Lookup(context.Background(), "Springfield")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode geocode response")
}

func TestClient_MissingToken(t *testing.T) {
	c := NewClient("", "us", time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := c.Lookup(context.Background(), "Springfield")
	require.ErrorIs(t, err, domain.ErrProviderUnavailable)

	_, err = c.Route(context.Background(), domain.Coordinate{}, domain.Coordinate{Lat: 1}, domain.ProfileDriving)
	require.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestClient_Route_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/directions/cycling/"))
		assert.Equal(t, "/directions/cycling/-75.000000,40.000000;-75.010000,40.010000", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "false", q.Get("alternatives"))
		assert.Equal(t, "simplified", q.Get("overview"))
		assert.Equal(t, "false", q.Get("steps"))

		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{"code":"Ok","routes":[{"distance":2500,"duration":420}]}`))
	}))
	defer srv.Close()

	r, err := testClient(srv.URL).Route(context.Background(),
		domain.Coordinate{Lat: 40.0, Lng: -75.0},
		domain.Coordinate{Lat: 40.01, Lng: -75.01},
		domain.ProfileCycling,
	)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, r.DistanceKm, 1e-9)
	assert.InDelta(t, 7.0, r.DurationMinutes, 1e-9)
}

func TestClient_Route_NoRoutes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"code":"NoRoute","routes":[]}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Route(context.Background(), domain.Coordinate{}, domain.Coordinate{Lat: 1}, "")
	require.ErrorIs(t, err, domain.ErrNoRouteFound)
}

func TestClient_Route_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Route(context.Background(), domain.Coordinate{}, domain.Coordinate{Lat: 1}, domain.ProfileDriving)
	assert.True(t, resilience.Classify(err).Retryable)
}
