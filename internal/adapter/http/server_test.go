package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/healnet/donation-matching/internal/adapter/http"
	"github.com/healnet/donation-matching/internal/domain"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockMatcher struct {
	gotID    string
	gotMaxKm float64
	gotLimit int
	matches  []domain.ScoredMatch
	err      error
}

func (m *mockMatcher) MatchDonation(_ context.Context, id string, maxKm float64, limit int) ([]domain.ScoredMatch, error) {
	m.gotID, m.gotMaxKm, m.gotLimit = id, maxKm, limit
	return m.matches, m.err
}

type mockGeocoder struct {
	result domain.GeocodeResult
	err    error
}

func (m *mockGeocoder) Geocode(context.Context, string) (domain.GeocodeResult, error) {
	return m.result, m.err
}

func newTestServer(readyErr error) *httpadapter.Server {
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, nil, nil, slog.Default())
}

func serve(srv *httpadapter.Server, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func sampleMatches() []domain.ScoredMatch {
	return []domain.ScoredMatch{
		{
			Need: domain.Need{
				ID: "need-1", Item: "medical masks", Category: domain.CategoryMedicalSupplies,
				Urgency: domain.UrgencyHigh, Coordinates: &domain.Coordinate{Lat: 40.01, Lng: -75.01},
			},
			Score:              domain.MatchScore{Total: 0.9},
			DistanceKm:         1.4,
			DrivingTimeMinutes: 1.7,
			MatchQuality:       domain.MatchExcellent,
		},
		{
			Need:         domain.Need{ID: "need-2", Item: "gloves"},
			Score:        domain.MatchScore{Total: 0.5},
			MatchQuality: domain.MatchFair,
		},
	}
}

func TestHealthzReturns200(t *testing.T) {
	rec := serve(newTestServer(nil), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := serve(newTestServer(nil), "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := serve(newTestServer(fmt.Errorf("database unreachable")), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := serve(newTestServer(nil), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestAPIRoutesAbsentWithoutServices(t *testing.T) {
	srv := newTestServer(nil)
	assert.Equal(t, http.StatusNotFound, serve(srv, "/api/donations/d1/matches").Code)
	assert.Equal(t, http.StatusNotFound, serve(srv, "/api/geocode?address=x").Code)
}

func TestMatches_JSON(t *testing.T) {
	m := &mockMatcher{matches: sampleMatches()}
	srv := httpadapter.NewServer(":0", &mockReadiness{}, m, nil, slog.Default())

	rec := serve(srv, "/api/donations/don-1/matches?max_distance_km=25&limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	assert.Equal(t, "don-1", m.gotID)
	assert.InDelta(t, 25.0, m.gotMaxKm, 1e-9)
	assert.Equal(t, 5, m.gotLimit)

	var body domain.MatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "don-1", body.DonationID)
	assert.Equal(t, rec.Header().Get("X-Request-ID"), body.RunID)
	require.Len(t, body.Matches, 2)
	assert.Equal(t, "need-1", body.Matches[0].Need.ID)
}

func TestMatches_DefaultsPassedAsZero(t *testing.T) {
	m := &mockMatcher{matches: []domain.ScoredMatch{}}
	srv := httpadapter.NewServer(":0", &mockReadiness{}, m, nil, slog.Default())

	rec := serve(srv, "/api/donations/don-1/matches")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, m.gotMaxKm)
	assert.Zero(t, m.gotLimit)
	assert.Contains(t, rec.Body.String(), `"matches":[]`)
}

func TestMatches_GeoJSON(t *testing.T) {
	m := &mockMatcher{matches: sampleMatches()}
	srv := httpadapter.NewServer(":0", &mockReadiness{}, m, nil, slog.Default())

	rec := serve(srv, "/api/donations/don-1/matches?format=geojson")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 1, "needs without coordinates are omitted")
	assert.Equal(t, []float64{-75.01, 40.01}, fc.Features[0].Geometry.Coordinates)
	assert.Equal(t, "need-1", fc.Features[0].Properties["need_id"])
	assert.Equal(t, "1.4km", fc.Features[0].Properties["distance"])
	assert.Equal(t, "2 min", fc.Features[0].Properties["driving_time"])
	assert.Equal(t, "excellent", fc.Features[0].Properties["match_quality"])
}

func TestMatches_BadParams(t *testing.T) {
	srv := httpadapter.NewServer(":0", &mockReadiness{}, &mockMatcher{}, nil, slog.Default())
	for _, q := range []string{
		"max_distance_km=abc",
		"max_distance_km=-1",
		"max_distance_km=10000",
		"limit=0",
		"limit=1000",
		"limit=two",
		"format=xml",
	} {
		t.Run(q, func(t *testing.T) {
			rec := serve(srv, "/api/donations/don-1/matches?"+q)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestMatches_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", domain.WrapError(domain.ErrNotFound, "get donation", errors.New("no rows")), http.StatusNotFound},
		{"persistence", domain.WrapError(domain.ErrPersistence, "find needs", errors.New("timeout")), http.StatusInternalServerError},
		{"invalid", domain.ErrInvalidInput, http.StatusBadRequest},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httpadapter.NewServer(":0", &mockReadiness{}, &mockMatcher{err: tt.err}, nil, slog.Default())
			rec := serve(srv, "/api/donations/don-1/matches")
			assert.Equal(t, tt.want, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestGeocode(t *testing.T) {
	g := &mockGeocoder{result: domain.GeocodeResult{
		Coordinates: domain.Coordinate{Lat: 39.95, Lng: -75.16},
		Quality:     domain.QualityApproximate,
		Confidence:  0.8,
		Provider:    "mapbox",
	}}
	srv := httpadapter.NewServer(":0", &mockReadiness{}, nil, g, slog.Default())

	rec := serve(srv, "/api/geocode?address=Philadelphia")
	require.Equal(t, http.StatusOK, rec.Code)

	var body domain.GeocodeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, domain.QualityApproximate, body.Quality)
	assert.InDelta(t, 39.95, body.Coordinates.Lat, 1e-9)

	assert.Equal(t, http.StatusBadRequest, serve(srv, "/api/geocode").Code)
}

func TestGeocode_ProvidersDown(t *testing.T) {
	g := &mockGeocoder{err: domain.WrapError(domain.ErrGeocodeUnavailable, "geocode", errors.New("all failed"))}
	srv := httpadapter.NewServer(":0", &mockReadiness{}, nil, g, slog.Default())
	assert.Equal(t, http.StatusServiceUnavailable, serve(srv, "/api/geocode?address=x").Code)
}
