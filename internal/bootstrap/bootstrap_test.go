package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healnet/donation-matching/internal/config"
	"github.com/healnet/donation-matching/internal/distance"
	"github.com/healnet/donation-matching/internal/domain"
	"github.com/healnet/donation-matching/internal/observability"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func baseConfig(nominatimURL string) *config.Config {
	return &config.Config{
		NominatimURL:          nominatimURL,
		NominatimUserAgent:    "test-agent",
		NominatimTimeout:      time.Second,
		GeocodeCacheSize:      10,
		GeocodeCacheTTL:       time.Hour,
		RoutingProfile:        domain.ProfileDriving,
		ProviderRetryAttempts: 1,
	}
}

func TestNewEngine_NominatimOnly(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"lat":"39.9526","lon":"-75.1652","display_name":"Philadelphia, PA","type":"city","class":"place"}]`))
	}))
	t.Cleanup(srv.Close)

	metrics := observability.NewMetricsForTesting()
	engine, err := NewEngine(baseConfig(srv.URL), nil, clockwork.NewFakeClock(), discardLogger(), metrics)
	require.NoError(t, err)

	assert.InDelta(t, 0.0, testutil.ToFloat64(metrics.ProviderEnabled.WithLabelValues("mapbox")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.ProviderEnabled.WithLabelValues("nominatim")), 1e-9)

	result, err := engine.Geocoder.Geocode(context.Background(), "Philadelphia, PA")
	require.NoError(t, err)
	assert.Equal(t, domain.QualityApproximate, result.Quality)
	assert.InDelta(t, 39.9526, result.Coordinates.Lat, 1e-6)

	// second lookup is served from the in-process tier
	_, err = engine.Geocoder.Geocode(context.Background(), "  philadelphia, pa ")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, engine.Cache.Len())

	est := engine.Estimator.EstimateTravel(context.Background(),
		domain.Coordinate{Lat: 40.0, Lng: -75.0}, domain.Coordinate{Lat: 40.01, Lng: -75.01})
	assert.Equal(t, distance.SourceStraightLine, est.Source)
}

func TestNewEngine_MapboxEnabledRegistersProvider(t *testing.T) {
	cfg := baseConfig("http://127.0.0.1:1")
	cfg.MapboxEnabled = true
	cfg.MapboxToken = "pk.test"
	cfg.MapboxTimeout = time.Second

	metrics := observability.NewMetricsForTesting()
	_, err := NewEngine(cfg, nil, nil, discardLogger(), metrics)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.ProviderEnabled.WithLabelValues("mapbox")), 1e-9)
}

func TestNewEngine_AppliesPolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("min_score: 0.35\n"), 0o600))

	cfg := baseConfig("http://127.0.0.1:1")
	cfg.MatchPolicyFile = path

	engine, err := NewEngine(cfg, nil, nil, discardLogger(), observability.NewMetricsForTesting())
	require.NoError(t, err)
	assert.InDelta(t, 0.35, engine.Policy.MinScore, 1e-9)
	assert.InDelta(t, 0.35, engine.Scorer.Policy().MinScore, 1e-9)
}

func TestNewEngine_BadPolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("min_score: 7\n"), 0o600))

	cfg := baseConfig("http://127.0.0.1:1")
	cfg.MatchPolicyFile = path

	_, err := NewEngine(cfg, nil, nil, discardLogger(), observability.NewMetricsForTesting())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_score")
}
