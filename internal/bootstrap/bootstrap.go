// Package bootstrap assembles the matching engine from configuration. Both
// the long-running service and the operator CLI build through it.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/healnet/donation-matching/internal/adapter/mapbox"
	"github.com/healnet/donation-matching/internal/adapter/nominatim"
	"github.com/healnet/donation-matching/internal/adapter/postgres"
	"github.com/healnet/donation-matching/internal/backfill"
	"github.com/healnet/donation-matching/internal/config"
	"github.com/healnet/donation-matching/internal/distance"
	"github.com/healnet/donation-matching/internal/domain"
	"github.com/healnet/donation-matching/internal/geocode"
	"github.com/healnet/donation-matching/internal/matching"
	"github.com/healnet/donation-matching/internal/observability"
	"github.com/healnet/donation-matching/internal/resilience"
)

// Engine is the database-free part of the graph: geocoding and travel
// estimation behind the shared resilience executor.
type Engine struct {
	Clock     clockwork.Clock
	Policy    matching.Policy
	Executor  *resilience.Executor
	Geocoder  *geocode.Service
	Cache     *geocode.MemoryCache
	Estimator *distance.Estimator
	Scorer    *matching.Scorer
}

// App is the full graph including persistence.
type App struct {
	*Engine
	DB       *sql.DB
	Store    *postgres.Store
	Matcher  *matching.Service
	Backfill *backfill.Worker
}

// NewEngine builds providers and services. backing is the persistent geocode
// cache tier and may be nil.
func NewEngine(cfg *config.Config, backing geocode.Cache, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) (*Engine, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	policy, tables, err := config.LoadPolicy(cfg.MatchPolicyFile)
	if err != nil {
		return nil, err
	}

	rcfg := resilience.DefaultConfig()
	rcfg.RetryMaxAttempts = cfg.ProviderRetryAttempts
	exec := resilience.NewExecutor(rcfg, logger)

	var (
		providers []domain.GeocodeProvider
		routers   []domain.Router
	)
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxCountry, cfg.MapboxTimeout, logger)
		providers = append(providers, client)
		routers = append(routers, client)
		metrics.ProviderEnabled.WithLabelValues(client.Name()).Set(1)
		logger.Info("mapbox enabled", "timeout", cfg.MapboxTimeout, "country", cfg.MapboxCountry, "profile", cfg.RoutingProfile)
	} else {
		metrics.ProviderEnabled.WithLabelValues("mapbox").Set(0)
		logger.Info("mapbox disabled; routing falls back to straight-line estimates")
	}
	osm := nominatim.NewClient(cfg.NominatimURL, cfg.NominatimUserAgent, cfg.MapboxCountry, cfg.NominatimRatePerSec, cfg.NominatimTimeout, logger)
	providers = append(providers, osm)
	metrics.ProviderEnabled.WithLabelValues(osm.Name()).Set(1)

	cache := geocode.NewMemoryCache(cfg.GeocodeCacheSize, cfg.GeocodeCacheTTL, clock, backing)
	geocoder := geocode.NewService(geocode.Config{
		TTL:      cfg.GeocodeCacheTTL,
		Tables:   tables,
		Clock:    clock,
		Executor: exec,
	}, providers, cache, logger, metrics)

	estimator := distance.NewEstimator(distance.Config{
		Profile:  cfg.RoutingProfile,
		Executor: exec,
	}, routers, logger, metrics)

	return &Engine{
		Clock:     clock,
		Policy:    policy,
		Executor:  exec,
		Geocoder:  geocoder,
		Cache:     cache,
		Estimator: estimator,
		Scorer:    matching.NewScorer(policy, estimator, clock),
	}, nil
}

// New opens the database, ensures the schema and builds the whole graph.
// Callers must Close the returned App.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*App, error) {
	db, err := postgres.OpenDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	engine, err := NewEngine(cfg, postgres.NewGeocodeCache(db), nil, logger, metrics)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	store := postgres.NewStore(db)
	matcher := matching.NewService(matching.Config{
		MaxDistanceKm: cfg.MatchMaxDistanceKm,
		Limit:         cfg.MatchLimit,
		Concurrency:   cfg.MatchConcurrency,
	}, store, engine.Geocoder, engine.Scorer, engine.Clock, logger, metrics)

	worker := backfill.NewWorker(backfill.Config{
		BatchSize:  cfg.BackfillBatchSize,
		Delay:      cfg.BackfillDelay,
		RetryAfter: cfg.BackfillRetryAfter,
	}, store, engine.Geocoder, engine.Clock, logger, metrics)

	return &App{
		Engine:   engine,
		DB:       db,
		Store:    store,
		Matcher:  matcher,
		Backfill: worker,
	}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}
