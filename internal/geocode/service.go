// Package geocode resolves free-text locations through an ordered chain of
// providers behind a cache with expiry.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/healnet/donation-matching/internal/domain"
	"github.com/healnet/donation-matching/internal/observability"
	"github.com/healnet/donation-matching/internal/resilience"
	"github.com/jonboulle/clockwork"
)

// DefaultTTL is how long a cached result stays fresh.
const DefaultTTL = 30 * 24 * time.Hour

// Config tunes a Service. Zero values take defaults.
type Config struct {
	TTL      time.Duration
	Tables   map[string]QualityTable // keyed by provider name
	Clock    clockwork.Clock
	Executor *resilience.Executor // nil calls providers directly
}

// Service implements domain.Geocoder. Providers are tried in order; every
// provider but the last must produce a usable quality to be accepted, and the
// last provider's answer is returned whatever its quality.
type Service struct {
	providers []domain.GeocodeProvider
	cache     Cache
	tables    map[string]QualityTable
	ttl       time.Duration
	clock     clockwork.Clock
	exec      *resilience.Executor
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewService creates a geocoder over providers. cache may be nil.
func NewService(cfg Config, providers []domain.GeocodeProvider, cache Cache, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Tables == nil {
		cfg.Tables = DefaultQualityTables()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Service{
		providers: providers,
		cache:     cache,
		tables:    cfg.Tables,
		ttl:       cfg.TTL,
		clock:     cfg.Clock,
		exec:      cfg.Executor,
		logger:    logger,
		metrics:   metrics,
	}
}

// Geocode resolves address to coordinates.
func (s *Service) Geocode(ctx context.Context, address string) (domain.GeocodeResult, error) {
	key := NormalizeAddress(address)
	if key == "" {
		return domain.GeocodeResult{}, domain.WrapError(domain.ErrInvalidInput, "geocode", errors.New("address is empty"))
	}

	if result, ok := s.lookupCache(ctx, key); ok {
		return result, nil
	}

	if len(s.providers) == 0 {
		return domain.GeocodeResult{}, domain.WrapError(domain.ErrGeocodeUnavailable, "geocode",
			fmt.Errorf("%w: no providers configured", domain.ErrProviderUnavailable))
	}

	query := strings.TrimSpace(address)
	var lastErr error
	for i, p := range s.providers {
		last := i == len(s.providers)-1

		result, err := s.lookupProvider(ctx, p, query)
		if err != nil {
			lastErr = err
			s.logger.Warn("geocode provider failed",
				"provider", p.Name(),
				"address", query,
				"error", err,
			)
			continue
		}
		if result.Quality.Usable() || last {
			s.store(ctx, key, result)
			return result, nil
		}
		s.logger.Debug("geocode result below usable quality, trying next provider",
			"provider", p.Name(),
			"address", query,
			"quality", result.Quality,
		)
	}

	return domain.GeocodeResult{}, domain.WrapError(domain.ErrGeocodeUnavailable, "geocode", lastErr)
}

func (s *Service) lookupCache(ctx context.Context, key string) (domain.GeocodeResult, bool) {
	if s.cache == nil {
		return domain.GeocodeResult{}, false
	}

	e, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("geocode cache read failed", "address", key, "error", err)
		s.metrics.GeocodeCache.WithLabelValues("miss").Inc()
		return domain.GeocodeResult{}, false
	}
	if !ok || e.Quality == domain.QualityFailed {
		s.metrics.GeocodeCache.WithLabelValues("miss").Inc()
		return domain.GeocodeResult{}, false
	}
	if s.clock.Since(e.UpdatedAt) >= s.ttl {
		s.metrics.GeocodeCache.WithLabelValues("expired").Inc()
		return domain.GeocodeResult{}, false
	}

	s.metrics.GeocodeCache.WithLabelValues("hit").Inc()
	return e.Result(), true
}

func (s *Service) lookupProvider(ctx context.Context, p domain.GeocodeProvider, query string) (domain.GeocodeResult, error) {
	name := p.Name()
	start := s.clock.Now()

	var match domain.PlaceMatch
	call := func(ctx context.Context) error {
		var err error
		match, err = p.Lookup(ctx, query)
		return err
	}

	var err error
	if s.exec != nil {
		err = s.exec.Execute(ctx, "geocode."+name, call, nil)
	} else {
		err = call(ctx)
	}
	s.metrics.GeocodeAPIDuration.WithLabelValues(name).Observe(s.clock.Since(start).Seconds())

	if err != nil {
		s.metrics.GeocodeRequests.WithLabelValues(name, "error").Inc()
		if !errors.Is(err, domain.ErrProviderUnavailable) {
			err = domain.WrapError(domain.ErrProviderUnavailable, name, err)
		}
		return domain.GeocodeResult{}, err
	}

	table, ok := s.tables[name]
	if !ok {
		table = QualityTable{Default: domain.QualityApproximate, DefaultConfidence: 0.7}
	}
	result := table.Classify(match)
	result.Provider = name

	s.metrics.GeocodeRequests.WithLabelValues(name, string(result.Quality)).Inc()
	return result, nil
}

// store writes a result to the cache. Failed results are never cached so the
// address is retried on the next request.
func (s *Service) store(ctx context.Context, key string, result domain.GeocodeResult) {
	if s.cache == nil || result.Quality == domain.QualityFailed {
		return
	}
	err := s.cache.Put(ctx, domain.GeocodeCacheEntry{
		Address:          key,
		Coordinates:      result.Coordinates,
		FormattedAddress: result.FormattedAddress,
		Quality:          result.Quality,
		Confidence:       result.Confidence,
		UpdatedAt:        s.clock.Now(),
	})
	if err != nil {
		s.logger.Warn("geocode cache write failed", "address", key, "error", err)
	}
}
