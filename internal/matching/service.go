package matching

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/healnet/donation-matching/internal/domain"
	"github.com/healnet/donation-matching/internal/observability"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxDistanceKm = 50
	DefaultLimit         = 10

	// candidateFactor over-fetches candidates to absorb post-score filtering.
	candidateFactor = 3
)

// Store is the persistence the orchestrator needs.
type Store interface {
	GetDonation(ctx context.Context, id string) (domain.Donation, error)
	FindOpenNeedsWithinRadius(ctx context.Context, center domain.Coordinate, radiusMeters float64, limit int) ([]domain.Need, error)
	UpdateGeocode(ctx context.Context, kind domain.RecordKind, update domain.GeocodeUpdate) error
}

// Config tunes a Service. Zero values take defaults.
type Config struct {
	MaxDistanceKm float64
	Limit         int
	Concurrency   int
}

// Service ranks open needs for a donation.
type Service struct {
	store    Store
	geocoder domain.Geocoder
	scorer   *Scorer
	cfg      Config
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewService creates a matching orchestrator. geocoder may be nil, in which
// case donations without coordinates never match.
func NewService(cfg Config, store Store, geocoder domain.Geocoder, scorer *Scorer, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if cfg.MaxDistanceKm <= 0 {
		cfg.MaxDistanceKm = DefaultMaxDistanceKm
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		store:    store,
		geocoder: geocoder,
		scorer:   scorer,
		cfg:      cfg,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
	}
}

// MatchDonation loads a donation by id and ranks its matches.
func (s *Service) MatchDonation(ctx context.Context, donationID string, maxDistanceKm float64, limit int) ([]domain.ScoredMatch, error) {
	donation, err := s.store.GetDonation(ctx, donationID)
	if err != nil {
		s.metrics.MatchRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("load donation %s: %w", donationID, err)
	}
	return s.FindBestMatches(ctx, donation, maxDistanceKm, limit)
}

// FindBestMatches returns up to limit needs within maxDistanceKm of the
// donation, best first. Non-positive arguments take the configured defaults.
// A donation that cannot be geocoded yields an empty result, not an error.
func (s *Service) FindBestMatches(ctx context.Context, donation domain.Donation, maxDistanceKm float64, limit int) ([]domain.ScoredMatch, error) {
	start := s.clock.Now()
	defer func() {
		s.metrics.MatchDuration.Observe(s.clock.Since(start).Seconds())
	}()

	if maxDistanceKm <= 0 {
		maxDistanceKm = s.cfg.MaxDistanceKm
	}
	if limit <= 0 {
		limit = s.cfg.Limit
	}

	coords, ok := s.resolveCoordinates(ctx, &donation)
	if !ok {
		s.metrics.MatchRequests.WithLabelValues("geocode_failed").Inc()
		return []domain.ScoredMatch{}, nil
	}
	donation.Coordinates = &coords

	needs, err := s.store.FindOpenNeedsWithinRadius(ctx, coords, maxDistanceKm*1000, limit*candidateFactor)
	if err != nil {
		s.metrics.MatchRequests.WithLabelValues("error").Inc()
		if !errors.Is(err, domain.ErrPersistence) {
			err = domain.WrapError(domain.ErrPersistence, "find candidate needs", err)
		}
		return nil, err
	}
	s.metrics.MatchCandidates.Observe(float64(len(needs)))

	scored, err := s.scoreAll(ctx, donation, needs)
	if err != nil {
		s.metrics.MatchRequests.WithLabelValues("error").Inc()
		return nil, err
	}

	matches := rank(scored, s.scorer.Policy().MinScore, limit)
	s.metrics.MatchRequests.WithLabelValues("ok").Inc()
	s.metrics.MatchResults.Observe(float64(len(matches)))

	s.logger.Debug("matches ranked",
		"donation_id", donation.ID,
		"candidates", len(needs),
		"matches", len(matches),
	)
	return matches, nil
}

// resolveCoordinates geocodes the donation when needed and writes the result
// back. Any failure is logged and reported as ok=false.
func (s *Service) resolveCoordinates(ctx context.Context, donation *domain.Donation) (domain.Coordinate, bool) {
	if donation.Coordinates != nil {
		return *donation.Coordinates, true
	}
	if s.geocoder == nil {
		s.logger.Warn("donation has no coordinates and no geocoder is configured", "donation_id", donation.ID)
		return domain.Coordinate{}, false
	}

	result, err := s.geocoder.Geocode(ctx, donation.LocationText)
	if err != nil {
		s.logger.Warn("donation geocoding failed, returning no matches",
			"donation_id", donation.ID,
			"location", donation.LocationText,
			"error", err,
		)
		return domain.Coordinate{}, false
	}
	if !result.Quality.Usable() {
		s.logger.Warn("donation location could not be resolved, returning no matches",
			"donation_id", donation.ID,
			"location", donation.LocationText,
		)
		return domain.Coordinate{}, false
	}

	if donation.ID != "" {
		update := domain.GeocodeUpdate{ID: donation.ID, Result: &result, AttemptedAt: s.clock.Now()}
		if err := s.store.UpdateGeocode(ctx, domain.KindDonation, update); err != nil {
			s.logger.Warn("persist donation geocode failed", "donation_id", donation.ID, "error", err)
		}
	}
	return result.Coordinates, true
}

// scoreAll scores candidates concurrently. Needs without coordinates are
// skipped.
func (s *Service) scoreAll(ctx context.Context, donation domain.Donation, needs []domain.Need) ([]domain.ScoredMatch, error) {
	results := make([]*domain.ScoredMatch, len(needs))

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, need := range needs {
		if need.Coordinates == nil {
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			m, err := s.scorer.Score(ctx, donation, need)
			if err != nil {
				s.logger.Warn("skipping unscorable need", "need_id", need.ID, "error", err)
				return nil
			}
			results[i] = &m
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.ScoredMatch, 0, len(needs))
	for _, m := range results {
		if m != nil {
			out = append(out, *m)
		}
	}
	return out, nil
}

// rank drops matches at or below minScore and orders the rest by total
// descending, then need creation time, then need id.
func rank(matches []domain.ScoredMatch, minScore float64, limit int) []domain.ScoredMatch {
	kept := slices.DeleteFunc(matches, func(m domain.ScoredMatch) bool {
		return m.Score.Total <= minScore
	})

	slices.SortStableFunc(kept, func(a, b domain.ScoredMatch) int {
		if c := cmp.Compare(b.Score.Total, a.Score.Total); c != 0 {
			return c
		}
		if c := a.Need.CreatedAt.Compare(b.Need.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Need.ID, b.Need.ID)
	})

	if len(kept) > limit {
		kept = kept[:limit]
	}
	if kept == nil {
		kept = []domain.ScoredMatch{}
	}
	return kept
}
