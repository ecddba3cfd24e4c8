// Package distance estimates travel distance, time, and logistics cost
// between two coordinates.
package distance

import (
	"context"
	"errors"
	"log/slog"

	"github.com/healnet/donation-matching/internal/domain"
	"github.com/healnet/donation-matching/internal/geo"
	"github.com/healnet/donation-matching/internal/observability"
	"github.com/healnet/donation-matching/internal/resilience"
)

// SourceStraightLine marks estimates produced without a router.
const SourceStraightLine = "straight_line"

// CostModel is an affine logistics cost: Base + PerKm * distance.
type CostModel struct {
	Base  float64
	PerKm float64
}

func DefaultCostModel() CostModel {
	return CostModel{Base: 5, PerKm: 0.5}
}

// Cost prices a trip of km kilometers.
func (m CostModel) Cost(km float64) float64 {
	return m.Base + m.PerKm*km
}

// Config tunes an Estimator. Zero values take defaults.
type Config struct {
	Profile          domain.TravelProfile
	FallbackSpeedKmh float64
	Cost             *CostModel
	Executor         *resilience.Executor // nil calls routers directly
}

// Estimator tries each router in order and falls back to the straight-line
// distance at FallbackSpeedKmh. It never returns an error.
type Estimator struct {
	routers []domain.Router
	profile domain.TravelProfile
	speed   float64
	cost    CostModel
	exec    *resilience.Executor
	logger  *slog.Logger
	metrics *observability.Metrics
}

func NewEstimator(cfg Config, routers []domain.Router, logger *slog.Logger, metrics *observability.Metrics) *Estimator {
	if cfg.Profile == "" {
		cfg.Profile = domain.ProfileDriving
	}
	if cfg.FallbackSpeedKmh <= 0 {
		cfg.FallbackSpeedKmh = 50
	}
	cost := DefaultCostModel()
	if cfg.Cost != nil {
		cost = *cfg.Cost
	}
	return &Estimator{
		routers: routers,
		profile: cfg.Profile,
		speed:   cfg.FallbackSpeedKmh,
		cost:    cost,
		exec:    cfg.Executor,
		logger:  logger,
		metrics: metrics,
	}
}

// EstimateTravel returns the best available travel estimate.
func (e *Estimator) EstimateTravel(ctx context.Context, origin, destination domain.Coordinate) domain.TravelEstimate {
	straight := geo.DistanceKm(origin, destination)

	for _, r := range e.routers {
		route, err := e.route(ctx, r, origin, destination)
		if err != nil {
			e.metrics.RouteRequests.WithLabelValues(r.Name(), "error").Inc()
			e.logger.Warn("routing provider failed, degrading",
				"provider", r.Name(),
				"no_route", errors.Is(err, domain.ErrNoRouteFound),
				"error", err,
			)
			continue
		}
		e.metrics.RouteRequests.WithLabelValues(r.Name(), "success").Inc()
		return domain.TravelEstimate{
			DistanceKm:         route.DistanceKm,
			StraightLineKm:     straight,
			DrivingTimeMinutes: route.DurationMinutes,
			LogisticsCost:      e.cost.Cost(route.DistanceKm),
			Source:             r.Name(),
		}
	}

	e.metrics.RouteFallbacks.Inc()
	return domain.TravelEstimate{
		DistanceKm:         straight,
		StraightLineKm:     straight,
		DrivingTimeMinutes: straight / e.speed * 60,
		LogisticsCost:      e.cost.Cost(straight),
		Source:             SourceStraightLine,
	}
}

func (e *Estimator) route(ctx context.Context, r domain.Router, origin, destination domain.Coordinate) (domain.Route, error) {
	var route domain.Route
	call := func(ctx context.Context) error {
		var err error
		route, err = r.Route(ctx, origin, destination, e.profile)
		return err
	}

	var err error
	if e.exec != nil {
		err = e.exec.Execute(ctx, "route."+r.Name(), call, nil)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return domain.Route{}, err
	}
	if route.DistanceKm < 0 || route.DurationMinutes < 0 {
		return domain.Route{}, domain.ErrNoRouteFound
	}
	return route, nil
}
