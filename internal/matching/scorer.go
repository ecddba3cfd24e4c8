// Package matching scores donations against recipient needs and ranks the
// best candidates.
package matching

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/healnet/donation-matching/internal/domain"
	"github.com/jonboulle/clockwork"
)

// TravelEstimator supplies distance, time, and cost between two points.
type TravelEstimator interface {
	EstimateTravel(ctx context.Context, origin, destination domain.Coordinate) domain.TravelEstimate
}

// Scorer computes a ScoredMatch for one donation/need pair.
type Scorer struct {
	policy    Policy
	estimator TravelEstimator
	clock     clockwork.Clock
}

func NewScorer(policy Policy, estimator TravelEstimator, clock clockwork.Clock) *Scorer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scorer{policy: policy, estimator: estimator, clock: clock}
}

// Policy returns the scoring policy in use.
func (s *Scorer) Policy() Policy {
	return s.policy
}

// Score requires both records to have coordinates.
func (s *Scorer) Score(ctx context.Context, donation domain.Donation, need domain.Need) (domain.ScoredMatch, error) {
	if donation.Coordinates == nil {
		return domain.ScoredMatch{}, domain.WrapError(domain.ErrInvalidInput, "score", errors.New("donation has no coordinates"))
	}
	if need.Coordinates == nil {
		return domain.ScoredMatch{}, domain.WrapError(domain.ErrInvalidInput, "score", errors.New("need has no coordinates"))
	}

	travel := s.estimator.EstimateTravel(ctx, *donation.Coordinates, *need.Coordinates)

	score := domain.MatchScore{
		Category:       CategoryScore(donation.Category, need.Category),
		Distance:       DistanceScore(travel.DistanceKm, s.policy.DistanceCutoffKm),
		Urgency:        s.policy.UrgencyScore(need.Urgency),
		Quantity:       QuantityScore(donation.Quantity, need.Quantity),
		ItemSimilarity: ItemSimilarity(donation.Item, need.Item),
		Recency:        RecencyScore(s.clock.Since(need.CreatedAt), s.policy.RecencyWindow),
	}
	score.Total = s.policy.Total(score)

	return domain.ScoredMatch{
		Need:               need,
		Score:              score,
		DistanceKm:         travel.DistanceKm,
		DrivingTimeMinutes: travel.DrivingTimeMinutes,
		LogisticsCost:      travel.LogisticsCost,
		MatchQuality:       s.policy.Quality(score.Total),
	}, nil
}

// CategoryScore is 1 for a case-insensitive match. Two empty categories match.
func CategoryScore(a, b domain.Category) float64 {
	if strings.EqualFold(strings.TrimSpace(string(a)), strings.TrimSpace(string(b))) {
		return 1
	}
	return 0
}

// DistanceScore falls off linearly from 1 at 0 km to 0 at cutoffKm.
func DistanceScore(km, cutoffKm float64) float64 {
	if cutoffKm <= 0 {
		return 0
	}
	return math.Max(0, 1-math.Min(math.Max(km, 0), cutoffKm)/cutoffKm)
}

// QuantityScore is the min/max quantity ratio plus 0.2 when the donation
// covers the whole need, capped at 1.
func QuantityScore(donated, needed int) float64 {
	if donated <= 0 || needed <= 0 {
		return 0
	}
	ratio := float64(min(donated, needed)) / float64(max(donated, needed))
	if donated >= needed {
		ratio += 0.2
	}
	return math.Min(1, ratio)
}

// ItemSimilarity compares item descriptions: 1 on exact match, 0.8 when one
// contains the other, otherwise 0.5 + 0.3 * shared/max distinct words when
// any word is shared.
func ItemSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.8
	}

	wordsA := wordSet(a)
	wordsB := wordSet(b)
	shared := 0
	for w := range wordsA {
		if _, ok := wordsB[w]; ok {
			shared++
		}
	}
	if shared == 0 {
		return 0
	}
	return 0.5 + 0.3*float64(shared)/float64(max(len(wordsA), len(wordsB)))
}

// RecencyScore decays linearly from 1 to 0 over window.
func RecencyScore(age, window time.Duration) float64 {
	if window <= 0 {
		return 0
	}
	if age <= 0 {
		return 1
	}
	return math.Max(0, 1-float64(age)/float64(window))
}

func wordSet(s string) map[string]struct{} {
	words := strings.Fields(s)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func normalizeUrgency(u domain.Urgency) domain.Urgency {
	return domain.Urgency(strings.ToLower(strings.TrimSpace(string(u))))
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
