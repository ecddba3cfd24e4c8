package domain

import (
	"context"
	"time"
)

// TravelProfile selects the routing mode.
type TravelProfile string

const (
	ProfileDriving TravelProfile = "driving"
	ProfileWalking TravelProfile = "walking"
	ProfileCycling TravelProfile = "cycling"
)

// ParseTravelProfile validates a profile name.
func ParseTravelProfile(s string) (TravelProfile, bool) {
	switch p := TravelProfile(s); p {
	case ProfileDriving, ProfileWalking, ProfileCycling:
		return p, true
	}
	return "", false
}

// Route is a routing provider's answer for one origin/destination pair.
type Route struct {
	DistanceKm      float64
	DurationMinutes float64
}

// Router computes road routes between two points.
type Router interface {
	Name() string
	Route(ctx context.Context, origin, destination Coordinate, profile TravelProfile) (Route, error)
}

// TravelEstimate is the distance estimator's output. Source names the router
// that produced it, or "straight_line" for the fallback.
type TravelEstimate struct {
	DistanceKm         float64 `json:"distance_km"`
	StraightLineKm     float64 `json:"straight_line_km"`
	DrivingTimeMinutes float64 `json:"driving_time_minutes"`
	LogisticsCost      float64 `json:"logistics_cost"`
	Source             string  `json:"source"`
}

// MatchScore holds the weighted total and each sub-score, all in [0,1].
type MatchScore struct {
	Total          float64 `json:"total"`
	Category       float64 `json:"category"`
	Distance       float64 `json:"distance"`
	Urgency        float64 `json:"urgency"`
	Quantity       float64 `json:"quantity"`
	ItemSimilarity float64 `json:"item_similarity"`
	Recency        float64 `json:"recency"`
}

type MatchQuality string

const (
	MatchExcellent MatchQuality = "excellent"
	MatchGood      MatchQuality = "good"
	MatchFair      MatchQuality = "fair"
	MatchPoor      MatchQuality = "poor"
)

// ScoredMatch is one ranked candidate need for a donation.
type ScoredMatch struct {
	Need               Need         `json:"need"`
	Score              MatchScore   `json:"score"`
	DistanceKm         float64      `json:"distance_km"`
	DrivingTimeMinutes float64      `json:"driving_time_minutes"`
	LogisticsCost      float64      `json:"logistics_cost"`
	MatchQuality       MatchQuality `json:"match_quality"`
}

// MatchResult is the ranked match list published for one donation.
type MatchResult struct {
	RunID       string        `json:"run_id"`
	DonationID  string        `json:"donation_id"`
	Matches     []ScoredMatch `json:"matches"`
	GeneratedAt time.Time     `json:"generated_at"`
}
