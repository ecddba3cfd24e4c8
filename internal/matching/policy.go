package matching

import (
	"time"

	"github.com/healnet/donation-matching/internal/domain"
)

// Weights are the sub-score multipliers of the total score.
type Weights struct {
	Category       float64
	Distance       float64
	Urgency        float64
	Quantity       float64
	ItemSimilarity float64
	Recency        float64
}

func DefaultWeights() Weights {
	return Weights{
		Category:       0.25,
		Distance:       0.25,
		Urgency:        0.20,
		Quantity:       0.15,
		ItemSimilarity: 0.10,
		Recency:        0.05,
	}
}

// Thresholds are the minimum totals for each quality label.
type Thresholds struct {
	Excellent float64
	Good      float64
	Fair      float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{Excellent: 0.8, Good: 0.6, Fair: 0.4}
}

// Policy is the tunable part of scoring.
type Policy struct {
	Weights          Weights
	Thresholds       Thresholds
	MinScore         float64 // matches scoring at or below this are dropped
	Urgency          map[domain.Urgency]float64
	UrgencyDefault   float64
	DistanceCutoffKm float64
	RecencyWindow    time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Weights:    DefaultWeights(),
		Thresholds: DefaultThresholds(),
		MinScore:   0.2,
		Urgency: map[domain.Urgency]float64{
			domain.UrgencyCritical: 1.0,
			domain.UrgencyHigh:     0.75,
			domain.UrgencyMedium:   0.5,
			domain.UrgencyLow:      0.25,
			domain.UrgencyNone:     0.1,
		},
		UrgencyDefault:   0.1,
		DistanceCutoffKm: 100,
		RecencyWindow:    30 * 24 * time.Hour,
	}
}

// Total is the weighted sum of the sub-scores clamped to [0,1].
func (p Policy) Total(s domain.MatchScore) float64 {
	w := p.Weights
	total := w.Category*s.Category +
		w.Distance*s.Distance +
		w.Urgency*s.Urgency +
		w.Quantity*s.Quantity +
		w.ItemSimilarity*s.ItemSimilarity +
		w.Recency*s.Recency
	return clamp01(total)
}

// Quality labels a total score.
func (p Policy) Quality(total float64) domain.MatchQuality {
	switch {
	case total >= p.Thresholds.Excellent:
		return domain.MatchExcellent
	case total >= p.Thresholds.Good:
		return domain.MatchGood
	case total >= p.Thresholds.Fair:
		return domain.MatchFair
	default:
		return domain.MatchPoor
	}
}

// UrgencyScore looks u up case-insensitively; unknown values get UrgencyDefault.
func (p Policy) UrgencyScore(u domain.Urgency) float64 {
	if v, ok := p.Urgency[normalizeUrgency(u)]; ok {
		return v
	}
	return p.UrgencyDefault
}
