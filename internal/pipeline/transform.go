package pipeline

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/healnet/donation-matching/internal/domain"
)

// Matcher ranks open needs for a donation.
type Matcher interface {
	FindBestMatches(ctx context.Context, donation domain.Donation, maxDistanceKm float64, limit int) ([]domain.ScoredMatch, error)
}

// DonationRecorder persists submitted donations so the backfill worker and
// the HTTP surface can see them.
type DonationRecorder interface {
	UpsertDonation(ctx context.Context, d domain.Donation) error
}

// MatchTransformer implements Transformer by running the matching engine on
// each submitted donation.
type MatchTransformer struct {
	matcher       Matcher
	recorder      DonationRecorder
	clock         clockwork.Clock
	maxDistanceKm float64
	limit         int
	logger        *slog.Logger
}

// NewTransformer creates a MatchTransformer. Pass a nil recorder to skip
// persisting donations before matching.
func NewTransformer(matcher Matcher, recorder DonationRecorder, clock clockwork.Clock, maxDistanceKm float64, limit int, logger *slog.Logger) *MatchTransformer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MatchTransformer{
		matcher:       matcher,
		recorder:      recorder,
		clock:         clock,
		maxDistanceKm: maxDistanceKm,
		limit:         limit,
		logger:        logger,
	}
}

func (t *MatchTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.MatchResult, error) {
	donation, err := domain.ParseDonationEvent(raw)
	if err != nil {
		return domain.MatchResult{}, err
	}

	if t.recorder != nil {
		if err := t.recorder.UpsertDonation(ctx, donation); err != nil {
			return domain.MatchResult{}, err
		}
	}

	matches, err := t.matcher.FindBestMatches(ctx, donation, t.maxDistanceKm, t.limit)
	if err != nil {
		return domain.MatchResult{}, err
	}
	if matches == nil {
		matches = []domain.ScoredMatch{}
	}

	result := domain.MatchResult{
		RunID:       uuid.NewString(),
		DonationID:  donation.ID,
		Matches:     matches,
		GeneratedAt: t.clock.Now().UTC(),
	}
	t.logger.Debug("donation matched", "donation_id", donation.ID, "run_id", result.RunID, "matches", len(matches))
	return result, nil
}
