package matching

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/healnet/donation-matching/internal/domain"
	"github.com/healnet/donation-matching/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeStore struct {
	mu          sync.Mutex
	donations   map[string]domain.Donation
	needs       []domain.Need
	findErr     error
	updateErr   error
	updates     []domain.GeocodeUpdate
	radiusCalls []float64
	limits      []int
}

func (s *fakeStore) GetDonation(_ context.Context, id string) (domain.Donation, error) {
	d, ok := s.donations[id]
	if !ok {
		return domain.Donation{}, domain.WrapError(domain.ErrNotFound, "get donation", errors.New(id))
	}
	return d, nil
}

func (s *fakeStore) FindOpenNeedsWithinRadius(_ context.Context, _ domain.Coordinate, radiusMeters float64, limit int) ([]domain.Need, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.radiusCalls = append(s.radiusCalls, radiusMeters)
	s.limits = append(s.limits, limit)
	if s.findErr != nil {
		return nil, s.findErr
	}
	out := make([]domain.Need, len(s.needs))
	copy(out, s.needs)
	return out, nil
}

func (s *fakeStore) UpdateGeocode(_ context.Context, _ domain.RecordKind, u domain.GeocodeUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, u)
	return s.updateErr
}

type fakeGeocoder struct {
	result domain.GeocodeResult
	err    error
	calls  int
}

func (g *fakeGeocoder) Geocode(_ context.Context, _ string) (domain.GeocodeResult, error) {
	g.calls++
	return g.result, g.err
}

func newTestService(store Store, geocoder domain.Geocoder, clock clockwork.Clock) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	scorer := NewScorer(DefaultPolicy(), straightLine{}, clock)
	return NewService(Config{Concurrency: 3}, store, geocoder, scorer, clock, logger, observability.NewMetricsForTesting())
}

func medicalNeed(id string, lat, lng float64, createdAt time.Time) domain.Need {
	return domain.Need{
		ID:          id,
		Category:    domain.CategoryMedicalSupplies,
		Item:        "medical masks",
		Urgency:     domain.UrgencyHigh,
		Quantity:    400,
		Coordinates: coord(lat, lng),
		Status:      domain.NeedOpen,
		CreatedAt:   createdAt,
	}
}

func maskDonation() domain.Donation {
	return domain.Donation{
		ID:           "d1",
		Category:     domain.CategoryMedicalSupplies,
		Item:         "masks",
		Quantity:     500,
		LocationText: "100 Main St, Springfield",
		Coordinates:  coord(40.0, -75.0),
	}
}

// --- tests ---

func TestFindBestMatches_RanksFiltersAndLimits(t *testing.T) {
	clock := clockwork.NewFakeClock()
	now := clock.Now()

	far := medicalNeed("far", 40.4, -75.0, now)
	irrelevant := domain.Need{
		ID: "irrelevant", Category: domain.CategoryOther, Item: "toys", Urgency: domain.UrgencyLow,
		Quantity: 1, Coordinates: coord(40.9, -75.0), CreatedAt: now.Add(-60 * 24 * time.Hour),
	}
	store := &fakeStore{needs: []domain.Need{
		far,
		medicalNeed("near", 40.01, -75.01, now),
		irrelevant,
		{ID: "no-coords", Category: domain.CategoryMedicalSupplies, Item: "masks", Quantity: 10},
		medicalNeed("mid", 40.1, -75.0, now),
	}}
	svc := newTestService(store, nil, clock)

	matches, err := svc.FindBestMatches(context.Background(), maskDonation(), 0, 2)
	require.NoError(t, err)

	require.Len(t, matches, 2)
	assert.Equal(t, "near", matches[0].Need.ID)
	assert.Equal(t, "mid", matches[1].Need.ID)
	assert.Equal(t, []float64{50000}, store.radiusCalls)
	assert.Equal(t, []int{6}, store.limits)
}

func TestFindBestMatches_NeverReturnsLowScores(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var needs []domain.Need
	for i := range 20 {
		needs = append(needs, domain.Need{
			ID:          fmt.Sprintf("n%02d", i),
			Category:    domain.CategoryOther,
			Item:        "books",
			Urgency:     domain.UrgencyNone,
			Quantity:    1000,
			Coordinates: coord(40+float64(i)*0.05, -75),
			CreatedAt:   clock.Now().Add(-40 * 24 * time.Hour),
		})
	}
	svc := newTestService(&fakeStore{needs: needs}, nil, clock)

	matches, err := svc.FindBestMatches(context.Background(), maskDonation(), 100, 50)
	require.NoError(t, err)

	for i, m := range matches {
		assert.Greater(t, m.Score.Total, 0.2)
		if i > 0 {
			assert.GreaterOrEqual(t, matches[i-1].Score.Total, m.Score.Total)
		}
	}
}

func TestFindBestMatches_TieBreakByCreatedAtThenID(t *testing.T) {
	clock := clockwork.NewFakeClock()
	now := clock.Now()
	store := &fakeStore{needs: []domain.Need{
		medicalNeed("b", 40.01, -75.01, now),
		medicalNeed("c", 40.01, -75.01, now.Add(-time.Hour)),
		medicalNeed("a", 40.01, -75.01, now),
	}}
	// Recency differences of an hour would break the tie; zero its weight.
	policy := DefaultPolicy()
	policy.Weights.Recency = 0
	svc := NewService(Config{}, store, nil, NewScorer(policy, straightLine{}, clock), clock,
		slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting())

	matches, err := svc.FindBestMatches(context.Background(), maskDonation(), 0, 0)
	require.NoError(t, err)

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.Need.ID
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}

func TestFindBestMatches_GeocodesAndWritesBack(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := &fakeStore{needs: []domain.Need{medicalNeed("near", 40.01, -75.01, clock.Now())}}
	geocoder := &fakeGeocoder{result: domain.GeocodeResult{
		Coordinates: domain.Coordinate{Lat: 40, Lng: -75},
		Quality:     domain.QualityExact,
		Confidence:  0.9,
	}}
	svc := newTestService(store, geocoder, clock)

	donation := maskDonation()
	donation.Coordinates = nil
	matches, err := svc.FindBestMatches(context.Background(), donation, 0, 0)
	require.NoError(t, err)

	assert.Len(t, matches, 1)
	assert.Equal(t, 1, geocoder.calls)
	require.Len(t, store.updates, 1)
	assert.Equal(t, "d1", store.updates[0].ID)
	assert.Equal(t, clock.Now(), store.updates[0].AttemptedAt)
	assert.Equal(t, domain.QualityExact, store.updates[0].Result.Quality)
}

func TestFindBestMatches_WriteBackFailureIsNotFatal(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := &fakeStore{
		needs:     []domain.Need{medicalNeed("near", 40.01, -75.01, clock.Now())},
		updateErr: errors.New("read-only replica"),
	}
	geocoder := &fakeGeocoder{result: domain.GeocodeResult{Coordinates: domain.Coordinate{Lat: 40, Lng: -75}, Quality: domain.QualityApproximate}}
	svc := newTestService(store, geocoder, clock)

	donation := maskDonation()
	donation.Coordinates = nil
	matches, err := svc.FindBestMatches(context.Background(), donation, 0, 0)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestFindBestMatches_GeocodeFailureYieldsEmpty(t *testing.T) {
	tests := []struct {
		name     string
		geocoder domain.Geocoder
	}{
		{"error", &fakeGeocoder{err: domain.ErrGeocodeUnavailable}},
		{"failed quality", &fakeGeocoder{result: domain.GeocodeResult{Quality: domain.QualityFailed}}},
		{"no geocoder", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{needs: []domain.Need{medicalNeed("near", 40.01, -75.01, time.Now())}}
			svc := newTestService(store, tt.geocoder, clockwork.NewFakeClock())

			donation := maskDonation()
			donation.Coordinates = nil
			matches, err := svc.FindBestMatches(context.Background(), donation, 0, 0)
			require.NoError(t, err)
			assert.NotNil(t, matches)
			assert.Empty(t, matches)
			assert.Empty(t, store.radiusCalls)
			assert.Empty(t, store.updates)
		})
	}
}

func TestFindBestMatches_StoreFailureIsPersistenceError(t *testing.T) {
	store := &fakeStore{findErr: errors.New("connection reset")}
	svc := newTestService(store, nil, clockwork.NewFakeClock())

	_, err := svc.FindBestMatches(context.Background(), maskDonation(), 0, 0)
	require.ErrorIs(t, err, domain.ErrPersistence)
}

func TestFindBestMatches_CancelledContext(t *testing.T) {
	store := &fakeStore{needs: []domain.Need{medicalNeed("near", 40.01, -75.01, time.Now())}}
	svc := newTestService(store, nil, clockwork.NewFakeClock())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.FindBestMatches(ctx, maskDonation(), 0, 0)
	require.ErrorIs(t, err, context.Canceled)
}

func TestMatchDonation(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := &fakeStore{
		donations: map[string]domain.Donation{"d1": maskDonation()},
		needs:     []domain.Need{medicalNeed("near", 40.01, -75.01, clock.Now())},
	}
	svc := newTestService(store, nil, clock)

	matches, err := svc.MatchDonation(context.Background(), "d1", 10, 5)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
	assert.Equal(t, []float64{10000}, store.radiusCalls)

	_, err = svc.MatchDonation(context.Background(), "missing", 0, 0)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
