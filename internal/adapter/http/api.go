package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/healnet/donation-matching/internal/domain"
	"github.com/healnet/donation-matching/internal/geo"
)

const (
	maxLimit         = 100
	maxSearchRadius  = 500.0
	geoJSONMediaType = "application/geo+json"
)

// handleMatches serves GET /api/donations/{id}/matches.
// Query: max_distance_km, limit, format=json|geojson.
func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	w.Header().Set("X-Request-ID", requestID)

	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "donation id is required")
		return
	}

	q := r.URL.Query()
	maxKm, err := parseFloatParam(q.Get("max_distance_km"), maxSearchRadius)
	if err != nil {
		writeError(w, http.StatusBadRequest, "max_distance_km: "+err.Error())
		return
	}
	limit, err := parseIntParam(q.Get("limit"), maxLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit: "+err.Error())
		return
	}
	format := strings.ToLower(q.Get("format"))
	if format != "" && format != "json" && format != "geojson" {
		writeError(w, http.StatusBadRequest, "format must be json or geojson")
		return
	}

	matches, err := s.matcher.MatchDonation(r.Context(), id, maxKm, limit)
	if err != nil {
		s.writeDomainError(w, err, "match donation", "donation_id", id, "request_id", requestID)
		return
	}

	if format == "geojson" {
		w.Header().Set("Content-Type", geoJSONMediaType)
		w.WriteHeader(http.StatusOK)
		writeBody(w, matchesToGeoJSON(matches))
		return
	}

	writeJSON(w, http.StatusOK, domain.MatchResult{
		RunID:       requestID,
		DonationID:  id,
		Matches:     matches,
		GeneratedAt: time.Now().UTC(),
	})
}

// handleGeocode serves GET /api/geocode?address=.
func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimSpace(r.URL.Query().Get("address"))
	if address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}
	result, err := s.geocoder.Geocode(r.Context(), address)
	if err != nil {
		s.writeDomainError(w, err, "geocode", "address", address)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error, op string, attrs ...any) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrGeocodeUnavailable), errors.Is(err, domain.ErrProviderUnavailable):
		s.logger.Warn(op+" failed", append(attrs, "error", err)...)
		writeError(w, http.StatusServiceUnavailable, "geocoding providers unavailable")
	default:
		s.logger.Error(op+" failed", append(attrs, "error", err)...)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func matchesToGeoJSON(matches []domain.ScoredMatch) geo.FeatureCollection {
	features := make([]geo.Feature, 0, len(matches))
	for i, m := range matches {
		if m.Need.Coordinates == nil {
			continue
		}
		features = append(features, geo.ToGeoJSONPoint(*m.Need.Coordinates, map[string]any{
			"rank":          i + 1,
			"need_id":       m.Need.ID,
			"item":          m.Need.Item,
			"category":      m.Need.Category,
			"urgency":       m.Need.Urgency,
			"score":         m.Score.Total,
			"match_quality": m.MatchQuality,
			"distance":      geo.FormatDistance(m.DistanceKm),
			"driving_time":  geo.FormatDrivingTime(m.DrivingTimeMinutes),
		}))
	}
	return geo.ToFeatureCollection(features)
}

// parseFloatParam returns 0 for an empty value so the service default applies.
func parseFloatParam(s string, upper float64) (float64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.New("must be a number")
	}
	if v <= 0 || v > upper {
		return 0, errors.New("out of range")
	}
	return v, nil
}

func parseIntParam(s string, upper int) (int, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("must be an integer")
	}
	if v <= 0 || v > upper {
		return 0, errors.New("out of range")
	}
	return v, nil
}
