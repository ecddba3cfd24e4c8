package geocode

import (
	"strings"

	"github.com/healnet/donation-matching/internal/domain"
)

// QualityTable maps one provider's place types onto the three-tier quality
// scale. Place types and classes are compared case-insensitively; a match on
// either one counts.
type QualityTable struct {
	Exact             []string
	Approximate       []string
	Default           domain.GeocodeQuality // for found places of any other type
	DefaultConfidence float64               // when the provider reports no relevance
}

// DefaultQualityTables returns the built-in tables keyed by provider name.
func DefaultQualityTables() map[string]QualityTable {
	return map[string]QualityTable{
		"mapbox": {
			Exact:             []string{"address", "poi", "postcode"},
			Approximate:       []string{"place", "locality", "neighborhood", "region"},
			Default:           domain.QualityFailed,
			DefaultConfidence: 0.7,
		},
		"nominatim": {
			Exact:             []string{"house", "building", "commercial", "retail", "industrial", "apartments"},
			Approximate:       []string{"road", "neighbourhood", "suburb", "village", "town", "city"},
			Default:           domain.QualityApproximate,
			DefaultConfidence: 0.7,
		},
	}
}

// Classify grades a provider match. A match that found nothing is failed
// regardless of the table.
func (t QualityTable) Classify(m domain.PlaceMatch) domain.GeocodeResult {
	if !m.Found {
		return domain.GeocodeResult{Quality: domain.QualityFailed}
	}

	quality := t.Default
	if quality == "" {
		quality = domain.QualityFailed
	}
	switch {
	case containsFold(t.Exact, m.PlaceType), containsFold(t.Exact, m.PlaceClass):
		quality = domain.QualityExact
	case containsFold(t.Approximate, m.PlaceType), containsFold(t.Approximate, m.PlaceClass):
		quality = domain.QualityApproximate
	}

	confidence := m.Relevance
	if confidence <= 0 {
		confidence = t.DefaultConfidence
	}

	return domain.GeocodeResult{
		Coordinates:      m.Coordinates,
		FormattedAddress: m.FormattedAddress,
		Quality:          quality,
		Confidence:       min(confidence, 1),
	}
}

func containsFold(list []string, s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// NormalizeAddress derives the cache key for an address.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
