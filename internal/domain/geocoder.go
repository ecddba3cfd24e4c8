package domain

import (
	"context"
	"time"
)

// GeocodeQuality grades how precisely a location string was resolved.
type GeocodeQuality string

const (
	QualityExact       GeocodeQuality = "exact"
	QualityApproximate GeocodeQuality = "approximate"
	QualityFailed      GeocodeQuality = "failed"
)

// Usable reports whether coordinates of this quality may be used for matching.
func (q GeocodeQuality) Usable() bool {
	return q == QualityExact || q == QualityApproximate
}

// GeocodeResult is a resolved location.
type GeocodeResult struct {
	Coordinates      Coordinate     `json:"coordinates"`
	FormattedAddress string         `json:"formatted_address"`
	Quality          GeocodeQuality `json:"quality"`
	Confidence       float64        `json:"confidence"` // 0.0–1.0
	Provider         string         `json:"provider,omitempty"`
}

// GeocodeCacheEntry is a persisted geocode result keyed by normalized address.
type GeocodeCacheEntry struct {
	Address          string
	Coordinates      Coordinate
	FormattedAddress string
	Quality          GeocodeQuality
	Confidence       float64
	UpdatedAt        time.Time
}

// Result converts the entry back into a GeocodeResult.
func (e GeocodeCacheEntry) Result() GeocodeResult {
	return GeocodeResult{
		Coordinates:      e.Coordinates,
		FormattedAddress: e.FormattedAddress,
		Quality:          e.Quality,
		Confidence:       e.Confidence,
		Provider:         "cache",
	}
}

// Geocoder resolves free-text locations to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (GeocodeResult, error)
}

// PlaceMatch is a provider's best candidate for an address, expressed in the
// provider's own place-type taxonomy.
type PlaceMatch struct {
	Found            bool
	Coordinates      Coordinate
	FormattedAddress string
	PlaceType        string
	PlaceClass       string // broader category, for providers that report one
	Relevance        float64 // 0 when the provider does not report one
}

// GeocodeProvider is one upstream geocoding service.
type GeocodeProvider interface {
	Name() string
	Lookup(ctx context.Context, address string) (PlaceMatch, error)
}

// RecordKind distinguishes the two geocoded record types.
type RecordKind string

const (
	KindDonation RecordKind = "donation"
	KindNeed     RecordKind = "need"
)

// GeocodeTarget is a record waiting for coordinates.
type GeocodeTarget struct {
	Kind         RecordKind
	ID           string
	LocationText string
}

// GeocodeUpdate is the outcome of geocoding one record. A nil Result marks the
// record as attempted without coordinates.
type GeocodeUpdate struct {
	ID          string
	Result      *GeocodeResult
	AttemptedAt time.Time
}
