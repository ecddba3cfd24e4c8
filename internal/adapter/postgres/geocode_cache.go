package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/healnet/donation-matching/internal/domain"
)

// GeocodeCache is the persistent geocode cache tier. Rows are never deleted;
// expiry is judged by the reader from updated_at.
type GeocodeCache struct {
	db *sql.DB
}

func NewGeocodeCache(db *sql.DB) *GeocodeCache {
	return &GeocodeCache{db: db}
}

func (c *GeocodeCache) Get(ctx context.Context, address string) (domain.GeocodeCacheEntry, bool, error) {
	row := c.db.QueryRowContext(ctx, `
SELECT address, lat, lon, formatted_address, quality, confidence, updated_at
FROM geocoding_cache
WHERE address = $1`, address)

	var e domain.GeocodeCacheEntry
	var quality string
	err := row.Scan(&e.Address, &e.Coordinates.Lat, &e.Coordinates.Lng, &e.FormattedAddress, &quality, &e.Confidence, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.GeocodeCacheEntry{}, false, nil
		}
		return domain.GeocodeCacheEntry{}, false, domain.WrapError(domain.ErrPersistence, "get geocode cache", err)
	}
	e.Quality = domain.GeocodeQuality(quality)
	return e, true, nil
}

// Put upserts by address, last writer wins. Failed results are ignored.
func (c *GeocodeCache) Put(ctx context.Context, e domain.GeocodeCacheEntry) error {
	if e.Quality == domain.QualityFailed {
		return nil
	}
	_, err := c.db.ExecContext(ctx, `
INSERT INTO geocoding_cache (address, lat, lon, formatted_address, quality, confidence, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (address) DO UPDATE SET
	lat = EXCLUDED.lat,
	lon = EXCLUDED.lon,
	formatted_address = EXCLUDED.formatted_address,
	quality = EXCLUDED.quality,
	confidence = EXCLUDED.confidence,
	updated_at = EXCLUDED.updated_at`,
		e.Address, e.Coordinates.Lat, e.Coordinates.Lng, e.FormattedAddress, string(e.Quality), e.Confidence, e.UpdatedAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "put geocode cache", err)
	}
	return nil
}
