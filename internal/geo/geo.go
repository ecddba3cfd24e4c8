// Package geo provides distance and geometry helpers on WGS-84 coordinates.
package geo

import (
	"math"

	"github.com/healnet/donation-matching/internal/domain"
)

// EarthRadiusKm is the mean Earth radius used by every calculation here.
const EarthRadiusKm = 6371.0

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }

// DistanceKm returns the great-circle distance between a and b using the
// Haversine formula.
func DistanceKm(a, b domain.Coordinate) float64 {
	if a == b {
		return 0
	}
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(a.Lat))*math.Cos(toRadians(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	// Rounding can push h past 1 for antipodal points.
	h = math.Min(1, math.Max(0, h))
	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// BoundingBox returns a box enclosing the circle of radiusKm around center.
// The longitude span is widened by 1/cos(lat); callers must not pass a
// center at latitude ±90.
func BoundingBox(center domain.Coordinate, radiusKm float64) domain.BoundingBox {
	lat := toRadians(center.Lat)
	lng := toRadians(center.Lng)

	dLat := radiusKm / EarthRadiusKm
	dLng := math.Asin(math.Min(1, math.Sin(dLat)/math.Cos(lat)))

	return domain.BoundingBox{
		Northeast: domain.Coordinate{Lat: toDegrees(lat + dLat), Lng: toDegrees(lng + dLng)},
		Southwest: domain.Coordinate{Lat: toDegrees(lat - dLat), Lng: toDegrees(lng - dLng)},
	}
}

// InBoundingBox reports whether p lies inside box, edges included.
func InBoundingBox(p domain.Coordinate, box domain.BoundingBox) bool {
	return p.Lat >= box.Southwest.Lat && p.Lat <= box.Northeast.Lat &&
		p.Lng >= box.Southwest.Lng && p.Lng <= box.Northeast.Lng
}

// Centroid averages the points on the unit sphere and projects the mean back
// to lat/lng, so clusters straddling the antimeridian stay together.
func Centroid(points []domain.Coordinate) domain.Coordinate {
	switch len(points) {
	case 0:
		return domain.Coordinate{}
	case 1:
		return points[0]
	}

	var x, y, z float64
	for _, p := range points {
		lat := toRadians(p.Lat)
		lng := toRadians(p.Lng)
		x += math.Cos(lat) * math.Cos(lng)
		y += math.Cos(lat) * math.Sin(lng)
		z += math.Sin(lat)
	}
	n := float64(len(points))
	x, y, z = x/n, y/n, z/n

	hyp := math.Sqrt(x*x + y*y)
	return domain.Coordinate{
		Lat: toDegrees(math.Atan2(z, hyp)),
		Lng: toDegrees(math.Atan2(y, x)),
	}
}
