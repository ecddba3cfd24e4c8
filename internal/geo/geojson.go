package geo

import "github.com/healnet/donation-matching/internal/domain"

// Feature is a GeoJSON Feature with Point geometry.
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Point          `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// Point is a GeoJSON Point. Coordinates are [lng, lat].
type Point struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// FeatureCollection is a GeoJSON FeatureCollection.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// ToGeoJSONPoint wraps c in a Point feature carrying properties.
func ToGeoJSONPoint(c domain.Coordinate, properties map[string]any) Feature {
	if properties == nil {
		properties = map[string]any{}
	}
	return Feature{
		Type:       "Feature",
		Geometry:   Point{Type: "Point", Coordinates: [2]float64{c.Lng, c.Lat}},
		Properties: properties,
	}
}

// ToFeatureCollection collects features; a nil slice encodes as [].
func ToFeatureCollection(features []Feature) FeatureCollection {
	if features == nil {
		features = []Feature{}
	}
	return FeatureCollection{Type: "FeatureCollection", Features: features}
}
