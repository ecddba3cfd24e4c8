package mapbox

import (
	"context"
	"fmt"
	"net/url"

	"github.com/healnet/donation-matching/internal/domain"
)

// Route returns the driving (or walking/cycling) route between two points.
func (c *Client) Route(ctx context.Context, origin, destination domain.Coordinate, profile domain.TravelProfile) (domain.Route, error) {
	if c.token == "" {
		return domain.Route{}, errMissingToken
	}
	if profile == "" {
		profile = domain.ProfileDriving
	}

	coords := fmt.Sprintf("%.6f,%.6f;%.6f,%.6f", origin.Lng, origin.Lat, destination.Lng, destination.Lat)
	u := fmt.Sprintf("%s/%s/%s", c.directionsURL, url.PathEscape(string(profile)), coords)
	params := url.Values{
		"access_token": {c.token},
		"alternatives": {"false"},
		"geometries":   {"geojson"},
		"overview":     {"simplified"},
		"steps":        {"false"},
	}

	var resp directionsResponse
	if err := c.getJSON(ctx, u+"?"+params.Encode(), "directions", &resp); err != nil {
		return domain.Route{}, err
	}

	if len(resp.Routes) == 0 {
		return domain.Route{}, fmt.Errorf("mapbox directions %s: %w", resp.Code, domain.ErrNoRouteFound)
	}

	r := resp.Routes[0]
	return domain.Route{
		DistanceKm:      r.Distance / 1000,
		DurationMinutes: r.Duration / 60,
	}, nil
}

type directionsResponse struct {
	Code   string  `json:"code"`
	Routes []route `json:"routes"`
}

type route struct {
	Distance float64 `json:"distance"` // meters
	Duration float64 `json:"duration"` // seconds
}
