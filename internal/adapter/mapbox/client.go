package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/healnet/donation-matching/internal/domain"
	"github.com/healnet/donation-matching/internal/resilience"
)

const (
	providerName = "mapbox"

	defaultGeocodingURL  = "https://api.mapbox.com/geocoding/v5/mapbox.places"
	defaultDirectionsURL = "https://api.mapbox.com/directions/v5/mapbox"

	// Place types requested from forward geocoding, most to least precise.
	geocodeTypes = "address,poi,place,postcode,locality,neighborhood"
)

var errMissingToken = fmt.Errorf("%w: mapbox token not configured", domain.ErrProviderUnavailable)

// Client implements domain.GeocodeProvider and domain.Router using the
// Mapbox Geocoding and Directions APIs.
type Client struct {
	token         string
	country       string
	httpClient    *http.Client
	geocodingURL  string
	directionsURL string
	logger        *slog.Logger
}

// NewClient creates a Mapbox client. country restricts geocoding results to
// an ISO 3166 alpha-2 code; empty means worldwide.
func NewClient(token, country string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		token:   token,
		country: country,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		geocodingURL:  defaultGeocodingURL,
		directionsURL: defaultDirectionsURL,
		logger:        logger,
	}
}

func (c *Client) Name() string { return providerName }

// Lookup forward-geocodes address and returns the single best feature.
func (c *Client) Lookup(ctx context.Context, address string) (domain.PlaceMatch, error) {
	if c.token == "" {
		return domain.PlaceMatch{}, errMissingToken
	}

	u := fmt.Sprintf("%s/%s.json", c.geocodingURL, url.PathEscape(address))
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
		"types":        {geocodeTypes},
	}
	if c.country != "" {
		params.Set("country", c.country)
	}

	var resp geocodeResponse
	if err := c.getJSON(ctx, u+"?"+params.Encode(), "geocode", &resp); err != nil {
		return domain.PlaceMatch{}, err
	}

	if len(resp.Features) == 0 {
		return domain.PlaceMatch{}, nil
	}

	f := resp.Features[0]
	if len(f.Center) != 2 {
		c.logger.Warn("mapbox feature without center", "address", address, "place_name", f.PlaceName)
		return domain.PlaceMatch{}, nil
	}

	match := domain.PlaceMatch{
		Found: true,
		// Mapbox uses lon,lat order.
		Coordinates:      domain.Coordinate{Lat: f.Center[1], Lng: f.Center[0]},
		FormattedAddress: f.PlaceName,
		Relevance:        f.Relevance,
	}
	if len(f.PlaceType) > 0 {
		match.PlaceType = f.PlaceType[0]
	}
	return match, nil
}

func (c *Client) getJSON(ctx context.Context, fullURL, source string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mapbox %s request: %w", source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &resilience.StatusError{Provider: providerName, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", source, err)
	}
	return nil
}

// Mapbox API response types.

type geocodeResponse struct {
	Features []feature `json:"features"`
}

type feature struct {
	Center    []float64 `json:"center"` // [lon, lat]
	PlaceName string    `json:"place_name"`
	PlaceType []string  `json:"place_type"`
	Relevance float64   `json:"relevance"`
}
