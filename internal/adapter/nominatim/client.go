// Package nominatim implements the OpenStreetMap Nominatim search API as a
// fallback geocode provider.
package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/healnet/donation-matching/internal/domain"
	"github.com/healnet/donation-matching/internal/resilience"
	"golang.org/x/time/rate"
)

const (
	providerName = "nominatim"

	DefaultBaseURL   = "https://nominatim.openstreetmap.org"
	DefaultUserAgent = "donation-matching/1.0"
)

// Client implements domain.GeocodeProvider. Requests are rate limited to
// respect the public server's usage policy.
type Client struct {
	baseURL      string
	userAgent    string
	countryCodes string
	httpClient   *http.Client
	limiter      *rate.Limiter
	logger       *slog.Logger
}

// NewClient creates a Nominatim client allowing ratePerSec requests per
// second. A non-positive rate disables limiting.
func NewClient(baseURL, userAgent, countryCodes string, ratePerSec float64, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		userAgent:    userAgent,
		countryCodes: countryCodes,
		httpClient:   &http.Client{Timeout: timeout},
		limiter:      rate.NewLimiter(limit, 1),
		logger:       logger,
	}
}

func (c *Client) Name() string { return providerName }

// Lookup searches for address and returns the top-ranked place.
func (c *Client) Lookup(ctx context.Context, address string) (domain.PlaceMatch, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.PlaceMatch{}, fmt.Errorf("nominatim rate limit: %w", err)
	}

	params := url.Values{
		"q":               {address},
		"format":          {"json"},
		"limit":           {"1"},
		"addressdetails":  {"1"},
		"accept-language": {"en"},
	}
	if c.countryCodes != "" {
		params.Set("countrycodes", c.countryCodes)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return domain.PlaceMatch{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.PlaceMatch{}, fmt.Errorf("nominatim search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.PlaceMatch{}, &resilience.StatusError{Provider: providerName, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var places []place
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return domain.PlaceMatch{}, fmt.Errorf("decode search response: %w", err)
	}
	if len(places) == 0 {
		return domain.PlaceMatch{}, nil
	}

	p := places[0]
	lat, errLat := strconv.ParseFloat(p.Lat, 64)
	lon, errLon := strconv.ParseFloat(p.Lon, 64)
	if errLat != nil || errLon != nil {
		c.logger.Warn("nominatim place with unparseable coordinates",
			"address", address, "lat", p.Lat, "lon", p.Lon)
		return domain.PlaceMatch{}, nil
	}

	return domain.PlaceMatch{
		Found:            true,
		Coordinates:      domain.Coordinate{Lat: lat, Lng: lon},
		FormattedAddress: p.DisplayName,
		PlaceType:        p.Type,
		PlaceClass:       p.Class,
	}, nil
}

// Nominatim returns coordinates as strings.
type place struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Type        string `json:"type"`
	Class       string `json:"class"`
}
