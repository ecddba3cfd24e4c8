package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/healnet/donation-matching/internal/domain"
)

// parseCoordinate reads "lat,lng".
func parseCoordinate(s string) (domain.Coordinate, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return domain.Coordinate{}, fmt.Errorf("coordinate %q: want lat,lng", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return domain.Coordinate{}, fmt.Errorf("coordinate %q: bad latitude", s)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return domain.Coordinate{}, fmt.Errorf("coordinate %q: bad longitude", s)
	}
	c := domain.Coordinate{Lat: lat, Lng: lng}
	if !c.Valid() {
		return domain.Coordinate{}, fmt.Errorf("coordinate %q: out of range", s)
	}
	return c, nil
}
