package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healnet/donation-matching/internal/domain"
)

func TestParseCoordinate(t *testing.T) {
	c, err := parseCoordinate("40.0, -75.5")
	require.NoError(t, err)
	assert.Equal(t, domain.Coordinate{Lat: 40.0, Lng: -75.5}, c)

	for _, bad := range []string{"40.0", "a,b", "40,x", "91,0", "0,181", "1,2,3"} {
		_, err := parseCoordinate(bad)
		assert.Error(t, err, bad)
	}
}

func TestDistanceCommand_StraightLine(t *testing.T) {
	t.Setenv("MAPBOX_ENABLED", "false")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"distance", "39.9526,-75.1652", "40.7128,-74.0060"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "130km")
	assert.Contains(t, out.String(), "straight_line")
}

func TestDistanceCommand_JSON(t *testing.T) {
	t.Setenv("MAPBOX_ENABLED", "false")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"-o", "json", "distance", "40,-75", "40.01,-75.01"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), `"source": "straight_line"`)
}

func TestDistanceCommand_BadInput(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"distance", "nowhere", "40,-75"})
	require.Error(t, cmd.Execute())
}

func TestPrintMatches(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printMatches(&out, nil))
	assert.Equal(t, "no matches\n", out.String())

	out.Reset()
	require.NoError(t, printMatches(&out, []domain.ScoredMatch{{
		Need:               domain.Need{ID: "need-1", Item: "masks", Urgency: domain.UrgencyHigh},
		Score:              domain.MatchScore{Total: 0.875},
		DistanceKm:         0.4,
		DrivingTimeMinutes: 0.5,
		MatchQuality:       domain.MatchExcellent,
	}}))
	assert.Contains(t, out.String(), "need-1")
	assert.Contains(t, out.String(), "0.875")
	assert.Contains(t, out.String(), "400m")
	assert.Contains(t, out.String(), "less than a minute")
}
