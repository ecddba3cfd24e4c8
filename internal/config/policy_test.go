package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healnet/donation-matching/internal/domain"
	"github.com/healnet/donation-matching/internal/geocode"
	"github.com/healnet/donation-matching/internal/matching"
)

func TestLoadPolicy_EmptyPathKeepsDefaults(t *testing.T) {
	policy, tables, err := LoadPolicy("")
	require.NoError(t, err)
	assert.Equal(t, matching.DefaultPolicy(), policy)
	assert.Equal(t, geocode.DefaultQualityTables(), tables)
}

func TestLoadPolicy_PartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	doc := `
weights:
  distance: 0.35
  recency: 0
min_score: 0.3
urgency:
  Critical: 0.9
recency_window: 168h
geocode_quality:
  nominatim:
    default: failed
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	policy, tables, err := LoadPolicy(path)
	require.NoError(t, err)

	def := matching.DefaultPolicy()
	assert.InDelta(t, 0.35, policy.Weights.Distance, 1e-9)
	assert.InDelta(t, 0.0, policy.Weights.Recency, 1e-9)
	assert.InDelta(t, def.Weights.Category, policy.Weights.Category, 1e-9)
	assert.InDelta(t, 0.3, policy.MinScore, 1e-9)
	assert.InDelta(t, 0.9, policy.Urgency[domain.UrgencyCritical], 1e-9)
	assert.InDelta(t, 0.75, policy.Urgency[domain.UrgencyHigh], 1e-9)
	assert.Equal(t, 168*time.Hour, policy.RecencyWindow)
	assert.Equal(t, def.Thresholds, policy.Thresholds)

	assert.Equal(t, domain.QualityFailed, tables["nominatim"].Default)
	assert.Equal(t, geocode.DefaultQualityTables()["nominatim"].Exact, tables["nominatim"].Exact)
	assert.Equal(t, geocode.DefaultQualityTables()["mapbox"], tables["mapbox"])
}

func TestLoadPolicy_MissingFile(t *testing.T) {
	_, _, err := LoadPolicy(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MATCH_POLICY_FILE")
}

func TestParsePolicy_EmptyDocument(t *testing.T) {
	f, err := ParsePolicy(nil)
	require.NoError(t, err)
	assert.Nil(t, f.Weights)
}

func TestParsePolicy_UnknownKey(t *testing.T) {
	_, err := ParsePolicy([]byte("weigths:\n  distance: 0.3\n"))
	require.Error(t, err)
}

func TestPolicyFile_ApplyRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"negative weight":      "weights:\n  category: -0.1\n",
		"unordered":            "thresholds:\n  good: 0.9\n",
		"min score too large":  "min_score: 1.5\n",
		"bad window":           "recency_window: soon\n",
		"bad cutoff":           "distance_cutoff_km: 0\n",
		"urgency out of range": "urgency:\n  high: 2\n",
		"unknown quality":      "geocode_quality:\n  mapbox:\n    default: great\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			f, err := ParsePolicy([]byte(doc))
			require.NoError(t, err)
			policy := matching.DefaultPolicy()
			err = f.Apply(&policy, geocode.DefaultQualityTables())
			require.Error(t, err)
		})
	}
}
