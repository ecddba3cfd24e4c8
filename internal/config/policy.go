package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/healnet/donation-matching/internal/domain"
	"github.com/healnet/donation-matching/internal/geocode"
	"github.com/healnet/donation-matching/internal/matching"
)

// PolicyFile is the YAML document named by MATCH_POLICY_FILE. Every field is
// optional; unset fields keep the built-in defaults.
type PolicyFile struct {
	Weights          *WeightsFile                `yaml:"weights"`
	Thresholds       *ThresholdsFile             `yaml:"thresholds"`
	MinScore         *float64                    `yaml:"min_score"`
	Urgency          map[string]float64          `yaml:"urgency"`
	UrgencyDefault   *float64                    `yaml:"urgency_default"`
	DistanceCutoffKm *float64                    `yaml:"distance_cutoff_km"`
	RecencyWindow    *string                     `yaml:"recency_window"`
	GeocodeQuality   map[string]QualityTableFile `yaml:"geocode_quality"`
}

type WeightsFile struct {
	Category       *float64 `yaml:"category"`
	Distance       *float64 `yaml:"distance"`
	Urgency        *float64 `yaml:"urgency"`
	Quantity       *float64 `yaml:"quantity"`
	ItemSimilarity *float64 `yaml:"item_similarity"`
	Recency        *float64 `yaml:"recency"`
}

type ThresholdsFile struct {
	Excellent *float64 `yaml:"excellent"`
	Good      *float64 `yaml:"good"`
	Fair      *float64 `yaml:"fair"`
}

// QualityTableFile overrides one provider's place-type grading.
type QualityTableFile struct {
	Exact             []string `yaml:"exact"`
	Approximate       []string `yaml:"approximate"`
	Default           *string  `yaml:"default"`
	DefaultConfidence *float64 `yaml:"default_confidence"`
}

// LoadPolicy reads the policy file at path. An empty path yields the defaults.
func LoadPolicy(path string) (matching.Policy, map[string]geocode.QualityTable, error) {
	policy := matching.DefaultPolicy()
	tables := geocode.DefaultQualityTables()
	if path == "" {
		return policy, tables, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return policy, tables, fmt.Errorf("read MATCH_POLICY_FILE: %w", err)
	}
	f, err := ParsePolicy(data)
	if err != nil {
		return policy, tables, fmt.Errorf("parse MATCH_POLICY_FILE %s: %w", path, err)
	}
	if err := f.Apply(&policy, tables); err != nil {
		return policy, tables, fmt.Errorf("MATCH_POLICY_FILE %s: %w", path, err)
	}
	return policy, tables, nil
}

// ParsePolicy decodes a policy document. Unknown keys are rejected.
func ParsePolicy(data []byte) (*PolicyFile, error) {
	var f PolicyFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, err
	}
	return &f, nil
}

// Apply merges f into policy and tables and validates the result.
func (f *PolicyFile) Apply(policy *matching.Policy, tables map[string]geocode.QualityTable) error {
	if w := f.Weights; w != nil {
		setFloat(&policy.Weights.Category, w.Category)
		setFloat(&policy.Weights.Distance, w.Distance)
		setFloat(&policy.Weights.Urgency, w.Urgency)
		setFloat(&policy.Weights.Quantity, w.Quantity)
		setFloat(&policy.Weights.ItemSimilarity, w.ItemSimilarity)
		setFloat(&policy.Weights.Recency, w.Recency)
	}
	if t := f.Thresholds; t != nil {
		setFloat(&policy.Thresholds.Excellent, t.Excellent)
		setFloat(&policy.Thresholds.Good, t.Good)
		setFloat(&policy.Thresholds.Fair, t.Fair)
	}
	setFloat(&policy.MinScore, f.MinScore)
	setFloat(&policy.UrgencyDefault, f.UrgencyDefault)
	setFloat(&policy.DistanceCutoffKm, f.DistanceCutoffKm)
	if len(f.Urgency) > 0 {
		merged := make(map[domain.Urgency]float64, len(policy.Urgency)+len(f.Urgency))
		for k, v := range policy.Urgency {
			merged[k] = v
		}
		for k, v := range f.Urgency {
			merged[domain.Urgency(strings.ToLower(strings.TrimSpace(k)))] = v
		}
		policy.Urgency = merged
	}
	if f.RecencyWindow != nil {
		d, err := time.ParseDuration(*f.RecencyWindow)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid recency_window %q", *f.RecencyWindow)
		}
		policy.RecencyWindow = d
	}

	for provider, override := range f.GeocodeQuality {
		table := tables[provider]
		if override.Exact != nil {
			table.Exact = override.Exact
		}
		if override.Approximate != nil {
			table.Approximate = override.Approximate
		}
		if override.Default != nil {
			q := domain.GeocodeQuality(strings.ToLower(*override.Default))
			if !q.Usable() && q != domain.QualityFailed {
				return fmt.Errorf("geocode_quality.%s.default: unknown quality %q", provider, *override.Default)
			}
			table.Default = q
		}
		setFloat(&table.DefaultConfidence, override.DefaultConfidence)
		tables[provider] = table
	}

	return validatePolicy(*policy)
}

func validatePolicy(p matching.Policy) error {
	w := p.Weights
	for name, v := range map[string]float64{
		"category":        w.Category,
		"distance":        w.Distance,
		"urgency":         w.Urgency,
		"quantity":        w.Quantity,
		"item_similarity": w.ItemSimilarity,
		"recency":         w.Recency,
	} {
		if v < 0 {
			return fmt.Errorf("weights.%s must not be negative", name)
		}
	}
	t := p.Thresholds
	if t.Excellent < t.Good || t.Good < t.Fair || t.Fair < 0 || t.Excellent > 1 {
		return errors.New("thresholds must satisfy 0 <= fair <= good <= excellent <= 1")
	}
	if p.MinScore < 0 || p.MinScore > 1 {
		return errors.New("min_score must be within [0, 1]")
	}
	if p.DistanceCutoffKm <= 0 {
		return errors.New("distance_cutoff_km must be positive")
	}
	for u, v := range p.Urgency {
		if v < 0 || v > 1 {
			return fmt.Errorf("urgency.%s must be within [0, 1]", u)
		}
	}
	return nil
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
