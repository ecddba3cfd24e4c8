package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// ParseDonationEvent decodes a submitted donation. A missing id falls back to
// the message key and a missing created_at to the message timestamp.
func ParseDonationEvent(raw RawEvent) (Donation, error) {
	var d Donation
	if err := json.Unmarshal(raw.Value, &d); err != nil {
		return Donation{}, WrapError(ErrInvalidInput, "parse donation", err)
	}
	if d.ID == "" {
		d.ID = strings.TrimSpace(string(raw.Key))
	}
	if err := ValidateDonation(d); err != nil {
		return Donation{}, err
	}
	if c, ok := ParseCategory(string(d.Category)); ok {
		d.Category = c
	}
	if d.Status == "" {
		d.Status = DonationPending
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = raw.Timestamp
	}
	return d, nil
}

// ValidateDonation checks the fields matching relies on.
func ValidateDonation(d Donation) error {
	switch {
	case d.ID == "":
		return fmt.Errorf("donation: %w: missing id", ErrInvalidInput)
	case strings.TrimSpace(d.Item) == "":
		return fmt.Errorf("donation %s: %w: missing item", d.ID, ErrInvalidInput)
	case d.Quantity < 1:
		return fmt.Errorf("donation %s: %w: quantity must be at least 1", d.ID, ErrInvalidInput)
	case d.Coordinates != nil && !d.Coordinates.Valid():
		return fmt.Errorf("donation %s: %w: coordinates out of range", d.ID, ErrInvalidInput)
	}
	return nil
}
