package domain

import (
	"strings"
	"time"
)

// Category is one of the fixed donation categories.
type Category string

const (
	CategoryMedicalSupplies      Category = "Medical Supplies"
	CategoryFoodNutrition        Category = "Food & Nutrition"
	CategoryClothingTextiles     Category = "Clothing & Textiles"
	CategoryComfortItems         Category = "Comfort Items"
	CategoryTechnology           Category = "Technology"
	CategoryHygieneProducts      Category = "Hygiene Products"
	CategoryEducationalMaterials Category = "Educational Materials"
	CategoryOther                Category = "Other"
)

var categories = []Category{
	CategoryMedicalSupplies,
	CategoryFoodNutrition,
	CategoryClothingTextiles,
	CategoryComfortItems,
	CategoryTechnology,
	CategoryHygieneProducts,
	CategoryEducationalMaterials,
	CategoryOther,
}

// Categories returns the enumerated category set in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// ParseCategory resolves s case-insensitively against the known categories.
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	for _, c := range categories {
		if strings.EqualFold(string(c), s) {
			return c, true
		}
	}
	return "", false
}

// Urgency is how pressing a need is. UrgencyNone is the lowest weight and
// also what unrecognized values score as.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyHigh     Urgency = "high"
	UrgencyMedium   Urgency = "medium"
	UrgencyLow      Urgency = "low"
	UrgencyNone     Urgency = "none"
)

type DonationStatus string

const (
	DonationPending   DonationStatus = "pending"
	DonationAvailable DonationStatus = "available"
	DonationMatched   DonationStatus = "matched"
)

type NeedStatus string

const (
	NeedOpen   NeedStatus = "open"
	NeedClosed NeedStatus = "closed"
)

// Donation is a donor's offered quantity of one item.
type Donation struct {
	ID           string         `json:"id"`
	DonorRef     string         `json:"donor_ref"`
	Item         string         `json:"item"`
	Category     Category       `json:"category"`
	Quantity     int            `json:"quantity"`
	LocationText string         `json:"location"`
	Coordinates  *Coordinate    `json:"coordinates,omitempty"`
	Description  string         `json:"description,omitempty"`
	Status       DonationStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Need is an organization's open request for goods.
type Need struct {
	ID              string      `json:"id"`
	OrganizationRef string      `json:"organization_ref"`
	Item            string      `json:"item"`
	Category        Category    `json:"category"`
	Quantity        int         `json:"quantity"`
	Urgency         Urgency     `json:"urgency"`
	LocationText    string      `json:"location"`
	Coordinates     *Coordinate `json:"coordinates,omitempty"`
	Status          NeedStatus  `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
}
