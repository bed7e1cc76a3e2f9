package domain

import (
	"math"
	"strings"
	"time"
)

// MixedDiet is the diet a deal without diet tags is filed under.
const MixedDiet = "Mixed"

// Deal is a vendor-listed surplus-food offer with finite stock and a fixed expiry.
type Deal struct {
	ID            string    `json:"id" db:"id"`
	VendorID      string    `json:"vendor_id" db:"vendor_id"`
	VendorName    string    `json:"vendor_name" db:"vendor_name"`
	Title         string    `json:"title" db:"title"`
	Description   string    `json:"description" db:"description"`
	ImageURL      string    `json:"image_url" db:"image_url"`
	Category      string    `json:"category" db:"category"`
	DietTags      []string  `json:"diet" db:"diet_tags"`
	Tags          []string  `json:"tags" db:"tags"`
	Allergens     []string  `json:"allergens" db:"allergens"`
	ColdChain     bool      `json:"cold_chain" db:"cold_chain"`
	OriginalPrice float64   `json:"original_price" db:"original_price"`
	Price         float64   `json:"price" db:"price"`
	Quantity      int       `json:"quantity" db:"quantity"`
	MinOrderQty   int       `json:"min_order_qty" db:"min_order_qty"`
	DistanceKm    float64   `json:"distance_km" db:"distance_km"`
	PickupAddress string    `json:"pickup_address" db:"pickup_address"`
	PickupNotes   string    `json:"pickup_notes" db:"pickup_notes"`
	PickupStart   time.Time `json:"pickup_start" db:"pickup_start"`
	PickupEnd     time.Time `json:"pickup_end" db:"pickup_end"`
	BestBefore    time.Time `json:"best_before" db:"best_before"`
	ExpiresAt     time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Validate checks the attributes a vendor must supply before a deal is published.
func (d *Deal) Validate() error {
	switch {
	case strings.TrimSpace(d.Title) == "":
		return NewValidationError("title", "must not be empty")
	case d.Price <= 0:
		return NewValidationError("price", "must be greater than 0")
	case d.Quantity < 1:
		return NewValidationError("quantity", "must be at least 1")
	case d.OriginalPrice < 0:
		return NewValidationError("original_price", "must not be negative")
	case d.OriginalPrice > 0 && d.Price > d.OriginalPrice:
		return NewValidationError("price", "must not exceed the original price")
	case d.MinOrderQty < 0:
		return NewValidationError("min_order_qty", "must not be negative")
	case d.ExpiresAt.IsZero():
		return NewValidationError("expires_at", "is required")
	case !d.PickupStart.IsZero() && !d.PickupEnd.IsZero() && d.PickupEnd.Before(d.PickupStart):
		return NewValidationError("pickup_end", "must not be before pickup_start")
	}
	return nil
}

// IsActive reports whether the deal can still be browsed and reserved at now.
func (d *Deal) IsActive(now time.Time) bool {
	return d.Quantity > 0 && !now.After(d.ExpiresAt)
}

// IsRetirable reports whether a sweep at now should take the deal out of the catalog.
func (d *Deal) IsRetirable(now time.Time) bool {
	return d.Quantity == 0 || d.ExpiresAt.Before(now)
}

// MinutesLeft is the whole number of minutes until expiry, never negative.
func (d *Deal) MinutesLeft(now time.Time) int {
	left := math.Round(d.ExpiresAt.Sub(now).Minutes())
	if left < 0 {
		return 0
	}
	return int(left)
}

// Diets returns the diet tags used for filtering.
func (d *Deal) Diets() []string {
	if len(d.DietTags) == 0 {
		return []string{MixedDiet}
	}
	return d.DietTags
}

// SearchText is the haystack the free-text filter matches against.
func (d *Deal) SearchText() string {
	return strings.ToLower(d.VendorName + d.Title + d.Category + strings.Join(d.Tags, " "))
}

// Clone returns a deep copy so callers never share slices with the catalog.
func (d Deal) Clone() Deal {
	d.DietTags = cloneStrings(d.DietTags)
	d.Tags = cloneStrings(d.Tags)
	d.Allergens = cloneStrings(d.Allergens)
	return d
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
