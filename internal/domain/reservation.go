package domain

import (
	"math"
	"time"
)

// OrderStatusPending is the status of an order that has been placed but not yet collected.
const OrderStatusPending = "pending"

// CartLine is a customer's pending claim on deal stock. Title, price and vendor
// name are captured when the line is created so later deal edits do not change
// the cart.
type CartLine struct {
	DealID     string    `json:"deal_id"`
	Title      string    `json:"title"`
	VendorName string    `json:"vendor_name"`
	Price      float64   `json:"price"`
	Quantity   int       `json:"quantity"`
	ReservedAt time.Time `json:"reserved_at"`
}

// Subtotal is quantity times the snapshotted price.
func (l CartLine) Subtotal() float64 {
	return float64(l.Quantity) * l.Price
}

// OrderLine is a checked-out cart line.
type OrderLine struct {
	DealID     string  `json:"deal_id"`
	Title      string  `json:"title"`
	VendorName string  `json:"vendor_name"`
	Price      float64 `json:"price"`
	Quantity   int     `json:"quantity"`
}

// Order is the permanent record a checkout converts the cart into.
type Order struct {
	ID          string      `json:"id"`
	CustomerID  string      `json:"customer_id"`
	Lines       []OrderLine `json:"lines"`
	TotalAmount float64     `json:"total_amount"`
	PickupCode  string      `json:"pickup_code"`
	Status      string      `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
}

// RoundCents rounds an amount to two decimal places.
func RoundCents(amount float64) float64 {
	return math.Round(amount*100) / 100
}
