package events

import (
	"context"
	"time"

	"zerosaver/internal/domain"
)

// Routing keys of the events the marketplace emits.
const (
	DealPublished = "deal.published"
	DealRetired   = "deal.retired"
	OrderPlaced   = "order.placed"
)

// Publisher sends domain events to interested parties.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
	Close() error
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }

func (NopPublisher) Close() error { return nil }

// DealEvent is the payload of deal.published and deal.retired.
type DealEvent struct {
	DealID     string    `json:"deal_id"`
	VendorID   string    `json:"vendor_id,omitempty"`
	Title      string    `json:"title"`
	Quantity   int       `json:"quantity"`
	ExpiresAt  time.Time `json:"expires_at"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewDealEvent builds the event payload for a deal.
func NewDealEvent(d domain.Deal, at time.Time) DealEvent {
	return DealEvent{
		DealID:     d.ID,
		VendorID:   d.VendorID,
		Title:      d.Title,
		Quantity:   d.Quantity,
		ExpiresAt:  d.ExpiresAt,
		OccurredAt: at,
	}
}

// OrderEvent is the payload of order.placed.
type OrderEvent struct {
	OrderID     string    `json:"order_id"`
	CustomerID  string    `json:"customer_id"`
	PickupCode  string    `json:"pickup_code"`
	TotalAmount float64   `json:"total_amount"`
	Items       int       `json:"items"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// NewOrderEvent builds the event payload for a placed order.
func NewOrderEvent(o domain.Order) OrderEvent {
	items := 0
	for _, line := range o.Lines {
		items += line.Quantity
	}
	return OrderEvent{
		OrderID:     o.ID,
		CustomerID:  o.CustomerID,
		PickupCode:  o.PickupCode,
		TotalAmount: o.TotalAmount,
		Items:       items,
		OccurredAt:  o.CreatedAt,
	}
}
