package ledger

import (
	"context"
	"errors"

	"zerosaver/internal/domain"
)

// ErrPickupCodeTaken is returned by PlaceOrder when the order's pickup code
// collides with an existing one. Checkout retries with a fresh code.
var ErrPickupCodeTaken = errors.New("pickup code already in use")

// Backend is the server-side order service the in-memory ledger mirrors.
// Each call must succeed before the ledger commits the matching local change.
type Backend interface {
	// ConfirmHold records that the customer's hold on line.DealID changed by
	// delta units. line carries the resulting quantity. A negative delta gives
	// units back.
	ConfirmHold(ctx context.Context, customerID string, line domain.CartLine, delta int) error
	// ReleaseHold records that the customer gave back qty units of a deal.
	ReleaseHold(ctx context.Context, customerID, dealID string, qty int) error
	// ReleaseAll gives back every line of the customer's cart at once.
	ReleaseAll(ctx context.Context, customerID string, lines []domain.CartLine) error
	// PlaceOrder records a checked-out order.
	PlaceOrder(ctx context.Context, order domain.Order) error
}

// NopBackend accepts everything. It is used when no backend is configured.
type NopBackend struct{}

func (NopBackend) ConfirmHold(context.Context, string, domain.CartLine, int) error { return nil }

func (NopBackend) ReleaseHold(context.Context, string, string, int) error { return nil }

func (NopBackend) ReleaseAll(context.Context, string, []domain.CartLine) error { return nil }

func (NopBackend) PlaceOrder(context.Context, domain.Order) error { return nil }
