package service

import (
	"context"
	"time"

	"zerosaver/internal/catalog"
	"zerosaver/internal/domain"
	"zerosaver/internal/events"
	"zerosaver/internal/ledger"

	"go.uber.org/zap"
)

// Cart is a customer's pending reservations with their total.
type Cart struct {
	CustomerID string            `json:"customer_id"`
	Lines      []domain.CartLine `json:"lines"`
	Total      float64           `json:"total"`
}

// CartService defines the customer operations on reservations and orders
type CartService interface {
	Reserve(ctx context.Context, customerID, dealID string, qty int) (domain.CartLine, error)
	Cancel(ctx context.Context, customerID, dealID string) error
	SetQuantity(ctx context.Context, customerID, dealID string, qty int) (domain.CartLine, error)
	Clear(ctx context.Context, customerID string) error
	Checkout(ctx context.Context, customerID string) (domain.Order, error)
	Cart(customerID string) Cart
	Orders(customerID string) []domain.Order
	LostStock() map[string]int
}

type cartService struct {
	registry       *ledger.Registry
	catalog        *catalog.Catalog
	publisher      events.Publisher
	backendTimeout time.Duration
	logger         *zap.Logger
}

// NewCartService creates a CartService. A positive backendTimeout bounds every
// call that reaches the order backend.
func NewCartService(
	registry *ledger.Registry,
	c *catalog.Catalog,
	publisher events.Publisher,
	backendTimeout time.Duration,
	logger *zap.Logger,
) CartService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &cartService{
		registry:       registry,
		catalog:        c,
		publisher:      publisher,
		backendTimeout: backendTimeout,
		logger:         logger,
	}
}

func (s *cartService) Reserve(ctx context.Context, customerID, dealID string, qty int) (domain.CartLine, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.registry.For(customerID).Reserve(ctx, dealID, qty)
}

func (s *cartService) Cancel(ctx context.Context, customerID, dealID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.registry.For(customerID).Cancel(ctx, dealID)
}

func (s *cartService) SetQuantity(ctx context.Context, customerID, dealID string, qty int) (domain.CartLine, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.registry.For(customerID).SetQuantity(ctx, dealID, qty)
}

func (s *cartService) Clear(ctx context.Context, customerID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.registry.For(customerID).Clear(ctx)
}

// Checkout places the customer's order and announces it. Announcement
// failures are logged and do not fail the checkout.
func (s *cartService) Checkout(ctx context.Context, customerID string) (domain.Order, error) {
	tctx, cancel := s.withTimeout(ctx)
	defer cancel()

	order, err := s.registry.For(customerID).Checkout(tctx)
	if err != nil {
		return domain.Order{}, err
	}

	if err := s.publisher.Publish(ctx, events.OrderPlaced, events.NewOrderEvent(order)); err != nil {
		s.logger.Warn("Failed to publish order event",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
	}
	return order, nil
}

func (s *cartService) Cart(customerID string) Cart {
	lines, total := s.registry.For(customerID).Snapshot()
	return Cart{CustomerID: customerID, Lines: lines, Total: total}
}

func (s *cartService) Orders(customerID string) []domain.Order {
	return s.registry.For(customerID).Orders()
}

func (s *cartService) LostStock() map[string]int {
	return s.catalog.LostStock()
}

func (s *cartService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.backendTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.backendTimeout)
}
