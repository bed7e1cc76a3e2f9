package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"zerosaver/internal/catalog"
	"zerosaver/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ledger holds one customer's pending reservations and moves stock between the
// shared catalog and the cart. Every operation either fully applies or leaves
// both the cart and the catalog untouched.
type Ledger struct {
	mu         sync.Mutex
	customerID string
	lines      []domain.CartLine
	orders     []domain.Order

	catalog *catalog.Catalog
	backend Backend
	policy  catalog.OverRequestPolicy
	logger  *zap.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithPolicy sets how requests above the available stock are handled.
func WithPolicy(p catalog.OverRequestPolicy) Option {
	return func(l *Ledger) {
		if p != "" {
			l.policy = p
		}
	}
}

// New creates an empty ledger for customerID. A nil backend means NopBackend.
func New(customerID string, c *catalog.Catalog, backend Backend, logger *zap.Logger, opts ...Option) *Ledger {
	if backend == nil {
		backend = NopBackend{}
	}
	l := &Ledger{
		customerID: customerID,
		catalog:    c,
		backend:    backend,
		policy:     catalog.PolicyCap,
		logger:     logger.With(zap.String("customer_id", customerID)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CustomerID returns the owner of the ledger.
func (l *Ledger) CustomerID() string {
	return l.customerID
}

// Reserve takes up to qty units of a deal into the cart. A repeated
// reservation of the same deal grows the existing line.
func (l *Ledger) Reserve(ctx context.Context, dealID string, qty int) (domain.CartLine, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.find(dealID)
	var line domain.CartLine
	var take int

	err := l.catalog.Update(ctx, func(tx *catalog.Tx) error {
		deal, err := tx.Deal(dealID)
		if err != nil {
			return err
		}
		if tx.Now().After(deal.ExpiresAt) {
			return fmt.Errorf("%w: %s has expired", domain.ErrNotFound, dealID)
		}

		take, err = l.policy.Take(qty, deal.Quantity)
		if err != nil {
			return fmt.Errorf("deal %s: %w", dealID, err)
		}
		if err := tx.Decrement(dealID, take); err != nil {
			return err
		}

		if idx >= 0 {
			line = l.lines[idx]
			line.Quantity += take
		} else {
			line = domain.CartLine{
				DealID:     deal.ID,
				Title:      deal.Title,
				VendorName: deal.VendorName,
				Price:      deal.Price,
				Quantity:   take,
				ReservedAt: tx.Now(),
			}
		}

		if err := l.backend.ConfirmHold(ctx, l.customerID, line, take); err != nil {
			return fmt.Errorf("confirm hold: %w", err)
		}
		return nil
	})
	if err != nil {
		l.logger.Debug("Reservation rejected",
			zap.String("deal_id", dealID),
			zap.Int("requested", qty),
			zap.Error(err),
		)
		return domain.CartLine{}, err
	}

	if idx >= 0 {
		l.lines[idx] = line
	} else {
		l.lines = append(l.lines, line)
	}

	l.logger.Info("Deal reserved",
		zap.String("deal_id", dealID),
		zap.Int("requested", qty),
		zap.Int("taken", take),
		zap.Int("line_quantity", line.Quantity),
	)
	return line, nil
}

// Cancel drops the cart line for dealID and returns its units to the deal.
// Cancelling a deal that is not in the cart does nothing. Units that cannot be
// returned because the deal has been retired are recorded as lost stock.
func (l *Ledger) Cancel(ctx context.Context, dealID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.find(dealID)
	if idx < 0 {
		return nil
	}
	line := l.lines[idx]

	err := l.catalog.Update(ctx, func(tx *catalog.Tx) error {
		if err := l.backend.ReleaseHold(ctx, l.customerID, dealID, line.Quantity); err != nil {
			return fmt.Errorf("release hold: %w", err)
		}
		if err := tx.Increment(dealID, line.Quantity); err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			tx.RecordLostStock(dealID, line.Quantity)
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.lines = append(l.lines[:idx], l.lines[idx+1:]...)
	l.logger.Info("Reservation cancelled",
		zap.String("deal_id", dealID),
		zap.Int("quantity", line.Quantity),
	)
	return nil
}

// SetQuantity changes the reserved quantity of a cart line to qty. Lowering it
// returns units to the deal, or to the lost-stock counter once the deal has
// been swept. Raising it takes more units under the over-request policy, so
// the resulting line may hold less than qty.
func (l *Ledger) SetQuantity(ctx context.Context, dealID string, qty int) (domain.CartLine, error) {
	if qty < 1 {
		return domain.CartLine{}, domain.NewValidationError("quantity", "must be at least 1")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.find(dealID)
	if idx < 0 {
		return domain.CartLine{}, fmt.Errorf("%w: %s is not in the cart", domain.ErrNotFound, dealID)
	}
	line := l.lines[idx]
	if qty == line.Quantity {
		return line, nil
	}

	err := l.catalog.Update(ctx, func(tx *catalog.Tx) error {
		delta := qty - line.Quantity
		if delta < 0 {
			if err := tx.Increment(dealID, -delta); err != nil {
				if !errors.Is(err, domain.ErrNotFound) {
					return err
				}
				tx.RecordLostStock(dealID, -delta)
			}
		} else {
			deal, err := tx.Deal(dealID)
			if err != nil {
				return err
			}
			if tx.Now().After(deal.ExpiresAt) {
				return fmt.Errorf("%w: %s has expired", domain.ErrNotFound, dealID)
			}
			if delta, err = l.policy.Take(delta, deal.Quantity); err != nil {
				return fmt.Errorf("deal %s: %w", dealID, err)
			}
			if err := tx.Decrement(dealID, delta); err != nil {
				return err
			}
		}

		line.Quantity += delta
		if err := l.backend.ConfirmHold(ctx, l.customerID, line, delta); err != nil {
			return fmt.Errorf("confirm hold: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.CartLine{}, err
	}

	l.lines[idx] = line
	l.logger.Info("Reservation resized",
		zap.String("deal_id", dealID),
		zap.Int("requested", qty),
		zap.Int("line_quantity", line.Quantity),
	)
	return line, nil
}

// Clear cancels every line of the cart in one step. Either all units go back
// or the cart is left as it was.
func (l *Ledger) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.lines) == 0 {
		return nil
	}

	err := l.catalog.Update(ctx, func(tx *catalog.Tx) error {
		for _, line := range l.lines {
			if err := tx.Increment(line.DealID, line.Quantity); err != nil {
				if !errors.Is(err, domain.ErrNotFound) {
					return err
				}
				tx.RecordLostStock(line.DealID, line.Quantity)
			}
		}
		if err := l.backend.ReleaseAll(ctx, l.customerID, l.lines); err != nil {
			return fmt.Errorf("release cart: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.logger.Info("Cart cleared", zap.Int("lines", len(l.lines)))
	l.lines = nil
	return nil
}

// Checkout converts every cart line into an order. The reserved stock stays
// consumed; nothing is returned to the catalog, so the catalog lock is not
// taken. A pickup code collision is retried with a fresh code.
func (l *Ledger) Checkout(ctx context.Context) (domain.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.lines) == 0 {
		return domain.Order{}, domain.ErrEmptyCart
	}
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	order := domain.Order{
		ID:          uuid.NewString(),
		CustomerID:  l.customerID,
		Lines:       make([]domain.OrderLine, 0, len(l.lines)),
		TotalAmount: l.total(),
		Status:      domain.OrderStatusPending,
		CreatedAt:   l.catalog.Now(),
	}
	for _, line := range l.lines {
		order.Lines = append(order.Lines, domain.OrderLine{
			DealID:     line.DealID,
			Title:      line.Title,
			VendorName: line.VendorName,
			Price:      line.Price,
			Quantity:   line.Quantity,
		})
	}

	var err error
	for attempt := 1; attempt <= pickupCodeAttempts; attempt++ {
		if order.PickupCode, err = newPickupCode(); err != nil {
			return domain.Order{}, fmt.Errorf("generate pickup code: %w", err)
		}
		err = l.backend.PlaceOrder(ctx, order)
		if !errors.Is(err, ErrPickupCodeTaken) {
			break
		}
		l.logger.Warn("Pickup code collision", zap.Int("attempt", attempt))
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("place order: %w", err)
	}

	l.lines = nil
	l.orders = append(l.orders, order)

	l.logger.Info("Order placed",
		zap.String("order_id", order.ID),
		zap.Int("lines", len(order.Lines)),
		zap.Float64("total", order.TotalAmount),
	)
	return order, nil
}

// Restore replaces the cart and order history with previously stored state.
// The catalog is not touched; restored lines are assumed to be already
// deducted from the stock the deals were loaded with.
func (l *Ledger) Restore(lines []domain.CartLine, orders []domain.Order) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lines = append([]domain.CartLine(nil), lines...)
	l.orders = append([]domain.Order(nil), orders...)
}

// Total is the sum of quantity times snapshotted price over the cart.
func (l *Ledger) Total() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total()
}

// Lines returns a copy of the cart in reservation order.
func (l *Ledger) Lines() []domain.CartLine {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.CartLine, len(l.lines))
	copy(out, l.lines)
	return out
}

// Snapshot returns the cart lines and their total read together.
func (l *Ledger) Snapshot() ([]domain.CartLine, float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.CartLine, len(l.lines))
	copy(out, l.lines)
	return out, l.total()
}

// Orders returns the orders placed through this ledger, oldest first.
func (l *Ledger) Orders() []domain.Order {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.Order, len(l.orders))
	for i, o := range l.orders {
		o.Lines = append([]domain.OrderLine(nil), o.Lines...)
		out[i] = o
	}
	return out
}

func (l *Ledger) total() float64 {
	var sum float64
	for _, line := range l.lines {
		sum += line.Subtotal()
	}
	return domain.RoundCents(sum)
}

func (l *Ledger) find(dealID string) int {
	for i := range l.lines {
		if l.lines[i].DealID == dealID {
			return i
		}
	}
	return -1
}
