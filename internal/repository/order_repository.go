package repository

import (
	"context"
	"database/sql"
	"fmt"

	"zerosaver/internal/domain"
	"zerosaver/internal/ledger"
)

// ErrPickupCodeTaken aliases the ledger sentinel so checkout can retry.
var ErrPickupCodeTaken = ledger.ErrPickupCodeTaken

var _ ledger.Backend = (*OrderRepository)(nil)

// OrderRepository mirrors cart holds and placed orders to Postgres. Each call
// runs in one transaction together with the matching deal stock change.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a new OrderRepository
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.db, fn)
}

// ConfirmHold stores the cart line and takes delta units from the stored deal.
// A negative delta gives units back, which is skipped once the deal is retired.
func (r *OrderRepository) ConfirmHold(ctx context.Context, customerID string, line domain.CartLine, delta int) error {
	return r.WithTx(ctx, func(ctx context.Context) error {
		upsert := `
			INSERT INTO cart_items (customer_id, deal_id, title, vendor_name, price, quantity, reserved_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (customer_id, deal_id) DO UPDATE SET quantity = EXCLUDED.quantity
		`
		_, err := conn(ctx, r.db).ExecContext(ctx, upsert,
			customerID,
			line.DealID,
			line.Title,
			line.VendorName,
			line.Price,
			line.Quantity,
			line.ReservedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to store cart item: %w", err)
		}

		return r.adjustStock(ctx, line.DealID, -delta, delta > 0)
	})
}

// ReleaseHold deletes the cart line and gives qty units back to the stored
// deal unless it has been retired.
func (r *OrderRepository) ReleaseHold(ctx context.Context, customerID, dealID string, qty int) error {
	return r.WithTx(ctx, func(ctx context.Context) error {
		_, err := conn(ctx, r.db).ExecContext(ctx,
			`DELETE FROM cart_items WHERE customer_id = $1 AND deal_id = $2`,
			customerID, dealID,
		)
		if err != nil {
			return fmt.Errorf("failed to delete cart item: %w", err)
		}

		return r.adjustStock(ctx, dealID, qty, false)
	})
}

// ReleaseAll empties the stored cart and gives every line back to its deal.
func (r *OrderRepository) ReleaseAll(ctx context.Context, customerID string, lines []domain.CartLine) error {
	return r.WithTx(ctx, func(ctx context.Context) error {
		_, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM cart_items WHERE customer_id = $1`, customerID)
		if err != nil {
			return fmt.Errorf("failed to clear cart: %w", err)
		}

		for _, line := range lines {
			if err := r.adjustStock(ctx, line.DealID, line.Quantity, false); err != nil {
				return err
			}
		}
		return nil
	})
}

// PlaceOrder records the order and its lines and empties the stored cart.
func (r *OrderRepository) PlaceOrder(ctx context.Context, order domain.Order) error {
	return r.WithTx(ctx, func(ctx context.Context) error {
		q := conn(ctx, r.db)

		_, err := q.ExecContext(ctx, `
			INSERT INTO orders (id, customer_id, total_amount, pickup_code, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			order.ID,
			order.CustomerID,
			order.TotalAmount,
			order.PickupCode,
			order.Status,
			order.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrPickupCodeTaken
			}
			return fmt.Errorf("failed to create order: %w", err)
		}

		for _, line := range order.Lines {
			_, err := q.ExecContext(ctx, `
				INSERT INTO order_items (order_id, deal_id, title, vendor_name, price, quantity)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				order.ID,
				line.DealID,
				line.Title,
				line.VendorName,
				line.Price,
				line.Quantity,
			)
			if err != nil {
				return fmt.Errorf("failed to create order item %s: %w", line.DealID, err)
			}
		}

		if _, err := q.ExecContext(ctx, `DELETE FROM cart_items WHERE customer_id = $1`, order.CustomerID); err != nil {
			return fmt.Errorf("failed to clear cart: %w", err)
		}
		return nil
	})
}

// CartItems returns the stored cart of a customer, oldest reservation first.
func (r *OrderRepository) CartItems(ctx context.Context, customerID string) ([]domain.CartLine, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
		SELECT deal_id, title, vendor_name, price, quantity, reserved_at
		FROM cart_items
		WHERE customer_id = $1
		ORDER BY reserved_at, deal_id`,
		customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart items: %w", err)
	}
	defer rows.Close()

	lines := []domain.CartLine{}
	for rows.Next() {
		var l domain.CartLine
		if err := rows.Scan(&l.DealID, &l.Title, &l.VendorName, &l.Price, &l.Quantity, &l.ReservedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		l.ReservedAt = l.ReservedAt.UTC()
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cart items: %w", err)
	}
	return lines, nil
}

// Customers returns every customer with a stored cart line or order, sorted.
func (r *OrderRepository) Customers(ctx context.Context) ([]string, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
		SELECT customer_id FROM cart_items
		UNION
		SELECT customer_id FROM orders
		ORDER BY customer_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	customers := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		customers = append(customers, id)
	}
	return customers, rows.Err()
}

// ListByCustomer returns the orders of a customer with their lines, oldest first.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]domain.Order, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
		SELECT id, customer_id, total_amount, pickup_code, status, created_at
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at, id`,
		customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	orders := []domain.Order{}
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.CustomerID, &o.TotalAmount, &o.PickupCode, &o.Status, &o.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o.CreatedAt = o.CreatedAt.UTC()
		orders = append(orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	for i := range orders {
		lines, err := r.orderLines(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Lines = lines
	}
	return orders, nil
}

func (r *OrderRepository) orderLines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
		SELECT deal_id, title, vendor_name, price, quantity
		FROM order_items
		WHERE order_id = $1
		ORDER BY deal_id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list order items: %w", err)
	}
	defer rows.Close()

	lines := []domain.OrderLine{}
	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(&l.DealID, &l.Title, &l.VendorName, &l.Price, &l.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// adjustStock adds delta to the stored quantity of an unretired deal. When
// required is false a missing or retired deal is not an error.
func (r *OrderRepository) adjustStock(ctx context.Context, dealID string, delta int, required bool) error {
	result, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE deals SET quantity = quantity + $2 WHERE id = $1 AND retired_at IS NULL`,
		dealID, delta,
	)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("%w: deal %s", domain.ErrInsufficientStock, dealID)
		}
		return fmt.Errorf("failed to update deal stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 && required {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, dealID)
	}
	return nil
}
