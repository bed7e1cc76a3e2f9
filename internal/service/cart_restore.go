package service

import (
	"context"
	"fmt"

	"zerosaver/internal/domain"
	"zerosaver/internal/ledger"

	"go.uber.org/zap"
)

// CartStore reads back the carts and orders mirrored by the ledger backend.
type CartStore interface {
	Customers(ctx context.Context) ([]string, error)
	CartItems(ctx context.Context, customerID string) ([]domain.CartLine, error)
	ListByCustomer(ctx context.Context, customerID string) ([]domain.Order, error)
}

// RestoreCarts loads every stored cart and order history into registry. It
// must run after the deals are hydrated and before traffic is served. It
// returns how many customers were restored.
func RestoreCarts(ctx context.Context, registry *ledger.Registry, store CartStore, logger *zap.Logger) (int, error) {
	customers, err := store.Customers(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list stored customers: %w", err)
	}

	for _, id := range customers {
		lines, err := store.CartItems(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("failed to load cart of %s: %w", id, err)
		}
		orders, err := store.ListByCustomer(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("failed to load orders of %s: %w", id, err)
		}
		registry.For(id).Restore(lines, orders)
	}

	logger.Info("Carts restored", zap.Int("customers", len(customers)))
	return len(customers), nil
}
