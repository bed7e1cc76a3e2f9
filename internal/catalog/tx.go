package catalog

import (
	"fmt"
	"time"

	"zerosaver/internal/domain"
)

// Tx is a view of the catalog inside Update. It must not be used after the
// Update callback returns.
type Tx struct {
	catalog *Catalog
	now     time.Time
	undo    []func()
}

// Now is the time the transaction started.
func (tx *Tx) Now() time.Time {
	return tx.now
}

// Deal returns a copy of the deal with the given id.
func (tx *Tx) Deal(id string) (domain.Deal, error) {
	e, ok := tx.catalog.deals[id]
	if !ok {
		return domain.Deal{}, notFound(id)
	}
	return e.deal.Clone(), nil
}

// Decrement takes qty units from a deal. A missing deal is reported as
// insufficient stock that also matches ErrNotFound.
func (tx *Tx) Decrement(id string, qty int) error {
	if qty < 1 {
		return fmt.Errorf("%w: quantity %d must be at least 1", domain.ErrInsufficientStock, qty)
	}
	e, ok := tx.catalog.deals[id]
	if !ok {
		return fmt.Errorf("%w: %w", domain.ErrInsufficientStock, notFound(id))
	}
	if qty > e.deal.Quantity {
		return fmt.Errorf("%w: deal %s has %d, requested %d", domain.ErrInsufficientStock, id, e.deal.Quantity, qty)
	}

	e.deal.Quantity -= qty
	tx.undo = append(tx.undo, func() { e.deal.Quantity += qty })
	return nil
}

// Increment returns qty units to a deal.
func (tx *Tx) Increment(id string, qty int) error {
	if qty < 1 {
		return domain.NewValidationError("quantity", "must be at least 1")
	}
	e, ok := tx.catalog.deals[id]
	if !ok {
		return notFound(id)
	}

	e.deal.Quantity += qty
	tx.undo = append(tx.undo, func() { e.deal.Quantity -= qty })
	return nil
}

// RecordLostStock credits units that could not be returned to a retired deal.
func (tx *Tx) RecordLostStock(id string, qty int) {
	tx.catalog.recordLost(id, qty)
	tx.undo = append(tx.undo, func() {
		tx.catalog.lost[id] -= qty
		if tx.catalog.lost[id] == 0 {
			delete(tx.catalog.lost, id)
		}
	})
}

func (tx *Tx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}
