package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"zerosaver/internal/clock"
	"zerosaver/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type entry struct {
	deal domain.Deal
	seq  uint64
}

// Catalog is the authoritative set of active deals and their live stock.
// Every mutation runs under one lock, which is also the serialization point
// between the sweep and reservation changes.
type Catalog struct {
	mu      sync.RWMutex
	deals   map[string]*entry
	retired map[string]struct{}
	lost    map[string]int
	seq     uint64

	clock  clock.Clock
	logger *zap.Logger
}

// New creates an empty catalog.
func New(clk clock.Clock, logger *zap.Logger) *Catalog {
	return &Catalog{
		deals:   make(map[string]*entry),
		retired: make(map[string]struct{}),
		lost:    make(map[string]int),
		clock:   clk,
		logger:  logger,
	}
}

// Now returns the catalog's notion of the current time.
func (c *Catalog) Now() time.Time {
	return c.clock.Now()
}

// Publish validates and inserts a new deal. A missing id is replaced by a UUID.
func (c *Catalog) Publish(deal domain.Deal) (string, error) {
	if err := deal.Validate(); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if deal.ID == "" {
		deal.ID = uuid.NewString()
	}
	if _, ok := c.deals[deal.ID]; ok {
		return "", domain.NewValidationError("id", "already exists")
	}
	if _, ok := c.retired[deal.ID]; ok {
		return "", domain.NewValidationError("id", "belongs to a retired deal")
	}
	if deal.MinOrderQty == 0 {
		deal.MinOrderQty = 1
	}
	if deal.CreatedAt.IsZero() {
		deal.CreatedAt = c.clock.Now()
	}

	c.seq++
	c.deals[deal.ID] = &entry{deal: deal.Clone(), seq: c.seq}

	c.logger.Info("Deal published",
		zap.String("deal_id", deal.ID),
		zap.String("vendor_id", deal.VendorID),
		zap.Int("quantity", deal.Quantity),
		zap.Time("expires_at", deal.ExpiresAt),
	)
	return deal.ID, nil
}

// Withdraw removes a deal without retiring its id. It exists so a publish that
// could not be mirrored to the backend can be undone.
func (c *Catalog) Withdraw(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.deals[id]; !ok {
		return notFound(id)
	}
	delete(c.deals, id)
	return nil
}

// Get returns a copy of the deal with the given id.
func (c *Catalog) Get(id string) (domain.Deal, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.deals[id]
	if !ok {
		return domain.Deal{}, notFound(id)
	}
	return e.deal.Clone(), nil
}

// Query returns the active deals matching filter, nearest first. Deals at the
// same distance keep their publish order.
func (c *Catalog) Query(filter domain.Filter) []domain.Deal {
	now := c.clock.Now()

	c.mu.RLock()
	matches := make([]*entry, 0, len(c.deals))
	for _, e := range c.deals {
		if e.deal.IsActive(now) && filter.Matches(&e.deal) {
			matches = append(matches, e)
		}
	}
	c.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].deal.DistanceKm != matches[j].deal.DistanceKm {
			return matches[i].deal.DistanceKm < matches[j].deal.DistanceKm
		}
		return matches[i].seq < matches[j].seq
	})

	out := make([]domain.Deal, 0, len(matches))
	for _, e := range matches {
		out = append(out, e.deal.Clone())
	}
	return out
}

// Len returns the number of deals not yet retired.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.deals)
}

// Update runs fn while holding the catalog mutation lock. Stock changes made
// through tx are undone when fn returns an error. A ctx that is already done
// skips fn. Once fn returns nil the changes are kept even if ctx has ended
// meanwhile.
func (c *Catalog) Update(ctx context.Context, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx := &Tx{catalog: c, now: c.clock.Now()}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// DecrementStock atomically takes qty units from a deal.
func (c *Catalog) DecrementStock(id string, qty int) error {
	return c.Update(context.Background(), func(tx *Tx) error {
		return tx.Decrement(id, qty)
	})
}

// IncrementStock returns qty units to a deal. It fails with ErrNotFound once
// the deal has been swept.
func (c *Catalog) IncrementStock(id string, qty int) error {
	return c.Update(context.Background(), func(tx *Tx) error {
		return tx.Increment(id, qty)
	})
}

// Restock adds fresh units to a deal on the vendor's behalf and returns the
// restocked deal. confirm, when set, runs under the mutation lock after the
// units are added; an error from it undoes the restock.
func (c *Catalog) Restock(ctx context.Context, id string, qty int, confirm func(ctx context.Context) error) (domain.Deal, error) {
	var deal domain.Deal
	err := c.Update(ctx, func(tx *Tx) error {
		if err := tx.Increment(id, qty); err != nil {
			return err
		}
		if confirm != nil {
			if err := confirm(ctx); err != nil {
				return err
			}
		}
		var err error
		deal, err = tx.Deal(id)
		return err
	})
	if err != nil {
		return domain.Deal{}, err
	}

	c.logger.Info("Deal restocked", zap.String("deal_id", id), zap.Int("added", qty), zap.Int("quantity", deal.Quantity))
	return deal, nil
}

// SweepExpired retires every deal that is sold out or expired at now and
// returns how many were retired.
func (c *Catalog) SweepExpired(now time.Time) int {
	return len(c.Retire(now))
}

// Retire removes every deal that is sold out or expired at now and returns
// them in publish order. Retired ids can never be published again.
func (c *Catalog) Retire(now time.Time) []domain.Deal {
	c.mu.Lock()
	defer c.mu.Unlock()

	var gone []*entry
	for id, e := range c.deals {
		if e.deal.IsRetirable(now) {
			gone = append(gone, e)
			delete(c.deals, id)
			c.retired[id] = struct{}{}
		}
	}
	sort.Slice(gone, func(i, j int) bool { return gone[i].seq < gone[j].seq })

	out := make([]domain.Deal, 0, len(gone))
	for _, e := range gone {
		out = append(out, e.deal.Clone())
	}
	if len(out) > 0 {
		c.logger.Info("Deals retired", zap.Int("count", len(out)), zap.Time("at", now))
	}
	return out
}

// RecordLostStock credits units that could not be returned to a retired deal.
func (c *Catalog) RecordLostStock(id string, qty int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recordLost(id, qty)
}

// LostStock returns the units per deal id that were returned after the deal
// was retired, for reconciliation.
func (c *Catalog) LostStock() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]int, len(c.lost))
	for id, qty := range c.lost {
		out[id] = qty
	}
	return out
}

func (c *Catalog) recordLost(id string, qty int) {
	c.lost[id] += qty
	c.logger.Warn("Stock returned to a retired deal recorded as lost",
		zap.String("deal_id", id),
		zap.Int("quantity", qty),
	)
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
}
