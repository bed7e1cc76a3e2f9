package service

import (
	"context"
	"fmt"
	"time"

	"zerosaver/internal/catalog"
	"zerosaver/internal/domain"
	"zerosaver/internal/events"

	"go.uber.org/zap"
)

// retireTimeout bounds the store and broker calls made from the sweep hook.
const retireTimeout = 5 * time.Second

// DealStore persists deals outside the process.
type DealStore interface {
	Create(ctx context.Context, deal *domain.Deal) error
	ListActive(ctx context.Context, now time.Time) ([]domain.Deal, error)
	MarkRetired(ctx context.Context, ids []string) error
	RetireStale(ctx context.Context, now time.Time) ([]string, error)
	AddQuantity(ctx context.Context, id string, delta int) error
}

// DealService defines the vendor and browsing operations on deals
type DealService interface {
	Publish(ctx context.Context, deal domain.Deal) (domain.Deal, error)
	Restock(ctx context.Context, id string, qty int) (domain.Deal, error)
	Query(filter domain.Filter) []domain.Deal
	Get(id string) (domain.Deal, error)
	Hydrate(ctx context.Context) (int, error)
	OnRetired(deals []domain.Deal)
}

type dealService struct {
	catalog   *catalog.Catalog
	store     DealStore
	publisher events.Publisher
	logger    *zap.Logger
}

// NewDealService creates a DealService. store may be nil when deals live only
// in memory.
func NewDealService(c *catalog.Catalog, store DealStore, publisher events.Publisher, logger *zap.Logger) DealService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &dealService{
		catalog:   c,
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// Publish lists a deal, persists it and announces it. A deal that cannot be
// persisted is withdrawn again.
func (s *dealService) Publish(ctx context.Context, deal domain.Deal) (domain.Deal, error) {
	id, err := s.catalog.Publish(deal)
	if err != nil {
		return domain.Deal{}, err
	}

	stored, err := s.catalog.Get(id)
	if err != nil {
		return domain.Deal{}, err
	}

	if s.store != nil {
		if err := s.store.Create(ctx, &stored); err != nil {
			if wErr := s.catalog.Withdraw(id); wErr != nil {
				s.logger.Error("Failed to withdraw unpersisted deal", zap.String("deal_id", id), zap.Error(wErr))
			}
			return domain.Deal{}, fmt.Errorf("failed to persist deal: %w", err)
		}
	}

	s.publish(ctx, events.DealPublished, events.NewDealEvent(stored, s.catalog.Now()))
	return stored, nil
}

// Restock adds units to a deal. With a store the same units are added to the
// stored deal before the catalog change is kept.
func (s *dealService) Restock(ctx context.Context, id string, qty int) (domain.Deal, error) {
	var confirm func(ctx context.Context) error
	if s.store != nil {
		confirm = func(ctx context.Context) error {
			if err := s.store.AddQuantity(ctx, id, qty); err != nil {
				return fmt.Errorf("failed to persist restock: %w", err)
			}
			return nil
		}
	}
	return s.catalog.Restock(ctx, id, qty, confirm)
}

func (s *dealService) Query(filter domain.Filter) []domain.Deal {
	return s.catalog.Query(filter)
}

// Get returns a deal that has not expired. Sold-out deals stay visible until
// the next sweep.
func (s *dealService) Get(id string) (domain.Deal, error) {
	deal, err := s.catalog.Get(id)
	if err != nil {
		return domain.Deal{}, err
	}
	if s.catalog.Now().After(deal.ExpiresAt) {
		return domain.Deal{}, fmt.Errorf("%w: %s has expired", domain.ErrNotFound, id)
	}
	return deal, nil
}

// Hydrate retires the stored deals that went stale while the process was down
// and loads the ones still active into the catalog. It returns how many were
// loaded.
func (s *dealService) Hydrate(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, nil
	}

	stale, err := s.store.RetireStale(ctx, s.catalog.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to retire stale deals: %w", err)
	}
	if len(stale) > 0 {
		s.logger.Info("Retired stale stored deals", zap.Strings("deal_ids", stale))
	}

	deals, err := s.store.ListActive(ctx, s.catalog.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to load active deals: %w", err)
	}

	loaded := 0
	for _, d := range deals {
		if _, err := s.catalog.Publish(d); err != nil {
			s.logger.Warn("Skipping stored deal", zap.String("deal_id", d.ID), zap.Error(err))
			continue
		}
		loaded++
	}

	s.logger.Info("Catalog hydrated", zap.Int("deals", loaded))
	return loaded, nil
}

// OnRetired is the sweeper hook. It marks the deals retired in the store and
// announces each of them.
func (s *dealService) OnRetired(deals []domain.Deal) {
	if len(deals) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), retireTimeout)
	defer cancel()

	if s.store != nil {
		ids := make([]string, len(deals))
		for i, d := range deals {
			ids[i] = d.ID
		}
		if err := s.store.MarkRetired(ctx, ids); err != nil {
			s.logger.Error("Failed to mark deals retired", zap.Strings("deal_ids", ids), zap.Error(err))
		}
	}

	now := s.catalog.Now()
	for _, d := range deals {
		s.publish(ctx, events.DealRetired, events.NewDealEvent(d, now))
	}
}

func (s *dealService) publish(ctx context.Context, key string, payload any) {
	if err := s.publisher.Publish(ctx, key, payload); err != nil {
		s.logger.Warn("Failed to publish event", zap.String("routing_key", key), zap.Error(err))
	}
}
