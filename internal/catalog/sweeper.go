package catalog

import (
	"context"
	"time"

	"zerosaver/internal/domain"

	"go.uber.org/zap"
)

// DefaultSweepInterval is how often expired and sold-out deals are retired.
const DefaultSweepInterval = 10 * time.Second

// Sweeper periodically retires deals that are expired or sold out. It runs on
// its own goroutine, independent of any client, and never overlaps itself.
type Sweeper struct {
	catalog  *Catalog
	interval time.Duration
	logger   *zap.Logger
	onRetire func([]domain.Deal)
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithRetireHook registers fn to receive the deals retired by each sweep.
func WithRetireHook(fn func([]domain.Deal)) SweeperOption {
	return func(s *Sweeper) {
		s.onRetire = fn
	}
}

// NewSweeper creates a sweeper. A non-positive interval falls back to
// DefaultSweepInterval.
func NewSweeper(c *Catalog, interval time.Duration, logger *zap.Logger, opts ...SweeperOption) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	s := &Sweeper{
		catalog:  c,
		interval: interval,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Sweeper started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}

// SweepOnce retires what is due at the catalog's current time.
func (s *Sweeper) SweepOnce() int {
	retired := s.catalog.Retire(s.catalog.Now())
	if len(retired) > 0 && s.onRetire != nil {
		s.onRetire(retired)
	}
	return len(retired)
}
