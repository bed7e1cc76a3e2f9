package ledger

import (
	"sort"
	"sync"

	"zerosaver/internal/catalog"

	"go.uber.org/zap"
)

// Registry hands out one ledger per customer, all over the same catalog.
type Registry struct {
	mu      sync.Mutex
	ledgers map[string]*Ledger

	catalog *catalog.Catalog
	backend Backend
	logger  *zap.Logger
	opts    []Option
}

// NewRegistry creates a registry whose ledgers share c and backend.
func NewRegistry(c *catalog.Catalog, backend Backend, logger *zap.Logger, opts ...Option) *Registry {
	return &Registry{
		ledgers: make(map[string]*Ledger),
		catalog: c,
		backend: backend,
		logger:  logger,
		opts:    opts,
	}
}

// For returns the ledger of customerID, creating it on first use.
func (r *Registry) For(customerID string) *Ledger {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.ledgers[customerID]
	if !ok {
		l = New(customerID, r.catalog, r.backend, r.logger, r.opts...)
		r.ledgers[customerID] = l
	}
	return l
}

// Customers lists the customers that have a ledger, sorted.
func (r *Registry) Customers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.ledgers))
	for id := range r.ledgers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
