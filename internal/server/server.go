package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"zerosaver/internal/catalog"
	"zerosaver/internal/clock"
	"zerosaver/internal/config"
	"zerosaver/internal/database"
	"zerosaver/internal/events"
	"zerosaver/internal/ledger"
	custommiddleware "zerosaver/internal/middleware"
	"zerosaver/internal/repository"
	"zerosaver/internal/service"
	"zerosaver/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Dependencies are the optional collaborators of a Server. Nil fields run the
// marketplace in memory only.
type Dependencies struct {
	Clock     clock.Clock
	DB        database.Service
	Redis     *redis.Client
	Publisher events.Publisher
}

type Server struct {
	*http.Server
	config    *config.Config
	logger    *zap.Logger
	db        database.Service
	redis     *redis.Client
	publisher events.Publisher
	catalog   *catalog.Catalog
	sweeper   *catalog.Sweeper
	deals     service.DealService
	registry  *ledger.Registry
	carts     service.CartStore
}

type healthResponse struct {
	Status   string            `json:"status"`
	Deals    int               `json:"deals"`
	Database map[string]string `json:"database,omitempty"`
	Redis    string            `json:"redis,omitempty"`
}

func NewServer(cfg *config.Config, logger *zap.Logger, deps Dependencies) (*Server, error) {
	policy, err := catalog.ParsePolicy(cfg.Catalog.Policy)
	if err != nil {
		return nil, err
	}
	if deps.Clock == nil {
		deps.Clock = clock.NewSystem()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NopPublisher{}
	}

	c := catalog.New(deps.Clock, logger)

	// Persistence is optional; without a database the ledger confirms every
	// hold immediately.
	var (
		store   service.DealStore
		backend ledger.Backend
		carts   service.CartStore
	)
	if deps.DB != nil {
		orders := repository.NewOrderRepository(deps.DB.DB())
		store = repository.NewDealRepository(deps.DB.DB())
		backend = orders
		carts = orders
	}

	registry := ledger.NewRegistry(c, backend, logger, ledger.WithPolicy(policy))
	dealService := service.NewDealService(c, store, deps.Publisher, logger)
	cartService := service.NewCartService(registry, c, deps.Publisher, cfg.Catalog.BackendTimeout, logger)
	sweeper := catalog.NewSweeper(c, cfg.Catalog.SweepInterval, logger, catalog.WithRetireHook(dealService.OnRetired))

	s := &Server{
		config:    cfg,
		logger:    logger,
		db:        deps.DB,
		redis:     deps.Redis,
		publisher: deps.Publisher,
		catalog:   c,
		sweeper:   sweeper,
		deals:     dealService,
		registry:  registry,
		carts:     carts,
	}

	// Create router
	router := chi.NewRouter()
	for _, mw := range custommiddleware.DefaultMiddlewareStack() {
		router.Use(mw)
	}
	router.Use(custommiddleware.CORSMiddleware(cfg.Server.AllowedOrigins, cfg.Server.IsDevelopment()))
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))

	router.Get("/health", s.health)

	var reserveLimiter func(http.Handler) http.Handler
	if deps.Redis != nil {
		reserveLimiter = custommiddleware.RateLimitMiddleware(deps.Redis, custommiddleware.RateLimitConfig{
			RequestsPerWindow: cfg.Redis.RateLimitRequests,
			Window:            cfg.Redis.RateLimitWindow,
			KeyPrefix:         "ratelimit:reserve",
		}, logger)
	}

	identity := custommiddleware.IdentityMiddleware(logger)
	transport.NewDealHandler(dealService, deps.Clock, logger).RegisterRoutes(router, identity)
	transport.NewCartHandler(cartService, logger).RegisterRoutes(router, identity, reserveLimiter)

	s.Server = &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s, nil
}

// Hydrate loads the active deals and then the stored carts from the database.
// It returns how many deals were loaded.
func (s *Server) Hydrate(ctx context.Context) (int, error) {
	n, err := s.deals.Hydrate(ctx)
	if err != nil {
		return 0, err
	}
	if s.carts != nil {
		if _, err := service.RestoreCarts(ctx, s.registry, s.carts, s.logger); err != nil {
			return n, err
		}
	}
	return n, nil
}

// RunSweeper retires expired deals until ctx is done.
func (s *Server) RunSweeper(ctx context.Context) {
	s.sweeper.Run(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status: "ok",
		Deals:  s.catalog.Len(),
	}

	if s.db != nil {
		resp.Database = s.db.Health()
		if resp.Database["status"] != "up" {
			resp.Status = "degraded"
		}
	}

	if s.redis != nil {
		resp.Redis = "up"
		if err := s.redis.Ping(r.Context()).Err(); err != nil {
			resp.Redis = "down"
			resp.Status = "degraded"
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	custommiddleware.RespondWithJSON(w, status, resp)
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	var errs []error
	if err := s.publisher.Close(); err != nil {
		s.logger.Error("Failed to close event publisher", zap.Error(err))
		errs = append(errs, err)
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Failed to close redis client", zap.Error(err))
			errs = append(errs, err)
		}
	}

	// Close database connection
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
			errs = append(errs, err)
		}
	}

	s.logger.Sync()
	return errors.Join(errs...)
}
