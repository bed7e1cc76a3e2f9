package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"zerosaver/internal/config"
	"zerosaver/internal/database"
	"zerosaver/internal/events"
	"zerosaver/internal/logger"
	"zerosaver/internal/server"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *server.Server, stopSweeper context.CancelFunc, logger *zap.Logger, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	logger.Info("Shutting down gracefully, press Ctrl+C again to force")
	stop() // Allow Ctrl+C to force shutdown
	stopSweeper()

	// The context is used to inform the server it has 30 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Close server resources
	if err := apiServer.Close(); err != nil {
		logger.Error("Error closing server resources", zap.Error(err))
	}

	logger.Info("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.Server.Env)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", zap.Error(err))
	}

	log.Info("Starting surplus marketplace API",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
		zap.String("policy", cfg.Catalog.Policy),
	)

	ctx := context.Background()
	deps := server.Dependencies{}

	if cfg.Database.Enabled {
		dbService, err := database.New(ctx, cfg.Database)
		if err != nil {
			log.Fatal("Failed to connect to database", zap.Error(err))
		}
		log.Info("Database health check", zap.Any("health", dbService.Health()))

		if err := database.RunMigrations(dbService.DB(), cfg.Server.MigrationsDir, log); err != nil {
			log.Fatal("Failed to run migrations", zap.Error(err))
		}
		log.Info("Database migrations completed successfully")
		deps.DB = dbService
	} else {
		log.Warn("Database disabled, deals and orders live in memory only")
	}

	if cfg.Redis.Enabled {
		deps.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := deps.Redis.Ping(ctx).Err(); err != nil {
			log.Warn("Redis unreachable at startup", zap.Error(err))
		}
	}

	if cfg.RabbitMQ.URL != "" {
		publisher, err := events.NewAMQPPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, log)
		if err != nil {
			log.Error("Failed to connect to RabbitMQ, events are dropped", zap.Error(err))
		} else {
			deps.Publisher = publisher
		}
	}

	// Create server
	srv, err := server.NewServer(cfg, log, deps)
	if err != nil {
		log.Fatal("Failed to create server", zap.Error(err))
	}

	if deps.DB != nil {
		if _, err := srv.Hydrate(ctx); err != nil {
			log.Fatal("Failed to load deals", zap.Error(err))
		}
	}

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	go srv.RunSweeper(sweepCtx)

	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(srv, stopSweeper, log, done)

	log.Info("Server listening", zap.String("addr", srv.Addr))

	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		log.Fatal("HTTP server error", zap.Error(err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Info("Graceful shutdown complete")
}
