/**
 * @description
 * This is the main entry point for the storefront-service.
 * It initializes and wires together all the components of the application,
 * including configuration, database, cache, payment provider, message consumer,
 * and the HTTP router. Finally, it starts the HTTP server and shuts it down
 * gracefully on SIGINT/SIGTERM.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/tempo/storefront-service/internal/api"
	"github.com/tempo/storefront-service/internal/app"
	"github.com/tempo/storefront-service/internal/config"
	"github.com/tempo/storefront-service/internal/store"
	"github.com/tempo/storefront-service/pkg/rabbitmq"
	"github.com/tempo/storefront-service/pkg/stripeclient"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// A local .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to load .env file", "error", err)
	}

	// Load application configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Establish connection to the PostgreSQL database with connection pool configuration
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	// Simple protocol keeps us compatible with PgBouncer transaction pooling.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	if err := store.Migrate(ctx, dbpool); err != nil {
		logger.Error("failed to apply database migrations", "error", err)
		os.Exit(1)
	}

	// Redis is optional; without it the catalog is fetched from Stripe on every miss.
	var rdb *redis.Client
	if strings.TrimSpace(cfg.RedisURL) != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, catalog cache degraded", "error", err)
		} else {
			logger.Info("redis connection established")
		}
		defer rdb.Close()
	}

	payments := stripeclient.New(stripeclient.Config{
		SecretKey:  cfg.StripeSecretKey,
		SuccessURL: cfg.CheckoutSuccessURL,
		CancelURL:  cfg.CheckoutCancelURL,
		Logger:     logger,
	})

	var cacheClient redis.UniversalClient
	if rdb != nil {
		cacheClient = rdb
	}
	catalog := app.NewCatalogCache(cacheClient, payments, cfg.RedisKeyPrefix, cfg.CatalogCacheTTL, logger)

	// Initialize application layers
	repository := store.NewRepository(dbpool)
	hub := app.NewStatusHub()
	service := app.NewService(repository, catalog, payments, hub, logger)

	scheduler := app.NewScheduler(catalog, logger, cfg.CatalogRefreshSchedule)
	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	// Pushed status changes are best effort; pages still query status on load.
	if strings.TrimSpace(cfg.RabbitMQURL) != "" {
		consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Warn("failed to connect to RabbitMQ, subscription pushes disabled", "error", err)
		} else {
			defer consumer.Close()
			err = consumer.ConsumeWithBindings(ctx, cfg.SubscriptionExchange, cfg.SubscriptionQueue, map[string]rabbitmq.Handler{
				cfg.SubscriptionRoutingKey: service.HandleSubscriptionEvent,
			})
			if err != nil {
				logger.Warn("failed to start subscription consumer", "error", err)
			} else {
				logger.Info("subscription consumer started", "queue", cfg.SubscriptionQueue)
			}
		}
	}

	verifier, err := api.NewClerkVerifier(ctx, cfg.ClerkJWKSURL, cfg.ClerkIssuer, cfg.ClerkAudience)
	if err != nil {
		logger.Error("failed to initialize Clerk verifier", "error", err)
		os.Exit(1)
	}

	handler, err := api.NewHandler(service, verifier, api.HandlerConfig{
		ClerkPublishableKey: cfg.ClerkPublishableKey,
		RenderTimeout:       cfg.CatalogRenderTimeout,
		AllowedOrigins:      cfg.AllowedOrigins,
		LiveAllowedOrigins:  cfg.LiveAllowedOrigins,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize handlers", "error", err)
		os.Exit(1)
	}
	router := api.NewRouter(handler)

	// Configure and start the HTTP server
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for an OS signal
	<-ctx.Done()
	logger.Info("shutdown signal received, gracefully shutting down")

	// Create a context with a timeout for shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	<-scheduler.Stop().Done()

	// Attempt to gracefully shut down the server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}
