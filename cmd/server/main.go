package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/api"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/bus"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/call"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/chat"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/config"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/handlers"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/notify"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/presence"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Initialize the durable log: Postgres when configured, SQLite otherwise
	var db store.DataStore
	if cfg.DatabaseURL != "" {
		logger.Info().Msg("running database migrations...")
		if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Msg("migrations completed")

		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		db = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		db = sqliteStore
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite store")
	}
	defer db.Close()

	// Initialize the broker: Redis when configured, in-process otherwise
	var broker store.Broker
	if cfg.RedisURL != "" {
		redisBroker, err := store.NewRedisBroker(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		broker = redisBroker
		logger.Info().Msg("connected to Redis")
	} else {
		broker = store.NewMemoryBroker()
		logger.Warn().Msg("no REDIS_URL, using in-process broker (single node only)")
	}
	defer broker.Close()

	// Connection registry and cross-node event bus
	registry := bus.NewRegistry()
	eventBus := bus.New(registry, broker, cfg.NodeID, logger)
	if err := eventBus.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("event bus subscription failed")
	}
	defer eventBus.Shutdown()

	// Core services
	notifier := notify.NewLogNotifier(logger)
	chatSvc := chat.NewService(db, broker, eventBus, notifier, cfg.CacheSize, logger)
	presenceSvc := presence.NewService(db, broker, eventBus, presence.TTLs{
		Online: cfg.OnlineTTL,
		Status: cfg.StatusTTL,
		Typing: cfg.TypingTTL,
	}, logger)
	callSvc := call.NewService(db, eventBus, presenceSvc, notifier, logger)

	// Create router
	h := handlers.NewHandler(chatSvc, presenceSvc, callSvc, registry, db, broker, logger)
	router := api.NewRouter(logger, h, broker)

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("node_id", cfg.NodeID).
			Msg("starting quickchatx server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
