package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"tubesync/internal/config"
	"tubesync/internal/publisher"
	"tubesync/internal/scheduler"
	"tubesync/internal/service"
	"tubesync/internal/source/youtube"
	"tubesync/internal/storage/kv"
	"tubesync/internal/storage/memory"
	"tubesync/internal/storage/postgres"
	"tubesync/internal/storage/sqlite"
	"tubesync/internal/storage/valkey"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Setup logger
	logger := setupLogger("info")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	if cfg.Sync.Identity == "" {
		logger.Error("sync.identity must be configured")
		os.Exit(1)
	}

	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	// Initialize RabbitMQ publisher
	rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
		URL:        cfg.RabbitMQ.URL,
		Exchange:   cfg.RabbitMQ.Exchange,
		RoutingKey: cfg.RabbitMQ.RoutingKey,
		QueueName:  cfg.RabbitMQ.QueueName,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer rabbitMQ.Close()

	// Initialize the upstream API client
	client := youtube.New(youtube.Config{
		BaseURL:        cfg.API.BaseURL,
		SuggestURL:     cfg.API.SuggestURL,
		Key:            cfg.API.Key,
		RegionCode:     cfg.API.RegionCode,
		PageSize:       cfg.API.PageSize,
		Timeout:        cfg.API.Timeout,
		MaxAttempts:    cfg.API.Retry.MaxAttempts,
		InitialBackoff: cfg.API.Retry.InitialBackoff,
		MaxBackoff:     cfg.API.Retry.MaxBackoff,
	}, logger)

	engine := service.NewSyncEngine(client, store, rabbitMQ, logger)
	runner := service.NewRunner(engine, client, cfg.API.AccessToken, cfg.Sync.Identity)

	sched := scheduler.NewScheduler(runner, cfg.Sync.Interval, cfg.Sync.Timeout, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("starting notification syncer",
		"identity", cfg.Sync.Identity,
		"store", cfg.Store.Backend,
		"interval", cfg.Sync.Interval,
	)

	if err := sched.Start(ctx); err != nil && err != context.Canceled {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}
}

func openStore(cfg *config.Config, logger *slog.Logger) (kv.Store, func(), error) {
	switch cfg.Store.Backend {
	case "memory":
		return memory.New(), func() {}, nil

	case "sqlite":
		store, err := sqlite.Open(cfg.Store.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil

	case "postgres":
		db, err := sqlx.Connect("postgres", cfg.Store.Database.DSN())
		if err != nil {
			return nil, nil, err
		}
		store := postgres.NewStore(db)
		if err := store.Migrate(context.Background()); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("connected to database")
		return store, func() { db.Close() }, nil

	case "valkey":
		store, err := valkey.NewStore(valkey.Config{
			Address:   cfg.Store.Valkey.Address,
			Password:  cfg.Store.Valkey.Password,
			DB:        cfg.Store.Valkey.DB,
			KeyPrefix: cfg.Store.Valkey.KeyPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
