package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"restaurant-floor/internal/api"
	"restaurant-floor/internal/config"
	"restaurant-floor/internal/database"
	"restaurant-floor/internal/httpx"
	"restaurant-floor/internal/logger"
	"restaurant-floor/internal/messaging"
	"restaurant-floor/internal/services/notification"
	"restaurant-floor/internal/storage"
	"restaurant-floor/internal/storage/memory"
	"restaurant-floor/internal/storage/postgres"
)

func main() {
	var (
		mode       = flag.String("mode", "", "Service mode (api, notification-subscriber, all)")
		configPath = flag.String("config", "config.yaml", "Path to the YAML config file")
	)
	flag.Parse()

	if *mode == "" {
		fmt.Fprintf(os.Stderr, "Error: --mode flag is required\n")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(*mode)
	requestID := logger.GenerateRequestID()

	log.Info("service_started", fmt.Sprintf("Starting %s", *mode), requestID, map[string]interface{}{
		"mode":           *mode,
		"port":           cfg.HTTP.Port,
		"storage":        cfg.Storage.Driver,
		"rabbit_enabled": cfg.RabbitMQ.Enabled,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	switch *mode {
	case "api":
		g.Go(func() error { return runAPI(ctx, cfg, log) })
	case "notification-subscriber":
		g.Go(func() error { return runNotificationSubscriber(ctx, cfg, log) })
	case "all":
		g.Go(func() error { return runAPI(ctx, cfg, log) })
		g.Go(func() error { return runNotificationSubscriber(ctx, cfg, log) })
	default:
		log.Error("validation_failed", fmt.Sprintf("Unknown mode: %s", *mode), requestID, nil, nil)
		os.Exit(1)
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("service_failed", "Service failed", requestID, err, nil)
		os.Exit(1)
	}

	log.Info("service_stopped", "Service stopped gracefully", requestID, nil)
}

// runAPI serves the floor HTTP API until ctx is cancelled
func runAPI(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	requestID := logger.GenerateRequestID()

	taxRate, err := cfg.TaxRate()
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	var events messaging.EventPublisher = messaging.Discard{}
	if cfg.RabbitMQ.Enabled {
		conn, err := messaging.New(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("failed to initialize messaging: %w", err)
		}
		defer conn.Close()

		log.Info("rabbitmq_connected", "Connected to RabbitMQ", requestID, nil)
		events = messaging.NewPublisher(conn, log)
	}

	router := api.NewRouter(api.Deps{
		Store:          store,
		Events:         events,
		Logger:         log,
		TaxRate:        taxRate,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	})
	server := httpx.NewServer(fmt.Sprintf(":%d", cfg.HTTP.Port), router)

	log.Info("service_started", fmt.Sprintf("Floor API started on port %d", cfg.HTTP.Port), requestID, map[string]interface{}{
		"port": cfg.HTTP.Port,
	})
	return server.Run(ctx)
}

// openStore connects the configured storage driver
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (storage.Store, error) {
	requestID := logger.GenerateRequestID()

	if cfg.Storage.Driver == config.DriverMemory {
		log.Info("storage_ready", "Using in-memory storage", requestID, nil)
		return memory.New(), nil
	}

	db, err := database.New(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	log.Info("db_connected", "Connected to PostgreSQL database", requestID, nil)

	if err := db.RunMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return postgres.New(db), nil
}

// runNotificationSubscriber prints floor events until ctx is cancelled
func runNotificationSubscriber(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	if !cfg.RabbitMQ.Enabled {
		return errors.New("notification-subscriber requires rabbitmq.enabled")
	}

	conn, err := messaging.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer conn.Close()

	consumer := messaging.NewConsumer(conn, log, messaging.NotificationsQueue, "notification-subscriber", cfg.RabbitMQ.Prefetch)
	return notification.NewSubscriber(consumer, log).Start(ctx)
}
