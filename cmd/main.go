package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"hermes/internal/adapters/config"
	"hermes/internal/adapters/errors/noop"
	"hermes/internal/adapters/errors/sentry"
	"hermes/internal/adapters/gateway"
	"hermes/internal/adapters/queue"
	"hermes/internal/adapters/redis"
	"hermes/internal/adapters/telegram"
	"hermes/internal/metrics"
	"hermes/pkg/errors"
	"hermes/pkg/logger"
	"hermes/pkg/menu"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger
	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get()
	log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	// Initialize error tracker
	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	// Initialize metrics
	if cfg.Metrics.Enabled {
		metrics.Init()
		go func() {
			if err := metrics.Serve(cfg.Metrics.Port); err != nil {
				log.Errorf("Metrics server error: %v", err)
			}
		}()
		log.Infow("Metrics server started", "port", cfg.Metrics.Port)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Delivery surface
	messenger, err := telegram.NewMessenger(cfg.Telegram, log)
	if err != nil {
		log.Fatalf("Failed to create messenger: %v", err)
	}

	// Menu core
	menuCfg := menu.Config{
		ActionPrefix:     cfg.Menu.ActionPrefix,
		PreloadAll:       cfg.Menu.PreloadAll,
		DefaultColor:     cfg.Menu.DefaultColor,
		ActionsPerSecond: cfg.Menu.ActionsPerSecond,
		ActionBurst:      cfg.Menu.ActionBurst,
	}

	registry := menu.NewRegistry(log)
	manager := menu.NewManager(menuCfg, registry, messenger, log)
	router := menu.NewRouter(menuCfg, manager, log)

	if cfg.Metrics.Enabled {
		recorder := metrics.NewRecorder()
		manager.SetStats(recorder)
		router.SetStats(recorder)
	}

	// Update queue
	driver, closeDriver, err := initQueueDriver(cfg, log)
	if err != nil {
		log.Fatalf("Failed to init queue driver: %v", err)
	}
	defer closeDriver()

	updateQueue := menu.NewQueue(driver, manager, log)
	if err := updateQueue.Start(ctx); err != nil {
		log.Fatalf("Failed to start update queue: %v", err)
	}

	// Interaction sources
	listener := telegram.NewListener(messenger, router, log)
	go func() {
		if err := listener.Run(ctx); err != nil && ctx.Err() == nil {
			log.Errorf("Telegram listener error: %v", err)
		}
	}()

	if cfg.Gateway.Enabled {
		client := gateway.NewClient(cfg.Gateway, router, messenger, log)
		go func() {
			if err := client.Run(ctx); err != nil && ctx.Err() == nil {
				log.Errorf("Gateway error: %v", err)
			}
		}()
	}

	log.Info("System initialized successfully")

	waitForShutdown(ctx, cancel, manager, errorTracker, log)
}

// initErrorTracker initializes error tracking (Sentry or no-op)
func initErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

// initQueueDriver selects the update-queue transport from configuration.
func initQueueDriver(cfg *config.Config, log *logger.Logger) (menu.Driver, func(), error) {
	switch cfg.Queue.Driver {
	case "redis":
		client, err := redis.NewClient(cfg.Redis, log)
		if err != nil {
			return nil, nil, err
		}
		driver := queue.NewRedisDriver(client, log)
		return driver, func() {
			_ = driver.Close()
			_ = client.Close()
		}, nil
	case "kafka":
		if len(cfg.Kafka.Brokers) == 0 {
			return nil, nil, errors.Wrap(errors.ErrConfiguration, "kafka queue driver requires KAFKA_BROKERS")
		}
		driver := queue.NewKafkaDriver(cfg.Kafka.Brokers, cfg.Kafka.GroupID, log)
		return driver, func() { _ = driver.Close() }, nil
	case "memory":
		driver := menu.NewMemoryDriver()
		return driver, func() { _ = driver.Close() }, nil
	default:
		return nil, nil, errors.Wrapf(errors.ErrConfiguration, "unknown queue driver %q", cfg.Queue.Driver)
	}
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, manager *menu.Manager, errorTracker errors.Tracker, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("Shutting down...")

	// End live sessions first so viewers see the final renders.
	manager.Shutdown(ctx)

	cancel()

	if errorTracker != nil {
		if err := errorTracker.Flush(ctx); err != nil {
			log.Warnf("Failed to flush error tracker: %v", err)
		}
	}

	log.Info("Shutdown complete")
}
