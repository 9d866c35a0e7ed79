package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banguyen/weathercards/internal/config"
	"github.com/banguyen/weathercards/internal/dispatcher"
	"github.com/banguyen/weathercards/internal/jobstore"
	"github.com/banguyen/weathercards/internal/provider"
	"github.com/banguyen/weathercards/internal/queue"
	"github.com/banguyen/weathercards/shared/logger"
	"github.com/banguyen/weathercards/shared/postgresql"
	"github.com/banguyen/weathercards/shared/rabbitmq"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("DISPATCHER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/dispatcher-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateDispatcherConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting dispatcher service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	stationsCfg := cfg.Providers.Stations
	stationsClient := provider.NewStationsClient(
		stationsCfg.BaseURL,
		stationsCfg.Timeout,
		provider.RetryPolicy{
			MaxAttempts:   stationsCfg.RetryAttempts,
			BaseDelay:     stationsCfg.RetryBaseDelay,
			MaxRetryAfter: stationsCfg.MaxRetryAfter,
		},
		appLogger.Logger,
	)

	publisher := queue.NewPublisher(rabbitClient, cfg.RabbitMQ.DispatchQueue.RoutingKey, cfg.RabbitMQ.WorkItemQueue.RoutingKey)

	d := dispatcher.New(&dispatcher.Config{
		Logger:      appLogger.Logger,
		Store:       jobstore.NewPostgresStore(dbClient),
		Stations:    stationsClient,
		Publisher:   publisher,
		HardCap:     cfg.Selector.HardCap,
		FallbackCap: cfg.Selector.FallbackCap,
		Strict:      cfg.Selector.Strict,
	})

	service := dispatcher.NewService(
		appLogger.Logger,
		rabbitClient,
		d,
		cfg.RabbitMQ.DispatchQueue.Name,
		cfg.RabbitMQ.Consumer.PrefetchCount,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- service.Run(ctx)
	}()

	appLogger.Info("Dispatcher service started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
		cancel()
		<-errChan
	case err := <-errChan:
		if err != nil {
			appLogger.Error("Dispatcher error",
				slog.Any("error", err),
			)
			cleanupClients(appLogger, dbClient, rabbitClient)
			return err
		}
	}

	cleanupClients(appLogger, dbClient, rabbitClient)

	appLogger.Info("Dispatcher service shutdown complete")
	return nil
}

func cleanupClients(appLogger *logger.Logger, dbClient *postgresql.Client, rabbitClient *rabbitmq.Client) {
	if dbClient != nil {
		dbClient.Close()
	}
	if rabbitClient != nil {
		if err := rabbitClient.Close(); err != nil {
			appLogger.Warn("Failed to close RabbitMQ connection", slog.Any("error", err))
		}
	}
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Service:      "dispatcher-service",
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client with both queues declared
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		DeadLetterExchange: cfg.DeadLetterExchange,
		Queues: []rabbitmq.QueueConfig{
			{
				Name:       cfg.DispatchQueue.Name,
				RoutingKey: cfg.DispatchQueue.RoutingKey,
				Durable:    cfg.DispatchQueue.Durable,
				AutoDelete: cfg.DispatchQueue.AutoDelete,
				Exclusive:  cfg.DispatchQueue.Exclusive,
			},
			{
				Name:       cfg.WorkItemQueue.Name,
				RoutingKey: cfg.WorkItemQueue.RoutingKey,
				Durable:    cfg.WorkItemQueue.Durable,
				AutoDelete: cfg.WorkItemQueue.AutoDelete,
				Exclusive:  cfg.WorkItemQueue.Exclusive,
			},
		},
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}
