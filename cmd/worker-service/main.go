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

	"github.com/banguyen/weathercards/internal/compositor"
	"github.com/banguyen/weathercards/internal/config"
	"github.com/banguyen/weathercards/internal/jobstore"
	"github.com/banguyen/weathercards/internal/provider"
	"github.com/banguyen/weathercards/internal/worker"
	"github.com/banguyen/weathercards/shared/logger"
	"github.com/banguyen/weathercards/shared/objectstore"
	"github.com/banguyen/weathercards/shared/postgresql"
	"github.com/banguyen/weathercards/shared/rabbitmq"
	"github.com/banguyen/weathercards/shared/rediscache"
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

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting worker service",
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

	objects, err := objectstore.NewS3Store(context.Background(), objectstore.Config{
		Bucket:   cfg.S3.Bucket,
		Region:   cfg.S3.Region,
		Endpoint: cfg.S3.Endpoint,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize object store: %w", err)
	}

	appLogger.Info("Object store initialized",
		slog.String("bucket", cfg.S3.Bucket),
	)

	var cache rediscache.Cache = rediscache.NoopCache{}
	if cfg.Redis.URL != "" {
		redisCache, err := rediscache.New(cfg.Redis.URL)
		if err != nil {
			appLogger.Warn("Failed to initialize Redis cache, continuing without it",
				slog.Any("error", err),
			)
		} else {
			cache = redisCache
			appLogger.Info("Redis cache connected")
		}
	}

	comp, err := compositor.New(compositorConfig(&cfg.Compositor))
	if err != nil {
		return fmt.Errorf("failed to initialize compositor: %w", err)
	}

	imagesCfg := cfg.Providers.Images
	imagesClient := provider.NewImagesClient(
		imagesCfg.BaseURL,
		imagesCfg.APIKey,
		imagesCfg.Timeout,
		provider.RetryPolicy{
			MaxAttempts:   imagesCfg.RetryAttempts,
			BaseDelay:     imagesCfg.RetryBaseDelay,
			MaxRetryAfter: imagesCfg.MaxRetryAfter,
		},
		appLogger.Logger,
	)

	processor := worker.NewProcessor(&worker.ProcessorConfig{
		Logger:          appLogger.Logger,
		Store:           jobstore.NewPostgresStore(dbClient),
		Images:          imagesClient,
		Compositor:      comp,
		Objects:         objects,
		Cache:           cache,
		PresignTTL:      cfg.S3.PresignTTL,
		ItemTimeout:     cfg.Worker.JobTimeout,
		TimestampFormat: cfg.Compositor.TimestampFormat,
	})

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:        appLogger.Logger,
		RabbitClient:  rabbitClient,
		Processor:     processor,
		QueueName:     cfg.RabbitMQ.WorkItemQueue.Name,
		Concurrency:   cfg.Worker.Concurrency,
		PrefetchCount: cfg.RabbitMQ.Consumer.PrefetchCount,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", err),
		)
		return err
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	cleanup := func() {
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
		if err := cache.Close(); err != nil {
			appLogger.Warn("Failed to close Redis cache", slog.Any("error", err))
		}
	}
	cleanup()

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// compositorConfig maps config values onto the compositor defaults, so unset
// fields keep their defaults.
func compositorConfig(cfg *config.CompositorConfig) compositor.Config {
	out := compositor.DefaultConfig()
	if cfg.MaxWidth > 0 {
		out.MaxWidth = cfg.MaxWidth
	}
	if cfg.MaxHeight > 0 {
		out.MaxHeight = cfg.MaxHeight
	}
	if cfg.BaseFontSize > 0 {
		out.BaseFontSize = cfg.BaseFontSize
	}
	if cfg.MinFontSize > 0 {
		out.MinFontSize = cfg.MinFontSize
	}
	if cfg.FontSizeStep > 0 {
		out.FontSizeStep = cfg.FontSizeStep
	}
	if cfg.WatermarkFontSize > 0 {
		out.WatermarkFontSize = cfg.WatermarkFontSize
	}
	if cfg.JPEGQuality > 0 {
		out.JPEGQuality = cfg.JPEGQuality
	}
	if cfg.PlaceholderWidth > 0 {
		out.PlaceholderWidth = cfg.PlaceholderWidth
	}
	if cfg.PlaceholderHeight > 0 {
		out.PlaceholderHeight = cfg.PlaceholderHeight
	}
	if cfg.Notice != "" {
		out.Notice = cfg.Notice
	}
	return out
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Service:      "worker-service",
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
		RetryAttempts:     cfg.Connection.RetryAttempts,
		RetryInterval:     cfg.Connection.RetryInterval,
		Heartbeat:         cfg.Connection.Heartbeat,
		ConnectionTimeout: cfg.Connection.ConnectionTimeout,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}
