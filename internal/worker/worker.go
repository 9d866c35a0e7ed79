// Package worker consumes work-item messages, renders one card per item and
// advances the owning job's shared progress record.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/banguyen/weathercards/internal/domain"
	"github.com/banguyen/weathercards/shared/rabbitmq"
	"github.com/google/uuid"
)

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	RabbitClient  *rabbitmq.Client
	Processor     *Processor
	QueueName     string
	Concurrency   int
	PrefetchCount int
}

// itemMessage pairs a decoded work item with its delivery tag so any pool
// goroutine can ack it on the shared channel.
type itemMessage struct {
	Item        domain.WorkItemMessage
	DeliveryTag uint64
}

// Worker is the consuming side of the fan-out: a message dispatcher feeding a
// pool of processing goroutines.
type Worker struct {
	logger        *slog.Logger
	rabbitClient  *rabbitmq.Client
	processor     *Processor
	queueName     string
	concurrency   int
	prefetchCount int
	workerID      string
	itemsChan     chan *itemMessage
	wg            sync.WaitGroup
	stopChan      chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	return &Worker{
		logger:        cfg.Logger,
		rabbitClient:  cfg.RabbitClient,
		processor:     cfg.Processor,
		queueName:     cfg.QueueName,
		concurrency:   cfg.Concurrency,
		prefetchCount: cfg.PrefetchCount,
		workerID:      fmt.Sprintf("worker-%s", uuid.New().String()[:8]),
		itemsChan:     make(chan *itemMessage),
		stopChan:      make(chan struct{}),
	}
}

// Start begins consuming and processing work items. Blocks until the context
// is canceled and the pool has drained.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.String("queue", w.queueName),
		slog.Int("concurrency", w.concurrency),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return fmt.Errorf("failed to set up consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)

	go w.startMessageDispatcher(ctx, deliveries)

	<-ctx.Done()
	w.logger.Info("Worker context canceled, stopping...")

	return nil
}

// Stop gracefully stops the worker, waiting for in-flight items to finish.
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
