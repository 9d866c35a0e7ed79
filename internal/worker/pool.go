package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/banguyen/weathercards/internal/domain"
)

// spawnWorkerPool spawns N processing goroutines based on concurrency
// configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each pool goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Info("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Info("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case msg, ok := <-w.itemsChan:
			if !ok {
				w.logger.Info("Worker goroutine stopping - itemsChan closed",
					slog.String("worker_name", workerName),
				)
				return
			}

			err := w.processor.ProcessItem(ctx, msg.Item)

			channel := w.rabbitClient.GetChannel()
			if channel == nil {
				w.logger.Error("Failed to get RabbitMQ channel for ACK/NACK",
					slog.String("worker_name", workerName),
					slog.String("job_id", msg.Item.JobID),
				)
				continue
			}

			if err != nil {
				requeue := shouldRequeueItem(err)
				w.logger.Error("Work item processing failed",
					slog.String("worker_name", workerName),
					slog.String("job_id", msg.Item.JobID),
					slog.String("station_id", msg.Item.StationID),
					slog.Bool("requeue", requeue),
					slog.String("error", err.Error()),
				)
				if nackErr := channel.Nack(msg.DeliveryTag, false, requeue); nackErr != nil {
					w.logger.Error("Failed to NACK message",
						slog.String("worker_name", workerName),
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}

			if ackErr := channel.Ack(msg.DeliveryTag, false); ackErr != nil {
				w.logger.Error("Failed to ACK message",
					slog.String("worker_name", workerName),
					slog.String("job_id", msg.Item.JobID),
					slog.String("error", ackErr.Error()),
				)
			}
		}
	}
}

// shouldRequeueItem decides the NACK requeue flag based on the error type.
// Only transient failures get a redelivery; anything else would loop forever.
func shouldRequeueItem(err error) bool {
	var retryable *domain.RetryableError
	return errors.As(err, &retryable)
}
