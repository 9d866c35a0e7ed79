package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/banguyen/weathercards/internal/domain"
	"github.com/banguyen/weathercards/shared/rabbitmq"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Service drives the dispatcher from a RabbitMQ queue.
type Service struct {
	logger        *slog.Logger
	rabbitClient  *rabbitmq.Client
	dispatcher    *Dispatcher
	queueName     string
	consumerTag   string
	prefetchCount int
}

// NewService creates a Service consuming from queueName.
func NewService(logger *slog.Logger, rabbitClient *rabbitmq.Client, d *Dispatcher, queueName string, prefetchCount int) *Service {
	return &Service{
		logger:        logger,
		rabbitClient:  rabbitClient,
		dispatcher:    d,
		queueName:     queueName,
		consumerTag:   fmt.Sprintf("dispatcher-%s", uuid.New().String()[:8]),
		prefetchCount: prefetchCount,
	}
}

// Run consumes dispatch messages until the context is canceled or the
// delivery channel closes.
func (s *Service) Run(ctx context.Context) error {
	channel := s.rabbitClient.GetChannel()
	if channel == nil {
		return fmt.Errorf("rabbitmq channel is nil")
	}

	if err := channel.Qos(s.prefetchCount, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := s.rabbitClient.Consume(s.queueName, s.consumerTag)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	s.logger.Info("Dispatcher consumer started",
		slog.String("queue", s.queueName),
		slog.String("consumer_tag", s.consumerTag),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Dispatcher consumer stopped - context canceled")
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				s.logger.Warn("RabbitMQ delivery channel closed")
				return fmt.Errorf("delivery channel closed")
			}
			s.handleDelivery(ctx, delivery)
		}
	}
}

func (s *Service) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	var msg domain.DispatchMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		s.logger.Error("Failed to parse dispatch message JSON",
			slog.String("error", err.Error()),
			slog.String("body", string(delivery.Body)),
		)
		// Malformed messages go to the DLQ.
		s.nack(delivery, false)
		return
	}

	if _, err := uuid.Parse(msg.JobID); err != nil {
		s.logger.Error("Invalid job_id format - not a UUID",
			slog.String("job_id", msg.JobID),
			slog.String("error", err.Error()),
		)
		s.nack(delivery, false)
		return
	}

	if err := s.dispatcher.HandleDispatch(ctx, msg); err != nil {
		requeue := false
		var retryable *domain.RetryableError
		if errors.As(err, &retryable) {
			requeue = true
		}
		s.logger.Error("Dispatch failed",
			slog.String("job_id", msg.JobID),
			slog.Bool("requeue", requeue),
			slog.Any("error", err),
		)
		s.nack(delivery, requeue)
		return
	}

	if err := delivery.Ack(false); err != nil {
		s.logger.Error("Failed to ACK dispatch message",
			slog.String("job_id", msg.JobID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) nack(delivery amqp.Delivery, requeue bool) {
	if err := delivery.Nack(false, requeue); err != nil {
		s.logger.Error("Failed to NACK message",
			slog.String("error", err.Error()),
		)
	}
}
