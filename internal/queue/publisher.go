// Package queue adapts the AMQP client to the typed publish operations the
// API and dispatcher use.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/banguyen/weathercards/internal/domain"
	"github.com/banguyen/weathercards/shared/rabbitmq"
)

// Publisher publishes the two message kinds onto their routing keys.
type Publisher struct {
	client      *rabbitmq.Client
	dispatchKey string
	workItemKey string
}

// NewPublisher creates a Publisher over an established client.
func NewPublisher(client *rabbitmq.Client, dispatchKey, workItemKey string) *Publisher {
	return &Publisher{
		client:      client,
		dispatchKey: dispatchKey,
		workItemKey: workItemKey,
	}
}

// PublishDispatch enqueues the message that starts a job's fan-out.
func (p *Publisher) PublishDispatch(ctx context.Context, msg domain.DispatchMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding dispatch message: %w", err)
	}
	return p.client.PublishWithRetry(ctx, p.dispatchKey, body, "application/json")
}

// PublishWorkItem enqueues one item of a dispatched job.
func (p *Publisher) PublishWorkItem(ctx context.Context, msg domain.WorkItemMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding work-item message: %w", err)
	}
	return p.client.PublishWithRetry(ctx, p.workItemKey, body, "application/json")
}
