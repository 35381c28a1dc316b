package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/xavierca1/leadsync/internal/usecase"
)

// SyncRequest asks a worker to run one sync.
type SyncRequest struct {
	RequestID   string    `json:"request_id"`
	Trigger     string    `json:"trigger"`
	RequestedAt time.Time `json:"requested_at"`
}

// Publisher is satisfied by *amqp.Channel.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type RabbitMQProducer struct {
	Ch Publisher
}

func NewProducer(ch Publisher) *RabbitMQProducer {
	return &RabbitMQProducer{Ch: ch}
}

// PublishSyncRequest enqueues a sync and returns the request id.
func (p *RabbitMQProducer) PublishSyncRequest(ctx context.Context, trigger string) (string, error) {
	req := SyncRequest{
		RequestID:   uuid.New().String(),
		Trigger:     trigger,
		RequestedAt: time.Now().UTC(),
	}
	if err := p.publish(ctx, SyncRoutingKey, req.RequestID, req); err != nil {
		return "", err
	}
	return req.RequestID, nil
}

func (p *RabbitMQProducer) PublishAlert(ctx context.Context, alert usecase.Alert) error {
	return p.publish(ctx, AlertRoutingKey, alert.ErrorID, alert)
}

func (p *RabbitMQProducer) publish(ctx context.Context, key, messageID string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", key, err)
	}

	err = p.Ch.PublishWithContext(ctx,
		ExchangeName,
		key,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			MessageId:    messageID,
			Timestamp:    time.Now().UTC(),
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}
