package queue

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeName   = "ex.leadsync"
	DLXName        = "ex.leadsync.dlx"
	SyncQueueName  = "q.sync-requests"
	SyncDLQName    = "q.sync-requests.dlq"
	AlertQueueName = "q.alerts"

	SyncRoutingKey  = "k.sync"
	AlertRoutingKey = "alerts"
)

type RabbitMQ struct {
	Conn *amqp.Connection
	Ch   *amqp.Channel
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	// one sync at a time per consumer
	if err := ch.Qos(1, 0, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	if err := setupTopology(ch); err != nil {
		conn.Close()
		return nil, err
	}
	return &RabbitMQ{Conn: conn, Ch: ch}, nil
}

func (r *RabbitMQ) Close() error {
	if r.Ch != nil {
		r.Ch.Close()
	}
	return r.Conn.Close()
}

// setupTopology declares the exchanges and queues. Sync requests that a
// worker rejects are dead-lettered for inspection.
func setupTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(DLXName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", DLXName, err)
	}
	if _, err := ch.QueueDeclare(SyncDLQName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", SyncDLQName, err)
	}
	if err := ch.QueueBind(SyncDLQName, SyncRoutingKey, DLXName, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", SyncDLQName, err)
	}

	if err := ch.ExchangeDeclare(ExchangeName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", ExchangeName, err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    DLXName,
		"x-dead-letter-routing-key": SyncRoutingKey,
	}
	if _, err := ch.QueueDeclare(SyncQueueName, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare %s: %w", SyncQueueName, err)
	}
	if err := ch.QueueBind(SyncQueueName, SyncRoutingKey, ExchangeName, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", SyncQueueName, err)
	}

	if _, err := ch.QueueDeclare(AlertQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", AlertQueueName, err)
	}
	if err := ch.QueueBind(AlertQueueName, AlertRoutingKey, ExchangeName, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", AlertQueueName, err)
	}
	return nil
}
