package queue

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/xavierca1/leadsync/internal/usecase"
)

// Consumer is satisfied by *amqp.Channel.
type Consumer interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// Worker runs the sync for every request on the sync queue.
type Worker struct {
	Channel Consumer
	Sync    usecase.SyncRunner
	Logger  logrus.FieldLogger
}

func NewWorker(ch Consumer, sync usecase.SyncRunner, logger logrus.FieldLogger) *Worker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Worker{Channel: ch, Sync: sync, Logger: logger.WithField("component", "sync-worker")}
}

// Start consumes until ctx is done or the channel closes.
func (w *Worker) Start(ctx context.Context, queueName string) error {
	msgs, err := w.Channel.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("register consumer on %s: %w", queueName, err)
	}
	w.Logger.Infof("📥 worker waiting on queue '%s'", queueName)

	for {
		select {
		case <-ctx.Done():
			w.Logger.Info("🛑 sync worker stopped")
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("queue %s: delivery channel closed", queueName)
			}
			w.handle(ctx, d)
		}
	}
}

func (w *Worker) handle(ctx context.Context, d amqp.Delivery) {
	var req SyncRequest
	if err := json.Unmarshal(d.Body, &req); err != nil {
		w.Logger.WithError(err).Error("❌ malformed sync request")
		d.Nack(false, false)
		return
	}
	if req.Trigger == "" {
		req.Trigger = "queue"
	}
	log := w.Logger.WithFields(logrus.Fields{"request_id": req.RequestID, "trigger": req.Trigger})

	run, err := w.Sync.Execute(ctx, req.Trigger)
	if err != nil {
		// the run report was not stored; dead-letter the request
		log.WithError(err).Error("❌ queued sync could not be recorded")
		d.Nack(false, false)
		return
	}
	log.WithFields(logrus.Fields{"run_id": run.ID, "status": run.Status}).Info("✅ queued sync finished")
	d.Ack(false)
}
