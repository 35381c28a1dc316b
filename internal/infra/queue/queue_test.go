package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xavierca1/leadsync/internal/entity"
	"github.com/xavierca1/leadsync/internal/usecase"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakePublisher struct {
	out []published
	err error
}

func (f *fakePublisher) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.out = append(f.out, published{exchange, key, msg})
	return nil
}

type fakeAck struct {
	acked, nacked, requeued int
}

func (a *fakeAck) Ack(tag uint64, multiple bool) error { a.acked++; return nil }
func (a *fakeAck) Nack(tag uint64, multiple, requeue bool) error {
	a.nacked++
	if requeue {
		a.requeued++
	}
	return nil
}
func (a *fakeAck) Reject(tag uint64, requeue bool) error { return a.Nack(tag, false, requeue) }

type MockSyncRunner struct {
	mock.Mock
}

func (m *MockSyncRunner) Execute(ctx context.Context, trigger string) (*entity.SyncRun, error) {
	args := m.Called(ctx, trigger)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.SyncRun), args.Error(1)
}

func TestProducer_PublishSyncRequest(t *testing.T) {
	pub := &fakePublisher{}
	p := NewProducer(pub)

	id, err := p.PublishSyncRequest(context.Background(), "api")

	require.NoError(t, err)
	require.Len(t, pub.out, 1)
	assert.Equal(t, ExchangeName, pub.out[0].exchange)
	assert.Equal(t, SyncRoutingKey, pub.out[0].key)
	assert.Equal(t, amqp.Persistent, pub.out[0].msg.DeliveryMode)
	assert.Equal(t, id, pub.out[0].msg.MessageId)

	var req SyncRequest
	require.NoError(t, json.Unmarshal(pub.out[0].msg.Body, &req))
	assert.Equal(t, "api", req.Trigger)
	assert.Equal(t, id, req.RequestID)
}

func TestProducer_PublishAlert(t *testing.T) {
	pub := &fakePublisher{}

	err := NewProducer(pub).PublishAlert(context.Background(), usecase.Alert{Severity: usecase.SeverityCritical, Type: "empty_store", ErrorID: "e-1"})

	require.NoError(t, err)
	require.Len(t, pub.out, 1)
	assert.Equal(t, AlertRoutingKey, pub.out[0].key)
	assert.Contains(t, string(pub.out[0].msg.Body), `"empty_store"`)
}

func TestProducer_PublishFailure(t *testing.T) {
	_, err := NewProducer(&fakePublisher{err: amqp.ErrClosed}).PublishSyncRequest(context.Background(), "api")

	require.Error(t, err)
	assert.ErrorIs(t, err, amqp.ErrClosed)
}

func newWorker(sync *MockSyncRunner) *Worker {
	logger, _ := test.NewNullLogger()
	return NewWorker(nil, sync, logger)
}

func TestWorker_Handle(t *testing.T) {
	t.Run("runs and acks", func(t *testing.T) {
		sync := new(MockSyncRunner)
		sync.On("Execute", mock.Anything, "api").Return(&entity.SyncRun{ID: "run-1", Status: entity.RunPartial}, nil).Once()
		ack := &fakeAck{}

		newWorker(sync).handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte(`{"request_id":"r1","trigger":"api"}`)})

		assert.Equal(t, 1, ack.acked)
		sync.AssertExpectations(t)
	})

	t.Run("malformed is dead-lettered", func(t *testing.T) {
		sync := new(MockSyncRunner)
		ack := &fakeAck{}

		newWorker(sync).handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte(`{`)})

		assert.Equal(t, 1, ack.nacked)
		assert.Zero(t, ack.requeued)
		sync.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
	})

	t.Run("unrecorded run is dead-lettered", func(t *testing.T) {
		sync := new(MockSyncRunner)
		sync.On("Execute", mock.Anything, "queue").Return(&entity.SyncRun{ID: "run-2"}, errors.New("persist run")).Once()
		ack := &fakeAck{}

		newWorker(sync).handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte(`{"request_id":"r2"}`)})

		assert.Equal(t, 1, ack.nacked)
		assert.Zero(t, ack.acked)
	})
}

type chanConsumer struct {
	ch chan amqp.Delivery
}

func (c *chanConsumer) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	return c.ch, nil
}

func TestWorker_StartStopsOnCancel(t *testing.T) {
	called := make(chan struct{})
	sync := new(MockSyncRunner)
	sync.On("Execute", mock.Anything, "api").
		Run(func(mock.Arguments) { close(called) }).
		Return(&entity.SyncRun{ID: "run-1", Status: entity.RunSuccess}, nil).Once()
	logger, _ := test.NewNullLogger()
	consumer := &chanConsumer{ch: make(chan amqp.Delivery, 1)}
	w := NewWorker(consumer, sync, logger)
	ack := &fakeAck{}
	consumer.ch <- amqp.Delivery{Acknowledger: ack, Body: []byte(`{"trigger":"api"}`)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx, SyncQueueName) }()

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("request not consumed")
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
