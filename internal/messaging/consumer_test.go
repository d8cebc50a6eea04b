package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"

	"restaurant-floor/internal/logger"
)

type recordingAcker struct {
	acked    bool
	nacked   bool
	requeued bool
}

func (a *recordingAcker) Ack(tag uint64, multiple bool) error {
	a.acked = true
	return nil
}

func (a *recordingAcker) Nack(tag uint64, multiple, requeue bool) error {
	a.nacked = true
	a.requeued = requeue
	return nil
}

func (a *recordingAcker) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func TestProcessMessage(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name         string
		redelivered  bool
		handlerErr   error
		wantAck      bool
		wantRequeued bool
	}{
		{"success acks", false, nil, true, false},
		{"first failure requeues", false, boom, false, true},
		{"repeat failure drops", true, boom, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acker := &recordingAcker{}
			c := NewConsumer(nil, logger.Discard(), NotificationsQueue, "test", 1)
			d := amqp091.Delivery{
				Acknowledger:  acker,
				Body:          []byte(`{}`),
				RoutingKey:    "order.created",
				Redelivered:   tt.redelivered,
				CorrelationId: "req-1",
			}

			var seenRequestID string
			c.processMessage(context.Background(), d, func(ctx context.Context, body []byte) error {
				seenRequestID = logger.RequestID(ctx)
				return tt.handlerErr
			})

			assert.Equal(t, "req-1", seenRequestID)
			assert.Equal(t, tt.wantAck, acker.acked)
			assert.Equal(t, !tt.wantAck, acker.nacked)
			assert.Equal(t, tt.wantRequeued, acker.requeued)
		})
	}
}

func TestDiscardPublisher(t *testing.T) {
	var p EventPublisher = Discard{}
	assert.NoError(t, p.PublishEvent(context.Background(), nil))
}
