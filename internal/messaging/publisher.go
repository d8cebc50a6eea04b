package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"restaurant-floor/internal/logger"
	"restaurant-floor/internal/models"
)

// EventPublisher is what the services need to announce state changes
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *models.FloorEvent) error
}

// Discard drops every event. Used when RabbitMQ is disabled.
type Discard struct{}

func (Discard) PublishEvent(context.Context, *models.FloorEvent) error { return nil }

// Publisher handles message publishing to RabbitMQ
type Publisher struct {
	mu     sync.Mutex
	conn   *Connection
	logger *logger.Logger
}

// NewPublisher creates a new message publisher
func NewPublisher(conn *Connection, log *logger.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: log,
	}
}

// PublishEvent publishes a floor event using its type as the routing key
func (p *Publisher) PublishEvent(ctx context.Context, event *models.FloorEvent) error {
	return p.publishMessage(ctx, FloorExchange, event.Type, event)
}

func (p *Publisher) publishMessage(ctx context.Context, exchange, routingKey string, message interface{}) error {
	requestID := logger.RequestID(ctx)

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	// amqp channels are not safe for concurrent publishing
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn.IsClosed() {
		if err := p.conn.Reconnect(ctx); err != nil {
			return fmt.Errorf("failed to reconnect: %w", err)
		}
	}

	publishing := amqp091.Publishing{
		ContentType:   "application/json",
		Body:          body,
		DeliveryMode:  amqp091.Persistent,
		Timestamp:     time.Now(),
		MessageId:     uuid.NewString(),
		CorrelationId: requestID,
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err = p.conn.Channel().PublishWithContext(
		ctx,
		exchange,   // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		publishing,
	)
	if err != nil {
		p.logger.Error("message_publish_failed",
			fmt.Sprintf("Failed to publish message to exchange %s", exchange),
			requestID, err, map[string]interface{}{
				"exchange":    exchange,
				"routing_key": routingKey,
			})
		return fmt.Errorf("failed to publish message: %w", err)
	}

	p.logger.Debug("message_published",
		fmt.Sprintf("Published message to exchange %s", exchange),
		requestID, map[string]interface{}{
			"exchange":     exchange,
			"routing_key":  routingKey,
			"message_size": len(body),
		})

	return nil
}

// Recorder keeps published events in memory
type Recorder struct {
	mu     sync.Mutex
	events []models.FloorEvent
}

func (r *Recorder) PublishEvent(_ context.Context, event *models.FloorEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *event)
	return nil
}

// Types returns the routing keys of the recorded events in order
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []models.FloorEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.FloorEvent(nil), r.events...)
}
