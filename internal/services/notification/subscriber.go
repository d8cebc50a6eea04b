// Package notification renders floor events from the notifications queue
// for the people working the floor.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"restaurant-floor/internal/logger"
	"restaurant-floor/internal/messaging"
	"restaurant-floor/internal/models"
)

// Subscriber handles notification messages
type Subscriber struct {
	consumer *messaging.Consumer
	logger   *logger.Logger
	out      io.Writer
}

// NewSubscriber creates a new notification subscriber
func NewSubscriber(consumer *messaging.Consumer, log *logger.Logger) *Subscriber {
	return &Subscriber{
		consumer: consumer,
		logger:   log,
		out:      os.Stdout,
	}
}

// Start consumes until ctx is cancelled, then closes the consumer
func (s *Subscriber) Start(ctx context.Context) error {
	requestID := logger.GenerateRequestID()
	s.logger.Info("service_started", "Notification subscriber started", requestID, nil)

	err := s.consumer.StartConsuming(ctx, s.handleNotification)
	if err != nil {
		s.logger.Error("consumer_failed", "Notification consumer failed", requestID, err, nil)
	}

	s.logger.Info("graceful_shutdown", "Closing notification consumer", requestID, nil)
	if cerr := s.consumer.Close(); cerr != nil {
		s.logger.Error("consumer_close_failed", "Failed to close consumer", requestID, cerr, nil)
	}
	return err
}

// handleNotification processes one floor event
func (s *Subscriber) handleNotification(ctx context.Context, body []byte) error {
	requestID := logger.RequestID(ctx)

	var event models.FloorEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.logger.Error("message_parsing_failed", "Failed to parse notification message", requestID, err, nil)
		return fmt.Errorf("failed to parse notification: %w", err)
	}

	s.logger.Debug("notification_received", "Received floor event", requestID, map[string]interface{}{
		"type":       event.Type,
		"subject":    event.Subject(),
		"new_status": event.NewStatus,
	})

	fmt.Fprintln(s.out, formatNotification(&event))

	s.logger.Info("notification_displayed", "Notification displayed to user", requestID, map[string]interface{}{
		"type":       event.Type,
		"old_status": event.OldStatus,
		"new_status": event.NewStatus,
		"timestamp":  event.Timestamp.Format("2006-01-02 15:04:05"),
	})
	return nil
}

// formatNotification creates a human-readable notification message
func formatNotification(e *models.FloorEvent) string {
	timestamp := e.Timestamp.Format("2006-01-02 15:04:05")
	subject := e.Subject()

	switch e.Type {
	case models.EventOrderCreated:
		if e.TableNumber != nil {
			return fmt.Sprintf("🆕 [%s] %s opened at table %d.", timestamp, subject, *e.TableNumber)
		}
		return fmt.Sprintf("🆕 [%s] %s opened.", timestamp, subject)
	case models.EventInvoicePaid:
		return fmt.Sprintf("💳 [%s] %s for order %s paid: %s.", timestamp, subject, e.OrderNumber, amount(e.Amount))
	case models.EventInvoiceCreated:
		return fmt.Sprintf("🧾 [%s] %s issued for order %s: %s.", timestamp, subject, e.OrderNumber, amount(e.Amount))
	}

	switch e.NewStatus {
	case string(models.TableDirty):
		if e.Type == models.EventTableStatusChanged {
			return fmt.Sprintf("🧹 [%s] %s needs cleaning.", timestamp, subject)
		}
	case string(models.TableBroken):
		return fmt.Sprintf("🔧 [%s] %s reported broken.", timestamp, subject)
	case string(models.LinePreparing):
		return fmt.Sprintf("🍳 [%s] %s is now being prepared.", timestamp, subject)
	case string(models.LineServed):
		return fmt.Sprintf("✅ [%s] %s has been served.", timestamp, subject)
	case string(models.LineCancelled):
		return fmt.Sprintf("❌ [%s] %s has been cancelled.", timestamp, subject)
	}

	if e.OldStatus == "" {
		return fmt.Sprintf("📋 [%s] %s is now '%s'.", timestamp, subject, e.NewStatus)
	}
	return fmt.Sprintf("📋 [%s] %s status changed from '%s' to '%s'.", timestamp, subject, e.OldStatus, e.NewStatus)
}

func amount(v *int64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%d", *v)
}
