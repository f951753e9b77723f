package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"capture-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher enqueues capture notifications for the delivery system
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishCaptureSucceeded publishes the customer-facing success notification
func (ep *EventPublisher) PublishCaptureSucceeded(ctx context.Context, event *models.CaptureSucceededEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishCaptureDisputed publishes the admin-facing escalation notification
func (ep *EventPublisher) PublishCaptureDisputed(ctx context.Context, event *models.CaptureDisputedEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler routes incoming capture notifications
type EventHandler struct {
	onCaptureSucceeded func(context.Context, *models.CaptureSucceededEvent) error
	onCaptureDisputed  func(context.Context, *models.CaptureDisputedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnCaptureSucceeded registers a handler for CaptureSucceeded events
func (eh *EventHandler) OnCaptureSucceeded(handler func(context.Context, *models.CaptureSucceededEvent) error) {
	eh.onCaptureSucceeded = handler
}

// OnCaptureDisputed registers a handler for CaptureDisputed events
func (eh *EventHandler) OnCaptureDisputed(handler func(context.Context, *models.CaptureDisputedEvent) error) {
	eh.onCaptureDisputed = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	log.Printf("Handling event: type=%s, id=%s", baseEvent.EventType, baseEvent.EventID)

	switch baseEvent.EventType {
	case models.EventTypeCaptureSucceeded:
		if eh.onCaptureSucceeded != nil {
			var event models.CaptureSucceededEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal CaptureSucceeded event: %w", err)
			}
			return eh.onCaptureSucceeded(ctx, &event)
		}

	case models.EventTypeCaptureDisputed:
		if eh.onCaptureDisputed != nil {
			var event models.CaptureDisputedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal CaptureDisputed event: %w", err)
			}
			return eh.onCaptureDisputed(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
