package worker

import (
	"context"
	"encoding/json"
	"errors"

	"checkout-service/internal/broker"
	"checkout-service/internal/models"
	"checkout-service/internal/service"
	"checkout-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// FulfillmentWorker consumes OrderPaid events and moves the order into
// fulfillment (paid -> processing). The store transition is a
// compare-and-swap, so a redelivered event is a no-op.
type FulfillmentWorker struct {
	consumer *broker.Consumer
	orders   *service.OrderService
	logger   *zap.Logger
}

// NewFulfillmentWorker creates a fulfillment worker.
func NewFulfillmentWorker(consumer *broker.Consumer, orders *service.OrderService) *FulfillmentWorker {
	return &FulfillmentWorker{
		consumer: consumer,
		orders:   orders,
		logger:   util.GetLogger(),
	}
}

// Start starts the worker
func (w *FulfillmentWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting fulfillment worker")
	return w.consumer.StartConsuming(ctx, w.handleMessage)
}

// Stop stops the worker
func (w *FulfillmentWorker) Stop() error {
	w.logger.Info("Stopping fulfillment worker")
	return w.consumer.Close()
}

func (w *FulfillmentWorker) handleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		w.logger.Error("Failed to unmarshal event", zap.Error(err))
		return nil // poison message, skip
	}

	if baseEvent.EventType != models.EventTypeOrderPaid {
		return nil
	}

	var event models.OrderPaidEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		w.logger.Error("Failed to unmarshal OrderPaid event", zap.Error(err))
		return nil
	}

	w.logger.Info("Moving paid order into processing",
		zap.String("order_code", event.OrderCode))

	_, err := w.orders.UpdateStatus(ctx, event.OrderCode, models.OrderStatusProcessing)
	if errors.Is(err, service.ErrInvalidTransition) || errors.Is(err, service.ErrOrderNotFound) {
		// Already advanced by a previous delivery, or order gone.
		return nil
	}
	return err
}
