package order

import (
	"context"
	"errors"

	"ordersaga/internal/events"
	"ordersaga/internal/platform/observability"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageHandler applies saga outcomes to orders.
type MessageHandler struct {
	service *Service
	logger  observability.Logger
}

func NewMessageHandler(service *Service, logger observability.Logger) *MessageHandler {
	return &MessageHandler{
		service: service,
		logger:  logger,
	}
}

// HandlePaymentCompleted completes or fails the order. Unknown orders and
// status conflicts are logged and skipped; anything else is returned so the
// message is redelivered.
func (h *MessageHandler) HandlePaymentCompleted(ctx context.Context, msg kafkago.Message) error {
	h.logger.Info("📨 Raw Kafka message received",
		zap.String("topic", msg.Topic),
		zap.ByteString("key", msg.Key),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	)

	payment, err := events.Decode[events.PaymentCompleted](msg.Value)
	if err != nil {
		h.logger.Error("❌ Invalid JSON in PaymentCompleted event, skipping",
			zap.Error(err),
			zap.ByteString("raw_value", msg.Value),
		)
		return nil
	}

	if payment.PaymentSuccessful {
		_, err = h.service.CompleteOnPaymentSuccess(ctx, payment.OrderID)
	} else {
		_, err = h.service.FailOnPaymentOrInventoryFailure(ctx, payment.OrderID, payment.Message)
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict):
		h.logger.Warn("⚠️ PaymentCompleted not applicable, skipping",
			zap.Int64("order_id", payment.OrderID),
			zap.Bool("payment_successful", payment.PaymentSuccessful),
			zap.Error(err),
		)
		return nil
	default:
		return err
	}
}
