package inventory

import (
	"context"

	"ordersaga/internal/events"
	"ordersaga/internal/platform/observability"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageHandler decodes inventory-bound Kafka messages and hands them to the Service.
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

// HandleOrderCreated processes an OrderCreated message.
func (h *MessageHandler) HandleOrderCreated(ctx context.Context, msg kafkago.Message) error {
	h.logger.Info("📨 Raw Kafka message received",
		zap.String("topic", msg.Topic),
		zap.ByteString("key", msg.Key),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	)

	order, err := events.Decode[events.OrderCreated](msg.Value)
	if err != nil {
		h.logger.Error("❌ Invalid JSON in OrderCreated event, skipping",
			zap.Error(err),
			zap.ByteString("raw_value", msg.Value),
		)
		return nil
	}

	_, err = h.service.ProcessOrderCreated(ctx, order)
	return err
}

// HandlePaymentCompleted compensates reservations of orders whose payment failed.
func (h *MessageHandler) HandlePaymentCompleted(ctx context.Context, msg kafkago.Message) error {
	payment, err := events.Decode[events.PaymentCompleted](msg.Value)
	if err != nil {
		h.logger.Error("❌ Invalid JSON in PaymentCompleted event, skipping",
			zap.Error(err),
			zap.ByteString("raw_value", msg.Value),
		)
		return nil
	}

	return h.service.ProcessPaymentCompleted(ctx, payment)
}
