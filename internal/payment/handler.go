package payment

import (
	"context"

	"ordersaga/internal/events"
	"ordersaga/internal/platform/observability"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

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

// HandleInventoryReserved processes an InventoryReserved message.
func (h *MessageHandler) HandleInventoryReserved(ctx context.Context, msg kafkago.Message) error {
	h.logger.Info("📨 Raw Kafka message received",
		zap.String("topic", msg.Topic),
		zap.ByteString("key", msg.Key),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	)

	reserved, err := events.Decode[events.InventoryReserved](msg.Value)
	if err != nil {
		h.logger.Error("❌ Invalid JSON in InventoryReserved event, skipping",
			zap.Error(err),
			zap.ByteString("raw_value", msg.Value),
		)
		return nil
	}

	_, err = h.service.ProcessInventoryReserved(ctx, reserved)
	return err
}
