package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"ordersaga/internal/platform/observability"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// ConsumerService drives one fetch-handle-commit loop for a topic.
type ConsumerService struct {
	topic        string
	consumer     Consumer
	handler      Handler
	logger       observability.Logger
	fetchBackoff backoff.BackOff
}

func NewConsumerService(topic string, consumer Consumer, handler Handler, logger observability.Logger) *ConsumerService {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = 0

	return &ConsumerService{
		topic:        topic,
		consumer:     consumer,
		handler:      handler,
		logger:       logger,
		fetchBackoff: policy,
	}
}

// Start blocks until ctx is done or a handler reports an operational error.
// A failing message is left uncommitted so it is redelivered after restart.
func (c *ConsumerService) Start(ctx context.Context) error {
	c.logger.Info("Kafka consumer started. Waiting for messages...", zap.String("topic", c.topic))

	for {
		msg, err := c.consumer.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				c.logger.Info("Context done, exiting Kafka read loop.", zap.String("topic", c.topic))
				return nil
			}
			wait := c.fetchBackoff.NextBackOff()
			c.logger.Error("❌ Error reading from Kafka",
				zap.String("topic", c.topic),
				zap.Duration("retry_in", wait),
				zap.Error(err),
			)
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				c.logger.Info("Context done, exiting Kafka read loop.", zap.String("topic", c.topic))
				return nil
			case <-timer.C:
			}
			continue
		}
		c.fetchBackoff.Reset()

		msgCtx := ExtractTraceContext(ctx, msg.Headers)
		if err := c.handler.Handle(msgCtx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("❌ Handler failed, stopping consumer",
				zap.String("topic", c.topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			return fmt.Errorf("handle %s[%d]@%d: %w", c.topic, msg.Partition, msg.Offset, err)
		}

		if err := c.consumer.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("❌ Failed to commit offset", zap.String("topic", c.topic), zap.Error(err))
		}
	}
}
