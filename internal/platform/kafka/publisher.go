package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ordersaga/internal/platform/observability"

	"github.com/cenkalti/backoff/v4"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher writes JSON events keyed by aggregate id and retries until the
// broker acknowledges the write or maxElapsed passes.
type Publisher struct {
	producer   Producer
	logger     observability.Logger
	maxElapsed time.Duration
}

func NewPublisher(producer Producer, logger observability.Logger, maxElapsed time.Duration) *Publisher {
	return &Publisher{
		producer:   producer,
		logger:     logger,
		maxElapsed: maxElapsed,
	}
}

func (p *Publisher) PublishJSON(ctx context.Context, key, eventType string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("json.Marshal %s: %w", eventType, err)
	}

	msg := kafkago.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafkago.Header{
			{Key: EventTypeHeader, Value: []byte(eventType)},
		},
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxElapsedTime = p.maxElapsed

	attempt := 0
	operation := func() error {
		attempt++
		if err := p.producer.WriteMessage(ctx, msg); err != nil {
			p.logger.Warn("⚠️ Publish attempt failed",
				zap.String("event_type", eventType),
				zap.String("key", key),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return fmt.Errorf("producer.WriteMessage %s after %d attempts: %w", eventType, attempt, err)
	}

	p.logger.Info("📤 Published event",
		zap.String("event_type", eventType),
		zap.String("key", key),
	)
	return nil
}
