//go:build integration

package kafka

import (
	"context"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"
)

func startKafka(t *testing.T) string {
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	})

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)

	return brokers[0]
}

func TestKafka_PublishAndConsumeRoundTrip(t *testing.T) {
	broker := startKafka(t)
	ctx := t.Context()
	const topic = "order-created-topic"

	require.NoError(t, EnsureTopics(ctx, []string{broker}, topic))
	// idempotent
	require.NoError(t, EnsureTopics(ctx, []string{broker}, topic))

	writer, err := NewWriter([]string{broker}, topic, "order-service", noop.NewTracerProvider())
	require.NoError(t, err)
	defer writer.Close()

	publisher := NewPublisher(writer, zaptest.NewLogger(t), 30*time.Second)
	require.NoError(t, publisher.PublishJSON(ctx, "17", "OrderCreated", map[string]any{"orderId": 17}))

	reader, err := NewReader([]string{broker}, topic, "it-group", noop.NewTracerProvider())
	require.NoError(t, err)
	defer reader.Close()

	var got kafkago.Message
	require.Eventually(t, func() bool {
		fetchCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		msg, err := reader.FetchMessage(fetchCtx)
		if err != nil {
			return false
		}
		got = msg
		return true
	}, 60*time.Second, 500*time.Millisecond)

	assert.Equal(t, "17", string(got.Key))
	assert.Equal(t, "OrderCreated", HeaderValue(got, EventTypeHeader))
	require.NoError(t, reader.CommitMessages(ctx, got))
}
