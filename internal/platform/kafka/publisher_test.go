package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type flakyProducer struct {
	failures int
	calls    int
	written  []kafkago.Message
}

func (p *flakyProducer) WriteMessage(_ context.Context, msg kafkago.Message) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("leader not available")
	}
	p.written = append(p.written, msg)
	return nil
}

func (p *flakyProducer) Close() error { return nil }

func TestPublisher_PublishJSON(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		wantCalls int
		wantError string
	}{
		{
			name:      "first attempt acknowledged: ok",
			wantCalls: 1,
		},
		{
			name:      "transient failures retried: ok",
			failures:  2,
			wantCalls: 3,
		},
		{
			name:      "broker never acknowledges: fail",
			failures:  1000,
			wantError: "leader not available",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			producer := &flakyProducer{failures: tt.failures}
			publisher := NewPublisher(producer, zaptest.NewLogger(t), 300*time.Millisecond)

			err := publisher.PublishJSON(t.Context(), "42", "OrderCreated", map[string]int{"orderId": 42})
			if tt.wantError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantError)
				assert.Empty(t, producer.written)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCalls, producer.calls)

			require.Len(t, producer.written, 1)
			msg := producer.written[0]
			assert.Equal(t, "42", string(msg.Key))
			assert.Equal(t, "OrderCreated", HeaderValue(msg, EventTypeHeader))

			var body map[string]int
			require.NoError(t, json.Unmarshal(msg.Value, &body))
			assert.Equal(t, 42, body["orderId"])
		})
	}
}

func TestPublisher_StopsRetryingOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	producer := &flakyProducer{failures: 1000}
	publisher := NewPublisher(producer, zaptest.NewLogger(t), time.Minute)

	err := publisher.PublishJSON(ctx, "1", "PaymentCompleted", struct{}{})
	require.Error(t, err)
	assert.LessOrEqual(t, producer.calls, 1)
}
