package kafka

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"
)

// Producer publishes messages and returns once the broker acknowledged them.
type Producer interface {
	WriteMessage(ctx context.Context, msg kafkago.Message) error
	Close() error
}

// Consumer fetches messages for a consumer group. Offsets only advance on
// CommitMessages, so an uncommitted message is redelivered after a restart.
type Consumer interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Handler processes a single fetched message.
type Handler interface {
	Handle(ctx context.Context, msg kafkago.Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg kafkago.Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg kafkago.Message) error {
	return f(ctx, msg)
}
