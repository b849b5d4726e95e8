package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"ordersaga/internal/config"

	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// NewReader creates a consumer-group reader that commits explicitly. Fetches
// and commits are traced; the fetch span is written back into the message
// headers, so handlers continue the trace under it.
func NewReader(brokers []string, topic, groupID string, tp trace.TracerProvider) (Consumer, error) {
	baseReader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		StartOffset:    kafkago.FirstOffset,
		CommitInterval: 0,
	})

	reader, err := otelkafka.NewReader(baseReader,
		otelkafka.WithTracerProvider(tp),
		otelkafka.WithPropagator(propagation.TraceContext{}),
		otelkafka.WithAttributes(
			[]attribute.KeyValue{
				semconv.MessagingDestinationNameKey.String(topic),
				semconv.MessagingKafkaConsumerGroupKey.String(groupID),
			},
		),
	)
	if err != nil {
		return nil, fmt.Errorf("otelkafka.NewReader: %w", err)
	}
	return &tracedReader{reader: reader}, nil
}

var _ Consumer = (*tracedReader)(nil)

// tracedReader adapts the instrumented reader's fetch signature to Consumer.
type tracedReader struct {
	reader *otelkafka.Reader
}

func (r *tracedReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	var msg kafkago.Message
	if err := r.reader.FetchMessage(ctx, &msg); err != nil {
		return kafkago.Message{}, err
	}
	return msg, nil
}

func (r *tracedReader) CommitMessages(ctx context.Context, msgs ...kafkago.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return r.reader.CommitMessages(ctx, msgs...)
}

func (r *tracedReader) Close() error {
	return r.reader.Close()
}

// NewWriter creates a writer for topic that partitions by key hash and waits
// for all in-sync replicas. The writer injects trace context into headers.
func NewWriter(brokers []string, topic, clientID string, tp trace.TracerProvider) (Producer, error) {
	baseWriter := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		BatchTimeout:           config.BatchTimeout,
		BatchSize:              config.BatchSize,
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}

	writer, err := otelkafka.NewWriter(baseWriter,
		otelkafka.WithTracerProvider(tp),
		otelkafka.WithPropagator(propagation.TraceContext{}),
		otelkafka.WithAttributes(
			[]attribute.KeyValue{
				semconv.MessagingDestinationNameKey.String(topic),
				attribute.String("messaging.kafka.client_id", clientID),
			},
		),
	)
	if err != nil {
		return nil, fmt.Errorf("otelkafka.NewWriter: %w", err)
	}
	return writer, nil
}

// EnsureTopics creates the saga topics on the cluster controller. Topics that
// already exist are left untouched.
func EnsureTopics(ctx context.Context, brokers []string, topics ...string) error {
	if len(brokers) == 0 {
		return errors.New("no brokers configured")
	}

	var dialer kafkago.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("kafka.Dial: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("conn.Controller: %w", err)
	}

	controllerConn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("kafka.Dial controller: %w", err)
	}
	defer controllerConn.Close()

	topicConfigs := make([]kafkago.TopicConfig, 0, len(topics))
	for _, topic := range topics {
		topicConfigs = append(topicConfigs, kafkago.TopicConfig{
			Topic:             topic,
			NumPartitions:     config.TopicPartitions,
			ReplicationFactor: 1,
		})
	}

	if err := controllerConn.CreateTopics(topicConfigs...); err != nil && !errors.Is(err, kafkago.TopicAlreadyExists) {
		return fmt.Errorf("conn.CreateTopics: %w", err)
	}
	return nil
}
