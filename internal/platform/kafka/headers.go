package kafka

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const EventTypeHeader = "event_type"

// ExtractTraceContext restores the producer's span context from message headers.
func ExtractTraceContext(ctx context.Context, headers []kafkago.Header) context.Context {
	carrier := propagation.MapCarrier{}
	for _, header := range headers {
		carrier[header.Key] = string(header.Value)
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// InjectTraceContext appends the span context of ctx to headers.
func InjectTraceContext(ctx context.Context, headers []kafkago.Header) []kafkago.Header {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	for key, value := range carrier {
		headers = append(headers, kafkago.Header{Key: key, Value: []byte(value)})
	}
	return headers
}

// HeaderValue returns the last value of the header named key.
func HeaderValue(msg kafkago.Message, key string) string {
	var value string
	for _, header := range msg.Headers {
		if header.Key == key {
			value = string(header.Value)
		}
	}
	return value
}
