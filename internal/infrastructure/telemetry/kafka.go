package telemetry

import (
	"context"
	"strings"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// MessageTypeHeader lets consumers route a record before decoding its payload.
const MessageTypeHeader = "message-type"

// headerCarrier adapts kafka headers to propagation.TextMapCarrier.
type headerCarrier struct {
	headers []kafka.Header
}

func (c *headerCarrier) Get(key string) string {
	for _, h := range c.headers {
		if strings.EqualFold(h.Key, key) {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	for i, h := range c.headers {
		if strings.EqualFold(h.Key, key) {
			c.headers[i].Value = []byte(value)
			return
		}
	}
	c.headers = append(c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, len(c.headers))
	for i, h := range c.headers {
		keys[i] = h.Key
	}
	return keys
}

// KafkaHeaders returns the headers for one outgoing message: its type and the trace context of ctx.
func KafkaHeaders(ctx context.Context, messageType string) []kafka.Header {
	return InjectKafkaHeaders(ctx, []kafka.Header{{Key: MessageTypeHeader, Value: []byte(messageType)}})
}

// KafkaHeader looks a header up case-insensitively. Missing headers read as "".
func KafkaHeader(headers []kafka.Header, key string) string {
	return (&headerCarrier{headers: headers}).Get(key)
}

func InjectKafkaHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	carrier := &headerCarrier{headers: headers}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier.headers
}

func ExtractKafkaHeaders(ctx context.Context, headers []kafka.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, &headerCarrier{headers: headers})
}
