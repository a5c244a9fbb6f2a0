package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"txsentry/internal/infrastructure/telemetry"
	"txsentry/internal/streaming"
)

const (
	findingsSuffix = "findings"
	labelsSuffix   = "labels"
)

// MessageWriter is the part of *kafka.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer MessageWriter
	prefix string
}

type ProducerConfig struct {
	Brokers     []string
	TopicPrefix string
}

func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           500 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return newProducer(writer, cfg.TopicPrefix), nil
}

func newProducer(writer MessageWriter, prefix string) *Producer {
	if strings.TrimSpace(prefix) == "" {
		prefix = "txsentry"
	}
	return &Producer{writer: writer, prefix: prefix}
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// PublishReport routes finding reports and automated labels to their topics, keyed by
// address so one address stays on one partition.
func (p *Producer) PublishReport(ctx context.Context, msg streaming.Message) error {
	topic, err := p.topicFor(msg.Type)
	if err != nil {
		return err
	}

	ctx = telemetry.NewRootContext(ctx)
	ctx, span := otel.Tracer("txsentry/kafka").Start(ctx, "publish."+string(msg.Type), trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.destination.name", topic),
		attribute.String("message.address", msg.Address),
		attribute.Int("message.findings", len(msg.Findings)),
	)

	if msg.TraceID == "" {
		msg.TraceID = span.SpanContext().TraceID().String()
	}
	payload, err := streaming.Encode(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	headers := telemetry.KafkaHeaders(ctx, string(msg.Type))
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     []byte(msg.Address),
		Value:   payload,
		Headers: headers,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("write %s: %w", topic, err)
	}
	return nil
}

func (p *Producer) topicFor(t streaming.MessageType) (string, error) {
	switch t {
	case streaming.MessageTypeFindingReport:
		return FindingsTopic(p.prefix), nil
	case streaming.MessageTypeAutomatedLabel:
		return LabelsTopic(p.prefix), nil
	default:
		return "", fmt.Errorf("no topic for message type %q", t)
	}
}

func FindingsTopic(prefix string) string {
	return prefix + "-" + findingsSuffix
}

func LabelsTopic(prefix string) string {
	return prefix + "-" + labelsSuffix
}
