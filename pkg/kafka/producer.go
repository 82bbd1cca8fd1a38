package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const schemaVersion = "1.0"

// messageWriter is the part of *kafka.Writer the producer uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// Producer handles Kafka event emission
type Producer struct {
	writer messageWriter
	logger ectologger.Logger
	topic  string
}

// OutgoingMessage is one event to publish. Value is marshalled to JSON.
type OutgoingMessage struct {
	Key     string
	Value   any
	Headers MessageHeaders
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return newProducer(writer, cfg.Topic, logger)
}

func newProducer(writer messageWriter, topic string, logger ectologger.Logger) *Producer {
	return &Producer{
		writer: writer,
		logger: logger,
		topic:  topic,
	}
}

// Topic returns the topic events are written to
func (p *Producer) Topic() string {
	return p.topic
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Publish writes the messages as one batch. The current trace is propagated
// through the traceparent header.
func (p *Producer) Publish(ctx context.Context, messages ...OutgoingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.Publish")
	defer span.End()

	if len(messages) == 0 {
		return nil
	}

	traceParent := tracing.GetTraceParent(ctx)
	out := make([]kafka.Message, len(messages))
	for i, m := range messages {
		data, err := json.Marshal(m.Value)
		if err != nil {
			return err
		}
		headers := m.Headers
		if headers.TraceParent == "" {
			headers.TraceParent = traceParent
		}
		out[i] = kafka.Message{
			Key:     []byte(m.Key),
			Value:   data,
			Headers: headers.ToKafkaHeaders(),
		}
	}

	if err := p.writer.WriteMessages(ctx, out...); err != nil {
		metrics.RecordKafkaPublish(p.topic, "error")
		p.logger.WithContext(ctx).WithError(err).WithField("batch_size", len(out)).Error("Failed to publish events")
		return err
	}

	metrics.RecordKafkaPublish(p.topic, "success")
	p.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":      p.topic,
		"batch_size": len(out),
	}).Debug("Published events")

	return nil
}
