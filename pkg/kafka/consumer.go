// Package kafka reads import batches from Kafka and writes resolution events to it
package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/clover/pkg/tracing"
)

// MessageHandler processes incoming Kafka messages
type MessageHandler func(ctx context.Context, msg *IncomingMessage) error

// messageReader is the part of *kafka.Reader the consumer uses
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerConfig holds Kafka consumer configuration
type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
	// MaxAttempts bounds handler attempts per message (0 = default of 5)
	MaxAttempts int
	// RetryBackoff is the first delay between attempts; it doubles up to maxRetryBackoff
	RetryBackoff time.Duration
}

const (
	defaultMaxAttempts  = 5
	defaultRetryBackoff = 500 * time.Millisecond
	maxRetryBackoff     = 30 * time.Second
)

// Consumer handles Kafka message consumption
type Consumer struct {
	reader       messageReader
	topic        string
	logger       ectologger.Logger
	handler      MessageHandler
	maxAttempts  int
	retryBackoff time.Duration
	wg           sync.WaitGroup
	cancel       context.CancelFunc
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg ConsumerConfig, logger ectologger.Logger, handler MessageHandler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	c := newConsumer(reader, cfg.Topic, logger, handler)
	if cfg.MaxAttempts > 0 {
		c.maxAttempts = cfg.MaxAttempts
	}
	if cfg.RetryBackoff > 0 {
		c.retryBackoff = cfg.RetryBackoff
	}
	return c
}

func newConsumer(reader messageReader, topic string, logger ectologger.Logger, handler MessageHandler) *Consumer {
	return &Consumer{
		reader:       reader,
		topic:        topic,
		logger:       logger,
		handler:      handler,
		maxAttempts:  defaultMaxAttempts,
		retryBackoff: defaultRetryBackoff,
	}
}

// Start begins consuming messages
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.consumeLoop(ctx)

	c.logger.WithContext(ctx).WithField("topic", c.topic).Info("Kafka consumer started")
	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return c.reader.Close()
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			c.logger.WithContext(ctx).Info("Consumer loop stopping")
			return
		default:
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
					return
				}
				c.logger.WithContext(ctx).WithError(err).Error("Failed to fetch message")
				continue
			}

			c.processMessage(ctx, msg)
		}
	}
}

// processMessage hands one message to the handler and commits it once handled.
// Unparseable messages are committed so they cannot block the partition.
// A failing handler is retried in place, so nothing after the message is
// fetched or committed meanwhile. After maxAttempts the message is committed
// and logged as skipped. A shutdown during retries leaves it uncommitted, so
// the group redelivers it on restart.
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) {
	headers := ExtractHeaders(msg.Headers)
	if headers.TraceParent != "" {
		ctx = tracing.ExtractTraceParent(ctx, headers.TraceParent, headers.TraceState)
	}

	ctx, span := tracing.StartSpan(ctx, "kafka.Consumer.processMessage")
	defer span.End()

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	incoming := &IncomingMessage{
		Key:       string(msg.Key),
		Value:     msg.Value,
		Headers:   headers,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		Topic:     msg.Topic,
	}

	if err := incoming.ParseImportBatch(); err != nil {
		log.WithError(err).Error("Failed to parse message")
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			log.WithError(err).Error("Failed to commit message")
		}
		return
	}

	if err := c.handle(ctx, incoming); err != nil {
		if ctx.Err() != nil {
			log.WithError(err).Warn("Stopped while retrying message (not committing)")
			return
		}
		log.WithError(err).WithField("attempts", c.maxAttempts).Error("Skipping message after repeated handler failures")
	}

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.WithError(err).Error("Failed to commit message")
	}
}

// handle runs the handler until it succeeds, attempts run out, or ctx is done
func (c *Consumer) handle(ctx context.Context, msg *IncomingMessage) error {
	backoff := c.retryBackoff
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err = c.handler(ctx, msg); err == nil {
			return nil
		}
		if attempt == c.maxAttempts {
			break
		}

		c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"attempt": attempt,
			"backoff": backoff.String(),
		}).Warn("Handler failed, retrying message")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
		backoff = min(backoff*2, maxRetryBackoff)
	}
	return err
}

// Health returns the consumer health status
func (c *Consumer) Health() bool {
	return c.reader != nil
}
