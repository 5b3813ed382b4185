package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxHandlerRetries = 3
	tracerName        = "github.com/baker-beach/market-index/pkg/kafka"
)

// Handler processes one decoded event.
type Handler func(ctx context.Context, event *Event) error

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers  []string
	GroupID  string
	Topic    string
	MinBytes int
	MaxBytes int
}

// Consumer reads one topic as part of a consumer group. Each message is
// handled with retries. A message that keeps failing is forwarded to the
// dead-letter topic, when one is configured, and committed so the partition
// moves on.
type Consumer struct {
	reader    MessageReader
	topic     string
	group     string
	logger    *slog.Logger
	handler   Handler
	dlq       *DLQProducer
	backoff   time.Duration
	closeOnce sync.Once
}

// NewConsumer creates a consumer for cfg.Topic in cfg.GroupID.
func NewConsumer(cfg ConsumerConfig, handler Handler, logger *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})
	return NewConsumerWithReader(r, cfg.Topic, cfg.GroupID, handler, logger)
}

// NewConsumerWithReader creates a consumer on top of an existing reader.
func NewConsumerWithReader(r MessageReader, topic, group string, handler Handler, logger *slog.Logger) *Consumer {
	return &Consumer{
		reader:  r,
		topic:   topic,
		group:   group,
		logger:  logger.With(slog.String("topic", topic), slog.String("group", group)),
		handler: handler,
		backoff: 100 * time.Millisecond,
	}
}

// WithDLQ forwards poison messages to d instead of dropping them.
func (c *Consumer) WithDLQ(d *DLQProducer) *Consumer {
	c.dlq = d
	return c
}

// Topic returns the consumed topic.
func (c *Consumer) Topic() string { return c.topic }

// Start consumes until ctx is canceled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping")
				return c.Close()
			}
			c.logger.Error("failed to fetch message", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return c.Close()
			case <-time.After(c.backoff):
			}
			continue
		}
		ConsumerMessagesReceived.WithLabelValues(c.topic, c.group).Inc()

		if !c.process(ctx, msg) {
			c.logger.Info("consumer stopping")
			return c.Close()
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to commit message",
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()),
			)
		}
	}
}

// process reports false when ctx was canceled before the message was settled.
// The message must then stay uncommitted.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	start := time.Now()
	defer func() {
		ConsumerProcessingDuration.WithLabelValues(c.topic, c.group).Observe(time.Since(start).Seconds())
	}()

	headers := msg.Headers
	ctx = otel.GetTextMapPropagator().Extract(ctx, NewHeaderCarrier(&headers))
	ctx, span := otel.Tracer(tracerName).Start(ctx, "consume "+c.topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", c.topic),
			attribute.Int("messaging.kafka.partition", msg.Partition),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
		),
	)
	defer span.End()

	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to unmarshal event",
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
		c.fail(ctx, span, msg, err)
		return true
	}

	var lastErr error
	for attempt := 1; attempt <= maxHandlerRetries; attempt++ {
		if lastErr = c.handler(ctx, event); lastErr == nil {
			ConsumerMessagesProcessed.WithLabelValues(c.topic, c.group).Inc()
			return true
		}
		c.logger.WarnContext(ctx, "handler failed, will retry",
			slog.String("event_type", event.EventType),
			slog.String("aggregate_id", event.AggregateID),
			slog.Int64("offset", msg.Offset),
			slog.Int("attempt", attempt),
			slog.String("error", lastErr.Error()),
		)
		if attempt < maxHandlerRetries {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(time.Duration(attempt) * c.backoff):
			}
		}
	}

	c.logger.ErrorContext(ctx, "handler failed after all retries, skipping message",
		slog.String("event_type", event.EventType),
		slog.String("aggregate_id", event.AggregateID),
		slog.Int64("offset", msg.Offset),
		slog.String("error", lastErr.Error()),
	)
	c.fail(ctx, span, msg, lastErr)
	return true
}

func (c *Consumer) fail(ctx context.Context, span trace.Span, msg kafka.Message, err error) {
	ConsumerMessagesFailed.WithLabelValues(c.topic, c.group).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if c.dlq == nil {
		return
	}
	if dlqErr := c.dlq.Publish(ctx, msg, err, c.group); dlqErr != nil {
		c.logger.ErrorContext(ctx, "failed to publish message to DLQ", slog.String("error", dlqErr.Error()))
	}
}

// Close closes the reader. It is safe to call multiple times.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.reader.Close()
	})
	return err
}
