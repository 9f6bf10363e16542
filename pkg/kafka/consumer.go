// Package kafka moves analyzer events over Kafka with segmentio/kafka-go.
// Producers JSON-encode Event values; consumers hand raw message bytes to a
// MessageHandler and commit only once the handler has finished with them.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/resilience"
	"github.com/segmentio/kafka-go"
)

// RequestIDHeader carries the originating request ID across topics.
const RequestIDHeader = "request_id"

// MessageHandler processes one message value. A returned error is retried
// a bounded number of times before the message is skipped.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// messageReader is the part of kafka.Reader the consumer drives.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads one topic as part of a consumer group.
type Consumer struct {
	reader  messageReader
	handler MessageHandler
	retry   resilience.Policy
	logger  *slog.Logger
}

// NewConsumer joins cfg.ConsumerGroup on topic. New groups start from the
// newest offset so a fresh deployment does not replay history.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       1,
		MaxBytes:       10 << 20,
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.LastOffset,
		CommitInterval: 0,
	})
	return newConsumer(r, topic, handler)
}

func newConsumer(r messageReader, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader:  r,
		handler: handler,
		retry: resilience.Policy{
			Attempts:  3,
			BaseDelay: 200 * time.Millisecond,
			MaxDelay:  2 * time.Second,
		},
		logger: slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
}

// Start consumes until ctx is cancelled, then closes the reader. A message
// is committed after its handler succeeds or after the retries are spent,
// so one bad document cannot stall its partition.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.logger.Info("consumer stopped")

	fetchBackoff := resilience.Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: 5 * time.Second}
	failures := 0
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return c.reader.Close()
			}
			failures++
			wait := fetchBackoff.Backoff(failures)
			c.logger.Error("fetch failed", "error", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				return c.reader.Close()
			case <-time.After(wait):
			}
			continue
		}
		failures = 0

		c.process(ctx, msg)
		if ctx.Err() != nil {
			return c.reader.Close()
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("commit failed", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	if id := headerValue(msg.Headers, RequestIDHeader); id != "" {
		ctx = logger.WithRequestID(ctx, id)
	}
	log := logger.FromContext(ctx).With("partition", msg.Partition, "offset", msg.Offset)
	log.Debug("message received", "key", string(msg.Key), "bytes", len(msg.Value))

	err := resilience.Retry(ctx, "handle message", c.retry, func(ctx context.Context) error {
		return c.handler(ctx, msg.Key, msg.Value)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("skipping message after failed handling", "key", string(msg.Key), "error", err)
	}
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var v T
	if err := json.Unmarshal(value, &v); err != nil {
		return v, fmt.Errorf("decoding kafka message: %w", err)
	}
	return v, nil
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
