package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Domenick1991/barberqueue/internal/pkg/errs"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Consumer struct {
	reader messageReader
	logger *slog.Logger
}

func NewConsumer(brokers []string, groupID, topic string, logger *slog.Logger) *Consumer {
	return newConsumer(kafka.NewReader(kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		Topic:             topic,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	}), logger)
}

func newConsumer(reader messageReader, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{reader: reader, logger: logger}
}

func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// Consume reads until ctx is cancelled or the reader fails. A handler error
// stops consumption.
func (c *Consumer) Consume(ctx context.Context, handler func(context.Context, kafka.Message) error) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errs.Wrap(err, "read kafka message")
		}

		if err := handler(ctx, msg); err != nil {
			return errs.Wrapf(err, "handle message at %s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
		}
	}
}

// JSONHandler decodes each message into T before calling fn. Messages that do
// not decode are logged and skipped.
func JSONHandler[T any](logger *slog.Logger, fn func(context.Context, T) error) func(context.Context, kafka.Message) error {
	return func(ctx context.Context, msg kafka.Message) error {
		var v T
		if err := json.Unmarshal(msg.Value, &v); err != nil {
			logger.Warn("skipping undecodable message",
				slog.String("topic", msg.Topic),
				slog.Int64("offset", msg.Offset),
				slog.Any("error", err))
			return nil
		}
		return fn(ctx, v)
	}
}
