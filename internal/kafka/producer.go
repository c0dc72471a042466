package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Domenick1991/barberqueue/internal/pkg/errs"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	brokers []string
	writer  messageWriter
	logger  *slog.Logger
}

func NewProducer(brokers []string, logger *slog.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	return newProducer(brokers, writer, logger)
}

func newProducer(brokers []string, writer messageWriter, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{brokers: brokers, writer: writer, logger: logger}
}

// Publish writes payload as JSON. Messages with the same key land on the same
// partition, which keeps one barbershop's events in order.
func (p *Producer) Publish(ctx context.Context, topic, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errs.Wrap(err, "failed to marshal payload")
	}

	message := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, message); err != nil {
		return errs.Wrapf(err, "failed to write message to %s", topic)
	}

	p.logger.Debug("published to kafka", slog.String("topic", topic), slog.String("key", key))
	return nil
}

func (p *Producer) PublishWithRetry(ctx context.Context, topic, key string, payload any, maxRetries int) error {
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		err := p.Publish(ctx, topic, key, payload)
		if err == nil {
			return nil
		}
		lastErr = err
		p.logger.Warn("kafka publish attempt failed",
			slog.String("topic", topic), slog.Int("attempt", i+1), slog.Any("error", err))

		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return errs.Wrap(ctx.Err(), "publish cancelled")
			case <-time.After(time.Duration(i+1) * 500 * time.Millisecond):
			}
		}
	}
	return errs.Wrapf(lastErr, "failed after %d retries", maxRetries)
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

func (p *Producer) CheckConnection(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return errs.New("no kafka brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", p.brokers[0])
	if err != nil {
		return errs.Wrap(err, "failed to connect to Kafka")
	}
	defer conn.Close()

	if _, err := conn.ReadPartitions(); err != nil {
		return errs.Wrap(err, "failed to read partitions")
	}
	return nil
}
