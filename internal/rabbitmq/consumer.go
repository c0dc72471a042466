package rabbitmq

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Domenick1991/barberqueue/internal/pkg/errs"
	amqp "github.com/rabbitmq/amqp091-go"
)

type Consumer struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	queue    string
	keys     []string
}

func NewConsumer(url, exchange, queue string, keys []string) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errs.Wrap(err, "dial rabbitmq")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errs.Wrap(err, "open channel")
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errs.Wrap(err, "declare exchange")
	}
	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errs.Wrap(err, "declare queue")
	}
	for _, rk := range keys {
		if err := ch.QueueBind(q.Name, rk, exchange, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, errs.Wrapf(err, "bind %s", rk)
		}
	}
	return &Consumer{conn: conn, ch: ch, exchange: exchange, queue: q.Name, keys: keys}, nil
}

func (c *Consumer) Deliveries(ctx context.Context) (<-chan amqp.Delivery, error) {
	return c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
}

// Consume hands every delivery to fn until ctx is done. Deliveries are acked
// on success, dropped when they do not decode and requeued when fn fails.
func Consume[T any](ctx context.Context, c *Consumer, logger *slog.Logger, fn func(context.Context, T) error) error {
	deliveries, err := c.Deliveries(ctx)
	if err != nil {
		return errs.Wrap(err, "start consuming")
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errs.New("delivery channel closed")
			}
			settle(ctx, d, d.Body, logger, fn)
		}
	}
}

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func settle[T any](ctx context.Context, ack acknowledger, body []byte, logger *slog.Logger, fn func(context.Context, T) error) {
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		logger.Warn("dropping undecodable delivery", slog.Any("error", err))
		_ = ack.Nack(false, false)
		return
	}
	if err := fn(ctx, v); err != nil {
		logger.Error("delivery handler failed, requeueing", slog.Any("error", err))
		_ = ack.Nack(false, true)
		return
	}
	_ = ack.Ack(false)
}

func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
