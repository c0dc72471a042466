package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/barberqueue/config"
	"github.com/Domenick1991/barberqueue/internal/cache"
	"github.com/Domenick1991/barberqueue/internal/domain"
	"github.com/Domenick1991/barberqueue/internal/email"
	"github.com/Domenick1991/barberqueue/internal/kafka"
	"github.com/Domenick1991/barberqueue/internal/logger"
	"github.com/Domenick1991/barberqueue/internal/rabbitmq"
	"github.com/Domenick1991/barberqueue/internal/repository"
	"github.com/Domenick1991/barberqueue/internal/service/booking"
	"github.com/Domenick1991/barberqueue/internal/service/notification"
	"github.com/Domenick1991/barberqueue/internal/service/queue"
	"github.com/Domenick1991/barberqueue/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	log.Info("worker shut down")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	loc, err := cfg.Queue.Location()
	if err != nil {
		return err
	}

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer pool.Close()

	redisCache := cache.NewRedisCache(cfg.Redis, cfg.Queue.CacheTTL)
	defer redisCache.Close()

	producer := kafka.NewProducer(cfg.Kafka.Brokers, log)
	defer producer.Close()
	if err := producer.CheckConnection(ctx); err != nil {
		log.Warn("kafka is not reachable yet", slog.Any("error", err))
	}

	bookingRepo := repository.NewBookingRepository(pool)
	bookingService := booking.NewBookingService(
		bookingRepo,
		redisCache,
		producer,
		cfg.Kafka.BookingChangesTopic,
		booking.WithLocation(loc),
		booking.WithLogger(log),
	)

	publisher, topic, closePublisher, err := notificationPublisher(cfg, producer)
	if err != nil {
		return err
	}
	defer closePublisher.Close()

	sink := notification.NewSink(
		bookingRepo,
		repository.NewNotificationRepository(pool),
		publisher,
		topic,
		notification.WithQueueCache(redisCache),
		notification.WithLogger(log),
	)

	monitor := queue.NewMonitor(sink,
		queue.WithDetectorOptions(
			queue.WithLocation(loc),
			queue.WithCallTimeout(cfg.Queue.CallTimeout),
			queue.WithConcurrency(cfg.Queue.Concurrency),
		),
		queue.WithLocker(redisCache, cfg.Queue.LockTTL),
		queue.WithIdleTimeout(cfg.Queue.IdleTimeout),
		queue.WithMonitorLogger(log),
	)
	defer monitor.Close()

	feed := worker.NewFeed(bookingService, monitor, log)
	sender := email.NewSender(log)

	changes := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.BookingChangesTopic, log)
	defer changes.Close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return changes.Consume(ctx, kafka.JSONHandler(log, feed.HandleChange))
	})

	g.Go(func() error {
		return feed.RunResync(ctx, cfg.Worker.ResyncInterval)
	})

	g.Go(func() error {
		return consumeNotifications(ctx, cfg, log, sender)
	})

	log.Info("worker started",
		slog.String("booking_changes_topic", cfg.Kafka.BookingChangesTopic),
		slog.String("notifications_transport", cfg.Notifications.Transport))
	return g.Wait()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// notificationPublisher picks the broker notification events go to.
func notificationPublisher(cfg *config.Config, producer *kafka.Producer) (notification.Publisher, string, io.Closer, error) {
	if cfg.Notifications.Transport == config.TransportRabbitMQ {
		p, err := rabbitmq.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			return nil, "", nil, err
		}
		return p, rabbitmq.NotificationRoutingKey, p, nil
	}
	return producer, cfg.Kafka.NotificationsTopic, nopCloser{}, nil
}

func consumeNotifications(ctx context.Context, cfg *config.Config, log *slog.Logger, sender *email.Sender) error {
	deliver := func(ctx context.Context, e domain.NotificationEvent) error {
		if err := sender.Send(ctx, e); err != nil {
			log.Warn("notification delivery failed", slog.String("notification_id", e.NotificationID), slog.Any("error", err))
		}
		return nil
	}

	if cfg.Notifications.Transport == config.TransportRabbitMQ {
		consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.Queue,
			[]string{rabbitmq.NotificationRoutingKey})
		if err != nil {
			return err
		}
		defer consumer.Close()
		return rabbitmq.Consume(ctx, consumer, log, deliver)
	}

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.DeliveryGroupID, cfg.Kafka.NotificationsTopic, log)
	defer consumer.Close()
	return consumer.Consume(ctx, kafka.JSONHandler(log, deliver))
}
