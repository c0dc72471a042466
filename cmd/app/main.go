package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/barberqueue/config"
	"github.com/Domenick1991/barberqueue/internal/bootstrap"
	"github.com/Domenick1991/barberqueue/internal/cache"
	"github.com/Domenick1991/barberqueue/internal/kafka"
	"github.com/Domenick1991/barberqueue/internal/logger"
	"github.com/Domenick1991/barberqueue/internal/repository"
	"github.com/Domenick1991/barberqueue/internal/service/booking"
	"github.com/jackc/pgx/v5/pgxpool"
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
		log.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}
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

	bookingService := booking.NewBookingService(
		repository.NewBookingRepository(pool),
		redisCache,
		producer,
		cfg.Kafka.BookingChangesTopic,
		booking.WithNotificationHistory(repository.NewNotificationRepository(pool)),
		booking.WithLocation(loc),
		booking.WithLogger(log),
	)

	return bootstrap.Run(ctx, cfg, log, bookingService,
		bootstrap.ReadinessCheck{Name: "postgres", Check: pool.Ping},
		bootstrap.ReadinessCheck{Name: "redis", Check: redisCache.Ping},
		bootstrap.ReadinessCheck{Name: "kafka", Check: producer.CheckConnection},
	)
}
