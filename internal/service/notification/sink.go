package notification

import (
	"context"
	"log/slog"

	"github.com/Domenick1991/barberqueue/internal/domain"
	"github.com/Domenick1991/barberqueue/internal/pkg/errs"
	"github.com/Domenick1991/barberqueue/internal/repository"
	"github.com/Domenick1991/barberqueue/internal/service/queue"
	"github.com/google/uuid"
)

type BookingStateWriter interface {
	UpdateNotificationStatus(ctx context.Context, id string, state domain.NotificationStatus) (*domain.Booking, error)
}

// QueueInvalidator drops cached queue views that a write-back made stale.
type QueueInvalidator interface {
	InvalidateQueue(ctx context.Context, barbershopID, day string) error
}

type NotificationStore interface {
	Create(ctx context.Context, n *domain.Notification) error
}

type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload any) error
}

type Option func(*Sink)

func WithQueueCache(cache QueueInvalidator) Option {
	return func(s *Sink) { s.cache = cache }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Sink persists notification state on bookings, stores client notifications
// and hands them to the delivery transport.
type Sink struct {
	bookings  BookingStateWriter
	store     NotificationStore
	publisher Publisher
	topic     string
	cache     QueueInvalidator
	logger    *slog.Logger
}

func NewSink(bookings BookingStateWriter, store NotificationStore, publisher Publisher, topic string, opts ...Option) *Sink {
	s := &Sink{
		bookings:  bookings,
		store:     store,
		publisher: publisher,
		topic:     topic,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordNotificationState is a no-op for bookings that no longer exist.
func (s *Sink) RecordNotificationState(ctx context.Context, bookingID string, state domain.NotificationStatus) error {
	b, err := s.bookings.UpdateNotificationStatus(ctx, bookingID, state)
	if errs.Is(err, repository.ErrNotFound) {
		s.logger.Debug("booking vanished before notification write-back", slog.String("booking_id", bookingID))
		return nil
	}
	if err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.InvalidateQueue(ctx, b.BarbershopID, b.Date); err != nil {
			s.logger.Warn("queue cache invalidation failed",
				slog.String("barbershop_id", b.BarbershopID),
				slog.String("booking_id", bookingID),
				slog.Any("error", err))
		}
	}
	return nil
}

func (s *Sink) EmitNotification(ctx context.Context, n domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if err := s.store.Create(ctx, &n); err != nil {
		return errs.Wrap(err, "store notification")
	}
	if err := s.publisher.Publish(ctx, s.topic, n.ID, domain.NewNotificationEvent(n)); err != nil {
		return errs.Wrap(err, "publish notification")
	}
	return nil
}

var _ queue.Sink = (*Sink)(nil)
