package booking

import (
	"context"
	"log/slog"
	"time"

	"github.com/Domenick1991/barberqueue/internal/domain"
	"github.com/Domenick1991/barberqueue/internal/pkg/clock"
	"github.com/Domenick1991/barberqueue/internal/pkg/errs"
	"github.com/Domenick1991/barberqueue/internal/repository"
	"github.com/Domenick1991/barberqueue/internal/service/queue"
	"github.com/google/uuid"
)

var (
	ErrInvalidInput      = errs.New("invalid booking input")
	ErrInvalidTransition = errs.New("booking status cannot change")
)

type BookingUseCase interface {
	CreateBooking(ctx context.Context, input CreateBookingInput) (*domain.Booking, error)
	UpdateStatus(ctx context.Context, id string, status domain.BookingStatus) (*domain.Booking, error)
	GetQueue(ctx context.Context, barbershopID, day string) (*domain.QueueView, error)
	ListNotifications(ctx context.Context, bookingID string) ([]domain.Notification, error)
}

// NotificationHistory reads the notifications already sent for a booking.
type NotificationHistory interface {
	ListByBooking(ctx context.Context, bookingID string) ([]domain.Notification, error)
}

// SnapshotSource feeds the queue monitor.
type SnapshotSource interface {
	Snapshot(ctx context.Context, barbershopID string) ([]domain.Booking, error)
	ActiveBarbershops(ctx context.Context) ([]string, error)
}

type Cache interface {
	GetQueue(ctx context.Context, barbershopID, day string) (*domain.QueueView, error)
	SetQueue(ctx context.Context, view *domain.QueueView) error
	InvalidateQueue(ctx context.Context, barbershopID, day string) error
}

type Producer interface {
	PublishWithRetry(ctx context.Context, topic, key string, payload any, maxRetries int) error
}

const publishRetries = 3

type BookingService struct {
	bookings     repository.BookingRepository
	cache        Cache
	producer     Producer
	bookingTopic string
	history      NotificationHistory
	clock        clock.Clock
	loc          *time.Location
	logger       *slog.Logger
}

type CreateBookingInput struct {
	BarbershopID string               `json:"barbershop_id"`
	ClientID     string               `json:"client_id"`
	Date         string               `json:"date"`
	Time         string               `json:"time"`
	IsEmergency  bool                 `json:"is_emergency"`
	Status       domain.BookingStatus `json:"status"`
}

type BookingServiceOption func(*BookingService)

func WithClock(c clock.Clock) BookingServiceOption {
	return func(s *BookingService) { s.clock = c }
}

// WithLocation sets the zone that decides which day is today.
func WithLocation(loc *time.Location) BookingServiceOption {
	return func(s *BookingService) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithNotificationHistory(history NotificationHistory) BookingServiceOption {
	return func(s *BookingService) { s.history = history }
}

func WithLogger(logger *slog.Logger) BookingServiceOption {
	return func(s *BookingService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewBookingService(
	bookings repository.BookingRepository,
	cache Cache,
	producer Producer,
	bookingTopic string,
	opts ...BookingServiceOption,
) *BookingService {
	service := &BookingService{
		bookings:     bookings,
		cache:        cache,
		producer:     producer,
		bookingTopic: bookingTopic,
		clock:        clock.NewRealClock(),
		loc:          time.Local,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (s *BookingService) Today() string {
	return s.clock.Now().In(s.loc).Format(queue.DateLayout)
}

func (s *BookingService) CreateBooking(ctx context.Context, input CreateBookingInput) (*domain.Booking, error) {
	if input.Date == "" {
		input.Date = s.Today()
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	status := input.Status
	if status == "" {
		status = domain.BookingStatusPending
	}

	booking := &domain.Booking{
		ID:           uuid.NewString(),
		BarbershopID: input.BarbershopID,
		ClientID:     input.ClientID,
		Date:         input.Date,
		Time:         input.Time,
		IsEmergency:  input.IsEmergency,
		Status:       status,
	}
	if err := s.bookings.Create(ctx, booking); err != nil {
		return nil, errs.Wrap(err, "create booking")
	}

	s.changed(ctx, domain.BookingEventCreated, booking)
	return booking, nil
}

// UpdateStatus moves a booking to a new status. Terminal bookings only accept
// their current status again.
func (s *BookingService) UpdateStatus(ctx context.Context, id string, status domain.BookingStatus) (*domain.Booking, error) {
	if !status.IsValid() {
		return nil, errs.Mark(errs.Newf("unknown status %q", status), ErrInvalidInput)
	}

	current, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == status {
		return current, nil
	}
	if current.Status.IsTerminal() {
		return nil, errs.Mark(errs.Newf("booking %s is already %s", id, current.Status), ErrInvalidTransition)
	}

	updated, err := s.bookings.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}

	s.changed(ctx, domain.BookingEventStatusChanged, updated)
	return updated, nil
}

// GetQueue returns the ranked active queue of a barbershop for a day
// (today when day is empty) together with its statistics.
func (s *BookingService) GetQueue(ctx context.Context, barbershopID, day string) (*domain.QueueView, error) {
	if barbershopID == "" {
		return nil, errs.Mark(errs.New("barbershop id is required"), ErrInvalidInput)
	}
	if day == "" {
		day = s.Today()
	} else if _, err := time.Parse(queue.DateLayout, day); err != nil {
		return nil, errs.Mark(errs.Newf("date %q is not YYYY-MM-DD", day), ErrInvalidInput)
	}

	if s.cache != nil {
		view, err := s.cache.GetQueue(ctx, barbershopID, day)
		if err != nil {
			s.logger.Warn("queue cache read failed", slog.String("barbershop_id", barbershopID), slog.Any("error", err))
		} else if view != nil {
			return view, nil
		}
	}

	snapshot, err := s.bookings.ListSnapshot(ctx, barbershopID, day)
	if err != nil {
		return nil, err
	}
	ranked := queue.Queue(snapshot, day)
	view := &domain.QueueView{
		BarbershopID: barbershopID,
		Date:         day,
		Bookings:     ranked,
		Stats:        queue.Stats(ranked),
	}

	if s.cache != nil {
		if err := s.cache.SetQueue(ctx, view); err != nil {
			s.logger.Warn("queue cache write failed", slog.String("barbershop_id", barbershopID), slog.Any("error", err))
		}
	}
	return view, nil
}

// ListNotifications returns the notifications sent for a booking, oldest first.
func (s *BookingService) ListNotifications(ctx context.Context, bookingID string) ([]domain.Notification, error) {
	if _, err := s.bookings.GetByID(ctx, bookingID); err != nil {
		return nil, err
	}
	if s.history == nil {
		return []domain.Notification{}, nil
	}
	list, err := s.history.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []domain.Notification{}
	}
	return list, nil
}

func (s *BookingService) Snapshot(ctx context.Context, barbershopID string) ([]domain.Booking, error) {
	return s.bookings.ListSnapshot(ctx, barbershopID, s.Today())
}

func (s *BookingService) ActiveBarbershops(ctx context.Context) ([]string, error) {
	return s.bookings.ListBarbershopsWithActiveBookings(ctx, s.Today())
}

// changed invalidates the cached queue and announces the change. Failures are
// logged only; the worker resync picks up anything missed.
func (s *BookingService) changed(ctx context.Context, eventType string, booking *domain.Booking) {
	if s.cache != nil {
		if err := s.cache.InvalidateQueue(ctx, booking.BarbershopID, booking.Date); err != nil {
			s.logger.Warn("queue cache invalidation failed",
				slog.String("barbershop_id", booking.BarbershopID), slog.Any("error", err))
		}
	}

	if s.producer == nil || s.bookingTopic == "" {
		return
	}
	event := domain.BookingChangedEvent{
		EventID:      uuid.NewString(),
		Type:         eventType,
		BarbershopID: booking.BarbershopID,
		BookingID:    booking.ID,
		Date:         booking.Date,
		Status:       string(booking.Status),
		OccurredAt:   s.clock.Now(),
	}
	if err := s.producer.PublishWithRetry(ctx, s.bookingTopic, booking.BarbershopID, event, publishRetries); err != nil {
		s.logger.Warn("failed to publish booking change",
			slog.String("type", eventType),
			slog.String("booking_id", booking.ID),
			slog.Any("error", err))
	}
}

func validateInput(input CreateBookingInput) error {
	switch {
	case input.BarbershopID == "":
		return errs.Mark(errs.New("barbershop id is required"), ErrInvalidInput)
	case input.ClientID == "":
		return errs.Mark(errs.New("client id is required"), ErrInvalidInput)
	}
	if _, err := time.Parse(queue.DateLayout, input.Date); err != nil {
		return errs.Mark(errs.Newf("date %q is not YYYY-MM-DD", input.Date), ErrInvalidInput)
	}
	if _, err := queue.ParseStartMinutes(input.Time); err != nil {
		return errs.Mark(err, ErrInvalidInput)
	}
	switch input.Status {
	case "", domain.BookingStatusPending, domain.BookingStatusConfirmed:
	default:
		return errs.Mark(errs.Newf("a new booking cannot be %s", input.Status), ErrInvalidInput)
	}
	return nil
}

var (
	_ BookingUseCase = (*BookingService)(nil)
	_ SnapshotSource = (*BookingService)(nil)
)
