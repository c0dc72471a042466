package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Domenick1991/barberqueue/internal/domain"
	"github.com/Domenick1991/barberqueue/internal/pkg/clock"
	"github.com/Domenick1991/barberqueue/internal/pkg/errs"
	"github.com/Domenick1991/barberqueue/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockBookingRepository struct {
	mock.Mock
}

func (m *MockBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	args := m.Called(ctx, booking)
	return args.Error(0)
}

func (m *MockBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) UpdateStatus(ctx context.Context, id string, status domain.BookingStatus) (*domain.Booking, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) UpdateNotificationStatus(ctx context.Context, id string, state domain.NotificationStatus) (*domain.Booking, error) {
	args := m.Called(ctx, id, state)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) ListSnapshot(ctx context.Context, barbershopID, day string) ([]domain.Booking, error) {
	args := m.Called(ctx, barbershopID, day)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) ListBarbershopsWithActiveBookings(ctx context.Context, day string) ([]string, error) {
	args := m.Called(ctx, day)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) GetQueue(ctx context.Context, barbershopID, day string) (*domain.QueueView, error) {
	args := m.Called(ctx, barbershopID, day)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.QueueView), args.Error(1)
}

func (m *MockCache) SetQueue(ctx context.Context, view *domain.QueueView) error {
	args := m.Called(ctx, view)
	return args.Error(0)
}

func (m *MockCache) InvalidateQueue(ctx context.Context, barbershopID, day string) error {
	args := m.Called(ctx, barbershopID, day)
	return args.Error(0)
}

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) PublishWithRetry(ctx context.Context, topic, key string, payload any, maxRetries int) error {
	args := m.Called(ctx, topic, key, payload, maxRetries)
	return args.Error(0)
}

type MockNotificationHistory struct {
	mock.Mock
}

func (m *MockNotificationHistory) ListByBooking(ctx context.Context, bookingID string) ([]domain.Notification, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Notification), args.Error(1)
}

var now = time.Date(2024, 1, 1, 23, 30, 0, 0, time.UTC)

func newTestService() (*BookingService, *MockBookingRepository, *MockCache, *MockProducer) {
	repo := &MockBookingRepository{}
	cache := &MockCache{}
	producer := &MockProducer{}
	// 23:30 UTC is already the next day in Moscow.
	moscow := time.FixedZone("MSK", 3*60*60)
	service := NewBookingService(repo, cache, producer, "booking_changes",
		WithClock(clock.NewMockClock(now)),
		WithLocation(moscow),
	)
	return service, repo, cache, producer
}

func changeEvent(eventType, bookingID string) any {
	return mock.MatchedBy(func(e domain.BookingChangedEvent) bool {
		return e.Type == eventType && e.BookingID == bookingID && e.EventID != "" && e.OccurredAt.Equal(now)
	})
}

func TestBookingService_CreateBooking(t *testing.T) {
	service, repo, cache, producer := newTestService()
	ctx := context.Background()

	input := CreateBookingInput{
		BarbershopID: "shop-1",
		ClientID:     "c1",
		Time:         "09:00",
		IsEmergency:  true,
	}

	repo.On("Create", ctx, mock.MatchedBy(func(b *domain.Booking) bool {
		return b.ID != "" && b.Date == "2024-01-02" && b.Status == domain.BookingStatusPending && b.IsEmergency
	})).Return(nil).Once()
	cache.On("InvalidateQueue", ctx, "shop-1", "2024-01-02").Return(nil).Once()
	producer.On("PublishWithRetry", ctx, "booking_changes", "shop-1", mock.Anything, publishRetries).Return(nil).Once()

	booking, err := service.CreateBooking(ctx, input)

	require.NoError(t, err)
	assert.Equal(t, "shop-1", booking.BarbershopID)
	assert.Equal(t, "2024-01-02", booking.Date)
	repo.AssertExpectations(t)
	cache.AssertExpectations(t)
	producer.AssertCalled(t, "PublishWithRetry", ctx, "booking_changes", "shop-1", changeEvent(domain.BookingEventCreated, booking.ID), publishRetries)
}

func TestBookingService_CreateBookingValidation(t *testing.T) {
	testCases := []struct {
		name  string
		input CreateBookingInput
	}{
		{name: "no barbershop", input: CreateBookingInput{ClientID: "c1", Date: "2024-01-01", Time: "09:00"}},
		{name: "no client", input: CreateBookingInput{BarbershopID: "s", Date: "2024-01-01", Time: "09:00"}},
		{name: "bad date", input: CreateBookingInput{BarbershopID: "s", ClientID: "c1", Date: "01/01/2024", Time: "09:00"}},
		{name: "bad time", input: CreateBookingInput{BarbershopID: "s", ClientID: "c1", Date: "2024-01-01", Time: "9am"}},
		{name: "terminal status", input: CreateBookingInput{BarbershopID: "s", ClientID: "c1", Date: "2024-01-01", Time: "09:00", Status: domain.BookingStatusCompleted}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			service, repo, _, _ := newTestService()

			_, err := service.CreateBooking(context.Background(), tc.input)

			require.Error(t, err)
			assert.True(t, errs.Is(err, ErrInvalidInput))
			repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestBookingService_CreateBookingSurvivesSideEffectFailures(t *testing.T) {
	service, repo, cache, producer := newTestService()
	ctx := context.Background()

	repo.On("Create", ctx, mock.Anything).Return(nil).Once()
	cache.On("InvalidateQueue", ctx, "shop-1", "2024-01-05").Return(errors.New("redis down")).Once()
	producer.On("PublishWithRetry", ctx, "booking_changes", "shop-1", mock.Anything, publishRetries).Return(errors.New("kafka down")).Once()

	booking, err := service.CreateBooking(ctx, CreateBookingInput{
		BarbershopID: "shop-1", ClientID: "c1", Date: "2024-01-05", Time: "10:00-10:30",
		Status: domain.BookingStatusConfirmed,
	})

	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, booking.Status)
}

func TestBookingService_CreateBookingRepositoryError(t *testing.T) {
	service, repo, _, producer := newTestService()
	ctx := context.Background()
	repo.On("Create", ctx, mock.Anything).Return(errors.New("db down")).Once()

	_, err := service.CreateBooking(ctx, CreateBookingInput{BarbershopID: "s", ClientID: "c", Date: "2024-01-01", Time: "09:00"})

	assert.Error(t, err)
	producer.AssertNotCalled(t, "PublishWithRetry", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBookingService_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	current := &domain.Booking{ID: "b1", BarbershopID: "shop-1", Date: "2024-01-02", Status: domain.BookingStatusConfirmed}

	t.Run("moves to in-progress", func(t *testing.T) {
		service, repo, cache, producer := newTestService()
		updated := *current
		updated.Status = domain.BookingStatusInProgress

		repo.On("GetByID", ctx, "b1").Return(current, nil).Once()
		repo.On("UpdateStatus", ctx, "b1", domain.BookingStatusInProgress).Return(&updated, nil).Once()
		cache.On("InvalidateQueue", ctx, "shop-1", "2024-01-02").Return(nil).Once()
		producer.On("PublishWithRetry", ctx, "booking_changes", "shop-1", changeEvent(domain.BookingEventStatusChanged, "b1"), publishRetries).Return(nil).Once()

		got, err := service.UpdateStatus(ctx, "b1", domain.BookingStatusInProgress)

		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusInProgress, got.Status)
		repo.AssertExpectations(t)
		producer.AssertExpectations(t)
	})

	t.Run("same status is a no-op", func(t *testing.T) {
		service, repo, _, producer := newTestService()
		repo.On("GetByID", ctx, "b1").Return(current, nil).Once()

		got, err := service.UpdateStatus(ctx, "b1", domain.BookingStatusConfirmed)

		require.NoError(t, err)
		assert.Equal(t, current, got)
		repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
		producer.AssertNotCalled(t, "PublishWithRetry", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("terminal booking is frozen", func(t *testing.T) {
		service, repo, _, _ := newTestService()
		done := &domain.Booking{ID: "b2", Status: domain.BookingStatusCompleted}
		repo.On("GetByID", ctx, "b2").Return(done, nil).Once()

		_, err := service.UpdateStatus(ctx, "b2", domain.BookingStatusInProgress)

		require.Error(t, err)
		assert.True(t, errs.Is(err, ErrInvalidTransition))
	})

	t.Run("unknown status", func(t *testing.T) {
		service, repo, _, _ := newTestService()

		_, err := service.UpdateStatus(ctx, "b1", domain.BookingStatus("paused"))

		require.Error(t, err)
		assert.True(t, errs.Is(err, ErrInvalidInput))
		repo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
	})

	t.Run("not found", func(t *testing.T) {
		service, repo, _, _ := newTestService()
		repo.On("GetByID", ctx, "missing").Return(nil, errs.Wrap(repository.ErrNotFound, "get booking missing")).Once()

		_, err := service.UpdateStatus(ctx, "missing", domain.BookingStatusCancelled)

		require.Error(t, err)
		assert.True(t, errs.Is(err, repository.ErrNotFound))
	})
}

func TestBookingService_GetQueue(t *testing.T) {
	ctx := context.Background()
	snapshot := []domain.Booking{
		{ID: "regular", BarbershopID: "shop-1", Date: "2024-01-02", Time: "09:00", Status: domain.BookingStatusConfirmed},
		{ID: "rush", BarbershopID: "shop-1", Date: "2024-01-02", Time: "09:00", IsEmergency: true, Status: domain.BookingStatusPending},
		{ID: "done", BarbershopID: "shop-1", Date: "2024-01-02", Time: "08:00", Status: domain.BookingStatusCompleted},
		{ID: "stale", BarbershopID: "shop-1", Date: "2024-01-01", Time: "08:00", Status: domain.BookingStatusConfirmed,
			NotificationStatus: domain.NotificationNextInQueue},
	}

	t.Run("cache miss ranks and stores", func(t *testing.T) {
		service, repo, cache, _ := newTestService()
		cache.On("GetQueue", ctx, "shop-1", "2024-01-02").Return(nil, nil).Once()
		repo.On("ListSnapshot", ctx, "shop-1", "2024-01-02").Return(snapshot, nil).Once()
		cache.On("SetQueue", ctx, mock.AnythingOfType("*domain.QueueView")).Return(nil).Once()

		view, err := service.GetQueue(ctx, "shop-1", "")

		require.NoError(t, err)
		assert.Equal(t, "2024-01-02", view.Date)
		require.Len(t, view.Bookings, 2)
		assert.Equal(t, "rush", view.Bookings[0].ID)
		assert.Equal(t, 1, view.Bookings[0].QueuePosition)
		assert.Equal(t, "regular", view.Bookings[1].ID)
		assert.Equal(t, domain.QueueStats{TotalBookings: 2, RushBookings: 1, RegularBookings: 1}, view.Stats)
		cache.AssertExpectations(t)
	})

	t.Run("cache hit", func(t *testing.T) {
		service, repo, cache, _ := newTestService()
		cached := &domain.QueueView{BarbershopID: "shop-1", Date: "2024-01-03"}
		cache.On("GetQueue", ctx, "shop-1", "2024-01-03").Return(cached, nil).Once()

		view, err := service.GetQueue(ctx, "shop-1", "2024-01-03")

		require.NoError(t, err)
		assert.Same(t, cached, view)
		repo.AssertNotCalled(t, "ListSnapshot", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("cache errors fall through", func(t *testing.T) {
		service, repo, cache, _ := newTestService()
		cache.On("GetQueue", ctx, "shop-1", "2024-01-02").Return(nil, errors.New("redis down")).Once()
		repo.On("ListSnapshot", ctx, "shop-1", "2024-01-02").Return(snapshot, nil).Once()
		cache.On("SetQueue", ctx, mock.Anything).Return(errors.New("redis down")).Once()

		view, err := service.GetQueue(ctx, "shop-1", "2024-01-02")

		require.NoError(t, err)
		assert.Len(t, view.Bookings, 2)
	})

	t.Run("repository error", func(t *testing.T) {
		service, repo, cache, _ := newTestService()
		cache.On("GetQueue", ctx, "shop-1", "2024-01-02").Return(nil, nil).Once()
		repo.On("ListSnapshot", ctx, "shop-1", "2024-01-02").Return(nil, errors.New("db down")).Once()

		_, err := service.GetQueue(ctx, "shop-1", "2024-01-02")
		assert.Error(t, err)
	})

	t.Run("bad date", func(t *testing.T) {
		service, _, _, _ := newTestService()
		_, err := service.GetQueue(ctx, "shop-1", "tomorrow")
		assert.True(t, errs.Is(err, ErrInvalidInput))
	})
}

func TestBookingService_SnapshotSource(t *testing.T) {
	service, repo, _, _ := newTestService()
	ctx := context.Background()
	repo.On("ListSnapshot", ctx, "shop-1", "2024-01-02").Return([]domain.Booking{{ID: "b1"}}, nil).Once()
	repo.On("ListBarbershopsWithActiveBookings", ctx, "2024-01-02").Return([]string{"shop-1", "shop-2"}, nil).Once()

	snapshot, err := service.Snapshot(ctx, "shop-1")
	require.NoError(t, err)
	assert.Len(t, snapshot, 1)

	shops, err := service.ActiveBarbershops(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"shop-1", "shop-2"}, shops)
}

func TestBookingService_ListNotifications(t *testing.T) {
	ctx := context.Background()
	sent := []domain.Notification{
		{ID: "n1", BookingID: "b1", Type: domain.NotificationNextInQueue},
		{ID: "n2", BookingID: "b1", Type: domain.NotificationCalledToService},
	}

	t.Run("history", func(t *testing.T) {
		repo := &MockBookingRepository{}
		history := &MockNotificationHistory{}
		service := NewBookingService(repo, nil, nil, "", WithNotificationHistory(history))
		repo.On("GetByID", ctx, "b1").Return(&domain.Booking{ID: "b1"}, nil).Once()
		history.On("ListByBooking", ctx, "b1").Return(sent, nil).Once()

		list, err := service.ListNotifications(ctx, "b1")

		require.NoError(t, err)
		assert.Equal(t, sent, list)
	})

	t.Run("nothing sent yet", func(t *testing.T) {
		repo := &MockBookingRepository{}
		history := &MockNotificationHistory{}
		service := NewBookingService(repo, nil, nil, "", WithNotificationHistory(history))
		repo.On("GetByID", ctx, "b1").Return(&domain.Booking{ID: "b1"}, nil).Once()
		history.On("ListByBooking", ctx, "b1").Return(nil, nil).Once()

		list, err := service.ListNotifications(ctx, "b1")

		require.NoError(t, err)
		assert.NotNil(t, list)
		assert.Empty(t, list)
	})

	t.Run("unknown booking", func(t *testing.T) {
		repo := &MockBookingRepository{}
		history := &MockNotificationHistory{}
		service := NewBookingService(repo, nil, nil, "", WithNotificationHistory(history))
		repo.On("GetByID", ctx, "missing").
			Return(nil, errs.Mark(errs.New("get booking missing"), repository.ErrNotFound)).Once()

		_, err := service.ListNotifications(ctx, "missing")

		assert.True(t, errs.Is(err, repository.ErrNotFound))
		history.AssertNotCalled(t, "ListByBooking", mock.Anything, mock.Anything)
	})
}
