package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Domenick1991/barberqueue/internal/domain"
	"github.com/Domenick1991/barberqueue/internal/pkg/clock"
	"github.com/Domenick1991/barberqueue/internal/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMonitor(sink Sink, results chan Result, opts ...MonitorOption) *Monitor {
	base := []MonitorOption{
		WithDetectorOptions(
			WithClock(clock.NewMockClock(time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC))),
			WithLocation(time.UTC),
		),
		WithResultHook(func(r Result) { results <- r }),
	}
	return NewMonitor(sink, append(base, opts...)...)
}

func waitResult(t *testing.T, results <-chan Result) Result {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for evaluation")
		return Result{}
	}
}

func TestMonitor_DeliverEvaluatesSnapshot(t *testing.T) {
	sink := newMemorySink()
	results := make(chan Result, 8)
	m := newTestMonitor(sink, results)
	defer m.Close()

	require.NoError(t, m.Deliver("shop-1", []domain.Booking{booking("b1", "09:00", domain.BookingStatusConfirmed)}))

	res := waitResult(t, results)
	assert.Equal(t, "shop-1", res.BarbershopID)
	assert.Equal(t, today, res.Day)
	require.Len(t, res.Transitions, 1)
	assert.Equal(t, []domain.NotificationStatus{domain.NotificationNextInQueue}, sink.sentTypes("b1"))
	assert.Equal(t, 1, m.ActiveSessions())
}

func TestMonitor_SessionsPerBarbershop(t *testing.T) {
	sink := newMemorySink()
	results := make(chan Result, 8)
	m := newTestMonitor(sink, results)
	defer m.Close()

	shopA := booking("a1", "09:00", domain.BookingStatusConfirmed)
	shopB := booking("b1", "09:00", domain.BookingStatusInProgress)
	shopB.BarbershopID = "shop-2"

	require.NoError(t, m.Deliver("shop-1", []domain.Booking{shopA}))
	require.NoError(t, m.Deliver("shop-2", []domain.Booking{shopB}))

	seen := map[string]bool{}
	seen[waitResult(t, results).BarbershopID] = true
	seen[waitResult(t, results).BarbershopID] = true
	assert.Equal(t, map[string]bool{"shop-1": true, "shop-2": true}, seen)
	assert.Equal(t, 2, m.ActiveSessions())
}

// gatedSink blocks the first write until released.
type gatedSink struct {
	*memorySink
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *gatedSink) RecordNotificationState(ctx context.Context, bookingID string, state domain.NotificationStatus) error {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return s.memorySink.RecordNotificationState(ctx, bookingID, state)
}

func TestMonitor_CoalescesSnapshotsWhileBusy(t *testing.T) {
	sink := &gatedSink{
		memorySink: newMemorySink(),
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	results := make(chan Result, 8)
	m := newTestMonitor(sink, results)
	defer m.Close()

	first := []domain.Booking{booking("b1", "09:00", domain.BookingStatusConfirmed)}
	require.NoError(t, m.Deliver("shop-1", first))
	<-sink.entered

	inChair := booking("b1", "09:00", domain.BookingStatusInProgress)
	require.NoError(t, m.Deliver("shop-1", []domain.Booking{inChair}))

	done := booking("b1", "09:00", domain.BookingStatusCompleted)
	latest := []domain.Booking{done, booking("b2", "09:30", domain.BookingStatusConfirmed)}
	require.NoError(t, m.Deliver("shop-1", latest))
	close(sink.release)

	assert.Equal(t, 1, waitResult(t, results).Evaluated)
	assert.Equal(t, 2, waitResult(t, results).Evaluated)

	select {
	case r := <-results:
		t.Fatalf("superseded snapshot was evaluated: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, []domain.NotificationStatus{domain.NotificationNextInQueue}, sink.sentTypes("b1"))
}

func TestMonitor_StopAndClose(t *testing.T) {
	results := make(chan Result, 8)
	m := newTestMonitor(newMemorySink(), results)

	require.NoError(t, m.Deliver("shop-1", nil))
	require.NoError(t, m.Deliver("shop-2", nil))
	waitResult(t, results)
	waitResult(t, results)

	m.Stop("shop-1")
	assert.Equal(t, 1, m.ActiveSessions())
	m.Stop("unknown")

	m.Close()
	assert.Equal(t, 0, m.ActiveSessions())

	err := m.Deliver("shop-1", nil)
	require.Error(t, err)
	assert.True(t, errs.Is(err, ErrMonitorClosed))
}

func TestMonitor_IdleSessionRetiresAndDropsGuard(t *testing.T) {
	sink := newMemorySink()
	results := make(chan Result, 8)
	m := newTestMonitor(sink, results, WithIdleTimeout(20*time.Millisecond))
	defer m.Close()

	b1 := booking("b1", "09:00", domain.BookingStatusConfirmed)
	require.NoError(t, m.Deliver("shop-1", []domain.Booking{b1}))
	waitResult(t, results)

	assert.Eventually(t, func() bool { return m.ActiveSessions() == 0 }, time.Second, 5*time.Millisecond)

	// A new session starts with an empty guard and trusts the stored state.
	require.NoError(t, m.Deliver("shop-1", sink.snapshot(b1)))
	res := waitResult(t, results)
	assert.Empty(t, res.Transitions)
	assert.Len(t, sink.sentTypes("b1"), 1)
}

type fakeLocker struct {
	mu        sync.Mutex
	busyFor   int
	failWith  error
	attempts  int
	unlocked  []string
	lockedKey string
}

func (l *fakeLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts++
	if l.failWith != nil {
		return "", false, l.failWith
	}
	if l.busyFor > 0 {
		l.busyFor--
		return "", false, nil
	}
	l.lockedKey = key
	return "token-" + key, true, nil
}

func (l *fakeLocker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unlocked = append(l.unlocked, key+"/"+token)
	return nil
}

func (l *fakeLocker) snapshot() (attempts int, unlocked []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attempts, append([]string(nil), l.unlocked...)
}

func TestMonitor_WaitsForLock(t *testing.T) {
	locker := &fakeLocker{busyFor: 2}
	results := make(chan Result, 8)
	m := newTestMonitor(newMemorySink(), results, WithLocker(locker, time.Second))
	m.lockRetryWait = 5 * time.Millisecond
	defer m.Close()

	require.NoError(t, m.Deliver("shop-1", []domain.Booking{booking("b1", "09:00", domain.BookingStatusConfirmed)}))
	res := waitResult(t, results)
	require.Len(t, res.Transitions, 1)

	assert.Eventually(t, func() bool {
		_, unlocked := locker.snapshot()
		return len(unlocked) == 1
	}, time.Second, 5*time.Millisecond)

	attempts, unlocked := locker.snapshot()
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []string{"shop-1/token-shop-1"}, unlocked)
}

func TestMonitor_LockBackendErrorEvaluatesUnlocked(t *testing.T) {
	locker := &fakeLocker{failWith: errors.New("redis: connection refused")}
	results := make(chan Result, 8)
	m := newTestMonitor(newMemorySink(), results, WithLocker(locker, time.Second))
	defer m.Close()

	require.NoError(t, m.Deliver("shop-1", []domain.Booking{booking("b1", "09:00", domain.BookingStatusConfirmed)}))
	res := waitResult(t, results)

	assert.Len(t, res.Transitions, 1)
	_, unlocked := locker.snapshot()
	assert.Empty(t, unlocked)
}
