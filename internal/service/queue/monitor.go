package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Domenick1991/barberqueue/internal/domain"
	"github.com/Domenick1991/barberqueue/internal/pkg/errs"
)

var ErrMonitorClosed = errs.New("queue monitor is closed")

const (
	defaultIdleTimeout   = 30 * time.Minute
	defaultLockTTL       = 30 * time.Second
	defaultLockRetryWait = 200 * time.Millisecond
)

// Locker serialises evaluations of one barbershop across worker processes.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Unlock(ctx context.Context, key, token string) error
}

type MonitorOption func(*Monitor)

func WithDetectorOptions(opts ...DetectorOption) MonitorOption {
	return func(m *Monitor) { m.detectorOpts = append(m.detectorOpts, opts...) }
}

func WithLocker(l Locker, ttl time.Duration) MonitorOption {
	return func(m *Monitor) {
		m.locker = l
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithIdleTimeout sets how long a barbershop session lives without a
// snapshot before it is torn down together with its guard.
func WithIdleTimeout(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.idleTimeout = d
		}
	}
}

func WithResultHook(fn func(Result)) MonitorOption {
	return func(m *Monitor) { m.onResult = fn }
}

func WithMonitorLogger(logger *slog.Logger) MonitorOption {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// Monitor runs one session goroutine per barbershop. Snapshots for the same
// barbershop are evaluated one at a time; different barbershops run in
// parallel and share nothing but the sink.
type Monitor struct {
	sink          Sink
	detectorOpts  []DetectorOption
	locker        Locker
	lockTTL       time.Duration
	lockRetryWait time.Duration
	idleTimeout   time.Duration
	onResult      func(Result)
	logger        *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
	wg       sync.WaitGroup
}

func NewMonitor(sink Sink, opts ...MonitorOption) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		sink:          sink,
		lockTTL:       defaultLockTTL,
		lockRetryWait: defaultLockRetryWait,
		idleTimeout:   defaultIdleTimeout,
		logger:        slog.Default(),
		ctx:           ctx,
		cancel:        cancel,
		sessions:      make(map[string]*session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Deliver hands the current full snapshot of a barbershop to its session.
// A snapshot that has not been picked up yet is replaced by the newer one.
func (m *Monitor) Deliver(barbershopID string, snapshot []domain.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrMonitorClosed
	}
	s, ok := m.sessions[barbershopID]
	if !ok {
		s = m.startLocked(barbershopID)
	}
	s.offer(snapshot)
	return nil
}

// Stop tears down the session of one barbershop and waits for it to exit.
func (m *Monitor) Stop(barbershopID string) {
	m.mu.Lock()
	s, ok := m.sessions[barbershopID]
	if ok {
		delete(m.sessions, barbershopID)
	}
	m.mu.Unlock()

	if ok {
		s.cancel()
		<-s.done
	}
}

func (m *Monitor) Close() {
	m.mu.Lock()
	m.closed = true
	m.sessions = make(map[string]*session)
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}

func (m *Monitor) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Monitor) startLocked(barbershopID string) *session {
	opts := make([]DetectorOption, 0, len(m.detectorOpts)+1)
	opts = append(opts, WithLogger(m.logger))
	opts = append(opts, m.detectorOpts...)

	ctx, cancel := context.WithCancel(m.ctx)
	s := &session{
		id:       barbershopID,
		detector: NewDetector(barbershopID, m.sink, opts...),
		cancel:   cancel,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	m.sessions[barbershopID] = s
	m.wg.Add(1)
	go m.run(ctx, s)
	return s
}

func (m *Monitor) run(ctx context.Context, s *session) {
	defer m.wg.Done()
	defer close(s.done)

	idle := time.NewTimer(m.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
			if snapshot, ok := s.take(); ok {
				m.evaluate(ctx, s, snapshot)
			}
			idle.Reset(m.idleTimeout)
		case <-idle.C:
			if m.retire(s) {
				m.logger.Debug("queue session retired", slog.String("barbershop_id", s.id))
				return
			}
			idle.Reset(m.idleTimeout)
		}
	}
}

func (m *Monitor) retire(s *session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.hasPending() {
		return false
	}
	if cur, ok := m.sessions[s.id]; ok && cur == s {
		delete(m.sessions, s.id)
	}
	s.cancel()
	return true
}

func (m *Monitor) evaluate(ctx context.Context, s *session, snapshot []domain.Booking) {
	if m.locker != nil {
		token, acquired := m.acquire(ctx, s, &snapshot)
		if !acquired {
			return
		}
		if token != "" {
			defer func() {
				unlockCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := m.locker.Unlock(unlockCtx, s.id, token); err != nil {
					m.logger.Warn("release queue lock", slog.String("barbershop_id", s.id), slog.Any("error", err))
				}
			}()
		}
	}

	res := s.detector.Evaluate(ctx, snapshot)
	if len(res.Transitions) > 0 || res.Suppressed > 0 {
		m.logger.Info("queue snapshot evaluated",
			slog.String("barbershop_id", res.BarbershopID),
			slog.String("day", res.Day),
			slog.Int("bookings", res.Evaluated),
			slog.Int("transitions", len(res.Transitions)),
			slog.Int("failed", len(res.Failed())),
			slog.Int("suppressed", res.Suppressed))
	}
	if m.onResult != nil {
		m.onResult(res)
	}
}

// acquire waits for the cross-process lock. A snapshot that arrives while
// waiting supersedes the one being held. A lock backend error degrades to an
// unlocked evaluation (empty token).
func (m *Monitor) acquire(ctx context.Context, s *session, snapshot *[]domain.Booking) (string, bool) {
	for {
		token, ok, err := m.locker.TryLock(ctx, s.id, m.lockTTL)
		if err != nil {
			m.logger.Warn("queue lock unavailable, evaluating without it",
				slog.String("barbershop_id", s.id), slog.Any("error", err))
			return "", true
		}
		if ok {
			return token, true
		}

		select {
		case <-ctx.Done():
			return "", false
		case <-time.After(m.lockRetryWait):
		}
		if newer, ok := s.take(); ok {
			*snapshot = newer
		}
	}
}

type session struct {
	id       string
	detector *Detector
	cancel   context.CancelFunc
	wake     chan struct{}
	done     chan struct{}

	mu      sync.Mutex
	pending []domain.Booking
	waiting bool
}

func (s *session) offer(snapshot []domain.Booking) {
	cp := make([]domain.Booking, len(snapshot))
	copy(cp, snapshot)

	s.mu.Lock()
	s.pending = cp
	s.waiting = true
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *session) take() ([]domain.Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.waiting {
		return nil, false
	}
	snapshot := s.pending
	s.pending = nil
	s.waiting = false
	return snapshot, true
}

func (s *session) hasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiting
}
