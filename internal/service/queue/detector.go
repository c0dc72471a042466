package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Domenick1991/barberqueue/internal/domain"
	"github.com/Domenick1991/barberqueue/internal/pkg/clock"
	"github.com/Domenick1991/barberqueue/internal/pkg/errs"
	"golang.org/x/sync/errgroup"
)

var (
	ErrWriteBack = errs.New("notification state write-back failed")
	ErrEmit      = errs.New("notification emission failed")
)

const (
	defaultCallTimeout = 5 * time.Second
	defaultConcurrency = 4
)

// Sink persists notification state on bookings and records client
// notifications. Both calls must be safe to retry.
type Sink interface {
	RecordNotificationState(ctx context.Context, bookingID string, state domain.NotificationStatus) error
	EmitNotification(ctx context.Context, n domain.Notification) error
}

type Transition struct {
	BookingID string
	ClientID  string
	From      domain.NotificationStatus
	To        domain.NotificationStatus
	Recorded  bool
	Emitted   bool
	WriteErr  error
	EmitErr   error
}

type Result struct {
	BarbershopID string
	Day          string
	Evaluated    int
	Suppressed   int
	Transitions  []Transition
}

// Failed returns transitions whose write-back did not complete. They are
// attempted again on the next snapshot.
func (r Result) Failed() []Transition {
	var out []Transition
	for _, t := range r.Transitions {
		if t.WriteErr != nil {
			out = append(out, t)
		}
	}
	return out
}

func (r Result) EmittedCount() int {
	n := 0
	for _, t := range r.Transitions {
		if t.Emitted {
			n++
		}
	}
	return n
}

type DetectorOption func(*Detector)

func WithClock(c clock.Clock) DetectorOption {
	return func(d *Detector) { d.clock = c }
}

// WithLocation sets the zone used to decide which calendar day is today.
func WithLocation(loc *time.Location) DetectorOption {
	return func(d *Detector) {
		if loc != nil {
			d.loc = loc
		}
	}
}

func WithCallTimeout(timeout time.Duration) DetectorOption {
	return func(d *Detector) {
		if timeout > 0 {
			d.callTimeout = timeout
		}
	}
}

func WithConcurrency(n int) DetectorOption {
	return func(d *Detector) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

func WithLogger(logger *slog.Logger) DetectorOption {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Detector turns full booking snapshots of one barbershop into notification
// transitions. Evaluations are serialised.
type Detector struct {
	barbershopID string
	sink         Sink
	clock        clock.Clock
	loc          *time.Location
	callTimeout  time.Duration
	concurrency  int
	logger       *slog.Logger

	mu    sync.Mutex
	guard *Guard
}

func NewDetector(barbershopID string, sink Sink, opts ...DetectorOption) *Detector {
	d := &Detector{
		barbershopID: barbershopID,
		sink:         sink,
		clock:        clock.NewRealClock(),
		loc:          time.Local,
		callTimeout:  defaultCallTimeout,
		concurrency:  defaultConcurrency,
		logger:       slog.Default(),
		guard:        NewGuard(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(slog.String("barbershop_id", barbershopID))
	return d
}

// Evaluate compares the target notification state of every booking in the
// snapshot with the stored one and writes back the differences.
func (d *Detector) Evaluate(ctx context.Context, snapshot []domain.Booking) Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	today := d.clock.Now().In(d.loc).Format(DateLayout)
	positions := make(map[string]int)
	for _, b := range Queue(snapshot, today) {
		positions[b.ID] = b.QueuePosition
	}

	res := Result{BarbershopID: d.barbershopID, Day: today, Evaluated: len(snapshot)}
	present := make(map[string]struct{}, len(snapshot))
	var pending []Transition

	for _, b := range snapshot {
		present[b.ID] = struct{}{}
		stored := b.NotificationStatus
		target := TargetState(b, positions[b.ID])
		if stored == domain.NotificationCalledToService && target == domain.NotificationNextInQueue {
			target = stored
		}
		if target == stored {
			continue
		}
		if d.guard.Has(b.ID, target) {
			res.Suppressed++
			continue
		}
		pending = append(pending, Transition{
			BookingID: b.ID,
			ClientID:  b.ClientID,
			From:      stored,
			To:        target,
		})
	}
	d.guard.Retain(present)

	d.apply(ctx, pending)

	for _, t := range pending {
		if t.Recorded {
			d.guard.Mark(t.BookingID, t.To)
		}
	}
	res.Transitions = pending
	return res
}

// TargetState is the notification state a booking should hold given its
// position in today's active queue (0 when it is not in that queue).
func TargetState(b domain.Booking, position int) domain.NotificationStatus {
	if position == 0 || !IsActive(b.Status) {
		return domain.NotificationNone
	}
	switch {
	case b.Status == domain.BookingStatusInProgress:
		return domain.NotificationCalledToService
	case position == 1 && b.Status == domain.BookingStatusConfirmed:
		return domain.NotificationNextInQueue
	default:
		return domain.NotificationNone
	}
}

func (d *Detector) apply(ctx context.Context, pending []Transition) {
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i := range pending {
		t := &pending[i]
		g.Go(func() error {
			d.applyOne(ctx, t)
			return nil
		})
	}
	_ = g.Wait()
}

func (d *Detector) applyOne(ctx context.Context, t *Transition) {
	writeCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	err := d.sink.RecordNotificationState(writeCtx, t.BookingID, t.To)
	cancel()
	if err != nil {
		t.WriteErr = errs.Mark(errs.Wrapf(err, "record %s for booking %s", t.To, t.BookingID), ErrWriteBack)
		d.logger.Warn("notification state write-back failed, will retry on next snapshot",
			slog.String("booking_id", t.BookingID),
			slog.String("to", t.To.String()),
			slog.Any("error", err))
		return
	}
	t.Recorded = true

	if t.To == domain.NotificationNone {
		return
	}

	n := domain.Notification{
		BarbershopID: d.barbershopID,
		ClientID:     t.ClientID,
		BookingID:    t.BookingID,
		Type:         t.To,
		Message:      MessageFor(t.To),
		CreatedAt:    d.clock.Now(),
	}
	emitCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	err = d.sink.EmitNotification(emitCtx, n)
	cancel()
	if err != nil {
		t.EmitErr = errs.Mark(errs.Wrapf(err, "emit %s for booking %s", t.To, t.BookingID), ErrEmit)
		d.logger.Error("notification emission failed",
			slog.String("booking_id", t.BookingID),
			slog.String("client_id", t.ClientID),
			slog.String("type", t.To.String()),
			slog.Any("error", err))
		return
	}
	t.Emitted = true
	d.logger.Info("notification emitted",
		slog.String("booking_id", t.BookingID),
		slog.String("type", t.To.String()))
}

func MessageFor(state domain.NotificationStatus) string {
	switch state {
	case domain.NotificationNextInQueue:
		return "You are next in the queue. Please make your way to the barbershop."
	case domain.NotificationCalledToService:
		return "Your barber is ready for you. Please come in now."
	default:
		return ""
	}
}
