package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/Domenick1991/barberqueue/internal/domain"
	"github.com/Domenick1991/barberqueue/internal/pkg/errs"
	"github.com/Domenick1991/barberqueue/internal/service/booking"
	"github.com/Domenick1991/barberqueue/internal/service/queue"
)

type Deliverer interface {
	Deliver(barbershopID string, snapshot []domain.Booking) error
}

// Feed turns booking change events and periodic resyncs into full
// barbershop snapshots for the queue monitor.
type Feed struct {
	source  booking.SnapshotSource
	monitor Deliverer
	logger  *slog.Logger
}

func NewFeed(source booking.SnapshotSource, monitor Deliverer, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{source: source, monitor: monitor, logger: logger}
}

// HandleChange reloads the barbershop named by the event. A failed load is
// logged and skipped; the next resync covers it.
func (f *Feed) HandleChange(ctx context.Context, event domain.BookingChangedEvent) error {
	if event.BarbershopID == "" {
		f.logger.Warn("booking change without barbershop", slog.String("booking_id", event.BookingID))
		return nil
	}
	return f.refresh(ctx, event.BarbershopID)
}

// Resync delivers a fresh snapshot for every barbershop with active bookings
// today and returns how many were delivered.
func (f *Feed) Resync(ctx context.Context) (int, error) {
	shops, err := f.source.ActiveBarbershops(ctx)
	if err != nil {
		return 0, errs.Wrap(err, "list active barbershops")
	}
	delivered := 0
	for _, id := range shops {
		if err := ctx.Err(); err != nil {
			return delivered, nil
		}
		if err := f.refresh(ctx, id); err != nil {
			return delivered, err
		}
		delivered++
	}
	return delivered, nil
}

// RunResync sweeps once right away and then on every tick. A failed sweep is
// logged and the loop keeps going; only a closed monitor or ctx ends it.
func (f *Feed) RunResync(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := f.sweep(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (f *Feed) sweep(ctx context.Context) error {
	n, err := f.Resync(ctx)
	if err != nil {
		if errs.Is(err, queue.ErrMonitorClosed) {
			return err
		}
		if ctx.Err() == nil {
			f.logger.Warn("queue resync failed", slog.Any("error", err))
		}
		return nil
	}
	f.logger.Debug("queue resync finished", slog.Int("barbershops", n))
	return nil
}

func (f *Feed) refresh(ctx context.Context, barbershopID string) error {
	snapshot, err := f.source.Snapshot(ctx, barbershopID)
	if err != nil {
		f.logger.Warn("failed to load barbershop snapshot",
			slog.String("barbershop_id", barbershopID), slog.Any("error", err))
		return nil
	}
	if err := f.monitor.Deliver(barbershopID, snapshot); err != nil {
		if errs.Is(err, queue.ErrMonitorClosed) {
			return err
		}
		return errs.Wrapf(err, "deliver snapshot of %s", barbershopID)
	}
	return nil
}
