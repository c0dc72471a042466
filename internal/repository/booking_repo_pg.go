package repository

import (
	"context"
	"time"

	"github.com/Domenick1991/barberqueue/internal/domain"
	"github.com/Domenick1991/barberqueue/internal/pkg/errs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errs.New("not found")

type BookingRepository interface {
	Create(ctx context.Context, booking *domain.Booking) error
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	UpdateStatus(ctx context.Context, id string, status domain.BookingStatus) (*domain.Booking, error)
	UpdateNotificationStatus(ctx context.Context, id string, state domain.NotificationStatus) (*domain.Booking, error)
	// ListSnapshot returns every booking of the barbershop that matters for
	// the given day: the day's bookings plus any booking still carrying a
	// notification state.
	ListSnapshot(ctx context.Context, barbershopID, day string) ([]domain.Booking, error)
	ListBarbershopsWithActiveBookings(ctx context.Context, day string) ([]string, error)
}

type PGBookingRepository struct {
	db *pgxpool.Pool
}

func NewBookingRepository(db *pgxpool.Pool) BookingRepository {
	return &PGBookingRepository{db: db}
}

const bookingColumns = `id, barbershop_id, client_id, date, time, is_emergency, status, notification_status, created_at, updated_at`

func (r *PGBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	if booking.Status == "" {
		booking.Status = domain.BookingStatusPending
	}

	var createdAt time.Time
	err := r.db.QueryRow(ctx, `INSERT INTO bookings (id, barbershop_id, client_id, date, time, is_emergency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		booking.ID, booking.BarbershopID, booking.ClientID, booking.Date, booking.Time, booking.IsEmergency, booking.Status).
		Scan(&createdAt, &booking.UpdatedAt)
	if err != nil {
		return errs.Wrapf(err, "insert booking %s", booking.ID)
	}
	booking.CreatedAt = &createdAt
	return nil
}

func (r *PGBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	row := r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id)
	b, err := scanBooking(row)
	if err != nil {
		return nil, notFound(err, "get booking %s", id)
	}
	return b, nil
}

func (r *PGBookingRepository) UpdateStatus(ctx context.Context, id string, status domain.BookingStatus) (*domain.Booking, error) {
	row := r.db.QueryRow(ctx, `UPDATE bookings SET status=$1, updated_at=now() WHERE id=$2 RETURNING `+bookingColumns, status, id)
	b, err := scanBooking(row)
	if err != nil {
		return nil, notFound(err, "update status of booking %s", id)
	}
	return b, nil
}

func (r *PGBookingRepository) UpdateNotificationStatus(ctx context.Context, id string, state domain.NotificationStatus) (*domain.Booking, error) {
	row := r.db.QueryRow(ctx, `UPDATE bookings SET notification_status=NULLIF($1, ''), updated_at=now() WHERE id=$2 RETURNING `+bookingColumns,
		string(state), id)
	b, err := scanBooking(row)
	if err != nil {
		return nil, notFound(err, "update notification status of booking %s", id)
	}
	return b, nil
}

func (r *PGBookingRepository) ListSnapshot(ctx context.Context, barbershopID, day string) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE barbershop_id=$1 AND (date=$2 OR notification_status IS NOT NULL)`, barbershopID, day)
	if err != nil {
		return nil, errs.Wrapf(err, "list bookings of barbershop %s", barbershopID)
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, errs.Wrap(err, "scan booking")
		}
		bookings = append(bookings, *b)
	}
	return bookings, errs.Wrap(rows.Err(), "iterate bookings")
}

func (r *PGBookingRepository) ListBarbershopsWithActiveBookings(ctx context.Context, day string) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT barbershop_id FROM bookings
		WHERE (date=$1 AND status = ANY($2)) OR notification_status IS NOT NULL
		ORDER BY barbershop_id`, day, activeStatuses())
	if err != nil {
		return nil, errs.Wrap(err, "list barbershops with active bookings")
	}
	defer rows.Close()

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errs.Wrap(err, "collect barbershop ids")
	}
	return ids, nil
}

func activeStatuses() []string {
	return []string{
		string(domain.BookingStatusPending),
		string(domain.BookingStatusConfirmed),
		string(domain.BookingStatusInProgress),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*domain.Booking, error) {
	var (
		b            domain.Booking
		status       string
		notification *string
	)
	if err := row.Scan(&b.ID, &b.BarbershopID, &b.ClientID, &b.Date, &b.Time, &b.IsEmergency,
		&status, &notification, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.Status = domain.BookingStatus(status)
	if notification != nil {
		b.NotificationStatus = domain.NotificationStatus(*notification)
	}
	return &b, nil
}

func notFound(err error, format string, args ...any) error {
	if errs.Is(err, pgx.ErrNoRows) {
		return errs.Mark(errs.Wrapf(err, format, args...), ErrNotFound)
	}
	return errs.Wrapf(err, format, args...)
}

var _ BookingRepository = (*PGBookingRepository)(nil)
