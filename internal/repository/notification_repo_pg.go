package repository

import (
	"context"

	"github.com/Domenick1991/barberqueue/internal/domain"
	"github.com/Domenick1991/barberqueue/internal/pkg/errs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	ListByBooking(ctx context.Context, bookingID string) ([]domain.Notification, error)
}

type PGNotificationRepository struct {
	db *pgxpool.Pool
}

func NewNotificationRepository(db *pgxpool.Pool) NotificationRepository {
	return &PGNotificationRepository{db: db}
}

// Create stores a client notification. Re-inserting the same id is a no-op.
func (r *PGNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	_, err := r.db.Exec(ctx, `INSERT INTO notifications (id, barbershop_id, client_id, booking_id, type, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		n.ID, n.BarbershopID, n.ClientID, n.BookingID, string(n.Type), n.Message, n.CreatedAt)
	if err != nil {
		return errs.Wrapf(err, "insert notification for booking %s", n.BookingID)
	}
	return nil
}

func (r *PGNotificationRepository) ListByBooking(ctx context.Context, bookingID string) ([]domain.Notification, error) {
	rows, err := r.db.Query(ctx, `SELECT id, barbershop_id, client_id, booking_id, type, message, created_at
		FROM notifications WHERE booking_id=$1 ORDER BY created_at`, bookingID)
	if err != nil {
		return nil, errs.Wrapf(err, "list notifications of booking %s", bookingID)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var (
			n   domain.Notification
			typ string
		)
		if err := rows.Scan(&n.ID, &n.BarbershopID, &n.ClientID, &n.BookingID, &typ, &n.Message, &n.CreatedAt); err != nil {
			return nil, errs.Wrap(err, "scan notification")
		}
		n.Type = domain.NotificationStatus(typ)
		out = append(out, n)
	}
	return out, errs.Wrap(rows.Err(), "iterate notifications")
}

var _ NotificationRepository = (*PGNotificationRepository)(nil)
