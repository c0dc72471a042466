package domain

import "time"

const (
	BookingEventCreated       = "booking.created"
	BookingEventStatusChanged = "booking.status_changed"
)

// BookingChangedEvent is published on every booking mutation, keyed by
// barbershop. It only signals that the barbershop's snapshot is stale.
type BookingChangedEvent struct {
	EventID      string    `json:"event_id"`
	Type         string    `json:"type"`
	BarbershopID string    `json:"barbershop_id"`
	BookingID    string    `json:"booking_id"`
	Date         string    `json:"date"`
	Status       string    `json:"status"`
	OccurredAt   time.Time `json:"occurred_at"`
}

type NotificationEvent struct {
	NotificationID string    `json:"notification_id"`
	BarbershopID   string    `json:"barbershop_id"`
	ClientID       string    `json:"client_id"`
	BookingID      string    `json:"booking_id"`
	Type           string    `json:"type"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"created_at"`
}

func NewNotificationEvent(n Notification) NotificationEvent {
	return NotificationEvent{
		NotificationID: n.ID,
		BarbershopID:   n.BarbershopID,
		ClientID:       n.ClientID,
		BookingID:      n.BookingID,
		Type:           string(n.Type),
		Message:        n.Message,
		CreatedAt:      n.CreatedAt,
	}
}
