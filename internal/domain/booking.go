package domain

import "time"

type BookingStatus string

const (
	BookingStatusPending              BookingStatus = "pending"
	BookingStatusConfirmed            BookingStatus = "confirmed"
	BookingStatusInProgress           BookingStatus = "in-progress"
	BookingStatusCompleted            BookingStatus = "completed"
	BookingStatusCompletedAndReviewed BookingStatus = "completedAndReviewed"
	BookingStatusCancelled            BookingStatus = "cancelled"
	BookingStatusDeclined             BookingStatus = "declined"
	BookingStatusNoShow               BookingStatus = "no-show"
)

func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusInProgress,
		BookingStatusCompleted, BookingStatusCompletedAndReviewed,
		BookingStatusCancelled, BookingStatusDeclined, BookingStatusNoShow:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the booking has reached an outcome and no longer
// occupies a queue slot.
func (s BookingStatus) IsTerminal() bool {
	switch s {
	case BookingStatusCompleted, BookingStatusCompletedAndReviewed,
		BookingStatusCancelled, BookingStatusDeclined, BookingStatusNoShow:
		return true
	default:
		return false
	}
}

// NotificationStatus is persisted on the booking. The zero value means no
// notification is currently in effect.
type NotificationStatus string

const (
	NotificationNone            NotificationStatus = ""
	NotificationNextInQueue     NotificationStatus = "next-in-queue"
	NotificationCalledToService NotificationStatus = "called-to-service"
)

func (n NotificationStatus) IsValid() bool {
	switch n {
	case NotificationNone, NotificationNextInQueue, NotificationCalledToService:
		return true
	default:
		return false
	}
}

func (n NotificationStatus) String() string {
	if n == NotificationNone {
		return "none"
	}
	return string(n)
}

type Booking struct {
	ID                 string             `json:"id"`
	BarbershopID       string             `json:"barbershop_id"`
	ClientID           string             `json:"client_id"`
	Date               string             `json:"date"` // YYYY-MM-DD
	Time               string             `json:"time"` // HH:MM or HH:MM-HH:MM
	IsEmergency        bool               `json:"is_emergency"`
	Status             BookingStatus      `json:"status"`
	NotificationStatus NotificationStatus `json:"notification_status,omitempty"`
	CreatedAt          *time.Time         `json:"created_at,omitempty"`
	UpdatedAt          time.Time          `json:"updated_at"`

	// QueuePosition is assigned by the ordering and never stored.
	QueuePosition int `json:"queue_position,omitempty"`
}

// QueueView is today's ranked active queue of one barbershop.
type QueueView struct {
	BarbershopID string     `json:"barbershop_id"`
	Date         string     `json:"date"`
	Bookings     []Booking  `json:"bookings"`
	Stats        QueueStats `json:"stats"`
}

type QueueStats struct {
	TotalBookings   int `json:"total_bookings"`
	RushBookings    int `json:"rush_bookings"`
	RegularBookings int `json:"regular_bookings"`
}
