package domain

import "time"

type Notification struct {
	ID           string
	BarbershopID string
	ClientID     string
	BookingID    string
	Type         NotificationStatus
	Message      string
	CreatedAt    time.Time
}
