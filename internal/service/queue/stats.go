package queue

import "github.com/Domenick1991/barberqueue/internal/domain"

// Stats counts rush and regular bookings. Callers pass the active subset.
func Stats(active []domain.Booking) domain.QueueStats {
	rush := 0
	for _, b := range active {
		if b.IsEmergency {
			rush++
		}
	}
	return domain.QueueStats{
		TotalBookings:   len(active),
		RushBookings:    rush,
		RegularBookings: len(active) - rush,
	}
}
