package queue

import "github.com/Domenick1991/barberqueue/internal/domain"

// Guard remembers the last notification state written for each booking
// within one barbershop session. An entry holds until a different state is
// recorded for the booking or the booking leaves the snapshot, so a snapshot
// loaded before a write-back cannot fire the same transition again.
//
// Guard is not safe for concurrent use; the owning Detector serialises access.
type Guard struct {
	handled map[string]domain.NotificationStatus
}

func NewGuard() *Guard {
	return &Guard{handled: make(map[string]domain.NotificationStatus)}
}

// Has reports whether (bookingID, state) was already acted upon.
func (g *Guard) Has(bookingID string, state domain.NotificationStatus) bool {
	s, ok := g.handled[bookingID]
	return ok && s == state
}

// Mark records (bookingID, state), replacing any earlier state for the booking.
func (g *Guard) Mark(bookingID string, state domain.NotificationStatus) {
	g.handled[bookingID] = state
}

// Retain drops every entry whose booking is not in keep.
func (g *Guard) Retain(keep map[string]struct{}) {
	for id := range g.handled {
		if _, ok := keep[id]; !ok {
			delete(g.handled, id)
		}
	}
}

func (g *Guard) Len() int {
	return len(g.handled)
}
