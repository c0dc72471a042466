package queue

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Domenick1991/barberqueue/internal/domain"
	"github.com/Domenick1991/barberqueue/internal/pkg/errs"
)

const DateLayout = "2006-01-02"

var ErrInvalidTime = errs.New("invalid booking time")

// ParseStartMinutes returns the start of a "HH:MM" or "HH:MM-HH:MM" slot as
// minutes since midnight.
func ParseStartMinutes(value string) (int, error) {
	start, _, _ := strings.Cut(strings.TrimSpace(value), "-")
	hh, mm, ok := strings.Cut(strings.TrimSpace(start), ":")
	if !ok {
		return 0, errs.Mark(errs.Newf("time %q has no minutes", value), ErrInvalidTime)
	}
	hours, err := parseClockField(hh, 23)
	if err != nil {
		return 0, errs.Mark(errs.Wrapf(err, "hours of %q", value), ErrInvalidTime)
	}
	minutes, err := parseClockField(mm, 59)
	if err != nil {
		return 0, errs.Mark(errs.Wrapf(err, "minutes of %q", value), ErrInvalidTime)
	}
	return hours*60 + minutes, nil
}

func parseClockField(s string, max int) (int, error) {
	if len(s) == 0 || len(s) > 2 {
		return 0, errs.Newf("field %q must have one or two digits", s)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > max {
		return 0, errs.Newf("field %d out of range 0..%d", n, max)
	}
	return n, nil
}

// IsActive reports whether a booking occupies a slot in the day's queue.
// The same predicate feeds ranking and statistics.
func IsActive(status domain.BookingStatus) bool {
	return !status.IsTerminal()
}

func ActiveForDay(bookings []domain.Booking, day string) []domain.Booking {
	out := make([]domain.Booking, 0, len(bookings))
	for _, b := range bookings {
		if b.Date == day && IsActive(b.Status) {
			out = append(out, b)
		}
	}
	return out
}

// Queue ranks the active bookings of one day.
func Queue(bookings []domain.Booking, day string) []domain.Booking {
	return Order(ActiveForDay(bookings, day))
}

type sortKey struct {
	date      time.Time
	dateOK    bool
	minutes   int
	minutesOK bool
	createdAt time.Time
}

// Order returns copies of bookings in service order with QueuePosition set
// to 1..n. The input slice is left untouched.
//
// Rank: date, start time, rush before regular at the same date and time,
// creation time (missing sorts first), then ID.
func Order(bookings []domain.Booking) []domain.Booking {
	ranked := make([]domain.Booking, len(bookings))
	copy(ranked, bookings)

	keys := make([]sortKey, len(ranked))
	idx := make([]int, len(ranked))
	for i, b := range ranked {
		idx[i] = i
		keys[i] = keyOf(b)
	}

	sort.SliceStable(idx, func(x, y int) bool {
		return less(ranked[idx[x]], keys[idx[x]], ranked[idx[y]], keys[idx[y]])
	})

	out := make([]domain.Booking, len(ranked))
	for pos, i := range idx {
		out[pos] = ranked[i]
		out[pos].QueuePosition = pos + 1
	}
	return out
}

func keyOf(b domain.Booking) sortKey {
	var k sortKey
	if d, err := time.Parse(DateLayout, strings.TrimSpace(b.Date)); err == nil {
		k.date, k.dateOK = d, true
	}
	if m, err := ParseStartMinutes(b.Time); err == nil {
		k.minutes, k.minutesOK = m, true
	}
	if b.CreatedAt != nil {
		k.createdAt = *b.CreatedAt
	}
	return k
}

func less(a domain.Booking, ka sortKey, b domain.Booking, kb sortKey) bool {
	if c := compareDate(a, ka, b, kb); c != 0 {
		return c < 0
	}
	if c := compareMinutes(ka, kb); c != 0 {
		return c < 0
	}
	if a.IsEmergency != b.IsEmergency {
		return a.IsEmergency
	}
	if !ka.createdAt.Equal(kb.createdAt) {
		return ka.createdAt.Before(kb.createdAt)
	}
	return a.ID < b.ID
}

// Unparseable dates go after every valid date.
func compareDate(a domain.Booking, ka sortKey, b domain.Booking, kb sortKey) int {
	switch {
	case ka.dateOK && kb.dateOK:
		return ka.date.Compare(kb.date)
	case ka.dateOK:
		return -1
	case kb.dateOK:
		return 1
	default:
		return strings.Compare(a.Date, b.Date)
	}
}

// Unparseable times go to the end of their day.
func compareMinutes(ka, kb sortKey) int {
	switch {
	case ka.minutesOK && kb.minutesOK:
		return ka.minutes - kb.minutes
	case ka.minutesOK:
		return -1
	case kb.minutesOK:
		return 1
	default:
		return 0
	}
}
