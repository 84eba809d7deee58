package domain

import "time"

type BookingStatus string

const (
	BookingOnHold    BookingStatus = "ON_HOLD"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
)

// Terminal reports whether no further transition is legal.
func (s BookingStatus) Terminal() bool {
	return s == BookingConfirmed || s == BookingCancelled
}

type Contact struct {
	Name  string
	Email string
	Phone string
}

// Booking is a reservation against an availability slot. Its units were
// subtracted from the slot when the booking was created, so an ON_HOLD row
// already owns capacity.
type Booking struct {
	UUID           string
	Reference      string
	ProductID      string
	AvailabilityID string
	LocalDate      time.Time
	Units          int
	Contact        Contact
	Notes          string
	Principal      string
	Status         BookingStatus
	CancelReason   string
	CreatedAt      time.Time
	ConfirmedAt    *time.Time
	CancelledAt    *time.Time
}
