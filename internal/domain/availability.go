package domain

import "time"

type SlotStatus string

const (
	SlotAvailable SlotStatus = "AVAILABLE"
	SlotSoldOut   SlotStatus = "SOLD_OUT"
	SlotClosed    SlotStatus = "CLOSED"
)

// AvailabilitySlot is one bookable (product, date[, time]) row. Vacancies are
// only ever changed through the ledger's conditional decrement/restore, and
// status is SOLD_OUT exactly when vacancies reaches zero.
type AvailabilitySlot struct {
	ID        string
	ProductID string
	LocalDate time.Time
	StartTime string
	// EndTime is derived from the product duration on reads; it is not stored.
	EndTime   string
	Vacancies int
	Status    SlotStatus
}

func (s AvailabilitySlot) Available() bool {
	return s.Status == SlotAvailable && s.Vacancies > 0
}
