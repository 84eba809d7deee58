package app

import (
	"strings"

	"github.com/google/uuid"
)

const referencePrefix = "TRV"

func newID() string {
	return uuid.NewString()
}

// newBookingReference builds the human display handle. Uniqueness is enforced
// by the bookings.reference unique index; callers retry on conflict.
func newBookingReference() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return referencePrefix + "-" + raw[:8]
}
