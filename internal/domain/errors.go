package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest          = errors.New("invalid request")
	ErrInvalidProduct          = errors.New("invalid product")
	ErrSlotNotFound            = errors.New("availability slot not found")
	ErrInsufficientCapacity    = errors.New("insufficient capacity")
	ErrInvalidUnits            = errors.New("invalid units")
	ErrBookingNotFound         = errors.New("booking not found")
	ErrReferenceConflict       = errors.New("booking reference already taken")
	ErrUnknownTrackingCode     = errors.New("unknown tracking code")
	ErrConversionNotFound      = errors.New("conversion not found")
	ErrInvalidConversionStatus = errors.New("invalid conversion status")
	ErrInvalidID               = errors.New("invalid id")
	ErrStorageUnavailable      = errors.New("storage unavailable")
)

// InvalidStatusError reports an attempted transition out of a state that does
// not permit it. The current status travels with the error so callers can tell
// a lost confirm race apart from a retry that already landed.
type InvalidStatusError struct {
	Op      string
	Current BookingStatus
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("cannot %s booking with status: %s", e.Op, e.Current)
}

// ConversionStatusError reports an illegal conversion status jump.
type ConversionStatusError struct {
	Current ConversionStatus
	Target  ConversionStatus
}

func (e *ConversionStatusError) Error() string {
	return fmt.Sprintf("cannot move conversion from %s to %s", e.Current, e.Target)
}
