package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wanderpath/booking-api/internal/domain"
)

const (
	codeInvalidRequest          = "INVALID_REQUEST"
	codeInvalidProductID        = "INVALID_PRODUCT_ID"
	codeAvailabilityNotFound    = "AVAILABILITY_NOT_FOUND"
	codeInsufficientCapacity    = "INSUFFICIENT_CAPACITY"
	codeInvalidBookingUUID      = "INVALID_BOOKING_UUID"
	codeInvalidBookingStatus    = "INVALID_BOOKING_STATUS"
	codeUnknownTrackingCode     = "UNKNOWN_TRACKING_CODE"
	codeConversionNotFound      = "CONVERSION_NOT_FOUND"
	codeInvalidConversionStatus = "INVALID_CONVERSION_STATUS"
	codeNotFound                = "NOT_FOUND"
	codeMethodNotAllowed        = "METHOD_NOT_ALLOWED"
	codeRateLimited             = "RATE_LIMITED"
	codeInternalError           = "INTERNAL_ERROR"
)

type errorResponse struct {
	Error        string `json:"error"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error:        code,
		ErrorMessage: msg,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"INTERNAL_ERROR"}`))
		return
	}
	_, _ = w.Write(payload)
}

// writeDomainError maps engine errors to the wire contract. Anything
// unrecognized is an internal failure; its detail stays server-side.
func writeDomainError(w http.ResponseWriter, err error) {
	var statusErr *domain.InvalidStatusError
	var convErr *domain.ConversionStatusError

	switch {
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrInvalidUnits):
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
	case errors.Is(err, domain.ErrInvalidProduct):
		writeError(w, http.StatusNotFound, codeInvalidProductID, "product not found")
	case errors.Is(err, domain.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, codeAvailabilityNotFound, "no availability for the requested date")
	case errors.Is(err, domain.ErrInsufficientCapacity):
		writeError(w, http.StatusConflict, codeInsufficientCapacity, "not enough vacancies for the requested units")
	case errors.Is(err, domain.ErrBookingNotFound), errors.Is(err, domain.ErrInvalidID):
		writeError(w, http.StatusNotFound, codeInvalidBookingUUID, "booking not found")
	case errors.As(err, &statusErr):
		writeError(w, http.StatusBadRequest, codeInvalidBookingStatus,
			"Cannot "+statusErr.Op+" booking with status: "+string(statusErr.Current))
	case errors.Is(err, domain.ErrUnknownTrackingCode):
		writeError(w, http.StatusNotFound, codeUnknownTrackingCode, "unknown tracking code")
	case errors.Is(err, domain.ErrConversionNotFound):
		writeError(w, http.StatusNotFound, codeConversionNotFound, "conversion not found")
	case errors.Is(err, domain.ErrInvalidConversionStatus):
		writeError(w, http.StatusBadRequest, codeInvalidConversionStatus, "unsupported conversion status")
	case errors.As(err, &convErr):
		writeError(w, http.StatusBadRequest, codeInvalidConversionStatus, convErr.Error())
	case errors.Is(err, domain.ErrStorageUnavailable):
		writeError(w, http.StatusServiceUnavailable, codeInternalError, "service temporarily unavailable")
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}
