package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/wanderpath/booking-api/internal/app"
	"github.com/wanderpath/booking-api/internal/domain"
	"github.com/wanderpath/booking-api/internal/metrics"
)

// BookingService is the surface the booking handlers need.
type BookingService interface {
	CreateBooking(ctx context.Context, in app.CreateBookingInput) (domain.Booking, error)
	ConfirmBooking(ctx context.Context, uuid string) (domain.Booking, error)
	CancelBooking(ctx context.Context, uuid, reason string) (domain.Booking, error)
	GetBooking(ctx context.Context, key, principal string) (domain.Booking, error)
}

// HandleCreateBooking returns the handler for POST /bookings.
func HandleCreateBooking(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req createBookingRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid request body")
			return
		}

		in, err := req.toInput()
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
			return
		}
		in.Principal = PrincipalFromContext(r.Context())

		booking, err := svc.CreateBooking(r.Context(), in)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		metrics.IncBookingTransition(string(domain.BookingOnHold))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(newBookingResponse(booking))
	}
}

// HandleConfirmBooking returns the handler for POST /bookings/confirm.
func HandleConfirmBooking(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uuid, ok := decodeUUIDBody(w, r)
		if !ok {
			return
		}

		booking, err := svc.ConfirmBooking(r.Context(), uuid)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		metrics.IncBookingTransition(string(domain.BookingConfirmed))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(newBookingResponse(booking))
	}
}

// HandleCancelBooking returns the handler for POST /bookings/cancel.
func HandleCancelBooking(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req cancelBookingRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid request body")
			return
		}
		if req.UUID == "" {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, "uuid is required")
			return
		}

		booking, err := svc.CancelBooking(r.Context(), req.UUID, req.Reason)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		metrics.IncBookingTransition(string(domain.BookingCancelled))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(newBookingResponse(booking))
	}
}

// HandleGetBooking returns the handler for GET /bookings/{uuid-or-reference}.
func HandleGetBooking(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		key, ok := parseBookingPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		booking, err := svc.GetBooking(r.Context(), key, PrincipalFromContext(r.Context()))
		if err != nil {
			writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(newBookingResponse(booking))
	}
}

func decodeUUIDBody(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		return "", false
	}

	var req struct {
		UUID string `json:"uuid"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid request body")
		return "", false
	}
	if req.UUID == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "uuid is required")
		return "", false
	}
	return req.UUID, true
}

func parseBookingPath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[0] != "bookings" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

type createBookingRequest struct {
	ProductID      string         `json:"productId"`
	AvailabilityID string         `json:"availabilityId"`
	LocalDate      string         `json:"localDate"`
	Units          int            `json:"units"`
	Contact        contactPayload `json:"contact"`
	Notes          string         `json:"notes"`
}

type contactPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (r createBookingRequest) toInput() (app.CreateBookingInput, error) {
	if r.ProductID == "" || r.LocalDate == "" || r.Units <= 0 {
		return app.CreateBookingInput{}, domain.ErrInvalidRequest
	}
	date, err := time.Parse(dateLayout, r.LocalDate)
	if err != nil {
		return app.CreateBookingInput{}, domain.ErrInvalidRequest
	}
	return app.CreateBookingInput{
		ProductID:      r.ProductID,
		AvailabilityID: r.AvailabilityID,
		LocalDate:      date,
		Units:          r.Units,
		Contact: domain.Contact{
			Name:  r.Contact.Name,
			Email: r.Contact.Email,
			Phone: r.Contact.Phone,
		},
		Notes: r.Notes,
	}, nil
}

type cancelBookingRequest struct {
	UUID   string `json:"uuid"`
	Reason string `json:"reason"`
}

type bookingResponse struct {
	UUID             string         `json:"uuid"`
	BookingReference string         `json:"bookingReference"`
	Status           string         `json:"status"`
	ProductID        string         `json:"productId"`
	AvailabilityID   string         `json:"availabilityId"`
	LocalDate        string         `json:"localDate"`
	Units            int            `json:"units"`
	Contact          contactPayload `json:"contact"`
	Notes            string         `json:"notes,omitempty"`
	CancelReason     string         `json:"cancelReason,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	ConfirmedAt      *time.Time     `json:"confirmedAt,omitempty"`
	CancelledAt      *time.Time     `json:"cancelledAt,omitempty"`
}

func newBookingResponse(b domain.Booking) bookingResponse {
	return bookingResponse{
		UUID:             b.UUID,
		BookingReference: b.Reference,
		Status:           string(b.Status),
		ProductID:        b.ProductID,
		AvailabilityID:   b.AvailabilityID,
		LocalDate:        b.LocalDate.Format(dateLayout),
		Units:            b.Units,
		Contact: contactPayload{
			Name:  b.Contact.Name,
			Email: b.Contact.Email,
			Phone: b.Contact.Phone,
		},
		Notes:        b.Notes,
		CancelReason: b.CancelReason,
		CreatedAt:    b.CreatedAt,
		ConfirmedAt:  b.ConfirmedAt,
		CancelledAt:  b.CancelledAt,
	}
}
