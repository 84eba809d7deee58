package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/wanderpath/booking-api/internal/app"
	"github.com/wanderpath/booking-api/internal/domain"
)

const dateLayout = "2006-01-02"

// AvailabilityChecker is the minimal interface needed for availability reads.
type AvailabilityChecker interface {
	CheckAvailability(ctx context.Context, in app.CheckAvailabilityInput) ([]domain.AvailabilitySlot, error)
}

// HandleAvailability returns the handler for POST /availability.
func HandleAvailability(svc AvailabilityChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req availabilityRequest
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

		slots, err := svc.CheckAvailability(r.Context(), in)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := make([]availabilitySlotResponse, 0, len(slots))
		for _, slot := range slots {
			resp = append(resp, newSlotResponse(slot))
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

type availabilityRequest struct {
	ProductID      string `json:"productId"`
	LocalDateStart string `json:"localDateStart"`
	LocalDateEnd   string `json:"localDateEnd"`
	Units          int    `json:"units"`
}

func (r availabilityRequest) toInput() (app.CheckAvailabilityInput, error) {
	if r.ProductID == "" || r.LocalDateStart == "" || r.LocalDateEnd == "" || r.Units <= 0 {
		return app.CheckAvailabilityInput{}, domain.ErrInvalidRequest
	}
	start, err := time.Parse(dateLayout, r.LocalDateStart)
	if err != nil {
		return app.CheckAvailabilityInput{}, domain.ErrInvalidRequest
	}
	end, err := time.Parse(dateLayout, r.LocalDateEnd)
	if err != nil {
		return app.CheckAvailabilityInput{}, domain.ErrInvalidRequest
	}
	return app.CheckAvailabilityInput{
		ProductID:      r.ProductID,
		LocalDateStart: start,
		LocalDateEnd:   end,
		Units:          r.Units,
	}, nil
}

type availabilitySlotResponse struct {
	ID                 string `json:"id"`
	ProductID          string `json:"productId"`
	LocalDate          string `json:"localDate"`
	Status             string `json:"status"`
	Vacancies          int    `json:"vacancies"`
	Available          bool   `json:"available"`
	LocalDateTimeStart string `json:"localDateTimeStart,omitempty"`
	LocalDateTimeEnd   string `json:"localDateTimeEnd,omitempty"`
}

func newSlotResponse(slot domain.AvailabilitySlot) availabilitySlotResponse {
	resp := availabilitySlotResponse{
		ID:        slot.ID,
		ProductID: slot.ProductID,
		LocalDate: slot.LocalDate.Format(dateLayout),
		Status:    string(slot.Status),
		Vacancies: slot.Vacancies,
		Available: slot.Available(),
	}
	if slot.StartTime != "" {
		resp.LocalDateTimeStart = slot.LocalDate.Format(dateLayout) + "T" + slot.StartTime
	}
	if slot.EndTime != "" {
		resp.LocalDateTimeEnd = slot.LocalDate.Format(dateLayout) + "T" + slot.EndTime
	}
	return resp
}
