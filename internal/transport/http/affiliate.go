package http

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/wanderpath/booking-api/internal/app"
	"github.com/wanderpath/booking-api/internal/domain"
	"github.com/wanderpath/booking-api/internal/metrics"
)

// AffiliateService is the surface the affiliate handlers need.
type AffiliateService interface {
	GenerateLink(ctx context.Context, in app.GenerateLinkInput) (domain.AffiliateLink, error)
	RecordClick(ctx context.Context, in app.RecordClickInput) (app.RecordClickResult, error)
	RecordConversion(ctx context.Context, in app.RecordConversionInput) (domain.AffiliateConversion, error)
	UpdateConversionStatus(ctx context.Context, id string, target domain.ConversionStatus) (domain.AffiliateConversion, error)
	Summary(ctx context.Context) ([]domain.AffiliateSummary, error)
}

// HandleGenerateLink returns the handler for POST /affiliate/links.
func HandleGenerateLink(svc AffiliateService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req generateLinkRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid request body")
			return
		}
		if req.Provider == "" || req.TourID == "" || req.BaseURL == "" {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, "provider, tourId and baseUrl are required")
			return
		}

		link, err := svc.GenerateLink(r.Context(), app.GenerateLinkInput{
			Provider:    req.Provider,
			TourID:      req.TourID,
			TourTitle:   req.TourTitle,
			Destination: req.Destination,
			BaseURL:     req.BaseURL,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(linkResponse{
			Provider:     link.Provider,
			TourID:       link.TourID,
			TrackingCode: link.TrackingCode,
			AffiliateURL: link.AffiliateURL,
		})
	}
}

// HandleTrackClick returns the handler for GET /affiliate/track/{code}. It
// records the click and redirects the visitor to the stored affiliate URL.
func HandleTrackClick(svc AffiliateService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		code, ok := parseTrackPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		res, err := svc.RecordClick(r.Context(), app.RecordClickInput{
			TrackingCode: code,
			Principal:    PrincipalFromContext(r.Context()),
			Session:      r.Header.Get("X-Session-Id"),
			IP:           clientIP(r),
			UserAgent:    r.UserAgent(),
			Referrer:     r.Referer(),
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		w.Header().Set("X-Click-Id", res.Click.ID)
		http.Redirect(w, r, res.RedirectURL, http.StatusFound)
	}
}

// HandleRecordConversion returns the handler for POST /affiliate/conversions.
func HandleRecordConversion(svc AffiliateService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req conversionRequest
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

		conv, err := svc.RecordConversion(r.Context(), in)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		metrics.IncConversion(conv.Provider)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(newConversionResponse(conv))
	}
}

// HandleConversionStatus returns the handler for POST /affiliate/conversions/status.
func HandleConversionStatus(svc AffiliateService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req struct {
			ConversionID string `json:"conversionId"`
			Status       string `json:"status"`
		}
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid request body")
			return
		}
		if req.ConversionID == "" || req.Status == "" {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, "conversionId and status are required")
			return
		}

		conv, err := svc.UpdateConversionStatus(r.Context(), req.ConversionID, domain.ConversionStatus(req.Status))
		if err != nil {
			writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(newConversionResponse(conv))
	}
}

// HandleAffiliateSummary returns the handler for GET /affiliate/summary.
func HandleAffiliateSummary(svc AffiliateService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		rows, err := svc.Summary(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := make([]summaryResponse, 0, len(rows))
		for _, row := range rows {
			resp = append(resp, summaryResponse{
				Provider:        row.Provider,
				Clicks:          row.Clicks,
				Conversions:     row.Conversions,
				PendingAmount:   row.PendingAmount,
				ConfirmedAmount: row.ConfirmedAmount,
				PaidAmount:      row.PaidAmount,
				TotalCommission: row.TotalCommission,
				TotalBookings:   row.TotalBookingsGBP,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func parseTrackPath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[0] != "affiliate" || parts[1] != "track" || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type generateLinkRequest struct {
	Provider    string `json:"provider"`
	TourID      string `json:"tourId"`
	TourTitle   string `json:"tourTitle"`
	Destination string `json:"destination"`
	BaseURL     string `json:"baseUrl"`
}

type linkResponse struct {
	Provider     string `json:"provider"`
	TourID       string `json:"tourId"`
	TrackingCode string `json:"trackingCode"`
	AffiliateURL string `json:"affiliateUrl"`
}

type conversionRequest struct {
	TrackingCode     string  `json:"trackingCode"`
	ClickID          string  `json:"clickId"`
	Provider         string  `json:"provider"`
	TourID           string  `json:"tourId"`
	BookingReference string  `json:"bookingReference"`
	BookingDate      string  `json:"bookingDate"`
	TravelDate       string  `json:"travelDate"`
	BookingAmount    float64 `json:"bookingAmount"`
	Currency         string  `json:"currency"`
}

func (r conversionRequest) toInput() (app.RecordConversionInput, error) {
	if r.TrackingCode == "" || r.Provider == "" {
		return app.RecordConversionInput{}, domain.ErrInvalidRequest
	}
	in := app.RecordConversionInput{
		TrackingCode:     r.TrackingCode,
		ClickID:          r.ClickID,
		Provider:         r.Provider,
		TourID:           r.TourID,
		BookingReference: r.BookingReference,
		BookingAmount:    r.BookingAmount,
		Currency:         r.Currency,
	}
	if r.BookingDate != "" {
		parsed, err := time.Parse(dateLayout, r.BookingDate)
		if err != nil {
			return app.RecordConversionInput{}, domain.ErrInvalidRequest
		}
		in.BookingDate = parsed
	}
	if r.TravelDate != "" {
		parsed, err := time.Parse(dateLayout, r.TravelDate)
		if err != nil {
			return app.RecordConversionInput{}, domain.ErrInvalidRequest
		}
		in.TravelDate = parsed
	}
	return in, nil
}

type conversionResponse struct {
	ID               string     `json:"id"`
	TrackingCode     string     `json:"trackingCode"`
	ClickID          string     `json:"clickId,omitempty"`
	Provider         string     `json:"provider"`
	TourID           string     `json:"tourId,omitempty"`
	BookingReference string     `json:"bookingReference,omitempty"`
	BookingAmount    float64    `json:"bookingAmount"`
	Currency         string     `json:"currency"`
	CommissionRate   float64    `json:"commissionRate"`
	CommissionAmount float64    `json:"commissionAmount"`
	Status           string     `json:"status"`
	CreatedAt        time.Time  `json:"createdAt"`
	ConfirmedAt      *time.Time `json:"confirmedAt,omitempty"`
	PaidAt           *time.Time `json:"paidAt,omitempty"`
}

func newConversionResponse(c domain.AffiliateConversion) conversionResponse {
	return conversionResponse{
		ID:               c.ID,
		TrackingCode:     c.TrackingCode,
		ClickID:          c.ClickID,
		Provider:         c.Provider,
		TourID:           c.TourID,
		BookingReference: c.BookingReference,
		BookingAmount:    c.BookingAmount,
		Currency:         c.Currency,
		CommissionRate:   c.CommissionRate,
		CommissionAmount: c.CommissionAmount,
		Status:           string(c.Status),
		CreatedAt:        c.CreatedAt,
		ConfirmedAt:      c.ConfirmedAt,
		PaidAt:           c.PaidAt,
	}
}

type summaryResponse struct {
	Provider        string  `json:"provider"`
	Clicks          int     `json:"clicks"`
	Conversions     int     `json:"conversions"`
	PendingAmount   float64 `json:"pendingAmount"`
	ConfirmedAmount float64 `json:"confirmedAmount"`
	PaidAmount      float64 `json:"paidAmount"`
	TotalCommission float64 `json:"totalCommission"`
	TotalBookings   float64 `json:"totalBookings"`
}
