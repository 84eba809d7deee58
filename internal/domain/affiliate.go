package domain

import "time"

// AffiliateLink maps (provider, tourID) to a tracking code. The code is
// immutable once issued; regenerating the link only refreshes the URL.
type AffiliateLink struct {
	Provider     string
	TourID       string
	TourTitle    string
	Destination  string
	TrackingCode string
	AffiliateURL string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AffiliateClick is an append-only record of a tracked redirect.
type AffiliateClick struct {
	ID           string
	TrackingCode string
	Principal    string
	Session      string
	IP           string
	UserAgent    string
	Referrer     string
	ClickedAt    time.Time
}

type ConversionStatus string

const (
	ConversionPending   ConversionStatus = "pending"
	ConversionConfirmed ConversionStatus = "confirmed"
	ConversionPaid      ConversionStatus = "paid"
	ConversionCancelled ConversionStatus = "cancelled"
)

// AffiliateConversion records a completed booking attributed to a tracking
// code. CommissionRate and CommissionAmount are snapshotted at creation and
// never recomputed when the rate table changes.
type AffiliateConversion struct {
	ID               string
	TrackingCode     string
	ClickID          string
	Provider         string
	TourID           string
	Principal        string
	BookingReference string
	BookingDate      time.Time
	TravelDate       time.Time
	BookingAmount    float64
	Currency         string
	CommissionRate   float64
	CommissionAmount float64
	Status           ConversionStatus
	CreatedAt        time.Time
	ConfirmedAt      *time.Time
	PaidAt           *time.Time
}

// AffiliateSummary is a read-only projection over clicks and conversions.
type AffiliateSummary struct {
	Provider         string
	Clicks           int
	Conversions      int
	PendingAmount    float64
	ConfirmedAmount  float64
	PaidAmount       float64
	TotalCommission  float64
	TotalBookingsGBP float64
}
