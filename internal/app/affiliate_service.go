package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/wanderpath/booking-api/internal/clock"
	"github.com/wanderpath/booking-api/internal/config"
	"github.com/wanderpath/booking-api/internal/domain"
)

type AffiliateRepository interface {
	UpsertLink(ctx context.Context, link domain.AffiliateLink) (domain.AffiliateLink, error)
	GetLinkByCode(ctx context.Context, code string) (domain.AffiliateLink, error)
	CreateClick(ctx context.Context, click domain.AffiliateClick) error
	CreateConversion(ctx context.Context, conv domain.AffiliateConversion) error
	GetConversion(ctx context.Context, id string) (domain.AffiliateConversion, error)
	UpdateConversionStatus(ctx context.Context, id string, from []domain.ConversionStatus, to domain.ConversionStatus, at time.Time) (domain.AffiliateConversion, bool, error)
	SummaryByProvider(ctx context.Context) ([]domain.AffiliateSummary, error)
}

// AffiliateService owns the click→conversion→commission lifecycle. Rates and
// partner ids come from the injected config, never from package globals.
type AffiliateService struct {
	repo  AffiliateRepository
	clock clock.Clock
	cfg   config.AffiliateConfig
}

func NewAffiliateService(repo AffiliateRepository, clk clock.Clock, cfg config.AffiliateConfig) *AffiliateService {
	if cfg.DefaultRate <= 0 {
		cfg.DefaultRate = config.DefaultCommissionRate
	}
	return &AffiliateService{repo: repo, clock: clk, cfg: cfg}
}

type GenerateLinkInput struct {
	Provider    string
	TourID      string
	TourTitle   string
	Destination string
	BaseURL     string
}

// GenerateLink upserts the (provider, tourID) link. The tracking code is a
// stable hash of the key, so concurrent generation converges on one row and a
// regenerated link keeps the code it already issued.
func (s *AffiliateService) GenerateLink(ctx context.Context, in GenerateLinkInput) (domain.AffiliateLink, error) {
	if in.Provider == "" || in.TourID == "" || in.BaseURL == "" {
		return domain.AffiliateLink{}, domain.ErrInvalidRequest
	}

	code := trackingCode(in.Provider, in.TourID)
	affiliateURL, err := s.buildAffiliateURL(in.BaseURL, in.Provider, code)
	if err != nil {
		return domain.AffiliateLink{}, domain.ErrInvalidRequest
	}

	now := s.clock.Now()
	return s.repo.UpsertLink(ctx, domain.AffiliateLink{
		Provider:     in.Provider,
		TourID:       in.TourID,
		TourTitle:    in.TourTitle,
		Destination:  in.Destination,
		TrackingCode: code,
		AffiliateURL: affiliateURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

type RecordClickInput struct {
	TrackingCode string
	Principal    string
	Session      string
	IP           string
	UserAgent    string
	Referrer     string
}

type RecordClickResult struct {
	Click       domain.AffiliateClick
	RedirectURL string
}

// RecordClick appends a click against a known tracking code and returns the
// stored affiliate URL for the caller to redirect to.
func (s *AffiliateService) RecordClick(ctx context.Context, in RecordClickInput) (RecordClickResult, error) {
	if in.TrackingCode == "" {
		return RecordClickResult{}, domain.ErrUnknownTrackingCode
	}

	link, err := s.repo.GetLinkByCode(ctx, in.TrackingCode)
	if err != nil {
		return RecordClickResult{}, err
	}

	click := domain.AffiliateClick{
		ID:           newID(),
		TrackingCode: link.TrackingCode,
		Principal:    in.Principal,
		Session:      in.Session,
		IP:           in.IP,
		UserAgent:    in.UserAgent,
		Referrer:     in.Referrer,
		ClickedAt:    s.clock.Now(),
	}
	if err := s.repo.CreateClick(ctx, click); err != nil {
		return RecordClickResult{}, err
	}
	return RecordClickResult{Click: click, RedirectURL: link.AffiliateURL}, nil
}

type RecordConversionInput struct {
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
}

// RecordConversion snapshots the commission for a completed booking. The rate
// is resolved once from the provider table and fixed for the lifetime of the
// conversion, even if the table changes later.
func (s *AffiliateService) RecordConversion(ctx context.Context, in RecordConversionInput) (domain.AffiliateConversion, error) {
	if in.TrackingCode == "" || in.Provider == "" {
		return domain.AffiliateConversion{}, domain.ErrInvalidRequest
	}
	if in.BookingAmount < 0 {
		return domain.AffiliateConversion{}, domain.ErrInvalidRequest
	}
	if _, err := s.repo.GetLinkByCode(ctx, in.TrackingCode); err != nil {
		return domain.AffiliateConversion{}, err
	}

	currency := in.Currency
	if currency == "" {
		currency = "GBP"
	}

	rate := s.commissionRate(in.Provider)
	conv := domain.AffiliateConversion{
		ID:               newID(),
		TrackingCode:     in.TrackingCode,
		ClickID:          in.ClickID,
		Provider:         in.Provider,
		TourID:           in.TourID,
		Principal:        in.Principal,
		BookingReference: in.BookingReference,
		BookingDate:      in.BookingDate,
		TravelDate:       in.TravelDate,
		BookingAmount:    in.BookingAmount,
		Currency:         currency,
		CommissionRate:   rate,
		CommissionAmount: roundMoney(in.BookingAmount * rate / 100),
		Status:           domain.ConversionPending,
		CreatedAt:        s.clock.Now(),
	}
	if err := s.repo.CreateConversion(ctx, conv); err != nil {
		return domain.AffiliateConversion{}, err
	}
	return conv, nil
}

// UpdateConversionStatus advances the conversion lifecycle with a conditional
// update, stamping confirmed_at/paid_at exactly once. Strict flow enforces
// pending→confirmed→paid; cancelled is reachable from any non-paid state.
func (s *AffiliateService) UpdateConversionStatus(ctx context.Context, id string, target domain.ConversionStatus) (domain.AffiliateConversion, error) {
	if id == "" {
		return domain.AffiliateConversion{}, domain.ErrConversionNotFound
	}

	from, ok := s.allowedFrom(target)
	if !ok {
		return domain.AffiliateConversion{}, domain.ErrInvalidConversionStatus
	}

	conv, updated, err := s.repo.UpdateConversionStatus(ctx, id, from, target, s.clock.Now())
	if err != nil {
		return domain.AffiliateConversion{}, err
	}
	if !updated {
		current, err := s.repo.GetConversion(ctx, id)
		if err != nil {
			return domain.AffiliateConversion{}, err
		}
		return domain.AffiliateConversion{}, &domain.ConversionStatusError{Current: current.Status, Target: target}
	}
	return conv, nil
}

// Summary is a read-only grouped projection for the affiliate dashboard.
func (s *AffiliateService) Summary(ctx context.Context) ([]domain.AffiliateSummary, error) {
	return s.repo.SummaryByProvider(ctx)
}

func (s *AffiliateService) commissionRate(providerName string) float64 {
	if rate, ok := s.cfg.Rates[strings.ToLower(providerName)]; ok && rate > 0 {
		return rate
	}
	return s.cfg.DefaultRate
}

func (s *AffiliateService) allowedFrom(target domain.ConversionStatus) ([]domain.ConversionStatus, bool) {
	switch target {
	case domain.ConversionConfirmed:
		return []domain.ConversionStatus{domain.ConversionPending}, true
	case domain.ConversionPaid:
		if s.cfg.StrictFlow {
			return []domain.ConversionStatus{domain.ConversionConfirmed}, true
		}
		return []domain.ConversionStatus{domain.ConversionPending, domain.ConversionConfirmed}, true
	case domain.ConversionCancelled:
		return []domain.ConversionStatus{domain.ConversionPending, domain.ConversionConfirmed}, true
	default:
		return nil, false
	}
}

func (s *AffiliateService) buildAffiliateURL(baseURL, providerName, code string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	if partnerID, ok := s.cfg.PartnerIDs[strings.ToLower(providerName)]; ok && partnerID != "" {
		q.Set("partner_id", partnerID)
	}
	q.Set("sub_id", code)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// trackingCode derives a stable code from the link key so concurrent
// generation for the same (provider, tour) cannot mint two codes.
func trackingCode(providerName, tourID string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(providerName) + "|" + tourID))
	return strings.ToUpper(hex.EncodeToString(sum[:5]))
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
