package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderpath/booking-api/internal/clock"
	"github.com/wanderpath/booking-api/internal/config"
	"github.com/wanderpath/booking-api/internal/domain"
)

func affiliateTestConfig() config.AffiliateConfig {
	return config.AffiliateConfig{
		DefaultRate: 8.0,
		Rates: map[string]float64{
			"viator":       8.0,
			"getyourguide": 10.0,
		},
		PartnerIDs: map[string]string{
			"viator": "P00123",
		},
		StrictFlow: true,
	}
}

func TestAffiliateService_GenerateLink(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("code is deterministic for the same provider and tour", func(t *testing.T) {
		repo := newFakeAffiliateRepo()
		svc := NewAffiliateService(repo, clock.NewFixed(now), affiliateTestConfig())

		first, err := svc.GenerateLink(context.Background(), GenerateLinkInput{
			Provider: "viator",
			TourID:   "tour-42",
			BaseURL:  "https://viator.example.com/tours/42",
		})
		require.NoError(t, err)
		require.Len(t, first.TrackingCode, 10)

		second, err := svc.GenerateLink(context.Background(), GenerateLinkInput{
			Provider: "Viator",
			TourID:   "tour-42",
			BaseURL:  "https://viator.example.com/tours/42?lang=en",
		})
		require.NoError(t, err)
		assert.Equal(t, first.TrackingCode, second.TrackingCode, "provider name casing must not change the code")
	})

	t.Run("url carries partner and sub ids", func(t *testing.T) {
		repo := newFakeAffiliateRepo()
		svc := NewAffiliateService(repo, clock.NewFixed(now), affiliateTestConfig())

		link, err := svc.GenerateLink(context.Background(), GenerateLinkInput{
			Provider: "viator",
			TourID:   "tour-42",
			BaseURL:  "https://viator.example.com/tours/42",
		})
		require.NoError(t, err)
		assert.Contains(t, link.AffiliateURL, "partner_id=P00123")
		assert.Contains(t, link.AffiliateURL, "sub_id="+link.TrackingCode)
	})

	t.Run("different tours get different codes", func(t *testing.T) {
		assert.NotEqual(t, trackingCode("viator", "tour-1"), trackingCode("viator", "tour-2"))
		assert.NotEqual(t, trackingCode("viator", "tour-1"), trackingCode("getyourguide", "tour-1"))
	})

	t.Run("rejects missing fields", func(t *testing.T) {
		repo := newFakeAffiliateRepo()
		svc := NewAffiliateService(repo, clock.NewFixed(now), affiliateTestConfig())

		_, err := svc.GenerateLink(context.Background(), GenerateLinkInput{Provider: "viator"})
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	})
}

func TestAffiliateService_RecordClick(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeAffiliateRepo()
	svc := NewAffiliateService(repo, clock.NewFixed(now), affiliateTestConfig())

	link, err := svc.GenerateLink(context.Background(), GenerateLinkInput{
		Provider: "viator",
		TourID:   "tour-42",
		BaseURL:  "https://viator.example.com/tours/42",
	})
	require.NoError(t, err)

	t.Run("stores the click and returns the redirect", func(t *testing.T) {
		result, err := svc.RecordClick(context.Background(), RecordClickInput{
			TrackingCode: link.TrackingCode,
			Session:      "sess-1",
			IP:           "203.0.113.9",
		})
		require.NoError(t, err)
		assert.Equal(t, link.AffiliateURL, result.RedirectURL)
		assert.NotEmpty(t, result.Click.ID)
		assert.Equal(t, now, result.Click.ClickedAt)
		require.Len(t, repo.clicks, 1)
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := svc.RecordClick(context.Background(), RecordClickInput{TrackingCode: "NOPE"})
		assert.ErrorIs(t, err, domain.ErrUnknownTrackingCode)
	})
}

func TestAffiliateService_RecordConversion(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	newService := func(t *testing.T) (*AffiliateService, domain.AffiliateLink) {
		t.Helper()
		repo := newFakeAffiliateRepo()
		svc := NewAffiliateService(repo, clock.NewFixed(now), affiliateTestConfig())
		link, err := svc.GenerateLink(context.Background(), GenerateLinkInput{
			Provider: "viator",
			TourID:   "tour-42",
			BaseURL:  "https://viator.example.com/tours/42",
		})
		require.NoError(t, err)
		return svc, link
	}

	t.Run("snapshots rate and amount", func(t *testing.T) {
		svc, link := newService(t)

		conv, err := svc.RecordConversion(context.Background(), RecordConversionInput{
			TrackingCode:  link.TrackingCode,
			Provider:      "viator",
			BookingAmount: 100,
			Currency:      "GBP",
		})
		require.NoError(t, err)
		assert.Equal(t, 8.0, conv.CommissionRate)
		assert.Equal(t, 8.00, conv.CommissionAmount)
		assert.Equal(t, domain.ConversionPending, conv.Status)
		assert.Nil(t, conv.ConfirmedAt)
		assert.Nil(t, conv.PaidAt)
	})

	t.Run("rounds commission to pennies", func(t *testing.T) {
		svc, link := newService(t)

		conv, err := svc.RecordConversion(context.Background(), RecordConversionInput{
			TrackingCode:  link.TrackingCode,
			Provider:      "getyourguide",
			BookingAmount: 33.33,
		})
		require.NoError(t, err)
		assert.Equal(t, 10.0, conv.CommissionRate)
		assert.Equal(t, 3.33, conv.CommissionAmount)
	})

	t.Run("unknown provider falls back to the default rate", func(t *testing.T) {
		svc, link := newService(t)

		conv, err := svc.RecordConversion(context.Background(), RecordConversionInput{
			TrackingCode:  link.TrackingCode,
			Provider:      "klook",
			BookingAmount: 50,
		})
		require.NoError(t, err)
		assert.Equal(t, 8.0, conv.CommissionRate)
		assert.Equal(t, 4.00, conv.CommissionAmount)
	})

	t.Run("unknown tracking code", func(t *testing.T) {
		svc, _ := newService(t)

		_, err := svc.RecordConversion(context.Background(), RecordConversionInput{
			TrackingCode:  "NOPE",
			Provider:      "viator",
			BookingAmount: 10,
		})
		assert.ErrorIs(t, err, domain.ErrUnknownTrackingCode)
	})

	t.Run("negative amount rejected", func(t *testing.T) {
		svc, link := newService(t)

		_, err := svc.RecordConversion(context.Background(), RecordConversionInput{
			TrackingCode:  link.TrackingCode,
			Provider:      "viator",
			BookingAmount: -1,
		})
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	})
}

func TestAffiliateService_UpdateConversionStatus(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	seed := func(t *testing.T, cfg config.AffiliateConfig) (*AffiliateService, string) {
		t.Helper()
		repo := newFakeAffiliateRepo()
		svc := NewAffiliateService(repo, clock.NewFixed(now), cfg)
		link, err := svc.GenerateLink(context.Background(), GenerateLinkInput{
			Provider: "viator",
			TourID:   "tour-42",
			BaseURL:  "https://viator.example.com/tours/42",
		})
		require.NoError(t, err)
		conv, err := svc.RecordConversion(context.Background(), RecordConversionInput{
			TrackingCode:  link.TrackingCode,
			Provider:      "viator",
			BookingAmount: 100,
		})
		require.NoError(t, err)
		return svc, conv.ID
	}

	t.Run("strict flow walks pending, confirmed, paid", func(t *testing.T) {
		svc, id := seed(t, affiliateTestConfig())

		conv, err := svc.UpdateConversionStatus(context.Background(), id, domain.ConversionConfirmed)
		require.NoError(t, err)
		assert.Equal(t, domain.ConversionConfirmed, conv.Status)
		require.NotNil(t, conv.ConfirmedAt)
		assert.Equal(t, now, *conv.ConfirmedAt)

		conv, err = svc.UpdateConversionStatus(context.Background(), id, domain.ConversionPaid)
		require.NoError(t, err)
		assert.Equal(t, domain.ConversionPaid, conv.Status)
		require.NotNil(t, conv.PaidAt)
	})

	t.Run("strict flow rejects pending to paid", func(t *testing.T) {
		svc, id := seed(t, affiliateTestConfig())

		_, err := svc.UpdateConversionStatus(context.Background(), id, domain.ConversionPaid)
		var statusErr *domain.ConversionStatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, domain.ConversionPending, statusErr.Current)
		assert.Equal(t, domain.ConversionPaid, statusErr.Target)
	})

	t.Run("permissive flow allows pending to paid", func(t *testing.T) {
		cfg := affiliateTestConfig()
		cfg.StrictFlow = false
		svc, id := seed(t, cfg)

		conv, err := svc.UpdateConversionStatus(context.Background(), id, domain.ConversionPaid)
		require.NoError(t, err)
		assert.Equal(t, domain.ConversionPaid, conv.Status)
	})

	t.Run("paid conversion cannot be cancelled", func(t *testing.T) {
		cfg := affiliateTestConfig()
		cfg.StrictFlow = false
		svc, id := seed(t, cfg)

		_, err := svc.UpdateConversionStatus(context.Background(), id, domain.ConversionPaid)
		require.NoError(t, err)

		_, err = svc.UpdateConversionStatus(context.Background(), id, domain.ConversionCancelled)
		var statusErr *domain.ConversionStatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, domain.ConversionPaid, statusErr.Current)
	})

	t.Run("pending conversion can be cancelled", func(t *testing.T) {
		svc, id := seed(t, affiliateTestConfig())

		conv, err := svc.UpdateConversionStatus(context.Background(), id, domain.ConversionCancelled)
		require.NoError(t, err)
		assert.Equal(t, domain.ConversionCancelled, conv.Status)
	})

	t.Run("pending is not a valid target", func(t *testing.T) {
		svc, id := seed(t, affiliateTestConfig())

		_, err := svc.UpdateConversionStatus(context.Background(), id, domain.ConversionPending)
		assert.ErrorIs(t, err, domain.ErrInvalidConversionStatus)
	})

	t.Run("unknown conversion", func(t *testing.T) {
		svc, _ := seed(t, affiliateTestConfig())

		_, err := svc.UpdateConversionStatus(context.Background(), "missing", domain.ConversionConfirmed)
		assert.ErrorIs(t, err, domain.ErrConversionNotFound)
	})
}

func TestRoundMoney(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 8.0, roundMoney(8.000001))
	assert.Equal(t, 3.33, roundMoney(33.33*10.0/100))
	assert.Equal(t, 0.0, roundMoney(0))
}
