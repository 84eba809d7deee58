package app

import (
	"context"
	"time"

	"github.com/wanderpath/booking-api/internal/domain"
)

type AvailabilityRepository interface {
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
	ListAvailable(ctx context.Context, productID string, from, to time.Time, units int) ([]domain.AvailabilitySlot, error)
}

// AvailabilityService is the read side of the inventory ledger.
type AvailabilityService struct {
	repo AvailabilityRepository
}

func NewAvailabilityService(repo AvailabilityRepository) *AvailabilityService {
	return &AvailabilityService{repo: repo}
}

type CheckAvailabilityInput struct {
	ProductID      string
	LocalDateStart time.Time
	LocalDateEnd   time.Time
	Units          int
}

// CheckAvailability returns every slot in range that can still take the
// requested units. No side effects; the answer can be stale by the time a
// hold is attempted, which the conditional decrement covers.
func (s *AvailabilityService) CheckAvailability(ctx context.Context, in CheckAvailabilityInput) ([]domain.AvailabilitySlot, error) {
	if in.ProductID == "" {
		return nil, domain.ErrInvalidRequest
	}
	if in.Units <= 0 {
		return nil, domain.ErrInvalidUnits
	}
	if in.LocalDateEnd.Before(in.LocalDateStart) {
		return nil, domain.ErrInvalidRequest
	}

	product, err := s.repo.GetProduct(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}
	slots, err := s.repo.ListAvailable(ctx, in.ProductID, in.LocalDateStart, in.LocalDateEnd, in.Units)
	if err != nil {
		return nil, err
	}

	if d, err := time.ParseDuration(product.Duration); err == nil && d > 0 {
		for i := range slots {
			slots[i].EndTime = endTime(slots[i].StartTime, d)
		}
	}
	return slots, nil
}

// endTime adds the tour duration to an HH:MM start, wrapping past midnight.
func endTime(start string, d time.Duration) string {
	t, err := time.Parse("15:04", start)
	if err != nil {
		return ""
	}
	return t.Add(d).Format("15:04")
}
