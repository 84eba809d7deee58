package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/wanderpath/booking-api/internal/clock"
	"github.com/wanderpath/booking-api/internal/domain"
	"github.com/wanderpath/booking-api/internal/provider"
)

type BookingRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
	DecrementSlot(ctx context.Context, productID, availabilityID string, localDate time.Time, units int) (domain.AvailabilitySlot, error)
	RestoreSlot(ctx context.Context, availabilityID string, units int) error
	CreateBooking(ctx context.Context, booking domain.Booking) error
	GetBookingByUUID(ctx context.Context, uuid string) (domain.Booking, error)
	GetBookingByReference(ctx context.Context, reference string) (domain.Booking, error)
	MarkConfirmed(ctx context.Context, uuid string, at time.Time) (domain.Booking, bool, error)
	MarkCancelled(ctx context.Context, uuid, reason string, at time.Time) (domain.Booking, bool, error)
	ListStaleHolds(ctx context.Context, before time.Time, limit int) ([]string, error)
}

type BookingService struct {
	repo     BookingRepository
	clock    clock.Clock
	adapter  provider.Adapter
	logger   zerolog.Logger
	refTries int
}

const defaultReferenceTries = 3

func NewBookingService(repo BookingRepository, clk clock.Clock, opts ...BookingServiceOption) *BookingService {
	svc := &BookingService{
		repo:     repo,
		clock:    clk,
		adapter:  provider.Noop{},
		logger:   zerolog.Nop(),
		refTries: defaultReferenceTries,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type BookingServiceOption func(*BookingService)

// WithProviderAdapter sets the external supplier notified after a confirm.
func WithProviderAdapter(a provider.Adapter) BookingServiceOption {
	return func(s *BookingService) {
		if a != nil {
			s.adapter = a
		}
	}
}

func WithBookingLogger(l zerolog.Logger) BookingServiceOption {
	return func(s *BookingService) {
		s.logger = l
	}
}

type CreateBookingInput struct {
	ProductID string
	// AvailabilityID pins the hold to a specific slot; empty means the
	// earliest eligible slot for the date.
	AvailabilityID string
	LocalDate      time.Time
	Units          int
	Contact        domain.Contact
	Notes          string
	Principal      string
}

// CreateBooking places a hold: the slot decrement and the booking insert share
// one transaction, so a failed hold leaves neither a booking nor a ledger
// change. The returned booking is ON_HOLD and already owns its units.
func (s *BookingService) CreateBooking(ctx context.Context, in CreateBookingInput) (domain.Booking, error) {
	if in.ProductID == "" {
		return domain.Booking{}, domain.ErrInvalidProduct
	}
	if in.Units <= 0 {
		return domain.Booking{}, domain.ErrInvalidUnits
	}

	now := s.clock.Now()
	var result domain.Booking

	// The reference is random; a collision aborts the transaction, so retry
	// the whole hold a bounded number of times with a fresh reference.
	var err error
	for attempt := 0; attempt < s.refTries; attempt++ {
		err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
			if _, err := s.repo.GetProduct(txCtx, in.ProductID); err != nil {
				return err
			}

			slot, err := s.repo.DecrementSlot(txCtx, in.ProductID, in.AvailabilityID, in.LocalDate, in.Units)
			if err != nil {
				return err
			}

			booking := domain.Booking{
				UUID:           newID(),
				Reference:      newBookingReference(),
				ProductID:      in.ProductID,
				AvailabilityID: slot.ID,
				LocalDate:      slot.LocalDate,
				Units:          in.Units,
				Contact:        in.Contact,
				Notes:          in.Notes,
				Principal:      in.Principal,
				Status:         domain.BookingOnHold,
				CreatedAt:      now,
			}
			if err := s.repo.CreateBooking(txCtx, booking); err != nil {
				return err
			}

			result = booking
			return nil
		})
		if !errors.Is(err, domain.ErrReferenceConflict) {
			break
		}
	}
	if err != nil {
		return domain.Booking{}, err
	}
	return result, nil
}

// ConfirmBooking finalizes a hold. The transition is a single conditional
// update, so concurrent confirms on one uuid cannot both succeed; the loser
// observes an InvalidStatusError carrying the terminal status.
func (s *BookingService) ConfirmBooking(ctx context.Context, uuid string) (domain.Booking, error) {
	if uuid == "" {
		return domain.Booking{}, domain.ErrBookingNotFound
	}

	now := s.clock.Now()
	booking, updated, err := s.repo.MarkConfirmed(ctx, uuid, now)
	if err != nil {
		return domain.Booking{}, err
	}
	if !updated {
		current, err := s.repo.GetBookingByUUID(ctx, uuid)
		if err != nil {
			return domain.Booking{}, err
		}
		return domain.Booking{}, &domain.InvalidStatusError{Op: "confirm", Current: current.Status}
	}

	s.notifySupplier(ctx, booking)
	return booking, nil
}

// CancelBooking abandons a hold and hands its units back to the ledger. The
// status change and the restore share a transaction; the conditional update on
// ON_HOLD guarantees the restore runs at most once per booking.
func (s *BookingService) CancelBooking(ctx context.Context, uuid, reason string) (domain.Booking, error) {
	if uuid == "" {
		return domain.Booking{}, domain.ErrBookingNotFound
	}

	now := s.clock.Now()
	var result domain.Booking

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		booking, updated, err := s.repo.MarkCancelled(txCtx, uuid, reason, now)
		if err != nil {
			return err
		}
		if !updated {
			current, err := s.repo.GetBookingByUUID(txCtx, uuid)
			if err != nil {
				return err
			}
			return &domain.InvalidStatusError{Op: "cancel", Current: current.Status}
		}
		if err := s.repo.RestoreSlot(txCtx, booking.AvailabilityID, booking.Units); err != nil {
			return err
		}
		result = booking
		return nil
	})
	if err != nil {
		return domain.Booking{}, err
	}
	return result, nil
}

// GetBooking resolves a uuid or a human reference. When a principal is given
// the result is scoped to bookings owned by it.
func (s *BookingService) GetBooking(ctx context.Context, key, principal string) (domain.Booking, error) {
	if key == "" {
		return domain.Booking{}, domain.ErrBookingNotFound
	}

	booking, err := s.repo.GetBookingByUUID(ctx, key)
	if errors.Is(err, domain.ErrBookingNotFound) || errors.Is(err, domain.ErrInvalidID) {
		booking, err = s.repo.GetBookingByReference(ctx, key)
	}
	if err != nil {
		return domain.Booking{}, err
	}

	if principal != "" && booking.Principal != "" && booking.Principal != principal {
		return domain.Booking{}, domain.ErrBookingNotFound
	}
	return booking, nil
}

// notifySupplier forwards a confirmed booking to the external tour supplier.
// The booking is already committed; supplier failures are logged, not surfaced.
func (s *BookingService) notifySupplier(ctx context.Context, booking domain.Booking) {
	if _, err := s.adapter.Book(ctx, provider.BookRequest{
		ProductID: booking.ProductID,
		Reference: booking.Reference,
		Date:      booking.LocalDate,
		Units:     booking.Units,
	}); err != nil {
		s.logger.Warn().Err(err).
			Str("booking_uuid", booking.UUID).
			Msg("supplier booking notification failed")
	}
}
