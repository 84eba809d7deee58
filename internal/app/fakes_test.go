package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wanderpath/booking-api/internal/domain"
	"github.com/wanderpath/booking-api/internal/provider"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

// fakeBookingRepo is an in-memory BookingRepository. A single mutex stands in
// for the row locks the real store takes, which is enough to exercise the
// conditional-transition semantics the services rely on.
type fakeBookingRepo struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	products map[string]domain.Product
	slots    map[string]*domain.AvailabilitySlot
	bookings map[string]*domain.Booking
	refs     map[string]string

	refConflicts int
	createCalls  int
}

func newFakeBookingRepo() *fakeBookingRepo {
	return &fakeBookingRepo{
		products: make(map[string]domain.Product),
		slots:    make(map[string]*domain.AvailabilitySlot),
		bookings: make(map[string]*domain.Booking),
		refs:     make(map[string]string),
	}
}

func (f *fakeBookingRepo) addProduct(id string) {
	f.products[id] = domain.Product{ID: id, Title: "Tour " + id, Currency: "GBP"}
}

func (f *fakeBookingRepo) addSlot(id, productID string, localDate time.Time, vacancies int) {
	status := domain.SlotAvailable
	if vacancies == 0 {
		status = domain.SlotSoldOut
	}
	f.slots[id] = &domain.AvailabilitySlot{
		ID:        id,
		ProductID: productID,
		LocalDate: localDate,
		Vacancies: vacancies,
		Status:    status,
	}
}

func (f *fakeBookingRepo) addBooking(b domain.Booking) {
	copied := b
	f.bookings[b.UUID] = &copied
	if b.Reference != "" {
		f.refs[b.Reference] = b.UUID
	}
}

// WithTx mimics the real store's all-or-nothing behavior: state is
// snapshotted up front and restored when the callback fails.
func (f *fakeBookingRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.txMu.Lock()
	defer f.txMu.Unlock()

	f.mu.Lock()
	slots := make(map[string]*domain.AvailabilitySlot, len(f.slots))
	for id, slot := range f.slots {
		copied := *slot
		slots[id] = &copied
	}
	bookings := make(map[string]*domain.Booking, len(f.bookings))
	for uuid, b := range f.bookings {
		copied := *b
		bookings[uuid] = &copied
	}
	refs := make(map[string]string, len(f.refs))
	for ref, uuid := range f.refs {
		refs[ref] = uuid
	}
	f.mu.Unlock()

	if err := fn(ctx); err != nil {
		f.mu.Lock()
		f.slots = slots
		f.bookings = bookings
		f.refs = refs
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *fakeBookingRepo) GetProduct(_ context.Context, productID string) (domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[productID]
	if !ok {
		return domain.Product{}, domain.ErrInvalidProduct
	}
	return p, nil
}

func (f *fakeBookingRepo) DecrementSlot(_ context.Context, productID, availabilityID string, localDate time.Time, units int) (domain.AvailabilitySlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	seen := false
	for _, slot := range f.slots {
		if slot.ProductID != productID || !slot.LocalDate.Equal(localDate) {
			continue
		}
		if availabilityID != "" && slot.ID != availabilityID {
			continue
		}
		seen = true
		if slot.Status != domain.SlotAvailable || slot.Vacancies < units {
			continue
		}
		slot.Vacancies -= units
		if slot.Vacancies == 0 {
			slot.Status = domain.SlotSoldOut
		}
		return *slot, nil
	}
	if !seen {
		return domain.AvailabilitySlot{}, domain.ErrSlotNotFound
	}
	return domain.AvailabilitySlot{}, domain.ErrInsufficientCapacity
}

func (f *fakeBookingRepo) RestoreSlot(_ context.Context, availabilityID string, units int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	slot, ok := f.slots[availabilityID]
	if !ok {
		return domain.ErrSlotNotFound
	}
	slot.Vacancies += units
	if slot.Status == domain.SlotSoldOut {
		slot.Status = domain.SlotAvailable
	}
	return nil
}

func (f *fakeBookingRepo) CreateBooking(_ context.Context, booking domain.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.refConflicts > 0 {
		f.refConflicts--
		return domain.ErrReferenceConflict
	}
	if _, exists := f.refs[booking.Reference]; exists {
		return domain.ErrReferenceConflict
	}
	copied := booking
	f.bookings[booking.UUID] = &copied
	f.refs[booking.Reference] = booking.UUID
	return nil
}

func (f *fakeBookingRepo) GetBookingByUUID(_ context.Context, uuid string) (domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[uuid]
	if !ok {
		return domain.Booking{}, domain.ErrBookingNotFound
	}
	return *b, nil
}

func (f *fakeBookingRepo) GetBookingByReference(_ context.Context, reference string) (domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	uuid, ok := f.refs[reference]
	if !ok {
		return domain.Booking{}, domain.ErrBookingNotFound
	}
	return *f.bookings[uuid], nil
}

func (f *fakeBookingRepo) MarkConfirmed(_ context.Context, uuid string, at time.Time) (domain.Booking, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[uuid]
	if !ok {
		return domain.Booking{}, false, domain.ErrBookingNotFound
	}
	if b.Status != domain.BookingOnHold {
		return domain.Booking{}, false, nil
	}
	b.Status = domain.BookingConfirmed
	confirmedAt := at
	b.ConfirmedAt = &confirmedAt
	return *b, true, nil
}

func (f *fakeBookingRepo) MarkCancelled(_ context.Context, uuid, reason string, at time.Time) (domain.Booking, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[uuid]
	if !ok {
		return domain.Booking{}, false, domain.ErrBookingNotFound
	}
	if b.Status != domain.BookingOnHold {
		return domain.Booking{}, false, nil
	}
	b.Status = domain.BookingCancelled
	b.CancelReason = reason
	cancelledAt := at
	b.CancelledAt = &cancelledAt
	return *b, true, nil
}

func (f *fakeBookingRepo) ListStaleHolds(_ context.Context, before time.Time, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var uuids []string
	for uuid, b := range f.bookings {
		if b.Status == domain.BookingOnHold && b.CreatedAt.Before(before) {
			uuids = append(uuids, uuid)
			if len(uuids) == limit {
				break
			}
		}
	}
	return uuids, nil
}

// recordingAdapter captures supplier calls made by the booking service.
type recordingAdapter struct {
	mu     sync.Mutex
	booked []provider.BookRequest
	err    error
}

func (a *recordingAdapter) Search(context.Context, provider.SearchRequest) ([]provider.TourSummary, error) {
	return nil, nil
}

func (a *recordingAdapter) Detail(context.Context, string) (provider.TourSummary, error) {
	return provider.TourSummary{}, nil
}

func (a *recordingAdapter) Book(_ context.Context, req provider.BookRequest) (provider.BookResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return provider.BookResult{}, a.err
	}
	a.booked = append(a.booked, req)
	return provider.BookResult{SupplierReference: "SUP-" + req.Reference}, nil
}

func (a *recordingAdapter) Cancel(context.Context, string) error {
	return nil
}

// fakeAffiliateRepo is an in-memory AffiliateRepository.
type fakeAffiliateRepo struct {
	mu          sync.Mutex
	links       map[string]domain.AffiliateLink // keyed by provider|tourID
	linksByCode map[string]domain.AffiliateLink
	clicks      []domain.AffiliateClick
	conversions map[string]*domain.AffiliateConversion
}

func newFakeAffiliateRepo() *fakeAffiliateRepo {
	return &fakeAffiliateRepo{
		links:       make(map[string]domain.AffiliateLink),
		linksByCode: make(map[string]domain.AffiliateLink),
		conversions: make(map[string]*domain.AffiliateConversion),
	}
}

func (f *fakeAffiliateRepo) UpsertLink(_ context.Context, link domain.AffiliateLink) (domain.AffiliateLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := link.Provider + "|" + link.TourID
	if existing, ok := f.links[key]; ok {
		// The tracking code survives regeneration, as in the real store.
		link.TrackingCode = existing.TrackingCode
		link.CreatedAt = existing.CreatedAt
	}
	f.links[key] = link
	f.linksByCode[link.TrackingCode] = link
	return link, nil
}

func (f *fakeAffiliateRepo) GetLinkByCode(_ context.Context, code string) (domain.AffiliateLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	link, ok := f.linksByCode[code]
	if !ok {
		return domain.AffiliateLink{}, domain.ErrUnknownTrackingCode
	}
	return link, nil
}

func (f *fakeAffiliateRepo) CreateClick(_ context.Context, click domain.AffiliateClick) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clicks = append(f.clicks, click)
	return nil
}

func (f *fakeAffiliateRepo) CreateConversion(_ context.Context, conv domain.AffiliateConversion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := conv
	f.conversions[conv.ID] = &copied
	return nil
}

func (f *fakeAffiliateRepo) GetConversion(_ context.Context, id string) (domain.AffiliateConversion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.conversions[id]
	if !ok {
		return domain.AffiliateConversion{}, domain.ErrConversionNotFound
	}
	return *conv, nil
}

func (f *fakeAffiliateRepo) UpdateConversionStatus(_ context.Context, id string, from []domain.ConversionStatus, to domain.ConversionStatus, at time.Time) (domain.AffiliateConversion, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.conversions[id]
	if !ok {
		return domain.AffiliateConversion{}, false, domain.ErrConversionNotFound
	}

	matched := false
	for _, status := range from {
		if conv.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return domain.AffiliateConversion{}, false, nil
	}

	conv.Status = to
	switch to {
	case domain.ConversionConfirmed:
		ts := at
		conv.ConfirmedAt = &ts
	case domain.ConversionPaid:
		ts := at
		conv.PaidAt = &ts
	}
	return *conv, true, nil
}

func (f *fakeAffiliateRepo) SummaryByProvider(_ context.Context) ([]domain.AffiliateSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	byProvider := make(map[string]*domain.AffiliateSummary)
	for _, conv := range f.conversions {
		s, ok := byProvider[conv.Provider]
		if !ok {
			s = &domain.AffiliateSummary{Provider: conv.Provider}
			byProvider[conv.Provider] = s
		}
		s.Conversions++
		s.TotalCommission += conv.CommissionAmount
		s.TotalBookingsGBP += conv.BookingAmount
		switch conv.Status {
		case domain.ConversionPending:
			s.PendingAmount += conv.CommissionAmount
		case domain.ConversionConfirmed:
			s.ConfirmedAmount += conv.CommissionAmount
		case domain.ConversionPaid:
			s.PaidAmount += conv.CommissionAmount
		}
	}

	summaries := make([]domain.AffiliateSummary, 0, len(byProvider))
	for _, s := range byProvider {
		summaries = append(summaries, *s)
	}
	return summaries, nil
}
