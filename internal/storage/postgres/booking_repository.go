package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wanderpath/booking-api/internal/domain"
)

type BookingRepository struct {
	pool *pgxpool.Pool
}

func NewBookingRepository(pool *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func (r *BookingRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *BookingRepository) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	const query = `
SELECT id, title, slug, destination, duration, adult_price, child_price, infant_price, currency, operating_days, start_times
FROM products
WHERE id = $1`

	var p domain.Product
	var operatingDays, startTimes string
	err := r.queryRow(ctx, query, productID).Scan(
		&p.ID, &p.Title, &p.Slug, &p.Destination, &p.Duration,
		&p.AdultPrice, &p.ChildPrice, &p.InfantPrice, &p.Currency,
		&operatingDays, &startTimes,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Product{}, domain.ErrInvalidProduct
		}
		return domain.Product{}, wrapErr("get product", err)
	}
	p.OperatingDays = splitList(operatingDays)
	p.StartTimes = splitList(startTimes)
	return p, nil
}

// DecrementSlot subtracts units in one conditional UPDATE. With an
// availabilityID the client's chosen slot is targeted; otherwise the earliest
// eligible slot for the date is picked. Concurrent holds racing for the last
// units cannot both pass the vacancies guard; the loser sees
// ErrInsufficientCapacity.
func (r *BookingRepository) DecrementSlot(ctx context.Context, productID, availabilityID string, localDate time.Time, units int) (domain.AvailabilitySlot, error) {
	const earliestStmt = `
UPDATE availability
SET vacancies = vacancies - $3,
    status = CASE WHEN vacancies - $3 = 0 THEN 'SOLD_OUT' ELSE status END
WHERE id = (
	SELECT id FROM availability
	WHERE product_id = $1 AND local_date = $2 AND status = 'AVAILABLE' AND vacancies >= $3
	ORDER BY start_time
	LIMIT 1
	FOR UPDATE
)
RETURNING id, product_id, local_date, start_time, vacancies, status`

	const byIDStmt = `
UPDATE availability
SET vacancies = vacancies - $4,
    status = CASE WHEN vacancies - $4 = 0 THEN 'SOLD_OUT' ELSE status END
WHERE id = $3 AND product_id = $1 AND local_date = $2 AND status = 'AVAILABLE' AND vacancies >= $4
RETURNING id, product_id, local_date, start_time, vacancies, status`

	var row pgx.Row
	if availabilityID == "" {
		row = r.queryRow(ctx, earliestStmt, productID, localDate, units)
	} else {
		row = r.queryRow(ctx, byIDStmt, productID, localDate, availabilityID, units)
	}

	slot, err := scanSlot(row)
	if err == nil {
		return slot, nil
	}
	if isInvalidUUID(err) {
		return domain.AvailabilitySlot{}, domain.ErrSlotNotFound
	}
	if err != pgx.ErrNoRows {
		return domain.AvailabilitySlot{}, wrapErr("decrement slot", err)
	}

	// The guard failed: tell a missing slot apart from a lost capacity race.
	var exists bool
	var checkErr error
	if availabilityID == "" {
		checkErr = r.queryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM availability WHERE product_id = $1 AND local_date = $2)`,
			productID, localDate,
		).Scan(&exists)
	} else {
		checkErr = r.queryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM availability WHERE id = $3 AND product_id = $1 AND local_date = $2)`,
			productID, localDate, availabilityID,
		).Scan(&exists)
	}
	if checkErr != nil {
		return domain.AvailabilitySlot{}, wrapErr("check slot", checkErr)
	}
	if !exists {
		return domain.AvailabilitySlot{}, domain.ErrSlotNotFound
	}
	return domain.AvailabilitySlot{}, domain.ErrInsufficientCapacity
}

func (r *BookingRepository) RestoreSlot(ctx context.Context, availabilityID string, units int) error {
	const stmt = `
UPDATE availability
SET vacancies = vacancies + $2,
    status = CASE WHEN status = 'SOLD_OUT' THEN 'AVAILABLE' ELSE status END
WHERE id = $1`

	tag, err := r.exec(ctx, stmt, availabilityID, units)
	if err != nil {
		return wrapErr("restore slot", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSlotNotFound
	}
	return nil
}

func (r *BookingRepository) CreateBooking(ctx context.Context, b domain.Booking) error {
	const stmt = `
INSERT INTO bookings (uuid, reference, product_id, availability_id, local_date, units,
	contact_name, contact_email, contact_phone, notes, principal, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.exec(ctx, stmt,
		b.UUID, b.Reference, b.ProductID, b.AvailabilityID, b.LocalDate, b.Units,
		b.Contact.Name, b.Contact.Email, b.Contact.Phone, b.Notes, b.Principal,
		b.Status, b.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrReferenceConflict
		}
		return wrapErr("create booking", err)
	}
	return nil
}

func (r *BookingRepository) GetBookingByUUID(ctx context.Context, uuid string) (domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE uuid = $1`

	b, err := scanBooking(r.queryRow(ctx, query, uuid))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Booking{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Booking{}, domain.ErrBookingNotFound
		}
		return domain.Booking{}, wrapErr("get booking", err)
	}
	return b, nil
}

func (r *BookingRepository) GetBookingByReference(ctx context.Context, reference string) (domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE reference = $1`

	b, err := scanBooking(r.queryRow(ctx, query, reference))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Booking{}, domain.ErrBookingNotFound
		}
		return domain.Booking{}, wrapErr("get booking by reference", err)
	}
	return b, nil
}

// MarkConfirmed performs the terminal transition as a single conditional
// update; updated=false means the row was not ON_HOLD (or does not exist).
func (r *BookingRepository) MarkConfirmed(ctx context.Context, uuid string, at time.Time) (domain.Booking, bool, error) {
	stmt := `
UPDATE bookings
SET status = 'CONFIRMED', confirmed_at = $2
WHERE uuid = $1 AND status = 'ON_HOLD'
RETURNING ` + bookingColumns

	b, err := scanBooking(r.queryRow(ctx, stmt, uuid, at))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Booking{}, false, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Booking{}, false, nil
		}
		return domain.Booking{}, false, wrapErr("confirm booking", err)
	}
	return b, true, nil
}

func (r *BookingRepository) MarkCancelled(ctx context.Context, uuid, reason string, at time.Time) (domain.Booking, bool, error) {
	stmt := `
UPDATE bookings
SET status = 'CANCELLED', cancel_reason = $2, cancelled_at = $3
WHERE uuid = $1 AND status = 'ON_HOLD'
RETURNING ` + bookingColumns

	b, err := scanBooking(r.queryRow(ctx, stmt, uuid, reason, at))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Booking{}, false, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Booking{}, false, nil
		}
		return domain.Booking{}, false, wrapErr("cancel booking", err)
	}
	return b, true, nil
}

func (r *BookingRepository) ListStaleHolds(ctx context.Context, before time.Time, limit int) ([]string, error) {
	const query = `
SELECT uuid FROM bookings
WHERE status = 'ON_HOLD' AND created_at < $1
ORDER BY created_at
LIMIT $2`

	rows, err := r.query(ctx, query, before, limit)
	if err != nil {
		return nil, wrapErr("list stale holds", err)
	}
	defer rows.Close()

	var uuids []string
	for rows.Next() {
		var uuid string
		if err := rows.Scan(&uuid); err != nil {
			return nil, wrapErr("scan stale hold", err)
		}
		uuids = append(uuids, uuid)
	}
	return uuids, rows.Err()
}

const bookingColumns = `uuid, reference, product_id, availability_id, local_date, units,
	contact_name, contact_email, contact_phone, notes, principal, status, cancel_reason,
	created_at, confirmed_at, cancelled_at`

func scanBooking(row pgx.Row) (domain.Booking, error) {
	var b domain.Booking
	var status string
	err := row.Scan(
		&b.UUID, &b.Reference, &b.ProductID, &b.AvailabilityID, &b.LocalDate, &b.Units,
		&b.Contact.Name, &b.Contact.Email, &b.Contact.Phone, &b.Notes, &b.Principal,
		&status, &b.CancelReason, &b.CreatedAt, &b.ConfirmedAt, &b.CancelledAt,
	)
	if err != nil {
		return domain.Booking{}, err
	}
	b.Status = domain.BookingStatus(status)
	return b, nil
}

func scanSlot(row pgx.Row) (domain.AvailabilitySlot, error) {
	var s domain.AvailabilitySlot
	var status string
	err := row.Scan(&s.ID, &s.ProductID, &s.LocalDate, &s.StartTime, &s.Vacancies, &status)
	if err != nil {
		return domain.AvailabilitySlot{}, err
	}
	s.Status = domain.SlotStatus(status)
	return s, nil
}

func splitList(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (r *BookingRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *BookingRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}

func (r *BookingRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}
