package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wanderpath/booking-api/internal/domain"
)

type AffiliateRepository struct {
	pool *pgxpool.Pool
}

func NewAffiliateRepository(pool *pgxpool.Pool) *AffiliateRepository {
	return &AffiliateRepository{pool: pool}
}

// UpsertLink inserts or refreshes the (provider, tour) link. The tracking code
// column is deliberately absent from the conflict update: once issued it never
// changes.
func (r *AffiliateRepository) UpsertLink(ctx context.Context, link domain.AffiliateLink) (domain.AffiliateLink, error) {
	const stmt = `
INSERT INTO affiliate_links (provider, tour_id, tour_title, destination, tracking_code, affiliate_url, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (provider, tour_id) DO UPDATE
SET tour_title = EXCLUDED.tour_title,
    destination = EXCLUDED.destination,
    affiliate_url = EXCLUDED.affiliate_url,
    updated_at = EXCLUDED.updated_at
RETURNING provider, tour_id, tour_title, destination, tracking_code, affiliate_url, created_at, updated_at`

	var out domain.AffiliateLink
	err := r.queryRow(ctx, stmt,
		link.Provider, link.TourID, link.TourTitle, link.Destination,
		link.TrackingCode, link.AffiliateURL, link.CreatedAt, link.UpdatedAt,
	).Scan(
		&out.Provider, &out.TourID, &out.TourTitle, &out.Destination,
		&out.TrackingCode, &out.AffiliateURL, &out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		return domain.AffiliateLink{}, wrapErr("upsert affiliate link", err)
	}
	return out, nil
}

func (r *AffiliateRepository) GetLinkByCode(ctx context.Context, code string) (domain.AffiliateLink, error) {
	const query = `
SELECT provider, tour_id, tour_title, destination, tracking_code, affiliate_url, created_at, updated_at
FROM affiliate_links
WHERE tracking_code = $1`

	var out domain.AffiliateLink
	err := r.queryRow(ctx, query, code).Scan(
		&out.Provider, &out.TourID, &out.TourTitle, &out.Destination,
		&out.TrackingCode, &out.AffiliateURL, &out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.AffiliateLink{}, domain.ErrUnknownTrackingCode
		}
		return domain.AffiliateLink{}, wrapErr("get affiliate link", err)
	}
	return out, nil
}

func (r *AffiliateRepository) CreateClick(ctx context.Context, click domain.AffiliateClick) error {
	const stmt = `
INSERT INTO affiliate_clicks (id, tracking_code, principal, session, ip, user_agent, referrer, clicked_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.exec(ctx, stmt,
		click.ID, click.TrackingCode, click.Principal, click.Session,
		click.IP, click.UserAgent, click.Referrer, click.ClickedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrUnknownTrackingCode
		}
		return wrapErr("create affiliate click", err)
	}
	return nil
}

func (r *AffiliateRepository) CreateConversion(ctx context.Context, conv domain.AffiliateConversion) error {
	const stmt = `
INSERT INTO affiliate_conversions (id, tracking_code, click_id, provider, tour_id, principal,
	booking_reference, booking_date, travel_date, booking_amount, currency,
	commission_rate, commission_amount, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	var clickID any
	if conv.ClickID != "" {
		clickID = conv.ClickID
	}
	var bookingDate, travelDate any
	if !conv.BookingDate.IsZero() {
		bookingDate = conv.BookingDate
	}
	if !conv.TravelDate.IsZero() {
		travelDate = conv.TravelDate
	}

	_, err := r.exec(ctx, stmt,
		conv.ID, conv.TrackingCode, clickID, conv.Provider, conv.TourID, conv.Principal,
		conv.BookingReference, bookingDate, travelDate, conv.BookingAmount,
		conv.Currency, conv.CommissionRate, conv.CommissionAmount, conv.Status, conv.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrUnknownTrackingCode
		}
		return wrapErr("create conversion", err)
	}
	return nil
}

func (r *AffiliateRepository) GetConversion(ctx context.Context, id string) (domain.AffiliateConversion, error) {
	query := `SELECT ` + conversionColumns + ` FROM affiliate_conversions WHERE id = $1`

	conv, err := scanConversion(r.queryRow(ctx, query, id))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.AffiliateConversion{}, domain.ErrConversionNotFound
		}
		if err == pgx.ErrNoRows {
			return domain.AffiliateConversion{}, domain.ErrConversionNotFound
		}
		return domain.AffiliateConversion{}, wrapErr("get conversion", err)
	}
	return conv, nil
}

// UpdateConversionStatus is the conversion counterpart of the booking CAS: the
// status guard and the write are one statement, and the timestamp for the
// target state is only ever written on the transition into it.
func (r *AffiliateRepository) UpdateConversionStatus(ctx context.Context, id string, from []domain.ConversionStatus, to domain.ConversionStatus, at time.Time) (domain.AffiliateConversion, bool, error) {
	stmt := `
UPDATE affiliate_conversions
SET status = $2,
    confirmed_at = CASE WHEN $2::text = 'confirmed' THEN $3 ELSE confirmed_at END,
    paid_at = CASE WHEN $2::text = 'paid' THEN $3 ELSE paid_at END
WHERE id = $1 AND status = ANY($4)
RETURNING ` + conversionColumns

	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}

	conv, err := scanConversion(r.queryRow(ctx, stmt, id, string(to), at, allowed))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.AffiliateConversion{}, false, domain.ErrConversionNotFound
		}
		if err == pgx.ErrNoRows {
			return domain.AffiliateConversion{}, false, nil
		}
		return domain.AffiliateConversion{}, false, wrapErr("update conversion status", err)
	}
	return conv, true, nil
}

func (r *AffiliateRepository) SummaryByProvider(ctx context.Context) ([]domain.AffiliateSummary, error) {
	const query = `
SELECT p.provider,
       COALESCE(ck.clicks, 0),
       COALESCE(cv.conversions, 0),
       COALESCE(cv.pending_amount, 0),
       COALESCE(cv.confirmed_amount, 0),
       COALESCE(cv.paid_amount, 0),
       COALESCE(cv.total_commission, 0),
       COALESCE(cv.total_bookings, 0)
FROM (SELECT DISTINCT provider FROM affiliate_links) p
LEFT JOIN (
	SELECT al.provider, COUNT(*) AS clicks
	FROM affiliate_clicks ac
	JOIN affiliate_links al ON al.tracking_code = ac.tracking_code
	GROUP BY al.provider
) ck ON ck.provider = p.provider
LEFT JOIN (
	SELECT provider,
	       COUNT(*) AS conversions,
	       SUM(commission_amount) FILTER (WHERE status = 'pending') AS pending_amount,
	       SUM(commission_amount) FILTER (WHERE status = 'confirmed') AS confirmed_amount,
	       SUM(commission_amount) FILTER (WHERE status = 'paid') AS paid_amount,
	       SUM(commission_amount) FILTER (WHERE status <> 'cancelled') AS total_commission,
	       SUM(booking_amount) FILTER (WHERE status <> 'cancelled') AS total_bookings
	FROM affiliate_conversions
	GROUP BY provider
) cv ON cv.provider = p.provider
ORDER BY p.provider`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, wrapErr("affiliate summary", err)
	}
	defer rows.Close()

	var out []domain.AffiliateSummary
	for rows.Next() {
		var s domain.AffiliateSummary
		if err := rows.Scan(
			&s.Provider, &s.Clicks, &s.Conversions,
			&s.PendingAmount, &s.ConfirmedAmount, &s.PaidAmount,
			&s.TotalCommission, &s.TotalBookingsGBP,
		); err != nil {
			return nil, wrapErr("scan summary", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const conversionColumns = `id, tracking_code, click_id, provider, tour_id, principal,
	booking_reference, booking_date, travel_date, booking_amount, currency,
	commission_rate, commission_amount, status, created_at, confirmed_at, paid_at`

func scanConversion(row pgx.Row) (domain.AffiliateConversion, error) {
	var c domain.AffiliateConversion
	var clickID *string
	var bookingDate, travelDate *time.Time
	var status string
	err := row.Scan(
		&c.ID, &c.TrackingCode, &clickID, &c.Provider, &c.TourID, &c.Principal,
		&c.BookingReference, &bookingDate, &travelDate, &c.BookingAmount,
		&c.Currency, &c.CommissionRate, &c.CommissionAmount, &status,
		&c.CreatedAt, &c.ConfirmedAt, &c.PaidAt,
	)
	if err != nil {
		return domain.AffiliateConversion{}, err
	}
	if clickID != nil {
		c.ClickID = *clickID
	}
	if bookingDate != nil {
		c.BookingDate = *bookingDate
	}
	if travelDate != nil {
		c.TravelDate = *travelDate
	}
	c.Status = domain.ConversionStatus(status)
	return c, nil
}

func (r *AffiliateRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *AffiliateRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
