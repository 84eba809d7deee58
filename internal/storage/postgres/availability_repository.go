package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wanderpath/booking-api/internal/domain"
)

// AvailabilityRepository serves the read side of the ledger; all mutation goes
// through BookingRepository inside booking transactions.
type AvailabilityRepository struct {
	pool *pgxpool.Pool
}

func NewAvailabilityRepository(pool *pgxpool.Pool) *AvailabilityRepository {
	return &AvailabilityRepository{pool: pool}
}

func (r *AvailabilityRepository) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	booking := BookingRepository{pool: r.pool}
	return booking.GetProduct(ctx, productID)
}

func (r *AvailabilityRepository) ListAvailable(ctx context.Context, productID string, from, to time.Time, units int) ([]domain.AvailabilitySlot, error) {
	const query = `
SELECT id, product_id, local_date, start_time, vacancies, status
FROM availability
WHERE product_id = $1
  AND local_date BETWEEN $2 AND $3
  AND status = 'AVAILABLE'
  AND vacancies >= $4
ORDER BY local_date, start_time`

	rows, err := r.pool.Query(ctx, query, productID, from, to, units)
	if err != nil {
		return nil, wrapErr("list availability", err)
	}
	defer rows.Close()

	var slots []domain.AvailabilitySlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, wrapErr("scan availability", err)
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}
