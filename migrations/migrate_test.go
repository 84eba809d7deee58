package migrations_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderpath/booking-api/internal/testutil"
	"github.com/wanderpath/booking-api/migrations"
)

func TestApply(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()

	require.NoError(t, migrations.Apply(ctx, pool))

	// Running again is a no-op.
	require.NoError(t, migrations.Apply(ctx, pool))

	for _, table := range []string{
		"products", "availability", "bookings",
		"affiliate_links", "affiliate_clicks", "affiliate_conversions",
	} {
		var exists bool
		err := pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`,
			table,
		).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "table %s must exist", table)
	}

	var applied int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&applied))
	assert.Equal(t, 2, applied)
}
