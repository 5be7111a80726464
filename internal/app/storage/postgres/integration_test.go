package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/storefront/internal/app/domain/abandonment"
	"github.com/R3E-Network/storefront/internal/app/domain/user"
	"github.com/R3E-Network/storefront/internal/app/storage/postgres/migrations"
)

func TestAbandonmentIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	ctx := context.Background()
	db, err := Open(ctx, dsn, PoolOptions{MaxOpenConns: 4})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, migrations.Up(db.DB))

	store := New(db)
	u, err := store.CreateUser(ctx, user.User{
		Email:        "integration-" + time.Now().Format("150405.000000") + "@example.com",
		Name:         "Integration",
		PasswordHash: "x",
		Role:         user.RoleCustomer,
		Active:       true,
	})
	require.NoError(t, err)

	t0 := time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Microsecond)
	snapshot := abandonment.Snapshot{{ProductID: "p1", Title: "Lamp", Price: decimal.NewFromInt(5), Quantity: 1}}

	first, err := store.UpsertActive(ctx, u.ID, snapshot, t0)
	require.NoError(t, err)
	second, err := store.UpsertActive(ctx, u.ID, append(snapshot, snapshot[0]), t0)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "one active record per user")
	assert.Equal(t, 2, second.ItemCount)

	due, err := store.ListDue(ctx, abandonment.StageNone, t0.Add(24*time.Hour), nil, 10)
	require.NoError(t, err)
	var found *abandonment.Candidate
	for i := range due {
		if due[i].UserID == u.ID {
			found = &due[i]
		}
	}
	require.NotNil(t, found)

	ok, err := store.AdvanceStage(ctx, found.ID, abandonment.StageNone, abandonment.StageFirst, found.LastUpdatedAt, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, ok)

	marked, err := store.MarkPurchased(ctx, u.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, marked)
}
