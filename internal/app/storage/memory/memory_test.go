package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/storefront/internal/app/core/service"
	"github.com/R3E-Network/storefront/internal/app/domain/abandonment"
	"github.com/R3E-Network/storefront/internal/app/domain/cart"
	"github.com/R3E-Network/storefront/internal/app/domain/catalog"
	"github.com/R3E-Network/storefront/internal/app/domain/coupon"
	"github.com/R3E-Network/storefront/internal/app/domain/user"
	"github.com/R3E-Network/storefront/internal/app/storage"
)

func snapshotOf(n int) abandonment.Snapshot {
	out := abandonment.Snapshot{}
	for i := 0; i < n; i++ {
		out = append(out, abandonment.SnapshotItem{ProductID: "p", Title: "t", Price: decimal.NewFromInt(1), Quantity: 1})
	}
	return out
}

func TestUsersAreUniqueByEmail(t *testing.T) {
	s := New()
	ctx := context.Background()

	u, err := s.CreateUser(ctx, user.User{Email: " Ada@Example.com "})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", u.Email)

	_, err = s.CreateUser(ctx, user.User{Email: "ADA@example.com"})
	assert.True(t, service.IsConflict(err))

	got, err := s.GetUserByEmail(ctx, "ada@EXAMPLE.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.GetUser(ctx, "missing")
	assert.True(t, service.IsNotFound(err))
}

func TestListProductsFilters(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.CreateProduct(ctx, catalog.Product{Title: "Desk Lamp", CategoryID: "c1", Active: true})
	require.NoError(t, err)
	_, err = s.CreateProduct(ctx, catalog.Product{Title: "Floor Lamp", CategoryID: "c2", Active: true})
	require.NoError(t, err)
	_, err = s.CreateProduct(ctx, catalog.Product{Title: "Draft Lamp", CategoryID: "c1"})
	require.NoError(t, err)

	all, err := s.ListProducts(ctx, catalog.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	withDrafts, err := s.ListProducts(ctx, catalog.Filter{IncludeDraft: true})
	require.NoError(t, err)
	assert.Len(t, withDrafts, 3)

	byCategory, err := s.ListProducts(ctx, catalog.Filter{CategoryID: "c1"})
	require.NoError(t, err)
	require.Len(t, byCategory, 1)
	assert.Equal(t, "Desk Lamp", byCategory[0].Title)

	search, err := s.ListProducts(ctx, catalog.Filter{Search: "floor"})
	require.NoError(t, err)
	require.Len(t, search, 1)

	page, err := s.ListProducts(ctx, catalog.Filter{IncludeDraft: true, Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestAdjustStockNeverNegative(t *testing.T) {
	s := New()
	ctx := context.Background()
	p, err := s.CreateProduct(ctx, catalog.Product{Title: "Lamp", Stock: 2, Active: true})
	require.NoError(t, err)

	require.NoError(t, s.AdjustStock(ctx, p.ID, -2))
	assert.True(t, service.IsConflict(s.AdjustStock(ctx, p.ID, -1)))
	assert.True(t, service.IsNotFound(s.AdjustStock(ctx, "missing", 1)))

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Stock)
}

func TestCartItemsKeepAddedAt(t *testing.T) {
	s := New()
	ctx := context.Background()
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.SetCartItem(ctx, cart.Item{UserID: "u1", ProductID: "p1", Quantity: 1, AddedAt: first})
	require.NoError(t, err)
	updated, err := s.SetCartItem(ctx, cart.Item{UserID: "u1", ProductID: "p1", Quantity: 5, AddedAt: first.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, first, updated.AddedAt)
	assert.Equal(t, 5, updated.Quantity)

	assert.True(t, service.IsNotFound(s.RemoveCartItem(ctx, "u1", "p2")))
	require.NoError(t, s.ClearCart(ctx, "u1"))
	items, err := s.ListCartItems(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRecordCouponUsageRespectsLimit(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.CreateCoupon(ctx, coupon.Coupon{Code: "save10", Kind: coupon.KindPercent, Value: decimal.NewFromInt(10), MaxUses: 1, Active: true})
	require.NoError(t, err)

	require.NoError(t, s.RecordCouponUsage(ctx, coupon.Usage{Code: "SAVE10", UserID: "u1", OrderID: "o1"}))
	assert.True(t, service.IsConflict(s.RecordCouponUsage(ctx, coupon.Usage{Code: "save10", UserID: "u2", OrderID: "o2"})))

	c, err := s.GetCoupon(ctx, "Save10")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Used)
	assert.Len(t, s.CouponUsages(), 1)
}

func TestUpsertActiveKeepsOneActiveRecordPerUser(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		_, err := s.UpsertActive(ctx, "u1", snapshotOf(i), now.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}
	_, err := s.MarkPurchased(ctx, "u1", now.Add(time.Hour))
	require.NoError(t, err)
	_, err = s.UpsertActive(ctx, "u1", snapshotOf(1), now.Add(2*time.Hour))
	require.NoError(t, err)

	active := 0
	for _, rec := range s.AbandonmentRecords() {
		if rec.UserID == "u1" && !rec.Purchased {
			active++
		}
	}
	assert.Equal(t, 1, active)
	assert.Len(t, s.AbandonmentRecords(), 2, "purchased record stays until cleanup")
}

func TestAdvanceStageRequiresUnchangedRecord(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	rec, err := s.UpsertActive(ctx, "u1", snapshotOf(1), now)
	require.NoError(t, err)

	ok, err := s.AdvanceStage(ctx, rec.ID, abandonment.StageNone, abandonment.StageFirst, now.Add(time.Second), now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok, "stale lastUpdatedAt")

	ok, err = s.AdvanceStage(ctx, rec.ID, abandonment.StageFirst, abandonment.StageSecond, now, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok, "wrong stage")

	ok, err = s.AdvanceStage(ctx, rec.ID, abandonment.StageNone, abandonment.StageFirst, now, now.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestListDuePagesByCursor(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var want []string
	for i, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		u, err := s.CreateUser(ctx, user.User{Email: email, Role: user.RoleCustomer, Active: true})
		require.NoError(t, err)
		rec, err := s.UpsertActive(ctx, u.ID, snapshotOf(1), now.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		want = append(want, rec.ID)
	}

	var got []string
	var after *abandonment.Cursor
	for {
		page, err := s.ListDue(ctx, abandonment.StageNone, now.Add(time.Hour), after, 2)
		require.NoError(t, err)
		for _, c := range page {
			got = append(got, c.ID)
		}
		if len(page) < 2 {
			break
		}
		pos := page[len(page)-1].Position()
		after = &pos
	}
	assert.Equal(t, want, got)
}

func TestWithinTxRollsBack(t *testing.T) {
	s := New()
	ctx := context.Background()
	p, err := s.CreateProduct(ctx, catalog.Product{Title: "Lamp", Stock: 3, Active: true})
	require.NoError(t, err)
	_, err = s.SetCartItem(ctx, cart.Item{UserID: "u1", ProductID: p.ID, Quantity: 1})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.WithinTx(ctx, func(tx storage.Stores) error {
		require.NoError(t, tx.Catalog.AdjustStock(ctx, p.ID, -1))
		require.NoError(t, tx.Carts.ClearCart(ctx, "u1"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Stock)
	items, err := s.ListCartItems(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, items, 1)

	require.NoError(t, s.WithinTx(ctx, func(tx storage.Stores) error {
		return tx.Catalog.AdjustStock(ctx, p.ID, -1)
	}))
	got, err = s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Stock)
}
