package orders

import (
	"context"
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
	"github.com/R3E-Network/storefront/internal/app/domain/order"
	abandonmentsvc "github.com/R3E-Network/storefront/internal/app/services/abandonment"
	"github.com/R3E-Network/storefront/internal/app/storage/memory"
	"github.com/R3E-Network/storefront/pkg/logger"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type recordingInvalidator struct{ ids []string }

func (r *recordingInvalidator) Invalidate(_ context.Context, id string) { r.ids = append(r.ids, id) }

type fixture struct {
	store *memory.Store
	svc   *Service
	mug   catalog.Product
	lamp  catalog.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	log := logger.New(logger.LoggingConfig{Output: "discard"})
	tracker := abandonmentsvc.NewTracker(store, log)
	svc := New(store.Stores(), store, tracker, log)
	svc.WithClock(func() time.Time { return now })

	mug, err := store.CreateProduct(ctx, catalog.Product{Title: "Mug", Price: decimal.RequireFromString("10.00"), Stock: 5, Active: true})
	require.NoError(t, err)
	lamp, err := store.CreateProduct(ctx, catalog.Product{Title: "Lamp", Price: decimal.RequireFromString("40.00"), Stock: 1, Active: true})
	require.NoError(t, err)

	for _, item := range []cart.Item{
		{UserID: "u1", ProductID: mug.ID, Quantity: 2},
		{UserID: "u1", ProductID: lamp.ID, Quantity: 1},
	} {
		_, err := store.SetCartItem(ctx, item)
		require.NoError(t, err)
	}
	require.NoError(t, tracker.TrackCartUpdate(ctx, "u1", abandonment.Snapshot{
		{ProductID: mug.ID, Title: "Mug", Price: mug.Price, Quantity: 2},
		{ProductID: lamp.ID, Title: "Lamp", Price: lamp.Price, Quantity: 1},
	}))
	return &fixture{store: store, svc: svc, mug: mug, lamp: lamp}
}

func TestCheckoutCommitsEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := &recordingInvalidator{}
	f.svc.WithInvalidator(inv)
	_, err := f.store.CreateCoupon(ctx, coupon.Coupon{Code: "save10", Kind: coupon.KindPercent, Value: decimal.NewFromInt(10), Active: true})
	require.NoError(t, err)

	o, err := f.svc.Checkout(ctx, "u1", CheckoutRequest{CouponCode: "SAVE10", ShippingAddress: "1 Main St"})
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.True(t, o.Subtotal.Equal(decimal.NewFromInt(60)))
	assert.True(t, o.Discount.Equal(decimal.NewFromInt(6)))
	assert.True(t, o.Total.Equal(decimal.NewFromInt(54)))
	assert.Len(t, o.Items, 2)
	assert.ElementsMatch(t, []string{f.mug.ID, f.lamp.ID}, inv.ids)

	items, err := f.store.ListCartItems(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, items)

	mug, err := f.store.GetProduct(ctx, f.mug.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, mug.Stock)

	c, err := f.store.GetCoupon(ctx, "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Used)

	_, err = f.store.GetActive(ctx, "u1")
	assert.True(t, service.IsNotFound(err), "abandonment record should be marked purchased")
}

func TestCheckoutRollsBackOnStockShortage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lamp := f.lamp
	lamp.Stock = 0
	_, err := f.store.UpdateProduct(ctx, lamp)
	require.NoError(t, err)

	_, err = f.svc.Checkout(ctx, "u1", CheckoutRequest{ShippingAddress: "1 Main St"})
	require.Error(t, err)
	assert.True(t, service.IsConflict(err))

	mug, err := f.store.GetProduct(ctx, f.mug.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, mug.Stock, "stock decrement must roll back")

	items, err := f.store.ListCartItems(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	_, err = f.store.GetActive(ctx, "u1")
	assert.NoError(t, err)
}

func TestCheckoutRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Checkout(ctx, "u1", CheckoutRequest{})
	assert.True(t, service.IsValidationError(err))

	_, err = f.svc.Checkout(ctx, "u9", CheckoutRequest{ShippingAddress: "x"})
	assert.True(t, service.IsValidationError(err))

	_, err = f.svc.Checkout(ctx, "u1", CheckoutRequest{ShippingAddress: "x", CouponCode: "NOPE"})
	assert.True(t, service.IsNotFound(err))

	expired := now.Add(-time.Hour)
	_, err = f.store.CreateCoupon(ctx, coupon.Coupon{Code: "OLD", Kind: coupon.KindFixed, Value: decimal.NewFromInt(5), Active: true, ExpiresAt: &expired})
	require.NoError(t, err)
	_, err = f.svc.Checkout(ctx, "u1", CheckoutRequest{ShippingAddress: "x", CouponCode: "old"})
	assert.True(t, service.IsValidationError(err))
}

func TestOrderVisibilityAndStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.svc.Checkout(ctx, "u1", CheckoutRequest{ShippingAddress: "1 Main St"})
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, "u2", o.ID)
	assert.True(t, service.IsNotFound(err))
	got, err := f.svc.Get(ctx, "u1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	list, err := f.svc.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.svc.UpdateStatus(ctx, o.ID, order.StatusShipped)
	assert.True(t, service.IsConflict(err))
	_, err = f.svc.UpdateStatus(ctx, o.ID, order.Status("lost"))
	assert.True(t, service.IsValidationError(err))

	paid, err := f.svc.UpdateStatus(ctx, o.ID, order.StatusPaid)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, paid.Status)

	cancelled, err := f.svc.UpdateStatus(ctx, o.ID, order.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)

	mug, err := f.store.GetProduct(ctx, f.mug.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, mug.Stock)
}
