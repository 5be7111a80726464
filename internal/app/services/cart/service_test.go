package cart

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/storefront/internal/app/core/service"
	"github.com/R3E-Network/storefront/internal/app/domain/abandonment"
	"github.com/R3E-Network/storefront/internal/app/domain/catalog"
	abandonmentsvc "github.com/R3E-Network/storefront/internal/app/services/abandonment"
	"github.com/R3E-Network/storefront/internal/app/storage/memory"
	"github.com/R3E-Network/storefront/pkg/logger"
)

type failingTracker struct{ calls int }

func (f *failingTracker) TrackCartUpdate(context.Context, string, abandonment.Snapshot) error {
	f.calls++
	return errors.New("store unavailable")
}

func seedProduct(t *testing.T, store *memory.Store, title string, price string, stock int) catalog.Product {
	t.Helper()
	p, err := store.CreateProduct(context.Background(), catalog.Product{
		Title:  title,
		Price:  decimal.RequireFromString(price),
		Stock:  stock,
		Active: true,
	})
	require.NoError(t, err)
	return p
}

func newTestService(store *memory.Store, tracker Tracker) *Service {
	return New(store, store, tracker, logger.New(logger.LoggingConfig{Output: "discard"}))
}

func TestAddItemTracksSnapshot(t *testing.T) {
	store := memory.New()
	log := logger.New(logger.LoggingConfig{Output: "discard"})
	svc := newTestService(store, abandonmentsvc.NewTracker(store, log))
	ctx := context.Background()
	mug := seedProduct(t, store, "Mug", "12.50", 10)

	view, err := svc.AddItem(ctx, "u1", mug.ID, 2)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.True(t, view.Subtotal.Equal(decimal.RequireFromString("25")))

	view, err = svc.AddItem(ctx, "u1", mug.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, view.Lines[0].Quantity)

	rec, err := store.GetActive(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.ItemCount)
	snap, err := rec.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, 3, snap.Quantity())
	assert.Equal(t, "Mug", snap[0].Title)
	assert.Equal(t, abandonment.StageNone, rec.Stage)
}

func TestClearKeepsRecordButEmptiesIt(t *testing.T) {
	store := memory.New()
	log := logger.New(logger.LoggingConfig{Output: "discard"})
	svc := newTestService(store, abandonmentsvc.NewTracker(store, log))
	ctx := context.Background()
	mug := seedProduct(t, store, "Mug", "5", 10)

	_, err := svc.AddItem(ctx, "u1", mug.ID, 1)
	require.NoError(t, err)
	view, err := svc.Clear(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, view.Lines)

	rec, err := store.GetActive(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.ItemCount)
}

func TestEmptyCartNeverCreatesRecord(t *testing.T) {
	store := memory.New()
	log := logger.New(logger.LoggingConfig{Output: "discard"})
	svc := newTestService(store, abandonmentsvc.NewTracker(store, log))
	ctx := context.Background()

	_, err := svc.Clear(ctx, "u2")
	require.NoError(t, err)
	_, err = store.GetActive(ctx, "u2")
	assert.True(t, service.IsNotFound(err))
}

func TestTrackingFailureDoesNotFailRequest(t *testing.T) {
	store := memory.New()
	tracker := &failingTracker{}
	svc := newTestService(store, tracker)
	mug := seedProduct(t, store, "Mug", "5", 10)

	view, err := svc.AddItem(context.Background(), "u1", mug.ID, 1)
	require.NoError(t, err)
	assert.Len(t, view.Lines, 1)
	assert.Equal(t, 1, tracker.calls)
}

func TestQuantityRules(t *testing.T) {
	store := memory.New()
	svc := newTestService(store, nil)
	ctx := context.Background()
	mug := seedProduct(t, store, "Mug", "5", 2)

	_, err := svc.AddItem(ctx, "u1", mug.ID, 0)
	assert.True(t, service.IsValidationError(err))
	_, err = svc.AddItem(ctx, "u1", mug.ID, 3)
	assert.True(t, service.IsConflict(err))
	_, err = svc.AddItem(ctx, "u1", "missing", 1)
	assert.True(t, service.IsNotFound(err))
	_, err = svc.UpdateItem(ctx, "u1", mug.ID, 1)
	assert.True(t, service.IsNotFound(err))

	_, err = svc.AddItem(ctx, "u1", mug.ID, 1)
	require.NoError(t, err)
	view, err := svc.UpdateItem(ctx, "u1", mug.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, view.Lines[0].Quantity)

	view, err = svc.UpdateItem(ctx, "u1", mug.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
}

func TestViewMarksRetiredProductsUnavailable(t *testing.T) {
	store := memory.New()
	svc := newTestService(store, nil)
	ctx := context.Background()
	mug := seedProduct(t, store, "Mug", "5", 10)
	lamp := seedProduct(t, store, "Lamp", "20", 10)

	_, err := svc.AddItem(ctx, "u1", mug.ID, 1)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "u1", lamp.ID, 1)
	require.NoError(t, err)

	lamp.Active = false
	_, err = store.UpdateProduct(ctx, lamp)
	require.NoError(t, err)

	view, err := svc.View(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, view.Lines, 2)
	assert.True(t, view.Subtotal.Equal(decimal.NewFromInt(5)))
	assert.Len(t, Snapshot(view), 1)
}

func TestLowStockLineStaysInSnapshot(t *testing.T) {
	store := memory.New()
	svc := newTestService(store, nil)
	ctx := context.Background()
	kettle := seedProduct(t, store, "Kettle", "30", 3)

	_, err := svc.AddItem(ctx, "u1", kettle.ID, 2)
	require.NoError(t, err)
	require.NoError(t, store.AdjustStock(ctx, kettle.ID, -2))

	view, err := svc.View(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.True(t, view.Lines[0].Available)
	assert.True(t, view.Subtotal.Equal(decimal.NewFromInt(60)))
	snapshot := Snapshot(view)
	require.Len(t, snapshot, 1)
	assert.Equal(t, 2, snapshot[0].Quantity)
}
