package abandonment

import (
	"context"
	"strings"
	"time"

	"github.com/R3E-Network/storefront/internal/app/core/service"
	domain "github.com/R3E-Network/storefront/internal/app/domain/abandonment"
	"github.com/R3E-Network/storefront/internal/app/storage"
	"github.com/R3E-Network/storefront/pkg/logger"
)

// Tracker records cart mutations and purchases against the abandonment store.
type Tracker struct {
	store storage.AbandonmentStore
	log   *logger.Logger
	now   func() time.Time
}

// NewTracker creates a tracker backed by store.
func NewTracker(store storage.AbandonmentStore, log *logger.Logger) *Tracker {
	if log == nil {
		log = logger.NewDefault("abandonment-tracker")
	}
	return &Tracker{store: store, log: log, now: time.Now}
}

// WithClock overrides the time source.
func (t *Tracker) WithClock(now func() time.Time) {
	if now != nil {
		t.now = now
	}
}

// Bind returns a tracker that writes through store, typically one bound to a
// transaction.
func (t *Tracker) Bind(store storage.AbandonmentStore) *Tracker {
	clone := *t
	clone.store = store
	return &clone
}

// TrackCartUpdate captures the user's current cart. An existing active record
// gets the new snapshot and its reminder stage reset. A new record is only
// created for a non-empty cart.
func (t *Tracker) TrackCartUpdate(ctx context.Context, userID string, items domain.Snapshot) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return service.RequiredError("user_id")
	}
	if err := items.Validate(); err != nil {
		return service.NewValidationError("items", err.Error())
	}

	now := t.now().UTC()
	if len(items) == 0 {
		updated, err := t.store.ResetActive(ctx, userID, items, now)
		if err != nil {
			return &domain.StoreError{Op: "reset", Err: err}
		}
		if updated {
			t.log.WithField("user_id", userID).Debug("abandonment record emptied")
		}
		return nil
	}

	rec, err := t.store.UpsertActive(ctx, userID, items, now)
	if err != nil {
		return &domain.StoreError{Op: "upsert", Err: err}
	}
	t.log.WithField("user_id", userID).
		WithField("record_id", rec.ID).
		WithField("item_count", rec.ItemCount).
		Debug("abandonment record updated")
	return nil
}

// MarkAsPurchased resolves the user's active record. Without one it does
// nothing.
func (t *Tracker) MarkAsPurchased(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return service.RequiredError("user_id")
	}
	updated, err := t.store.MarkPurchased(ctx, userID, t.now().UTC())
	if err != nil {
		return &domain.StoreError{Op: "mark purchased", Err: err}
	}
	if updated {
		t.log.WithField("user_id", userID).Info("abandonment record marked purchased")
	}
	return nil
}
