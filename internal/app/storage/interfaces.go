package storage

import (
	"context"
	"time"

	"github.com/R3E-Network/storefront/internal/app/domain/abandonment"
	"github.com/R3E-Network/storefront/internal/app/domain/cart"
	"github.com/R3E-Network/storefront/internal/app/domain/catalog"
	"github.com/R3E-Network/storefront/internal/app/domain/coupon"
	"github.com/R3E-Network/storefront/internal/app/domain/order"
	"github.com/R3E-Network/storefront/internal/app/domain/user"
	"github.com/R3E-Network/storefront/internal/app/domain/wishlist"
)

// UserStore persists storefront accounts. Email lookups are case-insensitive.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	UpdateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
	ListUsers(ctx context.Context) ([]user.User, error)
}

// CatalogStore persists categories and products.
type CatalogStore interface {
	CreateCategory(ctx context.Context, c catalog.Category) (catalog.Category, error)
	ListCategories(ctx context.Context) ([]catalog.Category, error)

	CreateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error)
	UpdateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error)
	GetProduct(ctx context.Context, id string) (catalog.Product, error)
	ListProducts(ctx context.Context, filter catalog.Filter) ([]catalog.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	// AdjustStock adds delta to the product stock. It fails with a conflict
	// when the result would be negative.
	AdjustStock(ctx context.Context, productID string, delta int) error
}

// CartStore persists cart lines, one per (user, product).
type CartStore interface {
	ListCartItems(ctx context.Context, userID string) ([]cart.Item, error)
	SetCartItem(ctx context.Context, item cart.Item) (cart.Item, error)
	RemoveCartItem(ctx context.Context, userID, productID string) error
	ClearCart(ctx context.Context, userID string) error
}

// WishlistStore persists saved products.
type WishlistStore interface {
	AddWishlistEntry(ctx context.Context, entry wishlist.Entry) (wishlist.Entry, error)
	RemoveWishlistEntry(ctx context.Context, userID, productID string) error
	ListWishlist(ctx context.Context, userID string) ([]wishlist.Entry, error)
}

// CouponStore persists discount codes and their redemptions.
type CouponStore interface {
	CreateCoupon(ctx context.Context, c coupon.Coupon) (coupon.Coupon, error)
	GetCoupon(ctx context.Context, code string) (coupon.Coupon, error)
	ListCoupons(ctx context.Context) ([]coupon.Coupon, error)
	// RecordCouponUsage increments the usage counter and stores the
	// redemption. It fails with a conflict when the usage limit is reached.
	RecordCouponUsage(ctx context.Context, usage coupon.Usage) error
}

// OrderStore persists orders and their items.
type OrderStore interface {
	CreateOrder(ctx context.Context, o order.Order) (order.Order, error)
	GetOrder(ctx context.Context, id string) (order.Order, error)
	ListOrders(ctx context.Context, userID string) ([]order.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status order.Status) (order.Order, error)
}

// AbandonmentStore persists cart-abandonment records. Every write is a single
// atomic statement so concurrent scans and cart mutations never interleave
// inside one record update.
type AbandonmentStore interface {
	// UpsertActive replaces the snapshot of the user's active record and
	// resets its reminder stage, or inserts a new active record.
	UpsertActive(ctx context.Context, userID string, snapshot abandonment.Snapshot, now time.Time) (abandonment.Record, error)
	// ResetActive replaces the snapshot and resets the stage of an existing
	// active record only. It reports whether a record was updated.
	ResetActive(ctx context.Context, userID string, snapshot abandonment.Snapshot, now time.Time) (bool, error)
	// GetActive returns the user's non-purchased record.
	GetActive(ctx context.Context, userID string) (abandonment.Record, error)
	// MarkPurchased flags the user's active record as purchased. It reports
	// whether a record was updated.
	MarkPurchased(ctx context.Context, userID string, now time.Time) (bool, error)
	// ListDue returns active, non-empty records of active users currently at
	// stage whose reference time (lastUpdatedAt for none, reminderSentAt
	// otherwise) is at or before cutoff, ordered by (reference time, id).
	// A non-nil after resumes strictly past that position.
	ListDue(ctx context.Context, stage abandonment.Stage, cutoff time.Time, after *abandonment.Cursor, limit int) ([]abandonment.Candidate, error)
	// AdvanceStage moves a record from one stage to the next if it is still
	// active, still at from, and was not mutated since lastUpdatedAt.
	AdvanceStage(ctx context.Context, id string, from, to abandonment.Stage, lastUpdatedAt, sentAt time.Time) (bool, error)
	// DeleteResolvedBefore removes purchased or final records created before
	// cutoff and returns how many were removed.
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	AbandonmentStats(ctx context.Context) (abandonment.Stats, error)
}

// Stores groups every store bound to the same connection or transaction.
type Stores struct {
	Users       UserStore
	Catalog     CatalogStore
	Carts       CartStore
	Wishlists   WishlistStore
	Coupons     CouponStore
	Orders      OrderStore
	Abandonment AbandonmentStore
}

// TxRunner executes fn with stores bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(tx Stores) error) error
}
