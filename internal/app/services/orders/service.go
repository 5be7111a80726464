// Package orders runs checkout and order administration.
package orders

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/R3E-Network/storefront/internal/app/core/service"
	"github.com/R3E-Network/storefront/internal/app/domain/coupon"
	domain "github.com/R3E-Network/storefront/internal/app/domain/order"
	"github.com/R3E-Network/storefront/internal/app/services/abandonment"
	"github.com/R3E-Network/storefront/internal/app/storage"
	"github.com/R3E-Network/storefront/pkg/logger"
)

// ProductInvalidator drops cached products whose stock changed.
type ProductInvalidator interface {
	Invalidate(ctx context.Context, productID string)
}

// CheckoutRequest carries the shopper's checkout input.
type CheckoutRequest struct {
	CouponCode      string `json:"couponCode"`
	ShippingAddress string `json:"shippingAddress"`
}

// Service handles orders.
type Service struct {
	stores  storage.Stores
	tx      storage.TxRunner
	tracker *abandonment.Tracker
	cache   ProductInvalidator
	log     *logger.Logger
	now     func() time.Time
}

// New constructs the order service. stores serves reads outside checkout.
func New(stores storage.Stores, tx storage.TxRunner, tracker *abandonment.Tracker, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("orders")
	}
	return &Service{stores: stores, tx: tx, tracker: tracker, log: log, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithInvalidator registers a product cache to clear after stock changes.
func (s *Service) WithInvalidator(inv ProductInvalidator) {
	s.cache = inv
}

// Checkout turns the user's cart into a pending order. Pricing, stock
// decrement, coupon redemption, cart clear and the abandonment purchase mark
// all commit in one transaction.
func (s *Service) Checkout(ctx context.Context, userID string, req CheckoutRequest) (domain.Order, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Order{}, service.RequiredError("user_id")
	}
	address := strings.TrimSpace(req.ShippingAddress)
	if address == "" {
		return domain.Order{}, service.RequiredError("shippingAddress")
	}
	code := strings.ToUpper(strings.TrimSpace(req.CouponCode))

	var created domain.Order
	var touched []string
	err := s.tx.WithinTx(ctx, func(tx storage.Stores) error {
		items, err := tx.Carts.ListCartItems(ctx, userID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return service.NewValidationError("cart", "is empty")
		}

		o := domain.Order{
			UserID:          userID,
			Status:          domain.StatusPending,
			ShippingAddress: address,
			Subtotal:        decimal.Zero,
			Discount:        decimal.Zero,
		}
		touched = touched[:0]
		for _, item := range items {
			p, err := tx.Catalog.GetProduct(ctx, item.ProductID)
			if service.IsNotFound(err) || (err == nil && !p.Active) {
				return service.NewConflictError("product %q is no longer available", item.ProductID)
			}
			if err != nil {
				return err
			}
			if p.Stock < item.Quantity {
				return service.NewConflictError("insufficient stock for %q", p.Title)
			}
			if err := tx.Catalog.AdjustStock(ctx, p.ID, -item.Quantity); err != nil {
				return err
			}
			touched = append(touched, p.ID)
			o.Items = append(o.Items, domain.Item{
				ProductID: p.ID,
				Title:     p.Title,
				UnitPrice: p.Price,
				Quantity:  item.Quantity,
			})
			o.Subtotal = o.Subtotal.Add(p.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}

		var c coupon.Coupon
		if code != "" {
			c, err = tx.Coupons.GetCoupon(ctx, code)
			if err != nil {
				return err
			}
			if err := c.Check(o.Subtotal, s.now()); err != nil {
				return service.NewValidationError("couponCode", err.Error())
			}
			o.CouponCode = c.Code
			o.Discount = c.Discount(o.Subtotal)
		}
		o.Total = o.Subtotal.Sub(o.Discount)

		created, err = tx.Orders.CreateOrder(ctx, o)
		if err != nil {
			return err
		}
		if code != "" {
			usage := coupon.Usage{Code: c.Code, UserID: userID, OrderID: created.ID, UsedAt: s.now().UTC()}
			if err := tx.Coupons.RecordCouponUsage(ctx, usage); err != nil {
				return err
			}
		}
		if err := tx.Carts.ClearCart(ctx, userID); err != nil {
			return err
		}
		if s.tracker != nil {
			return s.tracker.Bind(tx.Abandonment).MarkAsPurchased(ctx, userID)
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.invalidate(ctx, touched)
	s.log.WithField("order_id", created.ID).
		WithField("user_id", userID).
		WithField("total", created.Total.StringFixed(2)).
		Info("order placed")
	return created, nil
}

// List returns the user's orders, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]domain.Order, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, service.RequiredError("user_id")
	}
	return s.stores.Orders.ListOrders(ctx, userID)
}

// ListAll returns every order for the admin console.
func (s *Service) ListAll(ctx context.Context) ([]domain.Order, error) {
	return s.stores.Orders.ListOrders(ctx, "")
}

// Get returns an order owned by userID. Orders of other users read as
// missing.
func (s *Service) Get(ctx context.Context, userID, orderID string) (domain.Order, error) {
	o, err := s.stores.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if o.UserID != userID {
		return domain.Order{}, service.NewNotFoundError("order", orderID)
	}
	return o, nil
}

// UpdateStatus moves an order along its status graph. Cancelling returns the
// items to stock.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, next domain.Status) (domain.Order, error) {
	if !next.Valid() {
		return domain.Order{}, service.NewValidationError("status", "unknown status")
	}
	var updated domain.Order
	var restocked []string
	err := s.tx.WithinTx(ctx, func(tx storage.Stores) error {
		o, err := tx.Orders.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !o.Status.CanTransition(next) {
			return service.NewConflictError("order cannot move from %s to %s", o.Status, next)
		}
		if next == domain.StatusCancelled {
			restocked = restocked[:0]
			for _, item := range o.Items {
				err := tx.Catalog.AdjustStock(ctx, item.ProductID, item.Quantity)
				if service.IsNotFound(err) {
					continue
				}
				if err != nil {
					return err
				}
				restocked = append(restocked, item.ProductID)
			}
		}
		updated, err = tx.Orders.UpdateOrderStatus(ctx, orderID, next)
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}
	s.invalidate(ctx, restocked)
	s.log.WithField("order_id", orderID).WithField("status", string(next)).Info("order status updated")
	return updated, nil
}

func (s *Service) invalidate(ctx context.Context, productIDs []string) {
	if s.cache == nil {
		return
	}
	for _, id := range productIDs {
		s.cache.Invalidate(ctx, id)
	}
}
