// Package coupons validates discount codes and lets admins issue them.
package coupons

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/R3E-Network/storefront/internal/app/core/service"
	domain "github.com/R3E-Network/storefront/internal/app/domain/coupon"
	"github.com/R3E-Network/storefront/internal/app/storage"
	"github.com/R3E-Network/storefront/pkg/logger"
)

// Quote is the effect of a coupon on a subtotal.
type Quote struct {
	Code     string          `json:"code"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

// Service manages coupons.
type Service struct {
	store storage.CouponStore
	log   *logger.Logger
	now   func() time.Time
}

func New(store storage.CouponStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("coupons")
	}
	return &Service{store: store, log: log, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create issues a new coupon. Codes are stored upper-case.
func (s *Service) Create(ctx context.Context, c domain.Coupon) (domain.Coupon, error) {
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	if c.Code == "" {
		return domain.Coupon{}, service.RequiredError("code")
	}
	switch c.Kind {
	case domain.KindPercent:
		if c.Value.GreaterThan(decimal.NewFromInt(100)) {
			return domain.Coupon{}, service.NewValidationError("value", "percent discount cannot exceed 100")
		}
	case domain.KindFixed:
	default:
		return domain.Coupon{}, service.NewValidationError("kind", "must be percent or fixed")
	}
	if !c.Value.IsPositive() {
		return domain.Coupon{}, service.NewValidationError("value", "must be positive")
	}
	if c.MinSubtotal.IsNegative() {
		return domain.Coupon{}, service.NewValidationError("minSubtotal", "must not be negative")
	}
	if c.MaxUses < 0 {
		return domain.Coupon{}, service.NewValidationError("maxUses", "must not be negative")
	}
	c.Used = 0
	created, err := s.store.CreateCoupon(ctx, c)
	if err != nil {
		return domain.Coupon{}, err
	}
	s.log.WithField("code", created.Code).Info("coupon created")
	return created, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Coupon, error) {
	return s.store.ListCoupons(ctx)
}

// Validate quotes code against subtotal without redeeming it.
func (s *Service) Validate(ctx context.Context, code string, subtotal decimal.Decimal) (Quote, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Quote{}, service.RequiredError("code")
	}
	c, err := s.store.GetCoupon(ctx, code)
	if err != nil {
		return Quote{}, err
	}
	if err := c.Check(subtotal, s.now()); err != nil {
		return Quote{}, service.NewValidationError("code", err.Error())
	}
	discount := c.Discount(subtotal)
	return Quote{
		Code:     c.Code,
		Subtotal: subtotal,
		Discount: discount,
		Total:    subtotal.Sub(discount),
	}, nil
}
