// Package coupon defines discount codes and their redemption rules.
package coupon

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Kind selects how a coupon value is applied.
type Kind string

const (
	KindPercent Kind = "percent"
	KindFixed   Kind = "fixed"
)

var (
	ErrInactive     = errors.New("coupon is not active")
	ErrExpired      = errors.New("coupon has expired")
	ErrExhausted    = errors.New("coupon usage limit reached")
	ErrBelowMinimum = errors.New("order subtotal is below the coupon minimum")
)

// Coupon is a redeemable discount code.
type Coupon struct {
	Code        string          `json:"code" db:"code"`
	Kind        Kind            `json:"kind" db:"kind"`
	Value       decimal.Decimal `json:"value" db:"value"`
	MinSubtotal decimal.Decimal `json:"minSubtotal" db:"min_subtotal"`
	MaxUses     int             `json:"maxUses" db:"max_uses"`
	Used        int             `json:"used" db:"used"`
	ExpiresAt   *time.Time      `json:"expiresAt,omitempty" db:"expires_at"`
	Active      bool            `json:"active" db:"active"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
}

// Usage records one redemption.
type Usage struct {
	Code    string    `json:"code" db:"code"`
	UserID  string    `json:"userId" db:"user_id"`
	OrderID string    `json:"orderId" db:"order_id"`
	UsedAt  time.Time `json:"usedAt" db:"used_at"`
}

// Check reports why c cannot be applied to subtotal at now, or nil.
func (c Coupon) Check(subtotal decimal.Decimal, now time.Time) error {
	if !c.Active {
		return ErrInactive
	}
	if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return ErrExpired
	}
	if c.MaxUses > 0 && c.Used >= c.MaxUses {
		return ErrExhausted
	}
	if subtotal.LessThan(c.MinSubtotal) {
		return ErrBelowMinimum
	}
	return nil
}

// Discount computes the amount taken off subtotal. The result never exceeds
// the subtotal and is rounded to cents.
func (c Coupon) Discount(subtotal decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch c.Kind {
	case KindPercent:
		pct := decimal.Min(c.Value, decimal.NewFromInt(100))
		d = subtotal.Mul(pct).Div(decimal.NewFromInt(100))
	case KindFixed:
		d = c.Value
	default:
		return decimal.Zero
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(subtotal) {
		d = subtotal
	}
	return d.Round(2)
}
