package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/R3E-Network/storefront/internal/app/core/service"
	"github.com/R3E-Network/storefront/internal/app/domain/coupon"
)

const couponColumns = `code, kind, value, min_subtotal, max_uses, used, expires_at, active, created_at`

func (s *Store) CreateCoupon(ctx context.Context, c coupon.Coupon) (coupon.Coupon, error) {
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	c.CreatedAt = time.Now().UTC()
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO coupons (code, kind, value, min_subtotal, max_uses, used, expires_at, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, c.Code, c.Kind, c.Value, c.MinSubtotal, c.MaxUses, c.Used, c.ExpiresAt, c.Active, c.CreatedAt)
	if err != nil {
		return coupon.Coupon{}, mapError(err, "coupon", c.Code)
	}
	return c, nil
}

func (s *Store) GetCoupon(ctx context.Context, code string) (coupon.Coupon, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	var c coupon.Coupon
	if err := sqlx.GetContext(ctx, s.q, &c, `SELECT `+couponColumns+` FROM coupons WHERE code = $1`, code); err != nil {
		return coupon.Coupon{}, mapError(err, "coupon", code)
	}
	return c, nil
}

func (s *Store) ListCoupons(ctx context.Context) ([]coupon.Coupon, error) {
	out := []coupon.Coupon{}
	if err := sqlx.SelectContext(ctx, s.q, &out, `SELECT `+couponColumns+` FROM coupons ORDER BY code`); err != nil {
		return nil, mapError(err, "coupons", "")
	}
	return out, nil
}

// RecordCouponUsage increments the usage counter with a guarded update so
// concurrent checkouts cannot exceed max_uses.
func (s *Store) RecordCouponUsage(ctx context.Context, usage coupon.Usage) error {
	code := strings.ToUpper(strings.TrimSpace(usage.Code))
	if usage.UsedAt.IsZero() {
		usage.UsedAt = time.Now().UTC()
	}

	res, err := s.q.ExecContext(ctx, `
		UPDATE coupons
		SET used = used + 1
		WHERE code = $1 AND (max_uses = 0 OR used < max_uses)
	`, code)
	if err != nil {
		return mapError(err, "coupon", code)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetCoupon(ctx, code); err != nil {
			return err
		}
		return service.NewConflictError("coupon %q usage limit reached", code)
	}

	if _, err := s.q.ExecContext(ctx, `
		INSERT INTO coupon_usages (code, user_id, order_id, used_at)
		VALUES ($1, $2, $3, $4)
	`, code, usage.UserID, usage.OrderID, usage.UsedAt); err != nil {
		return mapError(err, "coupon usage", code)
	}
	return nil
}
