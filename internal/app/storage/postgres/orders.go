package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/R3E-Network/storefront/internal/app/domain/order"
)

const orderColumns = `id, user_id, status, subtotal, discount, total,
	COALESCE(coupon_code, '') AS coupon_code, shipping_address, created_at, updated_at`

// CreateOrder inserts the order and its items. Callers needing atomicity with
// other writes run it inside WithinTx.
func (s *Store) CreateOrder(ctx context.Context, o order.Order) (order.Order, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, status, subtotal, discount, total, coupon_code, shipping_address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, o.ID, o.UserID, o.Status, o.Subtotal, o.Discount, o.Total, nullString(o.CouponCode), o.ShippingAddress, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return order.Order{}, mapError(err, "order", o.ID)
	}

	items := make([]order.Item, len(o.Items))
	for i, item := range o.Items {
		item.OrderID = o.ID
		if _, err := s.q.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, title, unit_price, quantity)
			VALUES ($1, $2, $3, $4, $5)
		`, item.OrderID, item.ProductID, item.Title, item.UnitPrice, item.Quantity); err != nil {
			return order.Order{}, mapError(err, "order item", item.ProductID)
		}
		items[i] = item
	}
	o.Items = items
	return o, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (order.Order, error) {
	var o order.Order
	if err := sqlx.GetContext(ctx, s.q, &o, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id); err != nil {
		return order.Order{}, mapError(err, "order", id)
	}
	items, err := s.orderItems(ctx, id)
	if err != nil {
		return order.Order{}, err
	}
	o.Items = items
	return o, nil
}

// ListOrders returns orders newest first. An empty userID lists every order.
func (s *Store) ListOrders(ctx context.Context, userID string) ([]order.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = $1`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC`

	out := []order.Order{}
	if err := sqlx.SelectContext(ctx, s.q, &out, query, args...); err != nil {
		return nil, mapError(err, "orders", userID)
	}
	for i := range out {
		items, err := s.orderItems(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Items = items
	}
	return out, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, status order.Status) (order.Order, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1
	`, id, status, time.Now().UTC())
	if err != nil {
		return order.Order{}, mapError(err, "order", id)
	}
	if err := requireAffected(res, "order", id); err != nil {
		return order.Order{}, err
	}
	return s.GetOrder(ctx, id)
}

func (s *Store) orderItems(ctx context.Context, orderID string) ([]order.Item, error) {
	items := []order.Item{}
	if err := sqlx.SelectContext(ctx, s.q, &items, `
		SELECT order_id, product_id, title, unit_price, quantity
		FROM order_items
		WHERE order_id = $1
		ORDER BY title
	`, orderID); err != nil {
		return nil, mapError(err, "order items", orderID)
	}
	return items, nil
}
