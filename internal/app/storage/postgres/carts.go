package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/R3E-Network/storefront/internal/app/domain/cart"
	"github.com/R3E-Network/storefront/internal/app/domain/wishlist"
)

func (s *Store) ListCartItems(ctx context.Context, userID string) ([]cart.Item, error) {
	out := []cart.Item{}
	if err := sqlx.SelectContext(ctx, s.q, &out, `
		SELECT user_id, product_id, quantity, added_at
		FROM cart_items
		WHERE user_id = $1
		ORDER BY added_at, product_id
	`, userID); err != nil {
		return nil, mapError(err, "cart", userID)
	}
	return out, nil
}

// SetCartItem inserts or replaces the quantity of a cart line, keeping the
// original added-at time.
func (s *Store) SetCartItem(ctx context.Context, item cart.Item) (cart.Item, error) {
	if item.AddedAt.IsZero() {
		item.AddedAt = time.Now().UTC()
	}
	err := sqlx.GetContext(ctx, s.q, &item, `
		INSERT INTO cart_items (user_id, product_id, quantity, added_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity
		RETURNING user_id, product_id, quantity, added_at
	`, item.UserID, item.ProductID, item.Quantity, item.AddedAt)
	if err != nil {
		return cart.Item{}, mapError(err, "cart item", item.ProductID)
	}
	return item, nil
}

func (s *Store) RemoveCartItem(ctx context.Context, userID, productID string) error {
	res, err := s.q.ExecContext(ctx, `
		DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2
	`, userID, productID)
	if err != nil {
		return mapError(err, "cart item", productID)
	}
	return requireAffected(res, "cart item", productID)
}

func (s *Store) ClearCart(ctx context.Context, userID string) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return mapError(err, "cart", userID)
	}
	return nil
}

func (s *Store) AddWishlistEntry(ctx context.Context, entry wishlist.Entry) (wishlist.Entry, error) {
	if entry.AddedAt.IsZero() {
		entry.AddedAt = time.Now().UTC()
	}
	err := sqlx.GetContext(ctx, s.q, &entry, `
		INSERT INTO wishlist_items (user_id, product_id, added_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id) DO UPDATE SET added_at = wishlist_items.added_at
		RETURNING user_id, product_id, added_at
	`, entry.UserID, entry.ProductID, entry.AddedAt)
	if err != nil {
		return wishlist.Entry{}, mapError(err, "wishlist entry", entry.ProductID)
	}
	return entry, nil
}

func (s *Store) RemoveWishlistEntry(ctx context.Context, userID, productID string) error {
	res, err := s.q.ExecContext(ctx, `
		DELETE FROM wishlist_items WHERE user_id = $1 AND product_id = $2
	`, userID, productID)
	if err != nil {
		return mapError(err, "wishlist entry", productID)
	}
	return requireAffected(res, "wishlist entry", productID)
}

func (s *Store) ListWishlist(ctx context.Context, userID string) ([]wishlist.Entry, error) {
	out := []wishlist.Entry{}
	if err := sqlx.SelectContext(ctx, s.q, &out, `
		SELECT user_id, product_id, added_at
		FROM wishlist_items
		WHERE user_id = $1
		ORDER BY added_at DESC
	`, userID); err != nil {
		return nil, mapError(err, "wishlist", userID)
	}
	return out, nil
}
