package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/R3E-Network/storefront/internal/app/core/service"
	"github.com/R3E-Network/storefront/internal/app/domain/catalog"
)

const productColumns = `id, COALESCE(category_id::text, '') AS category_id, title, description,
	price, stock, image_ref, active, created_at, updated_at`

func (s *Store) CreateCategory(ctx context.Context, c catalog.Category) (catalog.Category, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO categories (id, name, slug, created_at)
		VALUES ($1, $2, $3, $4)
	`, c.ID, c.Name, c.Slug, c.CreatedAt)
	if err != nil {
		return catalog.Category{}, mapError(err, "category", c.Slug)
	}
	return c, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]catalog.Category, error) {
	out := []catalog.Category{}
	if err := sqlx.SelectContext(ctx, s.q, &out, `
		SELECT id, name, slug, created_at FROM categories ORDER BY name
	`); err != nil {
		return nil, mapError(err, "categories", "")
	}
	return out, nil
}

func (s *Store) CreateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO products (id, category_id, title, description, price, stock, image_ref, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, p.ID, nullString(p.CategoryID), p.Title, p.Description, p.Price, p.Stock, p.ImageRef, p.Active, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return catalog.Product{}, mapError(err, "product", p.ID)
	}
	return p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	p.UpdatedAt = time.Now().UTC()
	err := sqlx.GetContext(ctx, s.q, &p, `
		UPDATE products
		SET category_id = $2, title = $3, description = $4, price = $5, stock = $6,
			image_ref = $7, active = $8, updated_at = $9
		WHERE id = $1
		RETURNING `+productColumns,
		p.ID, nullString(p.CategoryID), p.Title, p.Description, p.Price, p.Stock, p.ImageRef, p.Active, p.UpdatedAt)
	if err != nil {
		return catalog.Product{}, mapError(err, "product", p.ID)
	}
	return p, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	var p catalog.Product
	if err := sqlx.GetContext(ctx, s.q, &p, `SELECT `+productColumns+` FROM products WHERE id = $1`, id); err != nil {
		return catalog.Product{}, mapError(err, "product", id)
	}
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context, filter catalog.Filter) ([]catalog.Product, error) {
	var (
		where []string
		args  []any
	)
	if !filter.IncludeDraft {
		where = append(where, "active")
	}
	if filter.CategoryID != "" {
		args = append(args, filter.CategoryID)
		where = append(where, "category_id = ?")
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		args = append(args, pattern, pattern)
		where = append(where, "(LOWER(title) LIKE ? OR LOWER(description) LIKE ?)")
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT ?`
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET ?`
	}

	out := []catalog.Product{}
	if err := sqlx.SelectContext(ctx, s.q, &out, s.q.Rebind(query), args...); err != nil {
		return nil, mapError(err, "products", "")
	}
	return out, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return mapError(err, "product", id)
	}
	return requireAffected(res, "product", id)
}

func (s *Store) AdjustStock(ctx context.Context, productID string, delta int) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = $3
		WHERE id = $1 AND stock + $2 >= 0
	`, productID, delta, time.Now().UTC())
	if err != nil {
		return mapError(err, "product", productID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := s.GetProduct(ctx, productID); err != nil {
		return err
	}
	return service.NewConflictError("insufficient stock for product %q", productID)
}
