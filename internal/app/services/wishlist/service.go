// Package wishlist lets shoppers save products for later.
package wishlist

import (
	"context"
	"strings"

	"github.com/R3E-Network/storefront/internal/app/core/service"
	"github.com/R3E-Network/storefront/internal/app/domain/catalog"
	domain "github.com/R3E-Network/storefront/internal/app/domain/wishlist"
	"github.com/R3E-Network/storefront/internal/app/storage"
	"github.com/R3E-Network/storefront/pkg/logger"
)

// Item is a wishlist entry with its current product.
type Item struct {
	domain.Entry
	Product catalog.Product `json:"product"`
}

// Service manages wishlists.
type Service struct {
	entries  storage.WishlistStore
	products storage.CatalogStore
	log      *logger.Logger
}

func New(entries storage.WishlistStore, products storage.CatalogStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("wishlist")
	}
	return &Service{entries: entries, products: products, log: log}
}

// Add saves an active product. Adding it twice is a no-op.
func (s *Service) Add(ctx context.Context, userID, productID string) (domain.Entry, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.Entry{}, service.RequiredError("user_id")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Entry{}, service.RequiredError("product_id")
	}
	p, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return domain.Entry{}, err
	}
	if !p.Active {
		return domain.Entry{}, service.NewNotFoundError("product", productID)
	}
	return s.entries.AddWishlistEntry(ctx, domain.Entry{UserID: userID, ProductID: productID})
}

func (s *Service) Remove(ctx context.Context, userID, productID string) error {
	return s.entries.RemoveWishlistEntry(ctx, userID, productID)
}

// List returns saved products, newest first. Entries whose product has since
// been retired are skipped.
func (s *Service) List(ctx context.Context, userID string) ([]Item, error) {
	entries, err := s.entries.ListWishlist(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Item, 0, len(entries))
	for _, e := range entries {
		p, err := s.products.GetProduct(ctx, e.ProductID)
		if service.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !p.Active {
			continue
		}
		out = append(out, Item{Entry: e, Product: p})
	}
	return out, nil
}
