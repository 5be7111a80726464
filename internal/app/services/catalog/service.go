// Package catalog serves categories and products to shoppers and lets admins
// maintain them.
package catalog

import (
	"context"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/R3E-Network/storefront/internal/app/core/service"
	domain "github.com/R3E-Network/storefront/internal/app/domain/catalog"
	"github.com/R3E-Network/storefront/internal/app/storage"
	"github.com/R3E-Network/storefront/pkg/logger"
)

const maxPageSize = 100

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Service manages the catalog.
type Service struct {
	store storage.CatalogStore
	cache ProductCache
	log   *logger.Logger
}

// New constructs a catalog service. A nil cache disables caching.
func New(store storage.CatalogStore, cache ProductCache, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("catalog")
	}
	if cache == nil {
		cache = NoopCache{}
	}
	return &Service{store: store, cache: cache, log: log}
}

// Slugify lower-cases name and joins alphanumeric runs with dashes.
func Slugify(name string) string {
	return strings.Trim(slugInvalid.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

func (s *Service) CreateCategory(ctx context.Context, c domain.Category) (domain.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return domain.Category{}, service.RequiredError("name")
	}
	c.Slug = Slugify(c.Slug)
	if c.Slug == "" {
		c.Slug = Slugify(c.Name)
	}
	if c.Slug == "" {
		return domain.Category{}, service.NewValidationError("slug", "must contain letters or digits")
	}
	return s.store.CreateCategory(ctx, c)
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.store.ListCategories(ctx)
}

// ListProducts returns active products unless filter.IncludeDraft is set.
func (s *Service) ListProducts(ctx context.Context, filter domain.Filter) ([]domain.Product, error) {
	if filter.Limit <= 0 || filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.store.ListProducts(ctx, filter)
}

// GetProduct reads through the cache. Inactive products are only visible
// when includeDraft is set.
func (s *Service) GetProduct(ctx context.Context, id string, includeDraft bool) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, service.RequiredError("id")
	}

	p, hit, err := s.cache.Get(ctx, id)
	if err != nil {
		s.log.WithError(err).WithField("product_id", id).Warn("product cache read failed")
	}
	if !hit {
		p, err = s.store.GetProduct(ctx, id)
		if err != nil {
			return domain.Product{}, err
		}
		if err := s.cache.Set(ctx, p); err != nil {
			s.log.WithError(err).WithField("product_id", id).Warn("product cache write failed")
		}
	}
	if !p.Active && !includeDraft {
		return domain.Product{}, service.NewNotFoundError("product", id)
	}
	return p, nil
}

func validateProduct(p domain.Product) error {
	if strings.TrimSpace(p.Title) == "" {
		return service.RequiredError("title")
	}
	if p.Price.LessThan(decimal.Zero) {
		return service.NewValidationError("price", "must not be negative")
	}
	if p.Stock < 0 {
		return service.NewValidationError("stock", "must not be negative")
	}
	return nil
}

func (s *Service) CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	p.Title = strings.TrimSpace(p.Title)
	p.Price = p.Price.Round(2)
	if err := validateProduct(p); err != nil {
		return domain.Product{}, err
	}
	created, err := s.store.CreateProduct(ctx, p)
	if err != nil {
		return domain.Product{}, err
	}
	s.log.WithField("product_id", created.ID).Info("product created")
	return created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	if strings.TrimSpace(p.ID) == "" {
		return domain.Product{}, service.RequiredError("id")
	}
	p.Title = strings.TrimSpace(p.Title)
	p.Price = p.Price.Round(2)
	if err := validateProduct(p); err != nil {
		return domain.Product{}, err
	}
	updated, err := s.store.UpdateProduct(ctx, p)
	if err != nil {
		return domain.Product{}, err
	}
	s.invalidate(ctx, p.ID)
	return updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := s.store.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	s.log.WithField("product_id", id).Info("product deleted")
	return nil
}

// Invalidate drops a cached product after a write made outside this service,
// such as a stock change at checkout.
func (s *Service) Invalidate(ctx context.Context, id string) {
	s.invalidate(ctx, id)
}

func (s *Service) invalidate(ctx context.Context, id string) {
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.log.WithError(err).WithField("product_id", id).Warn("product cache invalidation failed")
	}
}
