// Package cart manages shopping carts and reports every change to the
// abandonment tracker.
package cart

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/R3E-Network/storefront/internal/app/core/service"
	"github.com/R3E-Network/storefront/internal/app/domain/abandonment"
	domain "github.com/R3E-Network/storefront/internal/app/domain/cart"
	"github.com/R3E-Network/storefront/internal/app/domain/catalog"
	"github.com/R3E-Network/storefront/internal/app/metrics"
	"github.com/R3E-Network/storefront/internal/app/storage"
	"github.com/R3E-Network/storefront/pkg/logger"
)

const maxQuantity = 999

// Tracker receives the full cart after every mutation.
type Tracker interface {
	TrackCartUpdate(ctx context.Context, userID string, items abandonment.Snapshot) error
}

// Service manages carts.
type Service struct {
	carts    storage.CartStore
	products storage.CatalogStore
	tracker  Tracker
	log      *logger.Logger
}

// New constructs a cart service. A nil tracker disables tracking.
func New(carts storage.CartStore, products storage.CatalogStore, tracker Tracker, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("cart")
	}
	return &Service{carts: carts, products: products, tracker: tracker, log: log}
}

// View prices the user's cart from the catalog. Lines whose product was
// removed or deactivated are returned as unavailable and excluded from the
// subtotal. Stock is only enforced when adding items and at checkout.
func (s *Service) View(ctx context.Context, userID string) (domain.View, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.View{}, service.RequiredError("user_id")
	}
	items, err := s.carts.ListCartItems(ctx, userID)
	if err != nil {
		return domain.View{}, err
	}
	view := domain.View{UserID: userID, Lines: make([]domain.Line, 0, len(items)), Subtotal: decimal.Zero}
	for _, item := range items {
		line := domain.Line{ProductID: item.ProductID, Quantity: item.Quantity}
		p, err := s.products.GetProduct(ctx, item.ProductID)
		switch {
		case err == nil:
			line.Title = p.Title
			line.Price = p.Price
			line.ImageRef = p.ImageRef
			line.Available = p.Active
		case service.IsNotFound(err):
		default:
			return domain.View{}, err
		}
		if line.Available {
			view.Subtotal = view.Subtotal.Add(line.Subtotal())
		}
		view.Lines = append(view.Lines, line)
	}
	return view, nil
}

// AddItem adds quantity units of a product, merging with an existing line.
func (s *Service) AddItem(ctx context.Context, userID, productID string, quantity int) (domain.View, error) {
	if quantity <= 0 {
		return domain.View{}, service.NewValidationError("quantity", "must be positive")
	}
	p, err := s.purchasable(ctx, productID)
	if err != nil {
		return domain.View{}, err
	}
	current, err := s.quantityOf(ctx, userID, p.ID)
	if err != nil {
		return domain.View{}, err
	}
	return s.set(ctx, userID, p, current+quantity)
}

// UpdateItem sets the quantity of an existing line. Zero removes it.
func (s *Service) UpdateItem(ctx context.Context, userID, productID string, quantity int) (domain.View, error) {
	if quantity < 0 {
		return domain.View{}, service.NewValidationError("quantity", "must not be negative")
	}
	if quantity == 0 {
		return s.RemoveItem(ctx, userID, productID)
	}
	current, err := s.quantityOf(ctx, userID, productID)
	if err != nil {
		return domain.View{}, err
	}
	if current == 0 {
		return domain.View{}, service.NewNotFoundError("cart item", productID)
	}
	p, err := s.purchasable(ctx, productID)
	if err != nil {
		return domain.View{}, err
	}
	return s.set(ctx, userID, p, quantity)
}

func (s *Service) RemoveItem(ctx context.Context, userID, productID string) (domain.View, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.View{}, service.RequiredError("user_id")
	}
	if err := s.carts.RemoveCartItem(ctx, userID, productID); err != nil {
		return domain.View{}, err
	}
	return s.afterMutation(ctx, userID)
}

func (s *Service) Clear(ctx context.Context, userID string) (domain.View, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.View{}, service.RequiredError("user_id")
	}
	if err := s.carts.ClearCart(ctx, userID); err != nil {
		return domain.View{}, err
	}
	return s.afterMutation(ctx, userID)
}

func (s *Service) set(ctx context.Context, userID string, p catalog.Product, quantity int) (domain.View, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.View{}, service.RequiredError("user_id")
	}
	if quantity > maxQuantity {
		return domain.View{}, service.NewValidationError("quantity", "exceeds the per-line limit")
	}
	if quantity > p.Stock {
		return domain.View{}, service.NewConflictError("only %d of %q in stock", p.Stock, p.Title)
	}
	if _, err := s.carts.SetCartItem(ctx, domain.Item{UserID: userID, ProductID: p.ID, Quantity: quantity}); err != nil {
		return domain.View{}, err
	}
	return s.afterMutation(ctx, userID)
}

func (s *Service) afterMutation(ctx context.Context, userID string) (domain.View, error) {
	view, err := s.View(ctx, userID)
	if err != nil {
		return domain.View{}, err
	}
	s.track(ctx, userID, view)
	return view, nil
}

// track hands the cart to the tracker. Failures never fail the request.
func (s *Service) track(ctx context.Context, userID string, view domain.View) {
	if s.tracker == nil {
		return
	}
	if err := s.tracker.TrackCartUpdate(ctx, userID, Snapshot(view)); err != nil {
		metrics.RecordTrackingFailure()
		s.log.WithError(err).WithField("user_id", userID).Warn("cart abandonment tracking failed")
	}
}

// Snapshot converts the available lines of a priced cart into an
// abandonment snapshot.
func Snapshot(view domain.View) abandonment.Snapshot {
	out := make(abandonment.Snapshot, 0, len(view.Lines))
	for _, line := range view.Lines {
		if !line.Available {
			continue
		}
		out = append(out, abandonment.SnapshotItem{
			ProductID: line.ProductID,
			Title:     line.Title,
			Price:     line.Price,
			Quantity:  line.Quantity,
			ImageRef:  line.ImageRef,
		})
	}
	return out
}

func (s *Service) purchasable(ctx context.Context, productID string) (catalog.Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return catalog.Product{}, service.RequiredError("product_id")
	}
	p, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return catalog.Product{}, err
	}
	if !p.Active {
		return catalog.Product{}, service.NewNotFoundError("product", productID)
	}
	return p, nil
}

func (s *Service) quantityOf(ctx context.Context, userID, productID string) (int, error) {
	items, err := s.carts.ListCartItems(ctx, userID)
	if err != nil {
		return 0, err
	}
	for _, item := range items {
		if item.ProductID == productID {
			return item.Quantity, nil
		}
	}
	return 0, nil
}
